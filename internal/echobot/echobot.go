// Package echobot is the reference bot served by `openwa serve`: commands
// exercising every outbound call, an echo for plain text, and
// acknowledgements for every other kind of message.
package echobot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jdelaire/openwa/core"
	"github.com/jdelaire/openwa/core/filters"
	"github.com/jdelaire/openwa/core/model"
)

const helpText = `Available commands:
/start - Greeting
/help - This message
/location - Send a sample location
/buttons - Interactive reply buttons
/list - Interactive list
/cta - Call-to-action URL button
/flow - Open the configured WhatsApp Flow
/template - Send the 'hello_world' template
/react [emoji] - React to your message (reply to a message to react to it instead)
/unreact - Remove that reaction
/mark_read - Mark your message as read
/upload - Upload a sample document
/download [media_id] - Download media, the last upload by default
/delete [media_id] - Delete uploaded media, the last upload by default
Any other text is echoed back.`

// SampleLocation is what /location sends.
var SampleLocation = model.Location{
	Latitude:  37.4847,
	Longitude: -122.1473,
	Name:      "Meta Headquarters",
	Address:   "1 Hacker Way, Menlo Park, CA 94025",
}

// Option configures the bot.
type Option func(*bot)

// WithDownloadDir sets where /download stores media. Defaults to
// openwa-downloads under the OS temp dir.
func WithDownloadDir(dir string) Option {
	return func(b *bot) {
		if dir != "" {
			b.downloadDir = dir
		}
	}
}

// WithFlow sets the WhatsApp Flow that /flow opens. Without it /flow only
// explains how to configure one.
func WithFlow(id, screen string) Option {
	return func(b *bot) { b.flowID, b.flowScreen = id, screen }
}

type bot struct {
	logger      *slog.Logger
	downloadDir string
	flowID      string
	flowScreen  string

	mu       sync.Mutex
	uploaded []string
}

func newBot(logger *slog.Logger, opts ...Option) *bot {
	b := &bot{
		logger:      logger,
		downloadDir: filepath.Join(os.TempDir(), "openwa-downloads"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handlers returns the bot's handlers in registration order. Order
// matters: commands come before the echo, and the catch-all is last.
func Handlers(logger *slog.Logger, opts ...Option) []*core.Handler {
	b := newBot(logger, opts...)
	cmd := func(name string, cb core.HandlerFunc) *core.Handler {
		return core.NewHandler(filters.Command(name), cb).Named(name)
	}
	return []*core.Handler{
		cmd("start", b.start),
		cmd("help", b.help),
		cmd("location", b.location),
		cmd("buttons", b.buttons),
		cmd("list", b.list),
		cmd("cta", b.cta),
		cmd("flow", b.flow),
		cmd("template", b.template),
		cmd("react", b.react),
		cmd("unreact", b.unreact),
		cmd("mark_read", b.markRead),
		cmd("upload", b.upload),
		cmd("download", b.download),
		cmd("delete", b.deleteMedia),
		core.NewHandler(filters.And(filters.Text, filters.Not(filters.AnyCommand)), b.echo).Named("echo"),
		core.NewHandler(filters.Media, b.media).Named("media"),
		core.NewHandler(filters.Location, b.incomingLocation).Named("incoming location"),
		core.NewHandler(filters.Contacts, b.contacts).Named("contacts"),
		core.NewHandler(filters.Interactive, b.interactive).Named("interactive"),
		core.NewHandler(filters.Reaction, b.reaction).Named("reaction"),
		core.NewHandler(filters.All(filters.AllMessages, filters.Not(filters.AnyCommand), filters.Not(filters.Interactive)), b.unsupported).Named("unsupported"),
	}
}

// Register adds the bot's handlers to d.
func Register(d *core.Dispatcher, logger *slog.Logger, opts ...Option) error {
	return d.AddHandlers(Handlers(logger, opts...)...)
}

// ack marks msg as read and shows the typing indicator until the reply.
// Read receipts are cosmetic, so a failure is only logged.
func (b *bot) ack(ctx context.Context, msg *model.Message, s core.Sender) {
	if err := s.MarkAsRead(ctx, msg.ID, true); err != nil {
		b.logger.Warn("mark as read", "msg_id", msg.ID, "error", err)
	}
}

func (b *bot) start(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.logger.Info("start command", "from", msg.ChatID())
	greeting := "Hello! I'm an echo bot running on openwa."
	if msg.ProfileName != "" {
		greeting = fmt.Sprintf("Hello %s! I'm an echo bot running on openwa.", msg.ProfileName)
	}
	_, err := s.SendText(ctx, msg.ChatID(), greeting)
	return err
}

func (b *bot) help(ctx context.Context, msg *model.Message, s core.Sender) error {
	_, err := s.SendText(ctx, msg.ChatID(), helpText)
	return err
}

func (b *bot) location(ctx context.Context, msg *model.Message, s core.Sender) error {
	_, err := s.SendLocation(ctx, msg.ChatID(), SampleLocation)
	return err
}

func (b *bot) echo(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.logger.Info("text received", "from", msg.ChatID(), "msg_id", msg.ID)
	b.ack(ctx, msg, s)
	_, err := s.SendText(ctx, msg.ChatID(), "Echo: "+msg.Body())
	return err
}

func (b *bot) media(ctx context.Context, msg *model.Message, s core.Sender) error {
	text := fmt.Sprintf("Received your %s! Media ID: %s", msg.Type, msg.MediaID())
	if c := msg.Caption(); c != "" {
		text += fmt.Sprintf(" (caption: %q)", c)
	}
	b.ack(ctx, msg, s)
	_, err := s.SendText(ctx, msg.ChatID(), text)
	return err
}

func (b *bot) incomingLocation(ctx context.Context, msg *model.Message, s core.Sender) error {
	loc := msg.Location
	if loc == nil {
		return nil
	}
	text := fmt.Sprintf("Received location: %.6f, %.6f", loc.Latitude, loc.Longitude)
	if loc.Name != "" {
		text += " (" + loc.Name + ")"
	}
	b.ack(ctx, msg, s)
	_, err := s.SendText(ctx, msg.ChatID(), text)
	return err
}

func (b *bot) contacts(ctx context.Context, msg *model.Message, s core.Sender) error {
	names := make([]string, 0, len(msg.Contacts))
	for _, c := range msg.Contacts {
		if c.Name.FormattedName != "" {
			names = append(names, c.Name.FormattedName)
		}
	}
	text := fmt.Sprintf("Received %d contact(s)", len(msg.Contacts))
	if len(names) > 0 {
		text += ": " + strings.Join(names, ", ")
	}
	b.ack(ctx, msg, s)
	_, err := s.SendText(ctx, msg.ChatID(), text)
	return err
}

func (b *bot) interactive(ctx context.Context, msg *model.Message, s core.Sender) error {
	kind, info := "interactive reply", "N/A"
	if in := msg.Interactive; in != nil {
		switch {
		case in.Type == model.InteractiveButtonReply && in.ButtonReply != nil:
			kind = "button reply"
			info = fmt.Sprintf("ID=%q, Title=%q", in.ButtonReply.ID, in.ButtonReply.Title)
		case in.Type == model.InteractiveListReply && in.ListReply != nil:
			kind = "list reply"
			info = fmt.Sprintf("ID=%q, Title=%q", in.ListReply.ID, in.ListReply.Title)
		default:
			kind = fmt.Sprintf("unhandled interactive type (%s)", in.Type)
		}
	}
	b.logger.Info("interactive reply", "from", msg.ChatID(), "kind", kind)
	b.ack(ctx, msg, s)
	_, err := s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Received your %s: %s", kind, info))
	return err
}

// reaction only logs; replying to reactions gets noisy fast.
func (b *bot) reaction(_ context.Context, msg *model.Message, _ core.Sender) error {
	if r := msg.Reaction; r != nil {
		if r.Emoji == "" {
			b.logger.Info("reaction removed", "from", msg.ChatID(), "target", r.MessageID)
		} else {
			b.logger.Info("reaction received", "from", msg.ChatID(), "target", r.MessageID, "emoji", r.Emoji)
		}
	}
	return nil
}

func (b *bot) unsupported(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.logger.Warn("unsupported message", "from", msg.ChatID(), "type", msg.Type)
	_, err := s.SendText(ctx, msg.ChatID(),
		fmt.Sprintf("Sorry, I received a message of type '%s' which I don't know how to process yet.", msg.Type))
	return err
}

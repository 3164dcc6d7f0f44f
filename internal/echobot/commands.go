package echobot

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jdelaire/openwa/adapters/whatsapp_sender"
	"github.com/jdelaire/openwa/core"
	"github.com/jdelaire/openwa/core/filters"
	"github.com/jdelaire/openwa/core/model"
)

const (
	sampleTemplate = "hello_world"
	sampleFileName = "openwa-sample.txt"
	sampleFile     = "This document was uploaded by the openwa reference bot.\n"
)

// cloudSender is the part of the Graph API client beyond core.Sender that
// the interactive and media commands need.
type cloudSender interface {
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp_sender.QuickReply, opts ...whatsapp_sender.InteractiveOption) (*model.SendResult, error)
	SendList(ctx context.Context, to, body, buttonText string, sections []whatsapp_sender.ListSection, opts ...whatsapp_sender.InteractiveOption) (*model.SendResult, error)
	SendCTAURL(ctx context.Context, to, body, displayText, link string, opts ...whatsapp_sender.InteractiveOption) (*model.SendResult, error)
	SendFlow(ctx context.Context, to, body string, flow whatsapp_sender.Flow, opts ...whatsapp_sender.InteractiveOption) (*model.SendResult, error)
	SendTemplate(ctx context.Context, to, name, languageCode string, components ...whatsapp_sender.TemplateComponent) (*model.SendResult, error)
	GetMediaInfo(ctx context.Context, mediaID string) (*model.MediaInfo, error)
}

var _ cloudSender = (*whatsapp_sender.Bot)(nil)

// preferredExt pins the extension for types with several registered ones.
var preferredExt = map[string]string{
	"image/jpeg": ".jpg",
	"text/plain": ".txt",
	"audio/mpeg": ".mp3",
	"audio/ogg":  ".ogg",
	"video/mp4":  ".mp4",
}

func (b *bot) cloud(ctx context.Context, msg *model.Message, s core.Sender) (cloudSender, bool) {
	cs, ok := s.(cloudSender)
	if !ok {
		b.logger.Warn("command needs the Cloud API sender", "from", msg.ChatID(), "sender", fmt.Sprintf("%T", s))
		if _, err := s.SendText(ctx, msg.ChatID(), "This command is not available with the current sender."); err != nil {
			b.logger.Warn("send text", "error", err)
		}
	}
	return cs, ok
}

func (b *bot) buttons(ctx context.Context, msg *model.Message, s core.Sender) error {
	cs, ok := b.cloud(ctx, msg, s)
	if !ok {
		return nil
	}
	b.ack(ctx, msg, s)
	_, err := cs.SendButtons(ctx, msg.ChatID(), "Please select one of the options below.",
		[]whatsapp_sender.QuickReply{
			{ID: "reply_yes", Title: "Yes"},
			{ID: "reply_no", Title: "No"},
			{ID: "reply_maybe", Title: "Maybe"},
		},
		whatsapp_sender.WithHeaderText("Button Demo Header"),
		whatsapp_sender.WithFooter("Interactive Buttons Footer"),
	)
	return err
}

func (b *bot) list(ctx context.Context, msg *model.Message, s core.Sender) error {
	cs, ok := b.cloud(ctx, msg, s)
	if !ok {
		return nil
	}
	b.ack(ctx, msg, s)
	_, err := cs.SendList(ctx, msg.ChatID(), "Select one item from the categories.", "Show Items",
		[]whatsapp_sender.ListSection{
			{Title: "Category A", Rows: []whatsapp_sender.ListRow{
				{ID: "a_item_1", Title: "Item A1", Description: "Description for A1"},
				{ID: "a_item_2", Title: "Item A2"},
			}},
			{Title: "Category B", Rows: []whatsapp_sender.ListRow{
				{ID: "b_item_1", Title: "Item B1"},
			}},
		},
		whatsapp_sender.WithHeaderText("Choose from List"),
		whatsapp_sender.WithFooter("List Message Footer"),
	)
	return err
}

func (b *bot) cta(ctx context.Context, msg *model.Message, s core.Sender) error {
	cs, ok := b.cloud(ctx, msg, s)
	if !ok {
		return nil
	}
	b.ack(ctx, msg, s)
	_, err := cs.SendCTAURL(ctx, msg.ChatID(), "Visit the official WhatsApp Cloud API documentation.",
		"Visit Docs", "https://developers.facebook.com/docs/whatsapp/cloud-api/",
		whatsapp_sender.WithHeaderText("Learn More"),
		whatsapp_sender.WithFooter("Opens developer portal"),
	)
	return err
}

func (b *bot) flow(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.ack(ctx, msg, s)
	if b.flowID == "" || b.flowScreen == "" {
		b.logger.Warn("flow command without a configured flow")
		_, err := s.SendText(ctx, msg.ChatID(),
			"Cannot send Flow: set OPENWA_FLOW_ID and OPENWA_FLOW_SCREEN to a published Flow and its first screen.")
		return err
	}
	cs, ok := b.cloud(ctx, msg, s)
	if !ok {
		return nil
	}
	_, err := cs.SendFlow(ctx, msg.ChatID(), "Tap the button below to begin the interactive flow.",
		whatsapp_sender.Flow{
			ID:     b.flowID,
			CTA:    "Start Interactive Flow",
			Screen: b.flowScreen,
			Data:   map[string]any{"customer_name": msg.ProfileName, "initial_step": "greeting"},
		},
		whatsapp_sender.WithHeaderText("Initiate Flow"),
		whatsapp_sender.WithFooter("Flow testing"),
	)
	return err
}

func (b *bot) template(ctx context.Context, msg *model.Message, s core.Sender) error {
	cs, ok := b.cloud(ctx, msg, s)
	if !ok {
		return nil
	}
	b.ack(ctx, msg, s)
	_, err := cs.SendTemplate(ctx, msg.ChatID(), sampleTemplate, "en_US")
	var apiErr *whatsapp_sender.APIError
	if errors.As(err, &apiErr) {
		// Usually a template that is missing or not approved yet.
		b.logger.Error("send template", "template", sampleTemplate, "error", err)
		_, err = s.SendText(ctx, msg.ChatID(), fmt.Sprintf(
			"Failed to send template '%s'. Check if it exists and is approved. Error: %s", sampleTemplate, apiErr.Message))
	}
	return err
}

// reactTarget is the quoted message when msg is a reply, else msg itself.
func reactTarget(msg *model.Message) string {
	if msg.Context != nil && msg.Context.ID != "" {
		return msg.Context.ID
	}
	return msg.ID
}

func (b *bot) react(ctx context.Context, msg *model.Message, s core.Sender) error {
	target := reactTarget(msg)
	emoji := "❤️"
	if arg := filters.CommandArgs(msg); arg != "" {
		emoji = arg
	}
	if _, err := s.SendReaction(ctx, msg.ChatID(), target, emoji); err != nil {
		return fmt.Errorf("react to %s: %w", target, err)
	}
	return nil
}

func (b *bot) unreact(ctx context.Context, msg *model.Message, s core.Sender) error {
	target := reactTarget(msg)
	if _, err := s.SendReaction(ctx, msg.ChatID(), target, ""); err != nil {
		return fmt.Errorf("remove reaction from %s: %w", target, err)
	}
	return nil
}

func (b *bot) markRead(ctx context.Context, msg *model.Message, s core.Sender) error {
	if err := s.MarkAsRead(ctx, msg.ID, false); err != nil {
		return fmt.Errorf("mark %s as read: %w", msg.ID, err)
	}
	_, err := s.SendText(ctx, msg.ChatID(), "Marked "+msg.ID+" as read.")
	return err
}

func (b *bot) upload(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.ack(ctx, msg, s)
	id, err := s.UploadMedia(ctx, sampleFileName, "text/plain", strings.NewReader(sampleFile))
	if err != nil {
		return fmt.Errorf("upload sample: %w", err)
	}

	b.mu.Lock()
	b.uploaded = append(b.uploaded, id)
	b.mu.Unlock()
	b.logger.Info("sample uploaded", "media_id", id)

	_, err = s.SendText(ctx, msg.ChatID(),
		fmt.Sprintf("Uploaded %s. Media ID: %s. Try /download %s or /delete %s.", sampleFileName, id, id, id))
	return err
}

// mediaArg returns the media id argument, falling back to the latest
// /upload. With neither it replies with usage and returns "".
func (b *bot) mediaArg(ctx context.Context, msg *model.Message, s core.Sender, command string) (string, error) {
	id := filters.CommandArgs(msg)
	if id == "" {
		b.mu.Lock()
		if n := len(b.uploaded); n > 0 {
			id = b.uploaded[n-1]
		}
		b.mu.Unlock()
	}
	if id == "" || strings.ContainsAny(id, `/\ `) || id == "." || id == ".." {
		_, err := s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Usage: /%s <media_id>", command))
		return "", err
	}
	return id, nil
}

func extensionFor(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := preferredExt[base]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(base); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func (b *bot) download(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.ack(ctx, msg, s)
	id, err := b.mediaArg(ctx, msg, s, "download")
	if id == "" {
		return err
	}

	ext := ".bin"
	if cs, ok := s.(cloudSender); ok {
		info, err := cs.GetMediaInfo(ctx, id)
		if err != nil {
			s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Cannot get info for media ID '%s'. Does it exist?", id))
			return fmt.Errorf("media info %s: %w", id, err)
		}
		ext = extensionFor(info.MimeType)
	}

	path, n, err := b.save(ctx, s, id, ext)
	if err != nil {
		s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Failed to download media %s.", id))
		return err
	}
	b.logger.Info("media downloaded", "media_id", id, "path", path, "bytes", n)
	_, err = s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Downloaded %d bytes to %s", n, filepath.Base(path)))
	return err
}

func (b *bot) save(ctx context.Context, s core.Sender, id, ext string) (string, int64, error) {
	if err := os.MkdirAll(b.downloadDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(b.downloadDir, id+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := s.DownloadMedia(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("download %s: %w", id, err)
	}
	return path, n, nil
}

func (b *bot) deleteMedia(ctx context.Context, msg *model.Message, s core.Sender) error {
	b.ack(ctx, msg, s)
	id, err := b.mediaArg(ctx, msg, s, "delete")
	if id == "" {
		return err
	}

	if err := s.DeleteMedia(ctx, id); err != nil {
		s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Failed to delete media %s.", id))
		return fmt.Errorf("delete media %s: %w", id, err)
	}

	b.mu.Lock()
	b.uploaded = slices.DeleteFunc(b.uploaded, func(u string) bool { return u == id })
	b.mu.Unlock()

	_, err = s.SendText(ctx, msg.ChatID(), fmt.Sprintf("Deleted media %s.", id))
	return err
}

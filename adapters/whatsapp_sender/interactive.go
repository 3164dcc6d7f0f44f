package whatsapp_sender

import (
	"context"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/jdelaire/openwa/core/model"
)

const (
	maxBodyLen        = 1024
	maxHeaderLen      = 60
	maxFooterLen      = 60
	maxButtons        = 3
	maxButtonTitleLen = 20
	maxListRows       = 10
	maxListSections   = 10
	maxRowTitleLen    = 24
	maxRowDescLen     = 72
	flowMessageVer    = "3"
)

// QuickReply is a reply button attached to an interactive message.
type QuickReply struct {
	ID    string
	Title string
}

// ListSection groups rows of an interactive list. Title is required when
// a list has more than one section.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one selectable entry of an interactive list.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Flow describes the WhatsApp Flow an interactive flow message opens.
type Flow struct {
	ID     string
	CTA    string // button text
	Token  string
	Action string // "navigate" (default) or "data_exchange"
	Screen string // first screen, required for navigate
	Data   map[string]any
	Draft  bool
}

type interactive struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   textOnly           `json:"body"`
	Footer *textOnly          `json:"footer,omitempty"`
	Action any                `json:"action"`
}

type textOnly struct {
	Text string `json:"text"`
}

type interactiveHeader struct {
	Type     string     `json:"type"`
	Text     string     `json:"text,omitempty"`
	Image    *mediaBody `json:"image,omitempty"`
	Video    *mediaBody `json:"video,omitempty"`
	Document *mediaBody `json:"document,omitempty"`
}

// InteractiveOption adds a header or a footer to an interactive message.
type InteractiveOption func(*interactive) error

// WithHeaderText sets a text header.
func WithHeaderText(text string) InteractiveOption {
	return func(in *interactive) error {
		if text == "" || utf8.RuneCountInString(text) > maxHeaderLen {
			return fmt.Errorf("%w: header text must be 1 to %d characters", ErrInvalidArgument, maxHeaderLen)
		}
		in.Header = &interactiveHeader{Type: "text", Text: text}
		return nil
	}
}

// WithHeaderMedia sets an image, video or document header.
func WithHeaderMedia(kind model.MessageType, ref model.MediaRef) InteractiveOption {
	return func(in *interactive) error {
		body, err := mediaPayload(ref, "", "")
		if err != nil {
			return err
		}
		h := &interactiveHeader{Type: string(kind)}
		switch kind {
		case model.TypeImage:
			h.Image = body
		case model.TypeVideo:
			h.Video = body
		case model.TypeDocument:
			h.Document = body
		default:
			return fmt.Errorf("%w: %s cannot be a header", ErrInvalidArgument, kind)
		}
		in.Header = h
		return nil
	}
}

// WithFooter sets the footer line.
func WithFooter(text string) InteractiveOption {
	return func(in *interactive) error {
		if text == "" || utf8.RuneCountInString(text) > maxFooterLen {
			return fmt.Errorf("%w: footer must be 1 to %d characters", ErrInvalidArgument, maxFooterLen)
		}
		in.Footer = &textOnly{Text: text}
		return nil
	}
}

func newInteractive(kind, body string, action any, opts []InteractiveOption) (*interactive, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(body) > maxBodyLen {
		return nil, fmt.Errorf("%w: body longer than %d characters", ErrInvalidArgument, maxBodyLen)
	}
	in := &interactive{Type: kind, Body: textOnly{Text: body}, Action: action}
	for _, opt := range opts {
		if err := opt(in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (b *Bot) sendInteractive(ctx context.Context, to string, in *interactive) (*model.SendResult, error) {
	return b.send(ctx, outbound{To: to, Type: "interactive", Interactive: in})
}

// SendButtons sends an interactive message with up to three reply buttons.
func (b *Bot) SendButtons(ctx context.Context, to, body string, buttons []QuickReply, opts ...InteractiveOption) (*model.SendResult, error) {
	if len(buttons) == 0 || len(buttons) > maxButtons {
		return nil, fmt.Errorf("%w: need 1 to %d buttons, got %d", ErrInvalidArgument, maxButtons, len(buttons))
	}

	items := make([]map[string]any, 0, len(buttons))
	for _, btn := range buttons {
		if btn.ID == "" || btn.Title == "" {
			return nil, fmt.Errorf("%w: button needs an id and a title", ErrInvalidArgument)
		}
		if utf8.RuneCountInString(btn.Title) > maxButtonTitleLen {
			return nil, fmt.Errorf("%w: button title %q longer than %d characters", ErrInvalidArgument, btn.Title, maxButtonTitleLen)
		}
		items = append(items, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": btn.ID, "title": btn.Title},
		})
	}

	in, err := newInteractive("button", body, map[string]any{"buttons": items}, opts)
	if err != nil {
		return nil, err
	}
	return b.sendInteractive(ctx, to, in)
}

// SendList sends an interactive list. buttonText labels the button that
// opens it. Lists only take a text header.
func (b *Bot) SendList(ctx context.Context, to, body, buttonText string, sections []ListSection, opts ...InteractiveOption) (*model.SendResult, error) {
	if buttonText == "" || utf8.RuneCountInString(buttonText) > maxButtonTitleLen {
		return nil, fmt.Errorf("%w: list button text must be 1 to %d characters", ErrInvalidArgument, maxButtonTitleLen)
	}
	if len(sections) == 0 || len(sections) > maxListSections {
		return nil, fmt.Errorf("%w: need 1 to %d sections, got %d", ErrInvalidArgument, maxListSections, len(sections))
	}
	rows := 0
	for _, sec := range sections {
		if len(sections) > 1 && sec.Title == "" {
			return nil, fmt.Errorf("%w: every section needs a title when there are several", ErrInvalidArgument)
		}
		if len(sec.Rows) == 0 {
			return nil, fmt.Errorf("%w: section %q has no rows", ErrInvalidArgument, sec.Title)
		}
		for _, row := range sec.Rows {
			if row.ID == "" || row.Title == "" {
				return nil, fmt.Errorf("%w: row needs an id and a title", ErrInvalidArgument)
			}
			if utf8.RuneCountInString(row.Title) > maxRowTitleLen || utf8.RuneCountInString(row.Description) > maxRowDescLen {
				return nil, fmt.Errorf("%w: row %q too long", ErrInvalidArgument, row.ID)
			}
		}
		rows += len(sec.Rows)
	}
	if rows > maxListRows {
		return nil, fmt.Errorf("%w: %d rows, at most %d allowed", ErrInvalidArgument, rows, maxListRows)
	}

	in, err := newInteractive("list", body, map[string]any{"button": buttonText, "sections": sections}, opts)
	if err != nil {
		return nil, err
	}
	if in.Header != nil && in.Header.Type != "text" {
		return nil, fmt.Errorf("%w: lists only take a text header", ErrInvalidArgument)
	}
	return b.sendInteractive(ctx, to, in)
}

// SendCTAURL sends a message with a single button that opens link.
func (b *Bot) SendCTAURL(ctx context.Context, to, body, displayText, link string, opts ...InteractiveOption) (*model.SendResult, error) {
	if displayText == "" || utf8.RuneCountInString(displayText) > maxButtonTitleLen {
		return nil, fmt.Errorf("%w: display text must be 1 to %d characters", ErrInvalidArgument, maxButtonTitleLen)
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrInvalidArgument, link)
	}

	in, err := newInteractive("cta_url", body, map[string]any{
		"name":       "cta_url",
		"parameters": map[string]string{"display_text": displayText, "url": link},
	}, opts)
	if err != nil {
		return nil, err
	}
	return b.sendInteractive(ctx, to, in)
}

// SendFlow sends a message whose button opens a WhatsApp Flow.
func (b *Bot) SendFlow(ctx context.Context, to, body string, flow Flow, opts ...InteractiveOption) (*model.SendResult, error) {
	if flow.ID == "" || flow.CTA == "" {
		return nil, fmt.Errorf("%w: flow needs an id and a cta", ErrInvalidArgument)
	}
	action := flow.Action
	if action == "" {
		action = "navigate"
	}
	params := map[string]any{
		"flow_message_version": flowMessageVer,
		"flow_id":              flow.ID,
		"flow_cta":             flow.CTA,
		"flow_action":          action,
	}
	switch action {
	case "navigate":
		if flow.Screen == "" {
			return nil, fmt.Errorf("%w: navigate flow needs a screen", ErrInvalidArgument)
		}
		payload := map[string]any{"screen": flow.Screen}
		if len(flow.Data) > 0 {
			payload["data"] = flow.Data
		}
		params["flow_action_payload"] = payload
	case "data_exchange":
	default:
		return nil, fmt.Errorf("%w: unknown flow action %q", ErrInvalidArgument, action)
	}
	if flow.Token != "" {
		params["flow_token"] = flow.Token
	}
	if flow.Draft {
		params["mode"] = "draft"
	}

	in, err := newInteractive("flow", body, map[string]any{"name": "flow", "parameters": params}, opts)
	if err != nil {
		return nil, err
	}
	return b.sendInteractive(ctx, to, in)
}

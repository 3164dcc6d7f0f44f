package whatsapp_sender

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jdelaire/openwa/core/model"
)

const maxTextLen = 4096

type outbound struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Context          *replyTo        `json:"context,omitempty"`
	Text             *textBody       `json:"text,omitempty"`
	Image            *mediaBody      `json:"image,omitempty"`
	Video            *mediaBody      `json:"video,omitempty"`
	Audio            *mediaBody      `json:"audio,omitempty"`
	Sticker          *mediaBody      `json:"sticker,omitempty"`
	Document         *mediaBody      `json:"document,omitempty"`
	Location         *locationBody   `json:"location,omitempty"`
	Reaction         *reactionBody   `json:"reaction,omitempty"`
	Contacts         []model.Contact `json:"contacts,omitempty"`
	Interactive      *interactive    `json:"interactive,omitempty"`
	Template         *templateBody   `json:"template,omitempty"`
}

type replyTo struct {
	MessageID string `json:"message_id"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type mediaBody struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type reactionBody struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func (b *Bot) send(ctx context.Context, msg outbound) (*model.SendResult, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("%w: empty recipient", ErrInvalidArgument)
	}
	msg.MessagingProduct = messagingProduct
	msg.RecipientType = "individual"

	var res model.SendResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoint(b.phoneNumberID, "messages"), "send "+msg.Type, msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendText sends a plain text message.
func (b *Bot) SendText(ctx context.Context, to, text string) (*model.SendResult, error) {
	return b.sendText(ctx, to, "", text)
}

// SendReply sends a text message quoting the message with id replyToID.
func (b *Bot) SendReply(ctx context.Context, to, replyToID, text string) (*model.SendResult, error) {
	return b.sendText(ctx, to, replyToID, text)
}

func (b *Bot) sendText(ctx context.Context, to, replyToID, text string) (*model.SendResult, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(text) > maxTextLen {
		return nil, fmt.Errorf("%w: text longer than %d characters", ErrInvalidArgument, maxTextLen)
	}
	msg := outbound{
		To:   to,
		Type: "text",
		Text: &textBody{Body: text, PreviewURL: strings.Contains(text, "://")},
	}
	if replyToID != "" {
		msg.Context = &replyTo{MessageID: replyToID}
	}
	return b.send(ctx, msg)
}

func mediaPayload(ref model.MediaRef, caption, filename string) (*mediaBody, error) {
	if ref.ID == "" && ref.Link == "" {
		return nil, fmt.Errorf("%w: media needs an id or a link", ErrInvalidArgument)
	}
	body := &mediaBody{ID: ref.ID, Caption: caption, Filename: filename}
	if ref.ID == "" {
		body.Link = ref.Link
	}
	return body, nil
}

// SendImage sends an image by uploaded media ID or public link.
func (b *Bot) SendImage(ctx context.Context, to string, media model.MediaRef, caption string) (*model.SendResult, error) {
	body, err := mediaPayload(media, caption, "")
	if err != nil {
		return nil, err
	}
	return b.send(ctx, outbound{To: to, Type: "image", Image: body})
}

// SendVideo sends a video by uploaded media ID or public link.
func (b *Bot) SendVideo(ctx context.Context, to string, media model.MediaRef, caption string) (*model.SendResult, error) {
	body, err := mediaPayload(media, caption, "")
	if err != nil {
		return nil, err
	}
	return b.send(ctx, outbound{To: to, Type: "video", Video: body})
}

// SendAudio sends an audio clip. Audio messages carry no caption.
func (b *Bot) SendAudio(ctx context.Context, to string, media model.MediaRef) (*model.SendResult, error) {
	body, err := mediaPayload(media, "", "")
	if err != nil {
		return nil, err
	}
	return b.send(ctx, outbound{To: to, Type: "audio", Audio: body})
}

// SendSticker sends a WebP sticker.
func (b *Bot) SendSticker(ctx context.Context, to string, media model.MediaRef) (*model.SendResult, error) {
	body, err := mediaPayload(media, "", "")
	if err != nil {
		return nil, err
	}
	return b.send(ctx, outbound{To: to, Type: "sticker", Sticker: body})
}

// SendDocument sends a file. filename is what the recipient sees.
func (b *Bot) SendDocument(ctx context.Context, to string, media model.MediaRef, caption, filename string) (*model.SendResult, error) {
	body, err := mediaPayload(media, caption, filename)
	if err != nil {
		return nil, err
	}
	return b.send(ctx, outbound{To: to, Type: "document", Document: body})
}

// SendLocation sends a map pin. Coordinates are validated before the call.
func (b *Bot) SendLocation(ctx context.Context, to string, loc model.Location) (*model.SendResult, error) {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidArgument)
	}
	return b.send(ctx, outbound{To: to, Type: "location", Location: &locationBody{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Name:      loc.Name,
		Address:   loc.Address,
	}})
}

// SendReaction reacts to messageID with emoji. An empty emoji removes an
// earlier reaction.
func (b *Bot) SendReaction(ctx context.Context, to, messageID, emoji string) (*model.SendResult, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: empty message id", ErrInvalidArgument)
	}
	return b.send(ctx, outbound{To: to, Type: "reaction", Reaction: &reactionBody{MessageID: messageID, Emoji: emoji}})
}

// SendContacts sends one or more contact cards. Every card needs a
// formatted name.
func (b *Bot) SendContacts(ctx context.Context, to string, contacts []model.Contact) (*model.SendResult, error) {
	if len(contacts) == 0 {
		return nil, fmt.Errorf("%w: no contacts", ErrInvalidArgument)
	}
	for _, c := range contacts {
		if c.Name.FormattedName == "" {
			return nil, fmt.Errorf("%w: contact without formatted name", ErrInvalidArgument)
		}
	}
	return b.send(ctx, outbound{To: to, Type: "contacts", Contacts: contacts})
}

// MarkAsRead marks an inbound message as read, optionally showing a typing
// indicator to the sender until the next reply.
func (b *Bot) MarkAsRead(ctx context.Context, messageID string, showTyping bool) error {
	if messageID == "" {
		return fmt.Errorf("%w: empty message id", ErrInvalidArgument)
	}
	payload := map[string]any{
		"messaging_product": messagingProduct,
		"status":            "read",
		"message_id":        messageID,
	}
	if showTyping {
		payload["typing_indicator"] = map[string]string{"type": "text"}
	}
	return b.doJSON(ctx, http.MethodPost, b.endpoint(b.phoneNumberID, "messages"), "mark as read", payload, nil)
}

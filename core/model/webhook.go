package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// MaxPayloadBytes caps the size of a single webhook delivery.
	MaxPayloadBytes = 1 << 20

	objectWhatsApp = "whatsapp_business_account"
	fieldMessages  = "messages"
)

// ErrWrongObject is wrapped by ParseError when the envelope is not a
// WhatsApp Business Account notification.
var ErrWrongObject = errors.New("unexpected webhook object")

// ParseError reports a malformed inbound payload.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse webhook: %s: %v", e.Reason, e.Err)
	}
	return "parse webhook: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Envelope is the top level body of a webhook POST.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string         `json:"messaging_product"`
	Metadata         Metadata       `json:"metadata"`
	Contacts         []Profile      `json:"contacts"`
	Messages         []rawMessage   `json:"messages"`
	Statuses         []Status       `json:"statuses"`
	Errors           []ErrorPayload `json:"errors"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Profile struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Timestamp    string         `json:"timestamp"`
	RecipientID  string         `json:"recipient_id"`
	Errors       []ErrorPayload `json:"errors,omitempty"`
	Conversation *struct {
		ID string `json:"id"`
	} `json:"conversation,omitempty"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

type rawMessage struct {
	ID          string        `json:"id"`
	From        string        `json:"from"`
	Timestamp   string        `json:"timestamp"`
	Type        string        `json:"type"`
	Text        *Text         `json:"text"`
	Image       *Media        `json:"image"`
	Video       *Media        `json:"video"`
	Audio       *Media        `json:"audio"`
	Document    *Media        `json:"document"`
	Sticker     *Media        `json:"sticker"`
	Location    *Location     `json:"location"`
	Contacts    []Contact     `json:"contacts"`
	Interactive *Interactive  `json:"interactive"`
	Reaction    *Reaction     `json:"reaction"`
	Button      *Button       `json:"button"`
	Context     *ReplyContext `json:"context"`
}

func decodeEnvelope(raw []byte) (*Envelope, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}
	if len(raw) > MaxPayloadBytes {
		return nil, &ParseError{Reason: fmt.Sprintf("payload exceeds %d byte limit", MaxPayloadBytes)}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if env.Object != objectWhatsApp {
		return nil, &ParseError{Reason: fmt.Sprintf("object %q", env.Object), Err: ErrWrongObject}
	}
	return &env, nil
}

// ParseWebhook decodes a webhook delivery and returns its messages in
// payload order. A payload with only status updates yields no messages.
//
// A malformed message does not invalidate its neighbours: the valid
// messages are returned together with the joined *ParseError of every
// message that was skipped. A nil slice with an error means the envelope
// itself could not be decoded.
func ParseWebhook(raw []byte) ([]*Message, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	var (
		out  []*Message
		errs []error
	)
	for _, entry := range env.Entry {
		for _, ch := range entry.Changes {
			if ch.Field != "" && ch.Field != fieldMessages {
				continue
			}
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for i := range ch.Value.Messages {
				msg, err := convert(&ch.Value.Messages[i])
				if err != nil {
					errs = append(errs, err)
					continue
				}
				msg.ProfileName = names[msg.From]
				msg.PhoneNumberID = ch.Value.Metadata.PhoneNumberID
				out = append(out, msg)
			}
		}
	}
	return out, errors.Join(errs...)
}

// ParseStatuses returns the delivery receipts carried by a webhook delivery.
func ParseStatuses(raw []byte) ([]Status, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	var out []Status
	for _, entry := range env.Entry {
		for _, ch := range entry.Changes {
			out = append(out, ch.Value.Statuses...)
		}
	}
	return out, nil
}

func convert(r *rawMessage) (*Message, error) {
	if r.ID == "" {
		return nil, &ParseError{Reason: "message without id"}
	}
	if r.From == "" {
		return nil, &ParseError{Reason: fmt.Sprintf("message %s without sender", r.ID)}
	}

	var ts time.Time
	if r.Timestamp != "" {
		secs, err := strconv.ParseInt(r.Timestamp, 10, 64)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("message %s timestamp", r.ID), Err: err}
		}
		ts = time.Unix(secs, 0)
	}

	return &Message{
		ID:          r.ID,
		From:        r.From,
		Timestamp:   ts,
		Type:        messageType(r.Type),
		Text:        r.Text,
		Image:       r.Image,
		Video:       r.Video,
		Audio:       r.Audio,
		Document:    r.Document,
		Sticker:     r.Sticker,
		Location:    r.Location,
		Contacts:    r.Contacts,
		Interactive: r.Interactive,
		Reaction:    r.Reaction,
		Button:      r.Button,
		Context:     r.Context,
	}, nil
}

func messageType(s string) MessageType {
	switch t := MessageType(s); t {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker,
		TypeLocation, TypeContacts, TypeInteractive, TypeReaction, TypeButton,
		TypeOrder, TypeSystem, TypeUnsupported:
		return t
	}
	return TypeUnknown
}

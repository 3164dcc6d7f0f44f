package model

import "time"

// MessageType is the kind of an inbound WhatsApp message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeVideo       MessageType = "video"
	TypeAudio       MessageType = "audio"
	TypeDocument    MessageType = "document"
	TypeSticker     MessageType = "sticker"
	TypeLocation    MessageType = "location"
	TypeContacts    MessageType = "contacts"
	TypeInteractive MessageType = "interactive"
	TypeReaction    MessageType = "reaction"
	TypeButton      MessageType = "button"
	TypeOrder       MessageType = "order"
	TypeSystem      MessageType = "system"
	TypeUnsupported MessageType = "unsupported"
	TypeUnknown     MessageType = "unknown"
)

// InteractiveType is the kind of reply carried by an interactive message.
type InteractiveType string

const (
	InteractiveButtonReply InteractiveType = "button_reply"
	InteractiveListReply   InteractiveType = "list_reply"
	InteractiveFlowReply   InteractiveType = "nfm_reply"
)

// Message is a parsed inbound message. It is never mutated after parsing.
type Message struct {
	ID            string
	From          string
	Timestamp     time.Time
	Type          MessageType
	ProfileName   string
	PhoneNumberID string

	Text        *Text
	Image       *Media
	Video       *Media
	Audio       *Media
	Document    *Media
	Sticker     *Media
	Location    *Location
	Contacts    []Contact
	Interactive *Interactive
	Reaction    *Reaction
	Button      *Button
	Context     *ReplyContext
}

// Text is the payload of a text message.
type Text struct {
	Body string `json:"body"`
}

// Media describes an inbound media attachment. Only ID is guaranteed.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Animated bool   `json:"animated,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// Location is a map pin, sent or received.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// Contact is a shared contact card.
type Contact struct {
	Name   ContactName    `json:"name"`
	Phones []ContactPhone `json:"phones,omitempty"`
	Emails []ContactEmail `json:"emails,omitempty"`
}

type ContactName struct {
	FormattedName string `json:"formatted_name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
}

type ContactPhone struct {
	Phone string `json:"phone,omitempty"`
	Type  string `json:"type,omitempty"`
	WaID  string `json:"wa_id,omitempty"`
}

type ContactEmail struct {
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Interactive is a user's reply to an interactive message.
type Interactive struct {
	Type        InteractiveType `json:"type"`
	ButtonReply *Reply          `json:"button_reply,omitempty"`
	ListReply   *Reply          `json:"list_reply,omitempty"`
}

// Reply identifies the button or list row a user picked.
type Reply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Reaction is an emoji reaction to an earlier message. An empty Emoji
// means the reaction was removed.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji,omitempty"`
}

// Button is a quick-reply button press on a template message.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// ReplyContext is set when the message quotes or replies to another message.
type ReplyContext struct {
	From      string `json:"from,omitempty"`
	ID        string `json:"id,omitempty"`
	Forwarded bool   `json:"forwarded,omitempty"`
}

// ChatID returns the id replies should be addressed to.
func (m *Message) ChatID() string {
	return m.From
}

// Body returns the text body, or "" when the message carries no text.
func (m *Message) Body() string {
	if m == nil || m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// Media returns the media attachment for media kinds, or nil.
func (m *Message) Media() *Media {
	if m == nil {
		return nil
	}
	switch m.Type {
	case TypeImage:
		return m.Image
	case TypeVideo:
		return m.Video
	case TypeAudio:
		return m.Audio
	case TypeDocument:
		return m.Document
	case TypeSticker:
		return m.Sticker
	}
	return nil
}

// MediaID returns the id of the media payload, or "".
func (m *Message) MediaID() string {
	if md := m.Media(); md != nil {
		return md.ID
	}
	return ""
}

// Caption returns the caption of an image, video or document.
func (m *Message) Caption() string {
	if md := m.Media(); md != nil {
		return md.Caption
	}
	return ""
}

// Filename returns the file name of a document.
func (m *Message) Filename() string {
	if md := m.Media(); md != nil {
		return md.Filename
	}
	return ""
}

// IsMedia reports whether t is one of the media kinds.
func IsMedia(t MessageType) bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker:
		return true
	}
	return false
}

package whatsapp_sender

import (
	"context"
	"fmt"

	"github.com/jdelaire/openwa/core/model"
)

const defaultTemplateLanguage = "en_US"

// TemplateComponent fills the variables of one part of a template: its
// header, body, or the button at Index.
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is one template variable. Type selects which of the
// other fields is sent.
type TemplateParameter struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Payload  string          `json:"payload,omitempty"`
	Currency *Currency       `json:"currency,omitempty"`
	DateTime *DateTime       `json:"date_time,omitempty"`
	Image    *model.MediaRef `json:"image,omitempty"`
	Video    *model.MediaRef `json:"video,omitempty"`
	Document *model.MediaRef `json:"document,omitempty"`
}

// Currency is a localized amount; Amount1000 is the value times 1000.
type Currency struct {
	FallbackValue string `json:"fallback_value"`
	Code          string `json:"code"`
	Amount1000    int64  `json:"amount_1000"`
}

// DateTime is shown as FallbackValue on every client.
type DateTime struct {
	FallbackValue string `json:"fallback_value"`
}

// TextParam is a text template variable.
func TextParam(text string) TemplateParameter {
	return TemplateParameter{Type: "text", Text: text}
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

func validateComponent(c TemplateComponent) error {
	switch c.Type {
	case "header", "body":
	case "button":
		if c.SubType == "" || c.Index == "" {
			return fmt.Errorf("%w: button component needs a sub_type and an index", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown template component %q", ErrInvalidArgument, c.Type)
	}
	for _, p := range c.Parameters {
		if p.Type == "" {
			return fmt.Errorf("%w: %s parameter without type", ErrInvalidArgument, c.Type)
		}
	}
	return nil
}

// SendTemplate sends a pre-approved template. languageCode defaults to
// en_US; components are only needed for templates with variables.
func (b *Bot) SendTemplate(ctx context.Context, to, name, languageCode string, components ...TemplateComponent) (*model.SendResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty template name", ErrInvalidArgument)
	}
	if languageCode == "" {
		languageCode = defaultTemplateLanguage
	}
	for _, c := range components {
		if err := validateComponent(c); err != nil {
			return nil, err
		}
	}
	return b.send(ctx, outbound{To: to, Type: "template", Template: &templateBody{
		Name:       name,
		Language:   templateLanguage{Code: languageCode},
		Components: components,
	}})
}

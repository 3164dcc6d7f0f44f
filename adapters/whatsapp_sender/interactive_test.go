package whatsapp_sender

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jdelaire/openwa/core/model"
)

func interactiveBody(t *testing.T, c *capture) map[string]any {
	t.Helper()
	if c.body["type"] != "interactive" {
		t.Fatalf("expected message type interactive, got %v", c.body["type"])
	}
	return c.body["interactive"].(map[string]any)
}

func TestBot_SendList(t *testing.T) {
	server, c := newGraph(t, http.StatusOK, sentReply)

	sections := []ListSection{
		{Title: "Category A", Rows: []ListRow{
			{ID: "a_item_1", Title: "Item A1", Description: "Description for A1"},
			{ID: "a_item_2", Title: "Item A2"},
		}},
		{Title: "Category B", Rows: []ListRow{{ID: "b_item_1", Title: "Item B1"}}},
	}
	_, err := newTestBot(server.URL).SendList(context.Background(), "155",
		"Select one item from the categories.", "Show Items", sections,
		WithHeaderText("Choose from List"), WithFooter("List Message Footer"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := interactiveBody(t, c)
	if in["type"] != "list" {
		t.Errorf("expected interactive type list, got %v", in["type"])
	}
	if h := in["header"].(map[string]any); h["type"] != "text" || h["text"] != "Choose from List" {
		t.Errorf("unexpected header %v", h)
	}
	if f := in["footer"].(map[string]any); f["text"] != "List Message Footer" {
		t.Errorf("unexpected footer %v", f)
	}
	action := in["action"].(map[string]any)
	if action["button"] != "Show Items" {
		t.Errorf("unexpected list button %v", action["button"])
	}
	secs := action["sections"].([]any)
	if len(secs) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(secs))
	}
	row := secs[0].(map[string]any)["rows"].([]any)[1].(map[string]any)
	if row["id"] != "a_item_2" {
		t.Errorf("unexpected row %v", row)
	}
	if _, ok := row["description"]; ok {
		t.Error("empty description should be omitted")
	}
}

func TestBot_SendCTAURL(t *testing.T) {
	server, c := newGraph(t, http.StatusOK, sentReply)

	_, err := newTestBot(server.URL).SendCTAURL(context.Background(), "155",
		"Visit the Cloud API documentation.", "Visit Docs",
		"https://developers.facebook.com/docs/whatsapp/cloud-api/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := interactiveBody(t, c)
	if in["type"] != "cta_url" {
		t.Errorf("expected interactive type cta_url, got %v", in["type"])
	}
	if _, ok := in["header"]; ok {
		t.Error("header should be omitted when not set")
	}
	action := in["action"].(map[string]any)
	params := action["parameters"].(map[string]any)
	if action["name"] != "cta_url" || params["display_text"] != "Visit Docs" ||
		params["url"] != "https://developers.facebook.com/docs/whatsapp/cloud-api/" {
		t.Errorf("unexpected action %v", action)
	}
}

func TestBot_SendFlow(t *testing.T) {
	tests := []struct {
		name       string
		flow       Flow
		wantScreen string
		wantMode   any
	}{
		{
			name: "navigate",
			flow: Flow{
				ID: "1234", CTA: "Start", Token: "tok-1", Screen: "WELCOME",
				Data: map[string]any{"customer_name": "Test User"}, Draft: true,
			},
			wantScreen: "WELCOME",
			wantMode:   "draft",
		},
		{
			name: "data exchange",
			flow: Flow{ID: "1234", CTA: "Start", Action: "data_exchange"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, c := newGraph(t, http.StatusOK, sentReply)

			if _, err := newTestBot(server.URL).SendFlow(context.Background(), "155", "Tap to begin.", tt.flow); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			in := interactiveBody(t, c)
			if in["type"] != "flow" {
				t.Errorf("expected interactive type flow, got %v", in["type"])
			}
			params := in["action"].(map[string]any)["parameters"].(map[string]any)
			if params["flow_id"] != "1234" || params["flow_cta"] != "Start" || params["flow_message_version"] != "3" {
				t.Errorf("unexpected parameters %v", params)
			}
			if params["mode"] != tt.wantMode {
				t.Errorf("mode = %v, want %v", params["mode"], tt.wantMode)
			}
			payload, ok := params["flow_action_payload"].(map[string]any)
			if tt.wantScreen == "" {
				if ok {
					t.Errorf("data exchange should carry no payload, got %v", payload)
				}
				return
			}
			if payload["screen"] != tt.wantScreen {
				t.Errorf("screen = %v, want %s", payload["screen"], tt.wantScreen)
			}
			if data := payload["data"].(map[string]any); data["customer_name"] != "Test User" {
				t.Errorf("unexpected flow data %v", data)
			}
			if params["flow_token"] != "tok-1" {
				t.Errorf("flow token = %v", params["flow_token"])
			}
		})
	}
}

func TestBot_SendButtonsWithMediaHeader(t *testing.T) {
	server, c := newGraph(t, http.StatusOK, sentReply)

	_, err := newTestBot(server.URL).SendButtons(context.Background(), "155", "Pick",
		[]QuickReply{{ID: "yes", Title: "Yes"}},
		WithHeaderMedia(model.TypeImage, model.MediaRef{ID: "m-42"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := interactiveBody(t, c)["header"].(map[string]any)
	if h["type"] != "image" || h["image"].(map[string]any)["id"] != "m-42" {
		t.Errorf("unexpected header %v", h)
	}
}

func TestBot_SendTemplateWithComponents(t *testing.T) {
	server, c := newGraph(t, http.StatusOK, sentReply)

	_, err := newTestBot(server.URL).SendTemplate(context.Background(), "155", "order_update", "pt_BR",
		TemplateComponent{Type: "header", Parameters: []TemplateParameter{
			{Type: "image", Image: &model.MediaRef{Link: "https://example.com/a.png"}},
		}},
		TemplateComponent{Type: "body", Parameters: []TemplateParameter{
			TextParam("Ada"),
			{Type: "currency", Currency: &Currency{FallbackValue: "$10.99", Code: "USD", Amount1000: 10990}},
		}},
		TemplateComponent{Type: "button", SubType: "quick_reply", Index: "0", Parameters: []TemplateParameter{
			{Type: "payload", Payload: "TRACK"},
		}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tpl := c.body["template"].(map[string]any)
	if lang := tpl["language"].(map[string]any); lang["code"] != "pt_BR" {
		t.Errorf("unexpected language %v", lang)
	}
	comps := tpl["components"].([]any)
	if len(comps) != 3 {
		t.Fatalf("expected 3 components, got %d", len(comps))
	}
	body := comps[1].(map[string]any)
	params := body["parameters"].([]any)
	if p := params[0].(map[string]any); p["type"] != "text" || p["text"] != "Ada" {
		t.Errorf("unexpected text parameter %v", p)
	}
	cur := params[1].(map[string]any)["currency"].(map[string]any)
	if cur["amount_1000"] != float64(10990) || cur["code"] != "USD" {
		t.Errorf("unexpected currency %v", cur)
	}
	btn := comps[2].(map[string]any)
	if btn["sub_type"] != "quick_reply" || btn["index"] != "0" {
		t.Errorf("unexpected button component %v", btn)
	}
}

func TestBot_InteractiveInvalidArguments(t *testing.T) {
	server, c := newGraph(t, http.StatusOK, sentReply)
	bot := newTestBot(server.URL)
	ctx := context.Background()
	one := []ListSection{{Rows: []ListRow{{ID: "a", Title: "A"}}}}
	elevenRows := make([]ListRow, 11)
	for i := range elevenRows {
		elevenRows[i] = ListRow{ID: string(rune('a' + i)), Title: "row"}
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"list without sections", func() error { _, err := bot.SendList(ctx, "155", "b", "Open", nil); return err }},
		{"list without button text", func() error { _, err := bot.SendList(ctx, "155", "b", "", one); return err }},
		{"list with too many rows", func() error {
			_, err := bot.SendList(ctx, "155", "b", "Open", []ListSection{{Rows: elevenRows}})
			return err
		}},
		{"list sections need titles", func() error {
			_, err := bot.SendList(ctx, "155", "b", "Open", append(one, one...))
			return err
		}},
		{"list with media header", func() error {
			_, err := bot.SendList(ctx, "155", "b", "Open", one, WithHeaderMedia(model.TypeImage, model.MediaRef{ID: "m"}))
			return err
		}},
		{"header of wrong kind", func() error {
			_, err := bot.SendButtons(ctx, "155", "b", []QuickReply{{"a", "A"}}, WithHeaderMedia(model.TypeAudio, model.MediaRef{ID: "m"}))
			return err
		}},
		{"long footer", func() error {
			_, err := bot.SendButtons(ctx, "155", "b", []QuickReply{{"a", "A"}}, WithFooter(strings.Repeat("f", 61)))
			return err
		}},
		{"empty body", func() error { _, err := bot.SendCTAURL(ctx, "155", "", "Go", "https://example.com"); return err }},
		{"cta bad url", func() error { _, err := bot.SendCTAURL(ctx, "155", "b", "Go", "ftp://example.com"); return err }},
		{"flow without id", func() error { _, err := bot.SendFlow(ctx, "155", "b", Flow{CTA: "Go", Screen: "S"}); return err }},
		{"navigate flow without screen", func() error { _, err := bot.SendFlow(ctx, "155", "b", Flow{ID: "1", CTA: "Go"}); return err }},
		{"unknown flow action", func() error {
			_, err := bot.SendFlow(ctx, "155", "b", Flow{ID: "1", CTA: "Go", Action: "jump"})
			return err
		}},
		{"unknown template component", func() error {
			_, err := bot.SendTemplate(ctx, "155", "t", "", TemplateComponent{Type: "footer"})
			return err
		}},
		{"button component without index", func() error {
			_, err := bot.SendTemplate(ctx, "155", "t", "", TemplateComponent{Type: "button", SubType: "url"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
	if c.method != "" {
		t.Errorf("expected no requests for invalid arguments, got %s %s", c.method, c.path)
	}
}

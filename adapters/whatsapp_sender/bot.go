package whatsapp_sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"

	messagingProduct = "whatsapp"
)

// Bot sends messages and manages media through the WhatsApp Cloud API.
// It is safe for concurrent use and is handed to handler callbacks as
// their core.Sender.
type Bot struct {
	token         string
	phoneNumberID string
	apiVersion    string
	baseURL       string
	client        *http.Client
}

// New creates a Bot for the given access token and business phone number ID.
func New(token, phoneNumberID string) *Bot {
	return &Bot{
		token:         token,
		phoneNumberID: phoneNumberID,
		apiVersion:    DefaultAPIVersion,
		baseURL:       DefaultBaseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL sets a custom base URL (for testing).
func (b *Bot) WithBaseURL(baseURL string) *Bot {
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

// WithAPIVersion pins the Graph API version, e.g. "v21.0".
func (b *Bot) WithAPIVersion(version string) *Bot {
	if version != "" {
		b.apiVersion = version
	}
	return b
}

// WithHTTPClient replaces the HTTP client used for every call.
func (b *Bot) WithHTTPClient(c *http.Client) *Bot {
	if c != nil {
		b.client = c
	}
	return b
}

// PhoneNumberID returns the business phone number the bot sends from.
func (b *Bot) PhoneNumberID() string { return b.phoneNumberID }

func (b *Bot) endpoint(parts ...string) string {
	return b.baseURL + "/" + b.apiVersion + "/" + strings.Join(parts, "/")
}

func (b *Bot) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	return req, nil
}

// do executes req and decodes a 2xx JSON reply into out (when non-nil).
func (b *Bot) do(req *http.Request, op string, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, resp.Body)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (b *Bot) doJSON(ctx context.Context, method, url, op string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := b.newRequest(ctx, method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.do(req, op, out)
}

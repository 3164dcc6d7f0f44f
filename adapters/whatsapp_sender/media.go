package whatsapp_sender

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/jdelaire/openwa/core/model"
)

// UploadMedia uploads r as a media object and returns its ID. mimeType is
// guessed from filename when empty.
func (b *Bot) UploadMedia(ctx context.Context, filename, mimeType string, r io.Reader) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidArgument)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if mimeType == "" {
		return "", fmt.Errorf("%w: cannot determine mime type of %s", ErrInvalidArgument, filename)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(mw, filename, mimeType, r))
	}()

	req, err := b.newRequest(ctx, http.MethodPost, b.endpoint(b.phoneNumberID, "media"), pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := b.do(req, "upload media", &out); err != nil {
		pr.Close()
		return "", err
	}
	if out.ID == "" {
		return "", &TransportError{Op: "upload media", Err: fmt.Errorf("response without media id")}
	}
	return out.ID, nil
}

func writeUpload(mw *multipart.Writer, filename, mimeType string, r io.Reader) error {
	if err := mw.WriteField("messaging_product", messagingProduct); err != nil {
		return err
	}
	if err := mw.WriteField("type", mimeType); err != nil {
		return err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	return mw.Close()
}

// GetMediaInfo returns the metadata and short-lived download URL of a
// media object.
func (b *Bot) GetMediaInfo(ctx context.Context, mediaID string) (*model.MediaInfo, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("%w: empty media id", ErrInvalidArgument)
	}
	var info model.MediaInfo
	if err := b.doJSON(ctx, http.MethodGet, b.endpoint(mediaID), "get media info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadMedia resolves mediaID and streams its content to w, returning
// the number of bytes written.
func (b *Bot) DownloadMedia(ctx context.Context, mediaID string, w io.Writer) (int64, error) {
	info, err := b.GetMediaInfo(ctx, mediaID)
	if err != nil {
		return 0, err
	}
	if info.URL == "" {
		return 0, &TransportError{Op: "download media", Err: fmt.Errorf("media %s has no url", mediaID)}
	}

	req, err := b.newRequest(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, &TransportError{Op: "download media", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, parseAPIError(resp.StatusCode, resp.Body)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: "download media", Err: err}
	}
	return n, nil
}

// DeleteMedia deletes an uploaded media object.
func (b *Bot) DeleteMedia(ctx context.Context, mediaID string) error {
	if mediaID == "" {
		return fmt.Errorf("%w: empty media id", ErrInvalidArgument)
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := b.doJSON(ctx, http.MethodDelete, b.endpoint(mediaID), "delete media", nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: http.StatusOK, Message: fmt.Sprintf("media %s was not deleted", mediaID)}
	}
	return nil
}

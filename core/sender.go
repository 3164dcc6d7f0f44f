package core

import (
	"context"
	"io"

	"github.com/jdelaire/openwa/core/model"
)

// Sender is the outbound capability handed to handler callbacks. The
// dispatcher never calls it itself; errors it returns belong to the
// callback.
type Sender interface {
	SendText(ctx context.Context, to, text string) (*model.SendResult, error)
	SendImage(ctx context.Context, to string, media model.MediaRef, caption string) (*model.SendResult, error)
	SendDocument(ctx context.Context, to string, media model.MediaRef, caption, filename string) (*model.SendResult, error)
	SendLocation(ctx context.Context, to string, loc model.Location) (*model.SendResult, error)
	SendReaction(ctx context.Context, to, messageID, emoji string) (*model.SendResult, error)
	MarkAsRead(ctx context.Context, messageID string, showTyping bool) error
	UploadMedia(ctx context.Context, filename, mimeType string, r io.Reader) (string, error)
	DownloadMedia(ctx context.Context, mediaID string, w io.Writer) (int64, error)
	DeleteMedia(ctx context.Context, mediaID string) error
}

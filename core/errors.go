package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jdelaire/openwa/core/filters"
)

// ErrSaturated is wrapped in the CallbackError reported when a background
// callback could not start because every slot stayed busy until the
// dispatch context ended. The callback never runs.
var ErrSaturated = errors.New("dispatcher saturated")

// CallbackError wraps a failure of a matched handler's callback: either the
// error it returned or a recovered panic.
type CallbackError struct {
	DispatchID string
	MessageID  string
	Handler    string
	Err        error

	// PanicValue and StackTrace are set when the callback panicked.
	PanicValue any
	StackTrace string
}

func (e *CallbackError) Error() string {
	if e.PanicValue != nil {
		return fmt.Sprintf("handler %s: panic on message %s: %v", e.Handler, e.MessageID, e.PanicValue)
	}
	return fmt.Sprintf("handler %s: message %s: %v", e.Handler, e.MessageID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// ErrorReporter receives errors isolated at the dispatch boundary.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(ctx context.Context, err error)

func (f ReporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }

// LogReporter logs reported errors.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(ctx context.Context, err error) {
	var (
		cbErr   *CallbackError
		evalErr *filters.EvalError
	)
	switch {
	case errors.As(err, &cbErr):
		attrs := []any{"dispatch_id", cbErr.DispatchID, "msg_id", cbErr.MessageID, "handler", cbErr.Handler, "error", err}
		if cbErr.StackTrace != "" {
			attrs = append(attrs, "stack", cbErr.StackTrace)
		}
		r.Logger.ErrorContext(ctx, "handler failed", attrs...)
	case errors.As(err, &evalErr):
		r.Logger.WarnContext(ctx, "filter evaluation failed", "filter", evalErr.Filter, "error", err)
	default:
		r.Logger.ErrorContext(ctx, "dispatch error", "error", err)
	}
}

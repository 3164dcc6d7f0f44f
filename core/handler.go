package core

import (
	"context"

	"github.com/jdelaire/openwa/core/filters"
	"github.com/jdelaire/openwa/core/model"
)

// HandlerFunc processes a message selected by a Handler's filter.
type HandlerFunc func(ctx context.Context, msg *model.Message, s Sender) error

// Handler pairs a filter with a callback. Handlers compare by identity:
// two handlers built from the same filter are distinct registry entries.
type Handler struct {
	filter   filters.Filter
	callback HandlerFunc
	name     string
}

// NewHandler creates a Handler. The name defaults to the filter's string form.
func NewHandler(f filters.Filter, cb HandlerFunc) *Handler {
	if f == nil {
		panic("core: nil filter")
	}
	if cb == nil {
		panic("core: nil callback")
	}
	return &Handler{filter: f, callback: cb, name: f.String()}
}

// Named returns a copy of h with a diagnostic name. The copy is a new
// handler identity.
func (h *Handler) Named(name string) *Handler {
	return &Handler{filter: h.filter, callback: h.callback, name: name}
}

// Name returns the handler's name, used in logs and errors.
func (h *Handler) Name() string { return h.name }

// Filter returns the filter that selects the handler.
func (h *Handler) Filter() filters.Filter { return h.filter }

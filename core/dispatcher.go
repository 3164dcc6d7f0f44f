package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdelaire/openwa/core/filters"
	"github.com/jdelaire/openwa/core/model"
)

const (
	defaultMaxConcurrent   = 16
	defaultCallbackTimeout = 30 * time.Second
)

// Result describes the outcome of handler selection for one message.
type Result struct {
	DispatchID string
	MessageID  string
	Matched    bool
	Handler    *Handler
	Index      int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBackground runs matched callbacks in their own goroutine. Dispatch
// then returns as soon as a handler is selected and a callback slot is
// free (see WithMaxConcurrent).
func WithBackground(enabled bool) Option {
	return func(d *Dispatcher) { d.background = enabled }
}

// WithMaxConcurrent bounds how many background callbacks run at once.
// Zero keeps the default of 16; a negative n removes the bound.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		switch {
		case n < 0:
			d.sem = nil
		case n == 0:
			d.sem = make(chan struct{}, defaultMaxConcurrent)
		default:
			d.sem = make(chan struct{}, n)
		}
	}
}

// WithCallbackTimeout limits the run time of background callbacks.
// Zero disables the limit.
func WithCallbackTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithErrorReporter replaces the default LogReporter.
func WithErrorReporter(r ErrorReporter) Option {
	return func(d *Dispatcher) { d.reporter = r }
}

// WithTaskHook registers fn to run after every callback completes, with the
// callback's error (nil on success). It runs on the callback's goroutine.
func WithTaskHook(fn func(Result, error)) Option {
	return func(d *Dispatcher) { d.taskHook = fn }
}

// Dispatcher routes each inbound message to the first registered handler
// whose filter matches it.
type Dispatcher struct {
	registry *Registry
	sender   Sender
	logger   *slog.Logger
	reporter ErrorReporter

	background bool
	timeout    time.Duration
	sem        chan struct{}
	taskHook   func(Result, error)
	wg         sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with an empty registry. sender is
// passed through to callbacks.
func NewDispatcher(sender Sender, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		sender:   sender,
		logger:   logger,
		timeout:  defaultCallbackTimeout,
		sem:      make(chan struct{}, defaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reporter == nil {
		d.reporter = LogReporter{Logger: logger}
	}
	return d
}

// Registry returns the dispatcher's handler registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// AddHandler appends h to the registry.
func (d *Dispatcher) AddHandler(h *Handler) error {
	idx, err := d.registry.Add(h)
	if err != nil {
		return err
	}
	d.logger.Debug("handler registered", "handler", h.Name(), "index", idx)
	return nil
}

// AddHandlers appends hs in order, stopping at the first error.
func (d *Dispatcher) AddHandlers(hs ...*Handler) error {
	for _, h := range hs {
		if err := d.AddHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Handle registers cb for messages matching f and returns the new handler.
func (d *Dispatcher) Handle(f filters.Filter, cb HandlerFunc) *Handler {
	h := NewHandler(f, cb)
	// A fresh handler cannot already be registered.
	_ = d.AddHandler(h)
	return h
}

// RemoveHandler removes h by identity.
func (d *Dispatcher) RemoveHandler(h *Handler) bool {
	return d.registry.Remove(h)
}

// Dispatch evaluates handlers in registration order and invokes the first
// match. At most one callback runs per message; a message matching nothing
// is dropped silently. Callback failures are reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *model.Message) Result {
	res := Result{DispatchID: uuid.New().String()}
	if msg == nil {
		return res
	}
	res.MessageID = msg.ID

	report := func(err error) { d.reporter.Report(ctx, err) }
	for _, e := range d.registry.snapshot() {
		if filters.Evaluate(e.handler.filter, msg, report) {
			res.Matched, res.Handler, res.Index = true, e.handler, e.index
			break
		}
	}

	if !res.Matched {
		d.logger.Debug("no handler matched", "dispatch_id", res.DispatchID, "msg_id", msg.ID, "type", msg.Type)
		return res
	}

	d.logger.Debug("handler selected",
		"dispatch_id", res.DispatchID, "msg_id", msg.ID, "handler", res.Handler.Name(), "index", res.Index)

	if !d.background {
		d.run(ctx, res, msg)
		return res
	}

	// The slot is taken before the goroutine starts, so a burst waits in
	// the caller instead of piling up parked goroutines.
	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			err := &CallbackError{
				DispatchID: res.DispatchID,
				MessageID:  msg.ID,
				Handler:    res.Handler.Name(),
				Err:        fmt.Errorf("%w: %w", ErrSaturated, ctx.Err()),
			}
			d.reporter.Report(context.WithoutCancel(ctx), err)
			if d.taskHook != nil {
				d.taskHook(res, err)
			}
			return res
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			defer func() { <-d.sem }()
		}
		d.runBackground(ctx, res, msg)
	}()
	return res
}

// Wait blocks until all background callbacks started so far have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) runBackground(parent context.Context, res Result, msg *model.Message) {
	// The request that triggered the dispatch may finish first.
	ctx := context.WithoutCancel(parent)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.run(ctx, res, msg)
}

func (d *Dispatcher) run(ctx context.Context, res Result, msg *model.Message) {
	err := d.invoke(ctx, res, msg)
	if err != nil {
		d.reporter.Report(ctx, err)
	}
	if d.taskHook != nil {
		d.taskHook(res, err)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, res Result, msg *model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{
				DispatchID: res.DispatchID,
				MessageID:  msg.ID,
				Handler:    res.Handler.Name(),
				PanicValue: r,
				StackTrace: string(debug.Stack()),
			}
		}
	}()

	if cbErr := res.Handler.callback(ctx, msg, d.sender); cbErr != nil {
		return &CallbackError{
			DispatchID: res.DispatchID,
			MessageID:  msg.ID,
			Handler:    res.Handler.Name(),
			Err:        cbErr,
		}
	}
	return nil
}

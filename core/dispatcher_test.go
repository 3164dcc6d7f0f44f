package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jdelaire/openwa/core/filters"
	"github.com/jdelaire/openwa/core/model"
)

// --- test helpers ---

type nopSender struct{}

func (nopSender) SendText(context.Context, string, string) (*model.SendResult, error) {
	return &model.SendResult{}, nil
}
func (nopSender) SendImage(context.Context, string, model.MediaRef, string) (*model.SendResult, error) {
	return &model.SendResult{}, nil
}
func (nopSender) SendDocument(context.Context, string, model.MediaRef, string, string) (*model.SendResult, error) {
	return &model.SendResult{}, nil
}
func (nopSender) SendLocation(context.Context, string, model.Location) (*model.SendResult, error) {
	return &model.SendResult{}, nil
}
func (nopSender) SendReaction(context.Context, string, string, string) (*model.SendResult, error) {
	return &model.SendResult{}, nil
}
func (nopSender) MarkAsRead(context.Context, string, bool) error { return nil }
func (nopSender) UploadMedia(context.Context, string, string, io.Reader) (string, error) {
	return "media-1", nil
}
func (nopSender) DownloadMedia(context.Context, string, io.Writer) (int64, error) { return 0, nil }
func (nopSender) DeleteMedia(context.Context, string) error                      { return nil }

type spyReporter struct {
	mu   sync.Mutex
	errs []error
}

func (s *spyReporter) Report(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *spyReporter) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) record(name string) HandlerFunc {
	return func(context.Context, *model.Message, Sender) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls = append(c.calls, name)
		return nil
	}
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(opts ...Option) *Dispatcher {
	return NewDispatcher(nopSender{}, testLogger(), opts...)
}

func textMsg(body string) *model.Message {
	return &model.Message{ID: "wamid." + body, From: "100", Type: model.TypeText, Text: &model.Text{Body: body}}
}

func assertCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

// --- tests ---

func TestDispatchScenario(t *testing.T) {
	log := &callLog{}
	d := newTestDispatcher()
	d.Handle(filters.Command("start"), log.record("start"))
	d.Handle(filters.And(filters.Text, filters.Not(filters.AnyCommand)), log.record("echo"))

	d.Dispatch(context.Background(), textMsg("/start"))
	d.Dispatch(context.Background(), textMsg("hi"))
	res := d.Dispatch(context.Background(), &model.Message{ID: "wamid.img", Type: model.TypeImage, Image: &model.Media{ID: "1"}})

	assertCalls(t, log.list(), "start", "echo")
	if res.Matched {
		t.Error("image should not match any handler")
	}
}

func TestDispatchFirstMatchWins(t *testing.T) {
	log := &callLog{}
	d := newTestDispatcher()
	h1 := d.Handle(filters.Text, log.record("h1"))
	d.Handle(filters.AllMessages, log.record("h2"))

	res := d.Dispatch(context.Background(), textMsg("hello"))

	assertCalls(t, log.list(), "h1")
	if res.Handler != h1 || res.Index != 0 {
		t.Errorf("result = %+v, want h1 at index 0", res)
	}
}

func TestDispatchDeterministic(t *testing.T) {
	d := newTestDispatcher()
	d.Handle(filters.Contains("a"), func(context.Context, *model.Message, Sender) error { return nil })
	want := d.Handle(filters.Contains("b"), func(context.Context, *model.Message, Sender) error { return nil })

	for i := 0; i < 50; i++ {
		res := d.Dispatch(context.Background(), textMsg("bbb"))
		if res.Handler != want {
			t.Fatalf("iteration %d selected %v", i, res.Handler)
		}
	}
}

func TestDispatchNoMatchIsSilent(t *testing.T) {
	rep := &spyReporter{}
	log := &callLog{}
	d := newTestDispatcher(WithErrorReporter(rep))
	d.Handle(filters.Image, log.record("image"))

	res := d.Dispatch(context.Background(), textMsg("hello"))

	if res.Matched || res.Handler != nil {
		t.Errorf("result = %+v, want no match", res)
	}
	if len(log.list()) != 0 {
		t.Errorf("callbacks invoked: %v", log.list())
	}
	if len(rep.all()) != 0 {
		t.Errorf("errors reported: %v", rep.all())
	}
	if res.DispatchID == "" || res.MessageID != "wamid.hello" {
		t.Errorf("result ids = %q/%q", res.DispatchID, res.MessageID)
	}
}

func TestDispatchNilMessage(t *testing.T) {
	d := newTestDispatcher()
	d.Handle(filters.AllMessages, func(context.Context, *model.Message, Sender) error {
		t.Error("callback invoked for nil message")
		return nil
	})
	if res := d.Dispatch(context.Background(), nil); res.Matched {
		t.Error("nil message matched")
	}
}

func TestDispatchRegistryMutation(t *testing.T) {
	log := &callLog{}
	d := newTestDispatcher()
	h1 := d.Handle(filters.TextEquals("one"), log.record("h1"))
	h2 := d.Handle(filters.TextEquals("two"), log.record("h2"))
	h3 := d.Handle(filters.Text, log.record("h3"))

	got := d.Registry().Handlers()
	if len(got) != 3 || got[0] != h1 || got[1] != h2 || got[2] != h3 {
		t.Fatalf("registry order wrong: %v", got)
	}

	if !d.RemoveHandler(h1) {
		t.Fatal("RemoveHandler(h1) = false")
	}
	d.Dispatch(context.Background(), textMsg("one"))
	assertCalls(t, log.list(), "h3")

	if idx, ok := d.Registry().Index(h3); !ok || idx != 2 {
		t.Errorf("h3 index = %d, %v; want 2, true", idx, ok)
	}
}

func TestDispatchRemovedOnlyMatchLeavesNoMatch(t *testing.T) {
	log := &callLog{}
	d := newTestDispatcher()
	h1 := d.Handle(filters.TextEquals("one"), log.record("h1"))
	d.Handle(filters.TextEquals("two"), log.record("h2"))

	d.RemoveHandler(h1)
	if res := d.Dispatch(context.Background(), textMsg("one")); res.Matched {
		t.Error("expected no match after removing h1")
	}
	if len(log.list()) != 0 {
		t.Errorf("calls = %v", log.list())
	}
}

func TestDispatchCallbackErrorIsReported(t *testing.T) {
	rep := &spyReporter{}
	d := newTestDispatcher(WithErrorReporter(rep))
	boom := errors.New("send failed")
	d.Handle(filters.Text, func(context.Context, *model.Message, Sender) error { return boom })

	res := d.Dispatch(context.Background(), textMsg("hi"))
	if !res.Matched {
		t.Fatal("expected match")
	}

	errs := rep.all()
	if len(errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(errs))
	}
	var cbErr *CallbackError
	if !errors.As(errs[0], &cbErr) {
		t.Fatalf("reported %T, want *CallbackError", errs[0])
	}
	if !errors.Is(errs[0], boom) {
		t.Error("CallbackError should wrap the callback's error")
	}
	if cbErr.MessageID != "wamid.hi" || cbErr.DispatchID != res.DispatchID {
		t.Errorf("CallbackError = %+v", cbErr)
	}
}

func TestDispatchCallbackPanicIsIsolated(t *testing.T) {
	rep := &spyReporter{}
	d := newTestDispatcher(WithErrorReporter(rep))
	d.Handle(filters.Text, func(context.Context, *model.Message, Sender) error { panic("nil map") })

	d.Dispatch(context.Background(), textMsg("hi"))

	errs := rep.all()
	if len(errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(errs))
	}
	var cbErr *CallbackError
	if !errors.As(errs[0], &cbErr) || cbErr.PanicValue != "nil map" || cbErr.StackTrace == "" {
		t.Errorf("reported %v", errs[0])
	}
}

func TestDispatchFilterPanicTreatedAsFalse(t *testing.T) {
	rep := &spyReporter{}
	log := &callLog{}
	d := newTestDispatcher(WithErrorReporter(rep))
	d.Handle(filters.New("buggy", func(*model.Message) bool { panic("bad predicate") }), log.record("buggy"))
	d.Handle(filters.Text, log.record("text"))

	res := d.Dispatch(context.Background(), textMsg("hi"))

	assertCalls(t, log.list(), "text")
	if res.Index != 1 {
		t.Errorf("index = %d, want 1", res.Index)
	}
	errs := rep.all()
	var evalErr *filters.EvalError
	if len(errs) != 1 || !errors.As(errs[0], &evalErr) {
		t.Fatalf("reported %v, want one *filters.EvalError", errs)
	}
	if evalErr.Filter != "buggy" {
		t.Errorf("filter = %q", evalErr.Filter)
	}
}

func TestDispatchBackgroundReturnsBeforeCallback(t *testing.T) {
	release := make(chan struct{})
	done := make(chan Result, 1)
	d := newTestDispatcher(
		WithBackground(true),
		WithTaskHook(func(r Result, _ error) { done <- r }),
	)
	d.Handle(filters.Text, func(ctx context.Context, _ *model.Message, _ Sender) error {
		<-release
		return nil
	})

	res := d.Dispatch(context.Background(), textMsg("hi"))
	if !res.Matched {
		t.Fatal("expected match")
	}

	select {
	case <-done:
		t.Fatal("callback finished before it was released")
	default:
	}

	close(release)
	d.Wait()

	select {
	case got := <-done:
		if got.DispatchID != res.DispatchID {
			t.Errorf("hook dispatch id = %q, want %q", got.DispatchID, res.DispatchID)
		}
	default:
		t.Fatal("task hook not called")
	}
}

func TestDispatchBackgroundSurvivesRequestCancel(t *testing.T) {
	var cbCtxErr error
	d := newTestDispatcher(WithBackground(true))
	started := make(chan struct{})
	proceed := make(chan struct{})
	d.Handle(filters.Text, func(ctx context.Context, _ *model.Message, _ Sender) error {
		close(started)
		<-proceed
		cbCtxErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, textMsg("hi"))
	<-started
	cancel()
	close(proceed)
	d.Wait()

	if cbCtxErr != nil {
		t.Errorf("callback context error = %v, want nil", cbCtxErr)
	}
}

func TestDispatchBackgroundTimeout(t *testing.T) {
	var hookErr error
	d := newTestDispatcher(
		WithBackground(true),
		WithCallbackTimeout(20*time.Millisecond),
		WithTaskHook(func(_ Result, err error) { hookErr = err }),
	)
	d.Handle(filters.Text, func(ctx context.Context, _ *model.Message, _ Sender) error {
		<-ctx.Done()
		return ctx.Err()
	})

	d.Dispatch(context.Background(), textMsg("hi"))
	d.Wait()

	if !errors.Is(hookErr, context.DeadlineExceeded) {
		t.Errorf("hook error = %v, want deadline exceeded", hookErr)
	}
}

func TestDispatchBackgroundConcurrencyLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	d := newTestDispatcher(WithBackground(true), WithMaxConcurrent(2))
	d.Handle(filters.Text, func(context.Context, *model.Message, Sender) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	})

	for i := 0; i < 8; i++ {
		d.Dispatch(context.Background(), textMsg("hi"))
	}
	d.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestWithMaxConcurrentBounds(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"zero keeps default", 0, defaultMaxConcurrent},
		{"explicit", 3, 3},
		{"negative is unbounded", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(WithMaxConcurrent(tt.n))
			if got := cap(d.sem); got != tt.want {
				t.Errorf("slots = %d, want %d", got, tt.want)
			}
			if tt.n < 0 && d.sem != nil {
				t.Error("negative limit should remove the semaphore")
			}
		})
	}
}

func TestDispatchBackgroundWaitsForSlotInCaller(t *testing.T) {
	rep := &spyReporter{}
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	d := newTestDispatcher(WithBackground(true), WithMaxConcurrent(1), WithErrorReporter(rep))
	d.Handle(filters.Text, func(context.Context, *model.Message, Sender) error {
		started <- struct{}{}
		<-release
		return nil
	})

	d.Dispatch(context.Background(), textMsg("first"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := d.Dispatch(ctx, textMsg("second"))
	if !res.Matched {
		t.Fatal("expected match")
	}

	close(release)
	d.Wait()

	if len(started) != 0 {
		t.Error("saturated dispatch still ran its callback")
	}
	errs := rep.all()
	if len(errs) != 1 || !errors.Is(errs[0], ErrSaturated) || !errors.Is(errs[0], context.DeadlineExceeded) {
		t.Fatalf("reported %v, want one ErrSaturated", errs)
	}
	var cbErr *CallbackError
	if !errors.As(errs[0], &cbErr) || cbErr.MessageID != "wamid.second" {
		t.Errorf("unexpected report: %v", errs[0])
	}
}

func TestDispatchBackgroundErrorIsolation(t *testing.T) {
	rep := &spyReporter{}
	log := &callLog{}
	d := newTestDispatcher(WithBackground(true), WithErrorReporter(rep))
	d.Handle(filters.TextEquals("bad"), func(context.Context, *model.Message, Sender) error { panic("boom") })
	d.Handle(filters.Text, log.record("good"))

	d.Dispatch(context.Background(), textMsg("bad"))
	d.Dispatch(context.Background(), textMsg("fine"))
	d.Wait()

	assertCalls(t, log.list(), "good")
	if len(rep.all()) != 1 {
		t.Errorf("reported %d errors, want 1", len(rep.all()))
	}
}

func TestDispatchSyncPassesCallerContext(t *testing.T) {
	type key struct{}
	d := newTestDispatcher()
	var got any
	d.Handle(filters.Text, func(ctx context.Context, _ *model.Message, _ Sender) error {
		got = ctx.Value(key{})
		return nil
	})

	d.Dispatch(context.WithValue(context.Background(), key{}, "v"), textMsg("hi"))
	if got != "v" {
		t.Errorf("context value = %v, want v", got)
	}
}

func TestDispatchPassesSender(t *testing.T) {
	d := newTestDispatcher()
	var got Sender
	d.Handle(filters.Text, func(_ context.Context, _ *model.Message, s Sender) error {
		got = s
		return nil
	})
	d.Dispatch(context.Background(), textMsg("hi"))
	if _, ok := got.(nopSender); !ok {
		t.Errorf("sender = %T, want nopSender", got)
	}
}

func TestAddHandlersDuplicate(t *testing.T) {
	d := newTestDispatcher()
	h := NewHandler(filters.Text, func(context.Context, *model.Message, Sender) error { return nil })
	if err := d.AddHandlers(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.AddHandler(h); !errors.Is(err, ErrHandlerRegistered) {
		t.Errorf("error = %v, want ErrHandlerRegistered", err)
	}
}

// Package filters provides composable predicates over inbound messages.
//
// A Filter is an immutable expression tree of leaves combined with And, Or
// and Not. Filters are pure: evaluating one never mutates the message or any
// shared state, so a single Filter may be shared by many handlers and
// evaluated concurrently.
package filters

import (
	"fmt"
	"runtime/debug"

	"github.com/jdelaire/openwa/core/model"
)

// Filter is a boolean predicate over a parsed message. The set of
// implementations is closed: leaves built with New, and the And, Or and Not
// combinators.
type Filter interface {
	// Match evaluates the filter. A panicking leaf counts as false.
	Match(m *model.Message) bool
	String() string

	eval(m *model.Message, report func(error)) bool
}

// EvalError reports a leaf predicate that panicked during evaluation.
type EvalError struct {
	Filter     string
	PanicValue any
	StackTrace string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("filter %s: panic during evaluation: %v", e.Filter, e.PanicValue)
}

// Evaluate runs f against m. Leaf panics are converted to *EvalError, passed
// to report (when non-nil) and treated as false for that leaf only.
func Evaluate(f Filter, m *model.Message, report func(error)) bool {
	if f == nil || m == nil {
		return false
	}
	return f.eval(m, report)
}

type leaf struct {
	name string
	fn   func(*model.Message) bool
}

// New returns a leaf filter. fn must be pure; it may assume m is non-nil.
func New(name string, fn func(m *model.Message) bool) Filter {
	if fn == nil {
		panic("filters: nil predicate for " + name)
	}
	return &leaf{name: name, fn: fn}
}

func (l *leaf) Match(m *model.Message) bool { return Evaluate(l, m, nil) }
func (l *leaf) String() string              { return l.name }

func (l *leaf) eval(m *model.Message, report func(error)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if report != nil {
				report(&EvalError{
					Filter:     l.name,
					PanicValue: r,
					StackTrace: string(debug.Stack()),
				})
			}
		}
	}()
	return l.fn(m)
}

type andFilter struct{ left, right Filter }

// And matches when both a and b match. b is not evaluated when a is false.
func And(a, b Filter) Filter { return &andFilter{left: a, right: b} }

func (f *andFilter) Match(m *model.Message) bool { return Evaluate(f, m, nil) }
func (f *andFilter) String() string              { return "(" + f.left.String() + " & " + f.right.String() + ")" }

func (f *andFilter) eval(m *model.Message, report func(error)) bool {
	return f.left.eval(m, report) && f.right.eval(m, report)
}

type orFilter struct{ left, right Filter }

// Or matches when either a or b matches. b is not evaluated when a is true.
func Or(a, b Filter) Filter { return &orFilter{left: a, right: b} }

func (f *orFilter) Match(m *model.Message) bool { return Evaluate(f, m, nil) }
func (f *orFilter) String() string              { return "(" + f.left.String() + " | " + f.right.String() + ")" }

func (f *orFilter) eval(m *model.Message, report func(error)) bool {
	return f.left.eval(m, report) || f.right.eval(m, report)
}

type notFilter struct{ inner Filter }

// Not inverts f.
func Not(f Filter) Filter { return &notFilter{inner: f} }

func (f *notFilter) Match(m *model.Message) bool { return Evaluate(f, m, nil) }
func (f *notFilter) String() string              { return "~" + f.inner.String() }

func (f *notFilter) eval(m *model.Message, report func(error)) bool {
	return !f.inner.eval(m, report)
}

// All folds fs with And, left to right. All() matches everything.
func All(fs ...Filter) Filter {
	if len(fs) == 0 {
		return AllMessages
	}
	out := fs[0]
	for _, f := range fs[1:] {
		out = And(out, f)
	}
	return out
}

// Any folds fs with Or, left to right. Any() matches nothing.
func Any(fs ...Filter) Filter {
	if len(fs) == 0 {
		return Not(AllMessages)
	}
	out := fs[0]
	for _, f := range fs[1:] {
		out = Or(out, f)
	}
	return out
}

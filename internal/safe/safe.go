package safe

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// PanicError represents a recovered panic tagged with the label of the
// goroutine that panicked, the time it happened, and a stack trace.
type PanicError struct {
	label string
	time  time.Time
	info  any
	stack []byte
	cache atomic.Pointer[string]
}

// Error formats the panic, caching the result since Error may be called
// more than once while the cascade logs and classifies it.
func (e *PanicError) Error() string {
	if e.cache.Load() == nil {
		err := fmt.Sprintf("panic in %s: \ntimestamp: %s, \nerror: %+v, \nstack: %s",
			e.label, e.time.Format(time.RFC3339Nano), e.info, string(e.stack))
		e.cache.Store(&err)
	}
	return *e.cache.Load()
}

// Label identifies which goroutine panicked.
func (e *PanicError) Label() string {
	return e.label
}

// NewPanicError builds a PanicError for a panic caught under label.
func NewPanicError(label string, info any, stack []byte) error {
	return &PanicError{label: label, time: time.Now(), info: info, stack: stack}
}

// Go launches fn in a goroutine with panic recovery, tagging any
// recovered panic with label so callers can tell which concurrent stage
// failed. panicFns are invoked with the resulting PanicError; if none
// are given, a panic is swallowed silently.
func Go(label string, fn func(), panicFns ...func(error)) {
	if withRecoverFn := WithRecover(label, fn, panicFns...); withRecoverFn != nil {
		go withRecoverFn()
	}
}

// WithRecover wraps fn with panic recovery, for use without spawning a
// new goroutine (e.g. inside an errgroup.Go closure that already runs
// concurrently).
func WithRecover(label string, fn func(), panicFns ...func(error)) func() {
	if fn == nil {
		return nil
	}
	return func() {
		defer func() {
			if r := recover(); r != nil {
				if len(panicFns) == 0 {
					return
				}
				err := NewPanicError(label, r, debug.Stack())
				for _, panicFn := range panicFns {
					panicFn(err)
				}
			}
		}()
		fn()
	}
}

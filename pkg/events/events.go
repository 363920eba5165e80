package events

import (
	"context"
	"sync"
)

// Event represents results in knob that should be communicated to the user.
type Event interface {
	_event
}

type _event interface {
	isEvent()
}

type SetEventChanFunc func(context.Context, chan Event)

func RegisterEventListener(ctx context.Context, f SetEventChanFunc) {
	b := bndl(ctx)
	f(ctx, b.eventsChan)
}

func WithEvents(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	b := bundle{
		eventsChan: make(chan Event, 16),
		cancel:     cancel,
		exitCode:   -1,
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.closed = true
		close(b.eventsChan)
		b.mu.Unlock()
	}()
	ctx = context.WithValue(ctx, bundleKey{}, &b)

	return ctx
}

func Success(ctx context.Context) {
	b := bndl(ctx)
	b.mu.Lock()
	b.success = true
	b.mu.Unlock()
}

func Succeeded(ctx context.Context) bool {
	b := bndl(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.success
}

// Raise hands e to the listener. Events raised after Stop are dropped.
func Raise(ctx context.Context, e Event) {
	b := bndl(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.eventsChan <- e
}

// Stop closes the event stream.
func Stop(ctx context.Context) {
	b := bndl(ctx)
	b.cancel()
}

type bundleKey struct{}
type bundle struct {
	mu         sync.Mutex
	eventsChan chan Event
	closed     bool
	success    bool
	cancel     func()
	exitCode   int
}

func bndl(ctx context.Context) *bundle {
	b, ok := ctx.Value(bundleKey{}).(*bundle)
	if !ok {
		panic("missing event bundle missing from context")
	}
	return b
}

func SetExitCode(ctx context.Context, code int) {
	b := bndl(ctx)
	b.mu.Lock()
	b.exitCode = code
	b.mu.Unlock()
}

func GetExitCode(ctx context.Context) int {
	b := bndl(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCode
}

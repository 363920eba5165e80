package events

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestRaiseAndStop(t *testing.T) {
	is := is.New(t)
	ctx := WithEvents(context.Background())

	var ch chan Event
	RegisterEventListener(ctx, func(_ context.Context, c chan Event) {
		ch = c
	})

	Raise(ctx, &Result{Kind: "volume", Value: 12})
	e := <-ch
	r, ok := e.(*Result)
	is.True(ok)
	is.Equal(r.Value, 12)

	Stop(ctx)
	for range ch {
	}
	// dropped, not a panic
	Raise(ctx, &Failure{Err: errors.New("late")})
}

func TestExitCode(t *testing.T) {
	is := is.New(t)
	ctx := WithEvents(context.Background())

	is.Equal(GetExitCode(ctx), -1)
	SetExitCode(ctx, ExitCodeNotFound)
	is.Equal(GetExitCode(ctx), ExitCodeNotFound)

	is.True(!Succeeded(ctx))
	Success(ctx)
	is.True(Succeeded(ctx))
}

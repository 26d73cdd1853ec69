package cognition

import (
	"context"
	"errors"
)

// ErrInterrupted is returned when shutdown began while a cycle or interaction was in flight.
// Work already done by earlier stages is kept; nothing is published after shutdown starts.
var ErrInterrupted = errors.New("interrupted by shutdown")

type stopKey struct{}

// Graceful returns a context that is not cancelled with ctx, so in-flight calls can finish,
// but through which cycles notice that ctx ended and stop at the next stage boundary.
func Graceful(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), stopKey{}, ctx.Done())
}

// interrupted returns ErrInterrupted once the context passed to Graceful is done.
func interrupted(ctx context.Context) error {
	stop, _ := ctx.Value(stopKey{}).(<-chan struct{})
	if stop == nil {
		return nil
	}
	select {
	case <-stop:
		return ErrInterrupted
	default:
		return nil
	}
}

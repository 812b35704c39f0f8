package llm

import (
	"context"
	"time"
)

// completeContext bounds a non-streaming call: for a single-shot completion
// the first token is the whole response.
func completeContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeoutCause(parent, d, errFirstToken)
}

// streamContext returns a context that is cancelled with errFirstToken unless
// received is called within d. cancel must always be called once the stream
// finishes.
func streamContext(parent context.Context, d time.Duration) (ctx context.Context, received func(), cancel context.CancelCauseFunc) {
	ctx, cancelCause := context.WithCancelCause(parent)
	if d <= 0 {
		return ctx, func() {}, cancelCause
	}
	timer := time.AfterFunc(d, func() { cancelCause(errFirstToken) })
	received = func() { timer.Stop() }
	cancel = func(cause error) {
		timer.Stop()
		cancelCause(cause)
	}
	return ctx, received, cancel
}

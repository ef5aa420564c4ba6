package bus

import (
	"context"
	"fmt"

	"github.com/c0deZ3R0/signsync/errors"
)

// ReportError publishes err on system:error. Failures inside system:error
// handlers are logged and never republished.
func (b *Bus) ReportError(ctx context.Context, source string, err error) *Delivery {
	if err == nil {
		return b.Emit(ctx, source, SystemError{Source: source, Message: "unknown error"})
	}
	return b.Emit(ctx, source, SystemError{
		Source:  source,
		Message: err.Error(),
		Code:    string(errors.CodeOf(err)),
	})
}

func (b *Bus) emitSystemError(ctx context.Context, subscriber string, topic Topic, err error) {
	b.Emit(ctx, subscriber, SystemError{
		Source:      subscriber,
		Message:     err.Error(),
		Code:        string(errors.CodeOf(err)),
		FailedTopic: topic,
	})
}

// Go runs fn on its own goroutine. A returned error or panic is reported on
// system:error. The channel receives fn's outcome and is then closed.
func (b *Bus) Go(ctx context.Context, source string, fn func(context.Context) error) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s panicked: %v", source, r)
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			b.logger.Error("background task failed", "source", source, "error", err)
			b.ReportError(ctx, source, err)
		}
		out <- err
	}()
	return out
}

package orchestration

import (
	"context"
	"fmt"
)

// withContextCancelHook runs onContextDone if ctx ends before the returned
// channel is closed.
func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// closeQuietly closes clients that hold a stream open for the duration of a
// turn. Both context-aware and plain closers are supported.
func closeQuietly(ctx context.Context, client any) {
	var err error
	switch c := client.(type) {
	case interface{ Close(context.Context) error }:
		err = c.Close(ctx)
	case interface{ Close() error }:
		err = c.Close()
	case interface{ Close() }:
		c.Close()
	}
	if err != nil {
		logger.Warn("failed to close client", "error", err)
	}
}

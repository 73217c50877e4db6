package turnend

import (
	"context"
	"errors"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
)

const (
	DefaultQuietPeriod   = 800 * time.Millisecond
	DefaultMaxExtensions = 2
)

// Classifier decides whether a transcript is a finished turn.
type Classifier interface {
	IsComplete(ctx context.Context, transcript string) (bool, error)
}

// Target is the turn controller the watcher ends turns on.
type Target interface {
	Subscribe() (<-chan events.Event, func())
	VoiceActivityEnded() error
}

// Watcher ends a turn once the transcript stops changing for the quiet
// period. With a classifier, an incomplete-sounding transcript gets up to
// maxExtensions more quiet periods before the turn is ended anyway.
type Watcher struct {
	quietPeriod   time.Duration
	maxExtensions int
	classifier    Classifier
	ignore        error
}

type WatcherOption func(*Watcher)

func WithQuietPeriod(period time.Duration) WatcherOption {
	return func(w *Watcher) {
		if period > 0 {
			w.quietPeriod = period
		}
	}
}

func WithClassifier(classifier Classifier) WatcherOption {
	return func(w *Watcher) {
		w.classifier = classifier
	}
}

func WithMaxExtensions(extensions int) WatcherOption {
	return func(w *Watcher) {
		if extensions >= 0 {
			w.maxExtensions = extensions
		}
	}
}

// WithIgnoredError names the error VoiceActivityEnded returns when no turn is
// being captured, so a race with a manual stop is not logged as a failure.
func WithIgnoredError(err error) WatcherOption {
	return func(w *Watcher) {
		w.ignore = err
	}
}

func NewWatcher(opts ...WatcherOption) *Watcher {
	w := &Watcher{
		quietPeriod:   DefaultQuietPeriod,
		maxExtensions: DefaultMaxExtensions,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches target's events until ctx is done or the event stream ends.
func (w *Watcher) Run(ctx context.Context, target Target) error {
	eventsCh, unsubscribe := target.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(w.quietPeriod)
	stopTimer(timer)
	var (
		timerC     <-chan time.Time
		transcript string
		extensions int
	)
	reset := func() {
		stopTimer(timer)
		timer.Reset(w.quietPeriod)
		timerC = timer.C
	}
	disarm := func() {
		stopTimer(timer)
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			disarm()
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				disarm()
				return nil
			}
			switch event := event.(type) {
			case events.TurnStarted:
				transcript, extensions = "", 0
				disarm()
			case events.UserTranscriptInterimUpdated:
				transcript = event.Transcript
				reset()
			case events.UserTranscriptFinal, events.UserSpeechEnded,
				events.TurnCompleted, events.TurnFailed, events.TurnCancelled:
				disarm()
			}

		case <-timerC:
			timerC = nil
			if transcript == "" {
				continue
			}
			if w.classifier != nil && extensions < w.maxExtensions {
				complete, err := w.classifier.IsComplete(ctx, transcript)
				if err != nil {
					logger.Warn("turn end classification failed, ending turn", "error", err)
				} else if !complete {
					extensions++
					reset()
					continue
				}
			}
			if err := target.VoiceActivityEnded(); err != nil && (w.ignore == nil || !errors.Is(err, w.ignore)) {
				logger.Warn("failed to end turn", "error", err)
			}
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

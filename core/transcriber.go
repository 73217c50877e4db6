package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const transcriberCloseTimeout = time.Second

// TranscriptEvent is one recognition result. A partial replaces the previous
// partial in full; the final event ends the sequence.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
}

type transcriptSeq = iter.Seq2[TranscriptEvent, error]

type streamingTranscriber struct {
	client   SpeechToText
	language string
}

type transcriptResult struct {
	event TranscriptEvent
	err   error
}

type transcriptStream struct {
	client  SpeechToText
	handle  *CaptureHandle
	results chan transcriptResult
	stopped chan struct{}
	cancel  context.CancelFunc
	span    trace.Span

	pumpDone chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// Begin starts recognition of the frames captured by handle. The returned
// sequence is lazy and can be iterated once. Cancelling ctx ends it without
// an error; by the time iteration returns the frame pump has exited and the
// recognition client has been closed.
func (t *streamingTranscriber) Begin(ctx context.Context, handle *CaptureHandle) (transcriptSeq, error) {
	if t.client == nil {
		return nil, fmt.Errorf("%w: no speech-to-text client configured", ErrRecognitionUnavailable)
	}
	if handle == nil || handle.Released() {
		return nil, fmt.Errorf("%w: capture handle is not live", ErrDeviceUnavailable)
	}

	ctx, span := tracer.Start(ctx, "transcribe", trace.WithAttributes(attribute.String("capture.id", handle.ID())))
	ctx, cancel := context.WithCancel(ctx)
	stream := &transcriptStream{
		client:   t.client,
		handle:   handle,
		results:  make(chan transcriptResult, 8),
		stopped:  make(chan struct{}),
		cancel:   cancel,
		span:     span,
		pumpDone: make(chan struct{}),
	}

	err := t.client.Transcribe(ctx,
		speechtotext.WithInterimTranscriptionCallback(stream.partial),
		speechtotext.WithTranscriptionCallback(stream.final),
		speechtotext.WithErrorCallback(stream.fail),
		speechtotext.WithEncodingInfo(handle.EncodingInfo()),
		speechtotext.WithLanguage(t.language),
	)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		close(stream.pumpDone)
		stream.shutdown()
		return nil, err
	}

	go stream.pump(ctx)

	return stream.events(ctx), nil
}

func (s *transcriptStream) events(ctx context.Context) transcriptSeq {
	return func(yield func(TranscriptEvent, error) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}
		defer s.shutdown()

		for {
			select {
			case <-ctx.Done():
				return
			case result := <-s.results:
				if result.err != nil {
					s.span.RecordError(result.err)
					s.span.SetStatus(codes.Error, result.err.Error())
					yield(TranscriptEvent{}, result.err)
					return
				}
				if !yield(result.event, nil) || result.event.IsFinal {
					return
				}
			}
		}
	}
}

// pump forwards captured frames to the recognition client until the handle
// is drained or the stream is cancelled.
func (s *transcriptStream) pump(ctx context.Context) {
	defer close(s.pumpDone)
	for {
		frame, err := s.handle.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
			case errors.Is(err, ErrAudioDropped):
				s.fail(err)
			default:
				s.fail(fmt.Errorf("%w: %w", ErrAudioDropped, err))
			}
			return
		}
		if err := s.client.SendAudio(frame); err != nil {
			s.fail(fmt.Errorf("%w: failed to send audio: %w", ErrRecognitionUnavailable, err))
			return
		}
	}
}

func (s *transcriptStream) shutdown() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stopped)
		<-s.pumpDone

		ctx, cancel := context.WithTimeout(context.Background(), transcriberCloseTimeout)
		defer cancel()
		closeQuietly(ctx, s.client)
		s.span.End()
	})
}

func (s *transcriptStream) deliver(result transcriptResult) {
	select {
	case s.results <- result:
	case <-s.stopped:
	}
}

func (s *transcriptStream) partial(transcript string) {
	s.deliver(transcriptResult{event: TranscriptEvent{Text: transcript}})
}

func (s *transcriptStream) final(transcript string) {
	s.deliver(transcriptResult{event: TranscriptEvent{Text: transcript, IsFinal: true}})
}

func (s *transcriptStream) fail(err error) {
	if !errors.Is(err, ErrAudioDropped) && !errors.Is(err, ErrRecognitionUnavailable) {
		err = fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}
	s.deliver(transcriptResult{err: err})
}

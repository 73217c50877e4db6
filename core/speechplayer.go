package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errPlayerClosed = errors.New("speech player closed")

// PlaybackRequest is one utterance queued for speaking.
type PlaybackRequest struct {
	Text     string
	Sequence int64
}

type PlaybackStatus int

const (
	PlaybackDone PlaybackStatus = iota
	PlaybackInterrupted
	PlaybackFailed
)

func (s PlaybackStatus) String() string {
	switch s {
	case PlaybackDone:
		return "done"
	case PlaybackInterrupted:
		return "interrupted"
	case PlaybackFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlaybackOutcome is how a request ended. Err is only set for PlaybackFailed.
type PlaybackOutcome struct {
	Status PlaybackStatus
	Err    error
}

type playbackJob struct {
	request     PlaybackRequest
	outcome     chan PlaybackOutcome
	interrupted chan struct{}
	settled     atomic.Bool
}

// speechPlayer plays queued requests one at a time through a speech
// generator into the audio output.
type speechPlayer struct {
	tts    TextToSpeech
	output AudioOutput
	emit   eventEmitter

	mu     sync.Mutex
	queue  []*playbackJob
	active *playbackJob
	closed bool
	wake   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *speechPlayer) start(ctx context.Context) {
	if p.emit == nil {
		p.emit = noopEventEmitter
	}
	p.wake = make(chan struct{}, 1)
	p.done = make(chan struct{})
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go p.run()
}

// Speak queues req and returns a channel that receives its outcome exactly
// once.
func (p *speechPlayer) Speak(req PlaybackRequest) <-chan PlaybackOutcome {
	job := &playbackJob{
		request:     req,
		outcome:     make(chan PlaybackOutcome, 1),
		interrupted: make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.settle(job, PlaybackOutcome{Status: PlaybackFailed, Err: errPlayerClosed})
		return job.outcome
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return job.outcome
}

// Stop silences the active utterance and drops everything still queued. All
// affected requests resolve as interrupted.
func (p *speechPlayer) Stop() {
	p.mu.Lock()
	dropped := p.queue
	p.queue = nil
	active := p.active
	p.active = nil
	p.mu.Unlock()

	if p.output != nil {
		p.output.ClearBuffer()
	}
	if active != nil {
		close(active.interrupted)
		p.settle(active, PlaybackOutcome{Status: PlaybackInterrupted})
	}
	for _, job := range dropped {
		p.settle(job, PlaybackOutcome{Status: PlaybackInterrupted})
	}
}

// IsActive reports whether anything is playing or waiting to play.
func (p *speechPlayer) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil || len(p.queue) > 0
}

func (p *speechPlayer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *speechPlayer) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		for {
			job := p.next()
			if job == nil {
				break
			}
			outcome := p.play(job)
			p.mu.Lock()
			if p.active == job {
				p.active = nil
			}
			p.mu.Unlock()
			p.settle(job, outcome)
		}
	}
}

func (p *speechPlayer) next() *playbackJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.active = job
	return job
}

func (p *speechPlayer) play(job *playbackJob) (outcome PlaybackOutcome) {
	ctx, span := tracer.Start(p.ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.Int64("playback.sequence", job.request.Sequence))

	p.emit(events.NewAssistantPlaybackStarted(job.request.Sequence, job.request.Text))

	run := panicSafeNamedWorker("playback", func(ctx context.Context) error {
		var err error
		outcome, err = p.generate(ctx, job)
		return err
	})
	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to play response", "sequence", job.request.Sequence, "error", err)
		if p.output != nil {
			p.output.ClearBuffer()
		}
		return PlaybackOutcome{Status: PlaybackFailed, Err: err}
	}
	return outcome
}

func (p *speechPlayer) generate(ctx context.Context, job *playbackJob) (PlaybackOutcome, error) {
	if p.tts == nil || p.output == nil {
		return PlaybackOutcome{}, fmt.Errorf("speech output not configured")
	}

	markName := fmt.Sprintf("playback-%d", job.request.Sequence)
	played := make(chan struct{})
	var playedOnce sync.Once
	generationErr := make(chan error, 1)

	interrupted := func() bool {
		select {
		case <-job.interrupted:
			return true
		default:
			return false
		}
	}

	generator, err := p.tts.NewSpeechGeneratorV0(ctx,
		texttospeech.WithEncodingInfo(p.output.EncodingInfo()),
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			if interrupted() {
				return
			}
			if err := p.output.SendAudio(audio); err != nil {
				logger.Warn("failed to send audio to output", "error", err)
			}
		}),
		texttospeech.WithSpeechEndedCallbackV0(func(texttospeech.SpeechEndedReport) {
			if interrupted() {
				return
			}
			err := p.output.Mark(markName, func(string) {
				playedOnce.Do(func() { close(played) })
			})
			if err != nil {
				select {
				case generationErr <- fmt.Errorf("failed to mark end of speech: %w", err):
				default:
				}
			}
		}),
		texttospeech.WithErrorCallback(func(err error) {
			select {
			case generationErr <- err:
			default:
			}
		}),
	)
	if err != nil {
		return PlaybackOutcome{}, fmt.Errorf("failed to start speech generation: %w", err)
	}
	defer generator.Close()

	if err := generator.SendText(job.request.Text); err != nil {
		_ = generator.Cancel()
		return PlaybackOutcome{}, fmt.Errorf("failed to send text to speech generator: %w", err)
	}
	if err := generator.EndOfText(); err != nil {
		_ = generator.Cancel()
		return PlaybackOutcome{}, fmt.Errorf("failed to end speech text: %w", err)
	}

	select {
	case <-played:
		return PlaybackOutcome{Status: PlaybackDone}, nil
	case <-job.interrupted:
		_ = generator.Cancel()
		p.output.ClearBuffer()
		return PlaybackOutcome{Status: PlaybackInterrupted}, nil
	case err := <-generationErr:
		_ = generator.Cancel()
		return PlaybackOutcome{}, fmt.Errorf("speech generation failed: %w", err)
	case <-ctx.Done():
		_ = generator.Cancel()
		p.output.ClearBuffer()
		return PlaybackOutcome{Status: PlaybackInterrupted}, nil
	}
}

func (p *speechPlayer) settle(job *playbackJob, outcome PlaybackOutcome) {
	if !job.settled.CompareAndSwap(false, true) {
		return
	}
	job.outcome <- outcome

	switch outcome.Status {
	case PlaybackDone:
		p.emit(events.NewAssistantPlaybackEnded(job.request.Sequence, job.request.Text))
	default:
		p.emit(events.NewAssistantPlaybackInterrupted(job.request.Sequence, job.request.Text))
	}
}

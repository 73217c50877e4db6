package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Controller runs one conversation turn at a time: capture, transcription,
// completion and playback. State changes and conversation updates are
// published to subscribers.
type Controller struct {
	baseContext    context.Context
	conversationID string

	capture     captureSession
	transcriber streamingTranscriber
	completion  completionInvoker
	player      speechPlayer
	log         *conversations.Log
	bus         *eventBus

	// startMu serializes the commands that replace the current turn.
	startMu sync.Mutex

	mu         sync.Mutex
	state      State
	transcript string
	run        *turnRun
	closed     bool
}

type turnRun struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}
}

func newTurnRun(parent context.Context) *turnRun {
	ctx, cancel := context.WithCancel(parent)
	return &turnRun{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		finish: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *turnRun) requestFinish() {
	r.finishOnce.Do(func() { close(r.finish) })
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		baseContext:    context.Background(),
		conversationID: uuid.NewString(),
		transcriber:    streamingTranscriber{language: speechtotext.DefaultLanguage},
		log:            conversations.NewLog(),
		bus:            newEventBus(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.player.emit = c.bus.Emit
	c.player.start(c.baseContext)
	c.capture.routeActive = c.player.IsActive
	c.capture.init()

	return c
}

func (c *Controller) ConversationID() string {
	return c.conversationID
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTranscript is the most recent partial transcript of the turn being
// captured.
func (c *Controller) CurrentTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Conversation returns a snapshot of the log.
func (c *Controller) Conversation() []conversations.Turn {
	return c.log.Turns()
}

// History is a live read-only view of the conversation log.
func (c *Controller) History() conversations.History {
	return c.log
}

func (c *Controller) Subscribe() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}

// StartTurn acquires the microphone and starts transcribing. Outside Idle it
// fails with ErrTurnInProgress and changes nothing, unless WithInterruption
// is given: the current turn is then cancelled and fully cleaned up first.
func (c *Controller) StartTurn(ctx context.Context, opts ...TurnOption) error {
	options := turnOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state != StateIdle {
		if !options.interrupt {
			c.mu.Unlock()
			return ErrTurnInProgress
		}
		previous := c.run
		c.mu.Unlock()
		c.cancelRun(previous)
		c.mu.Lock()
	}

	run := newTurnRun(c.baseContext)
	c.run = run
	c.transcript = ""
	c.setStateLocked(run.id, StateCapturing)
	c.mu.Unlock()

	c.bus.Emit(events.NewTurnStarted(run.id))

	hook := withContextCancelHook(ctx, run.cancel)
	handle, err := c.capture.Start(run.ctx)
	if err != nil {
		close(hook)
		err = fmt.Errorf("failed to start capture: %w", err)
		c.abortStart(run, err)
		return err
	}

	transcribeCtx, cancelTranscribe := context.WithCancel(run.ctx)
	stream, err := c.transcriber.Begin(transcribeCtx, handle)
	close(hook)
	if err != nil {
		cancelTranscribe()
		_ = c.capture.Stop(handle)
		err = fmt.Errorf("failed to start transcription: %w", err)
		c.abortStart(run, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		cancelTranscribe()
		for range stream {
		}
		_ = c.capture.Stop(handle)
		c.abortStart(run, err)
		return err
	}

	go c.runTurn(run, handle, stream, transcribeCtx, cancelTranscribe)
	return nil
}

func (c *Controller) abortStart(run *turnRun, err error) {
	logger.Error("failed to start turn", "turn_id", run.id, "error", err)
	run.cancel()
	c.endRun(run, err)
	close(run.done)
}

// StopTurn ends capture on user request. The transcript captured so far
// becomes the final text.
func (c *Controller) StopTurn() error {
	return c.requestFinish(false)
}

// VoiceActivityEnded ends capture because the speaker went quiet. When the
// turn is over is decided outside the controller.
func (c *Controller) VoiceActivityEnded() error {
	return c.requestFinish(true)
}

func (c *Controller) requestFinish(voiceActivity bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCapturing || c.run == nil {
		return ErrNoActiveCapture
	}
	if voiceActivity {
		c.bus.Emit(events.NewUserSpeechEnded())
	}
	c.run.requestFinish()
	return nil
}

func (c *Controller) runTurn(run *turnRun, handle *CaptureHandle, stream transcriptSeq, transcribeCtx context.Context, cancelTranscribe context.CancelFunc) {
	defer close(run.done)

	ctx, span := tracer.Start(run.ctx, "turn", trace.WithAttributes(
		attribute.String("turn.id", run.id),
		attribute.String("conversation.id", c.conversationID),
	))
	defer span.End()

	err := c.processTurn(ctx, run, handle, stream, transcribeCtx, cancelTranscribe)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("turn failed", "turn_id", run.id, "error", err)
	}
	c.endRun(run, err)
}

func (c *Controller) processTurn(ctx context.Context, run *turnRun, handle *CaptureHandle, stream transcriptSeq, transcribeCtx context.Context, cancelTranscribe context.CancelFunc) error {
	updates := make(chan transcriptResult)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		defer close(updates)
		for event, err := range stream {
			select {
			case updates <- transcriptResult{event: event, err: err}:
			case <-transcribeCtx.Done():
				return
			}
		}
	}()

	var (
		finalText   string
		finalSeen   bool
		captureErr  error
		interrupted bool
	)
capturing:
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				break capturing
			}
			if update.err != nil {
				captureErr = update.err
				break capturing
			}
			if update.event.IsFinal {
				finalText, finalSeen = update.event.Text, true
				break capturing
			}
			c.updateTranscript(update.event.Text)
		case <-run.finish:
			break capturing
		case <-ctx.Done():
			interrupted = true
			break capturing
		}
	}

	if !interrupted && captureErr == nil {
		c.setState(run, StateFinalizing)
	}
	stopErr := c.capture.Stop(handle)
	cancelTranscribe()
	<-forwarded

	switch {
	case interrupted:
		return ctx.Err()
	case captureErr != nil:
		return captureErr
	case stopErr != nil:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, stopErr)
	}

	text := finalText
	if !finalSeen {
		text = c.CurrentTranscript()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		logger.Debug("turn ended without speech", "turn_id", run.id)
		return nil
	}

	history := c.log.Turns()
	c.bus.Emit(events.NewUserTranscriptFinal(text))
	c.appendTurn(conversations.SpeakerUser, text)
	c.setState(run, StateAwaitingCompletion)
	c.bus.Emit(events.NewAssistantResponseStarted(text))

	reply, err := c.completion.Complete(ctx, text, history)
	if ctx.Err() != nil || !c.isCurrent(run) {
		return context.Canceled
	}
	if err != nil {
		return err
	}
	c.bus.Emit(events.NewAssistantResponseFinal(reply))

	return c.speak(ctx, run, reply)
}

// speak appends the assistant turn and waits for it to be played.
func (c *Controller) speak(ctx context.Context, run *turnRun, reply string) error {
	turn := c.appendTurn(conversations.SpeakerAssistant, reply)
	c.setState(run, StateSpeaking)

	outcome := c.player.Speak(PlaybackRequest{Text: turn.Text, Sequence: turn.Sequence})
	var result PlaybackOutcome
	select {
	case result = <-outcome:
	case <-ctx.Done():
		c.player.Stop()
		<-outcome
		return ctx.Err()
	}

	switch result.Status {
	case PlaybackInterrupted:
		return context.Canceled
	case PlaybackFailed:
		return fmt.Errorf("failed to play response: %w", result.Err)
	}
	return nil
}

// Greet speaks text as an assistant turn without waiting for the user. It is
// interruptible like any other playback.
func (c *Controller) Greet(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	run := newTurnRun(c.baseContext)
	c.run = run
	c.setStateLocked(run.id, StateSpeaking)
	c.mu.Unlock()

	c.bus.Emit(events.NewTurnStarted(run.id))
	hook := withContextCancelHook(ctx, run.cancel)

	go func() {
		defer close(run.done)
		defer close(hook)

		ctx, span := tracer.Start(run.ctx, "greet", trace.WithAttributes(attribute.String("turn.id", run.id)))
		defer span.End()

		err := c.speak(ctx, run, text)
		if err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.endRun(run, err)
	}()
	return nil
}

// ResetConversation cancels whatever is in flight and clears the log.
// Completion services that keep their own conversation are reset too.
func (c *Controller) ResetConversation(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	run := c.run
	c.mu.Unlock()
	c.cancelRun(run)

	cleared := c.log.Reset()
	c.mu.Lock()
	c.transcript = ""
	c.mu.Unlock()
	c.bus.Emit(events.NewConversationReset(cleared))

	if resetter, ok := c.completion.client.(ConversationResetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset completion service: %w", err)
		}
	}
	return nil
}

// Close cancels the current turn, stops playback and ends all
// subscriptions. It is safe to call more than once.
func (c *Controller) Close() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	run := c.run
	c.mu.Unlock()

	c.cancelRun(run)
	c.player.Close()
	c.bus.Close()
	return nil
}

func (c *Controller) cancelRun(run *turnRun) {
	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

func (c *Controller) endRun(run *turnRun, err error) {
	run.cancel()

	c.mu.Lock()
	current := c.run == run
	if current {
		c.run = nil
		c.setStateLocked(run.id, StateIdle)
	}
	c.mu.Unlock()
	if !current {
		logger.Warn("turn ended after being replaced", "turn_id", run.id, "error", err)
		return
	}

	switch {
	case err == nil:
		c.bus.Emit(events.NewTurnCompleted(run.id))
	case errors.Is(err, context.Canceled):
		c.bus.Emit(events.NewTurnCancelled(run.id))
	default:
		c.bus.Emit(events.NewTurnFailed(run.id, err))
	}
}

func (c *Controller) isCurrent(run *turnRun) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run == run
}

func (c *Controller) setState(run *turnRun, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != run {
		return
	}
	c.setStateLocked(run.id, state)
}

func (c *Controller) setStateLocked(turnID string, state State) {
	from := c.state
	if from == state {
		return
	}
	c.state = state
	logger.Debug("turn state changed", "turn_id", turnID, "from", from.String(), "to", state.String())
	c.bus.Emit(newStateChanged(turnID, from, state))
}

func (c *Controller) updateTranscript(text string) {
	c.mu.Lock()
	changed := c.transcript != text
	c.transcript = text
	c.mu.Unlock()
	if changed {
		c.bus.Emit(events.NewUserTranscriptInterimUpdated(text))
	}
}

func (c *Controller) appendTurn(speaker conversations.Speaker, text string) conversations.Turn {
	turn := c.log.Append(speaker, text)
	c.bus.Emit(events.NewConversationTurnAppended(turn))
	return turn
}

package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const testTimeout = 2 * time.Second

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeMic struct {
	mu            sync.Mutex
	onAudio       func([]byte)
	onInterrupted func(error)
	starts        int
	stops         int
	startErr      error
	denied        bool
}

func (m *fakeMic) Authorize(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.denied, nil
}

func (m *fakeMic) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (m *fakeMic) StartCapture(_ context.Context, onAudio func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.starts++
	m.onAudio = onAudio
	return nil
}

func (m *fakeMic) StopCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.onAudio = nil
	return nil
}

func (m *fakeMic) OnCaptureInterrupted(callback func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInterrupted = callback
}

func (m *fakeMic) send(frame []byte) {
	m.mu.Lock()
	onAudio := m.onAudio
	m.mu.Unlock()
	if onAudio != nil {
		onAudio(frame)
	}
}

func (m *fakeMic) interrupt(err error) {
	m.mu.Lock()
	onInterrupted := m.onInterrupted
	m.mu.Unlock()
	if onInterrupted != nil {
		onInterrupted(err)
	}
}

func (m *fakeMic) counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

type scriptedSTT struct {
	mu            sync.Mutex
	options       speechtotext.TranscriptionOptions
	transcribeErr error
	streams       int
	closes        int
	frames        int
}

func (s *scriptedSTT) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcribeErr != nil {
		return s.transcribeErr
	}
	s.options = speechtotext.NewTranscriptionOptions(opts...)
	s.streams++
	return nil
}

func (s *scriptedSTT) SendAudio([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *scriptedSTT) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedSTT) current() speechtotext.TranscriptionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

func (s *scriptedSTT) partial(text string) {
	s.current().InterimTranscriptionCallback(text)
}

func (s *scriptedSTT) final(text string) {
	s.current().TranscriptionCallback(text)
}

func (s *scriptedSTT) fail(err error) {
	s.current().ErrorCallback(err)
}

func (s *scriptedSTT) stats() (streams, closes, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams, s.closes, s.frames
}

type completerFunc func(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error)

func (f completerFunc) Complete(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error) {
	return f(ctx, prompt, opts...)
}

// recordingCompleter replies with reply(prompt) and remembers every prompt.
type recordingCompleter struct {
	mu      sync.Mutex
	prompts []string
	options []llms.CompletionOptions
	reply   func(ctx context.Context, prompt string) (string, error)
	resets  int
}

func replyWith(text string) *recordingCompleter {
	return &recordingCompleter{reply: func(context.Context, string) (string, error) { return text, nil }}
}

func (c *recordingCompleter) Complete(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, llms.NewCompletionOptions(opts...))
	c.mu.Unlock()

	reply, err := c.reply(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &llms.Response{Content: reply}, nil
}

func (c *recordingCompleter) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

func (c *recordingCompleter) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

type fakeTTS struct {
	mu         sync.Mutex
	hold       bool
	err        error
	generators []*fakeGenerator
}

func (f *fakeTTS) NewSpeechGeneratorV0(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGeneratorV0, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	generator := &fakeGenerator{options: options, hold: f.hold}
	f.generators = append(f.generators, generator)
	return generator, nil
}

func (f *fakeTTS) generator(i int) *fakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.generators) {
		return nil
	}
	return f.generators[i]
}

func (f *fakeTTS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.generators)
}

// fakeGenerator speaks as soon as the text ends, unless hold is set; held
// speech is finished by release.
type fakeGenerator struct {
	mu        sync.Mutex
	options   texttospeech.TextToSpeechOptions
	hold      bool
	text      []string
	ended     bool
	cancelled bool
	closed    bool
}

func (g *fakeGenerator) SendText(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.text = append(g.text, text)
	return nil
}

func (g *fakeGenerator) Mark() error { return nil }

func (g *fakeGenerator) EndOfText() error {
	g.mu.Lock()
	g.ended = true
	hold := g.hold
	g.mu.Unlock()
	if !hold {
		g.release()
	}
	return nil
}

func (g *fakeGenerator) release() {
	g.options.SpeechAudioCallback([]byte("speech"))
	g.options.SpeechEndedCallbackV0(texttospeech.SpeechEndedReport{Marks: 1, AudioBytes: 6})
}

func (g *fakeGenerator) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = true
	return nil
}

func (g *fakeGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGenerator) wasCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

func (g *fakeGenerator) spoken() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.text...)
}

type fakeOutput struct {
	mu     sync.Mutex
	audio  int
	marks  []string
	clears int
}

func (o *fakeOutput) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (o *fakeOutput) SendAudio([]byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audio++
	return nil
}

func (o *fakeOutput) ClearBuffer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clears++
}

func (o *fakeOutput) Mark(mark string, callback func(string)) error {
	o.mu.Lock()
	o.marks = append(o.marks, mark)
	o.mu.Unlock()
	callback(mark)
	return nil
}

func (o *fakeOutput) stats() (audio, clears int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.audio, o.clears
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	stop   func()
}

func recordEvents(t *testing.T, c *Controller) *eventRecorder {
	t.Helper()
	ch, stop := c.Subscribe()
	r := &eventRecorder{stop: stop}
	go func() {
		for event := range ch {
			r.mu.Lock()
			r.events = append(r.events, event)
			r.mu.Unlock()
		}
	}()
	t.Cleanup(stop)
	return r
}

func (r *eventRecorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) first(kind events.Kind) (events.Event, bool) {
	for _, event := range r.all() {
		if event.Kind() == kind {
			return event, true
		}
	}
	return nil, false
}

func (r *eventRecorder) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	var found events.Event
	waitFor(t, string(kind)+" event", func() bool {
		event, ok := r.first(kind)
		found = event
		return ok
	})
	return found
}

type testRig struct {
	mic       *fakeMic
	stt       *scriptedSTT
	completer *recordingCompleter
	tts       *fakeTTS
	output    *fakeOutput
}

func newTestRig() *testRig {
	return &testRig{
		mic:       &fakeMic{},
		stt:       &scriptedSTT{},
		completer: replyWith("Hi there"),
		tts:       &fakeTTS{},
		output:    &fakeOutput{},
	}
}

func (r *testRig) controller(t *testing.T, opts ...ControllerOption) *Controller {
	t.Helper()
	all := []ControllerOption{
		WithAudioInput(r.mic),
		WithSpeechToTextClient(r.stt),
		WithCompleter(r.completer),
		WithTextToSpeechClient(r.tts),
		WithAudioOutput(r.output),
	}
	c := NewController(append(all, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitForState(t *testing.T, c *Controller, state State) {
	t.Helper()
	waitFor(t, "state "+state.String(), func() bool { return c.State() == state })
}

package orchestration

import (
	"context"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type ControllerOption func(*Controller)

// AudioInput is a capture device. StartCapture must not block; frames are
// delivered through onAudio until StopCapture.
type AudioInput interface {
	CaptureEncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// CaptureInterruptNotifier is implemented by devices that can report that
// capture stopped on its own.
type CaptureInterruptNotifier interface {
	OnCaptureInterrupted(callback func(err error))
}

func WithAudioInput(client AudioInput) ControllerOption {
	return func(c *Controller) {
		c.capture.device = client
	}
}

// Authorizer answers whether the microphone may be used. It is queried once
// per capture start and must not block waiting on the user indefinitely.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}

type AuthorizerFunc func(ctx context.Context) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context) (bool, error) { return f(ctx) }

func WithAuthorizer(authorizer Authorizer) ControllerOption {
	return func(c *Controller) {
		c.capture.authorizer = authorizer
	}
}

// WithFrameBufferCapacity bounds how many captured frames may wait for the
// recognizer before the oldest is dropped.
func WithFrameBufferCapacity(frames int) ControllerOption {
	return func(c *Controller) {
		c.capture.bufferCapacity = frames
	}
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToTextClient(client SpeechToText) ControllerOption {
	return func(c *Controller) {
		c.transcriber.client = client
	}
}

// WithLanguage sets the recognition locale, e.g. "en-US".
func WithLanguage(language string) ControllerOption {
	return func(c *Controller) {
		if language != "" {
			c.transcriber.language = language
		}
	}
}

type Completer interface {
	Complete(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error)
}

// ConversationResetter is implemented by completion services that keep
// their own copy of the conversation.
type ConversationResetter interface {
	Reset(ctx context.Context) error
}

func WithCompleter(client Completer) ControllerOption {
	return func(c *Controller) {
		c.completion.client = client
	}
}

func WithSystemPrompt(prompt string) ControllerOption {
	return func(c *Controller) {
		c.completion.systemPrompt = prompt
	}
}

type TextToSpeech interface {
	NewSpeechGeneratorV0(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGeneratorV0, error)
}

func WithTextToSpeechClient(client TextToSpeech) ControllerOption {
	return func(c *Controller) {
		c.player.tts = client
	}
}

// AudioOutput is a playback device. Mark calls back once everything sent
// before it has been played; ClearBuffer drops queued audio and pending
// marks.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(mark string, callback func(string)) error
}

func WithAudioOutput(client AudioOutput) ControllerOption {
	return func(c *Controller) {
		c.player.output = client
	}
}

// WithContext sets the base context for turns started by the controller.
func WithContext(ctx context.Context) ControllerOption {
	return func(c *Controller) {
		if ctx != nil {
			c.baseContext = ctx
		}
	}
}

type TurnOption func(*turnOptions)

type turnOptions struct {
	interrupt bool
}

// WithInterruption lets StartTurn cancel whatever turn is in progress
// instead of failing with ErrTurnInProgress.
func WithInterruption() TurnOption {
	return func(o *turnOptions) { o.interrupt = true }
}

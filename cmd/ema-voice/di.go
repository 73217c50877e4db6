package main

import (
	"fmt"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/llms/groq"
	"github.com/koscakluka/ema-voice/core/llms/openai"
	"github.com/koscakluka/ema-voice/core/llms/workflow"
	sttdeepgram "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	sttgoogle "github.com/koscakluka/ema-voice/core/speechtotext/google"
	ttsdeepgram "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voice/core/turnend"
	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/samber/do/v2"
)

const portaudioFramesPerBuffer = 1024

// audioDevice is a full-duplex backend: one microphone and one speaker.
type audioDevice interface {
	orchestration.AudioInput
	orchestration.AudioOutput
	Close()
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, provideAudioDevice)
	do.Provide(injector, provideSpeechToText)
	do.Provide(injector, provideTextToSpeech)
	do.Provide(injector, provideCompleter)
	do.Provide(injector, provideController)
	do.Provide(injector, provideTurnEndWatcher)

	return injector
}

func provideAudioDevice(i do.Injector) (audioDevice, error) {
	cfg := do.MustInvoke[*config.Config](i)
	switch cfg.AudioBackend {
	case config.AudioBackendPortaudio:
		client, err := portaudio.NewClient(portaudioFramesPerBuffer)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func provideSpeechToText(i do.Injector) (orchestration.SpeechToText, error) {
	cfg := do.MustInvoke[*config.Config](i)
	switch cfg.Transcriber {
	case config.TranscriberGoogle:
		return sttgoogle.NewTranscriptionClient(sttgoogle.Config{
			ProjectID:       cfg.GoogleCloudProjectID,
			CredentialsJSON: cfg.GoogleCloudCredentialsJSON,
			Location:        cfg.GoogleCloudSpeechLocation,
			Model:           cfg.GoogleCloudSpeechModel,
		}), nil
	default:
		return sttdeepgram.NewTranscriptionClient(cfg.DeepgramAPIKey), nil
	}
}

func provideTextToSpeech(i do.Injector) (orchestration.TextToSpeech, error) {
	cfg := do.MustInvoke[*config.Config](i)
	client, err := ttsdeepgram.NewTextToSpeechClient(cfg.DeepgramAPIKey, ttsdeepgram.WithVoice(cfg.TTSVoice))
	if err != nil {
		return nil, fmt.Errorf("EMA_TTS_VOICE is invalid: %w", err)
	}
	return client, nil
}

func provideCompleter(i do.Injector) (orchestration.Completer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	switch cfg.CompletionProvider {
	case config.CompletionProviderOpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, openai.WithModel(cfg.CompletionModel)), nil
	case config.CompletionProviderWorkflow:
		return workflow.NewClient(cfg.WorkflowURL), nil
	default:
		return groq.NewClient(cfg.GroqAPIKey, groq.WithModel(cfg.CompletionModel)), nil
	}
}

func provideController(i do.Injector) (*orchestration.Controller, error) {
	cfg := do.MustInvoke[*config.Config](i)
	device := do.MustInvoke[audioDevice](i)

	return orchestration.NewController(
		orchestration.WithAudioInput(device),
		orchestration.WithAudioOutput(device),
		orchestration.WithFrameBufferCapacity(cfg.FrameBuffer),
		orchestration.WithSpeechToTextClient(do.MustInvoke[orchestration.SpeechToText](i)),
		orchestration.WithLanguage(cfg.Language),
		orchestration.WithCompleter(do.MustInvoke[orchestration.Completer](i)),
		orchestration.WithSystemPrompt(cfg.SystemPrompt),
		orchestration.WithTextToSpeechClient(do.MustInvoke[orchestration.TextToSpeech](i)),
	), nil
}

// provideTurnEndWatcher returns nil when turns are only ended by hand.
func provideTurnEndWatcher(i do.Injector) (*turnend.Watcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.TurnEndQuietPeriod() == 0 {
		return nil, nil
	}

	opts := []turnend.WatcherOption{
		turnend.WithQuietPeriod(cfg.TurnEndQuietPeriod()),
		turnend.WithIgnoredError(orchestration.ErrNoActiveCapture),
	}
	if cfg.TurnEndClassifier {
		history := do.MustInvoke[*orchestration.Controller](i).History()
		classifier := turnend.NewLLMClassifier(groq.NewClient(cfg.GroqAPIKey),
			turnend.WithHistory(func() []llms.Message { return llms.MessagesFromTurns(history.Turns()) }),
		)
		opts = append(opts, turnend.WithClassifier(classifier))
	}
	return turnend.NewWatcher(opts...), nil
}

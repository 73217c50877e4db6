package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	CompletionProviderGroq     = "groq"
	CompletionProviderOpenAI   = "openai"
	CompletionProviderWorkflow = "workflow"

	TranscriberDeepgram = "deepgram"
	TranscriberGoogle   = "google"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

type Config struct {
	Env      string `env:"EMA_ENV" envDefault:"production"`
	LogLevel string `env:"EMA_LOG_LEVEL" envDefault:"info"`

	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`
	GroqAPIKey     string `env:"GROQ_API_KEY"`
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`

	CompletionProvider string `env:"EMA_COMPLETION_PROVIDER" envDefault:"groq"`
	CompletionModel    string `env:"EMA_COMPLETION_MODEL"`
	SystemPrompt       string `env:"EMA_SYSTEM_PROMPT" envDefault:"You are a helpful voice assistant. Keep replies short and conversational."`
	WorkflowURL        string `env:"EMA_WORKFLOW_URL"`

	Transcriber string `env:"EMA_TRANSCRIBER" envDefault:"deepgram"`
	Language    string `env:"EMA_LANGUAGE" envDefault:"en-US"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"latest_short"`

	AudioBackend string `env:"EMA_AUDIO_BACKEND" envDefault:"miniaudio"`
	TTSVoice     string `env:"EMA_TTS_VOICE"`
	Greeting     string `env:"EMA_GREETING"`
	FrameBuffer  int    `env:"EMA_FRAME_BUFFER" envDefault:"64"`

	TurnEndQuietMS    int  `env:"EMA_TURN_END_QUIET_MS" envDefault:"0"`
	TurnEndClassifier bool `env:"EMA_TURN_END_CLASSIFIER" envDefault:"false"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}

	switch c.CompletionProvider {
	case CompletionProviderGroq, CompletionProviderOpenAI, CompletionProviderWorkflow:
	default:
		return fmt.Errorf("EMA_COMPLETION_PROVIDER must be one of groq, openai, workflow, got %q", c.CompletionProvider)
	}
	switch c.Transcriber {
	case TranscriberDeepgram, TranscriberGoogle:
	default:
		return fmt.Errorf("EMA_TRANSCRIBER must be one of deepgram, google, got %q", c.Transcriber)
	}
	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		return fmt.Errorf("EMA_AUDIO_BACKEND must be one of miniaudio, portaudio, got %q", c.AudioBackend)
	}

	if c.FrameBuffer <= 0 {
		return fmt.Errorf("EMA_FRAME_BUFFER must be positive, got %d", c.FrameBuffer)
	}
	if c.TurnEndQuietMS < 0 {
		return fmt.Errorf("EMA_TURN_END_QUIET_MS must not be negative, got %d", c.TurnEndQuietMS)
	}
	if c.TurnEndClassifier && c.GroqAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required when EMA_TURN_END_CLASSIFIER=true")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	// Text to speech always goes through Deepgram.
	fields := []requiredEnvField{
		{name: "DEEPGRAM_API_KEY", value: c.DeepgramAPIKey},
		{name: "EMA_LANGUAGE", value: c.Language},
	}

	switch c.CompletionProvider {
	case CompletionProviderGroq:
		fields = append(fields, requiredEnvField{name: "GROQ_API_KEY", value: c.GroqAPIKey})
	case CompletionProviderOpenAI:
		fields = append(fields, requiredEnvField{name: "OPENAI_API_KEY", value: c.OpenAIAPIKey})
	case CompletionProviderWorkflow:
		fields = append(fields, requiredEnvField{name: "EMA_WORKFLOW_URL", value: c.WorkflowURL})
	}

	if c.Transcriber == TranscriberGoogle {
		fields = append(fields,
			requiredEnvField{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
			requiredEnvField{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		)
	}
	return fields
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TurnEndQuietPeriod is zero when automatic turn ending is off.
func (c *Config) TurnEndQuietPeriod() time.Duration {
	return time.Duration(c.TurnEndQuietMS) * time.Millisecond
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("EMA_LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

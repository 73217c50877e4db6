package config

import (
	"log/slog"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:                "development",
		LogLevel:           "debug",
		DeepgramAPIKey:     "deepgram",
		GroqAPIKey:         "groq",
		CompletionProvider: CompletionProviderGroq,
		Transcriber:        TranscriberDeepgram,
		Language:           "en-US",
		AudioBackend:       AudioBackendMiniaudio,
		FrameBuffer:        64,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when required fields are missing")
	}
}

func TestValidate_ProviderKeys(t *testing.T) {
	cfg := validConfig()
	cfg.CompletionProvider = CompletionProviderOpenAI
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
	cfg.OpenAIAPIKey = "openai"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	cfg.CompletionProvider = CompletionProviderWorkflow
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when EMA_WORKFLOW_URL is missing")
	}
}

func TestValidate_GoogleTranscriberNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Transcriber = TranscriberGoogle
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when google credentials are missing")
	}
	cfg.GoogleCloudProjectID = "project"
	cfg.GoogleCloudCredentialsJSON = `{"type":"service_account"}`
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_UnknownChoices(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"provider":    func(c *Config) { c.CompletionProvider = "llama" },
		"transcriber": func(c *Config) { c.Transcriber = "whisper" },
		"backend":     func(c *Config) { c.AudioBackend = "alsa" },
		"log level":   func(c *Config) { c.LogLevel = "loud" },
		"frames":      func(c *Config) { c.FrameBuffer = 0 },
	} {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "deepgram")
	t.Setenv("GROQ_API_KEY", "groq")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.CompletionProvider != CompletionProviderGroq || cfg.Transcriber != TranscriberDeepgram {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Language != "en-US" || cfg.FrameBuffer != 64 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TurnEndQuietPeriod() != 0 {
		t.Fatalf("expected automatic turn ending to be off by default")
	}
	if cfg.IsDevelopment() {
		t.Fatal("expected production by default")
	}
}

func TestTurnEndQuietPeriod(t *testing.T) {
	cfg := validConfig()
	cfg.TurnEndQuietMS = 750
	if got := cfg.TurnEndQuietPeriod(); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v", got)
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := validConfig()
	level, err := cfg.SlogLevel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != slog.LevelDebug {
		t.Fatalf("expected debug, got %v", level)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
	ttsdeepgram "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voice/core/turnend"
	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var (
	logFile  string
	greeting string
)

var rootCmd = &cobra.Command{
	Use:   "ema-voice",
	Short: "Talk to a language model with your voice",
	Long:  "A terminal voice assistant: speak, get a transcribed turn answered by a language model and hear the reply.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		closeLog, err := initLogger(cfg, logFile)
		if err != nil {
			return err
		}
		defer closeLog()

		if cmd.Flags().Changed("greeting") {
			cfg.Greeting = greeting
		}
		return run(cmd.Context(), cfg)
	},
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the available speech voices",
	Run: func(cmd *cobra.Command, args []string) {
		for _, voice := range ttsdeepgram.GetAvailableVoices() {
			fmt.Fprintln(cmd.OutOrStdout(), voice)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "ema-voice.log", "file to write logs to, - for stderr")
	rootCmd.Flags().StringVar(&greeting, "greeting", "", "text spoken when the session starts (overrides EMA_GREETING)")
}

func main() {
	rootCmd.AddCommand(voicesCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// initLogger writes JSON logs in production and text logs in development.
// The terminal belongs to the UI, so logs go to a file by default.
func initLogger(cfg *config.Config, path string) (func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if path != "-" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = file
		closeLog = func() { _ = file.Close() }
	}

	options := &slog.HandlerOptions{Level: level}
	if cfg.IsDevelopment() {
		slog.SetDefault(slog.New(slog.NewTextHandler(out, options)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(out, options)))
	}
	return closeLog, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)
	defer injector.Shutdown()

	device, err := do.Invoke[audioDevice](injector)
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	defer device.Close()

	controller, err := do.Invoke[*orchestration.Controller](injector)
	if err != nil {
		return fmt.Errorf("failed to build controller: %w", err)
	}
	defer controller.Close()

	watcher, err := do.Invoke[*turnend.Watcher](injector)
	if err != nil {
		return fmt.Errorf("failed to build turn end watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx, controller); err != nil && ctx.Err() == nil {
				slog.Error("turn end watcher stopped", "error", err)
			}
		}()
	}

	eventsCh, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	if cfg.Greeting != "" {
		if err := controller.Greet(ctx, cfg.Greeting); err != nil {
			slog.Warn("failed to greet", "error", err)
		}
	}

	slog.Info("startup: session ready", "conversation_id", controller.ConversationID())
	program := tea.NewProgram(newModel(ctx, controller, eventsCh), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run ui: %w", err)
	}
	return nil
}

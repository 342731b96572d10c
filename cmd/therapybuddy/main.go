package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"TherapyBuddy/internal/chatbot"
	"TherapyBuddy/internal/config"
	"TherapyBuddy/internal/telemetry"
	"TherapyBuddy/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	// Flags are parsed twice: once to find the config file, then again on
	// top of the loaded config so they take precedence over file and env.
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to a TOML config file")
	defaults := config.Default()
	registerFlags(fs, &defaults)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fs = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to a TOML config file")
	registerFlags(fs, &cfg)
	_ = fs.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		return err
	}

	level := telemetry.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, shutdown := telemetry.Noop()
	if cfg.Telemetry {
		tracer, meter, shutdown, err = telemetry.InitTelemetry(ctx, cfg.LogDir)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}
	defer shutdown()

	bot, err := chatbot.New(cfg, chatbot.Options{
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}
	defer bot.Close()

	logger.Info("starting", "backend", cfg.Backend, "mode", cfg.Mode, "ui", cfg.UI)

	if cfg.UI == config.UITUI {
		return tui.Run(ctx, bot)
	}
	return bot.Run(ctx)
}

// registerFlags binds command-line flags onto cfg
func registerFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Reply backend (stub|rules|retrieval|ollama|anthropic|grok|openai|remote)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Conversation mode (vent|reframe|plan|gratitude|relationship)")
	fs.StringVar(&cfg.UI, "ui", cfg.UI, "Front end (repl|tui)")
	fs.StringVar(&cfg.UserName, "name", cfg.UserName, "Your name, used in the greeting")
	fs.DurationVar(&cfg.ReplyTimeout.Duration, "reply-timeout", cfg.ReplyTimeout.Duration, "Maximum time to wait for a reply (0 for no limit)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log, trace and metric files")
	fs.BoolVar(&cfg.Telemetry, "telemetry", cfg.Telemetry, "Export traces and metrics to files in the log directory")
	fs.StringVar(&cfg.Ollama.Model, "ollama-model", cfg.Ollama.Model, "Ollama model specification (format: model:version)")
	fs.StringVar(&cfg.Remote.Target, "remote", cfg.Remote.Target, "Responder for the remote backend: ws:// or http:// URL, or a command line")
	fs.StringVar(&cfg.Retrieval.DBPath, "corpus", cfg.Retrieval.DBPath, "SQLite reply corpus for the retrieval backend")
	fs.BoolVar(&cfg.Cache.Enabled, "cache", cfg.Cache.Enabled, "Cache replies for identical conversations")
}

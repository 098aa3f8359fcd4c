package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/RyanBlaney/sonido-chords/internal/config"
	"github.com/RyanBlaney/sonido-chords/logging"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	_ = godotenv.Load()

	cfg := config.Load()
	flush := setupObservability(cfg)
	defer flush()

	var err error
	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveCmd.String("p", cfg.Port, "port to use")
		_ = serveCmd.Parse(os.Args[2:])
		cfg.Port = *port
		err = serve(cfg)

	case "analyze":
		analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
		profile := analyzeCmd.String("chords", cfg.ChordProfile, "chord template profile (krumhansl or diatonic)")
		_ = analyzeCmd.Parse(os.Args[2:])
		if analyzeCmd.NArg() < 1 {
			fmt.Println("usage: sonido-chords analyze [-chords krumhansl] <audio_file|->")
			os.Exit(1)
		}
		cfg.ChordProfile = *profile
		err = analyzeFile(cfg, analyzeCmd.Arg(0))

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		sentry.CaptureException(err)
		logging.Error(err, "Command failed", logging.Fields{"command": os.Args[1]})
		flush()
		os.Exit(1)
	}
}

// setupObservability configures the global logger and Sentry. The returned
// function flushes pending Sentry events.
func setupObservability(cfg *config.Config) func() {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.Warn("Unknown log level, using info", logging.Fields{"log_level": cfg.LogLevel})
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if cfg.SentryDSN == "" {
		logging.Debug("Sentry not configured (SENTRY_DSN not set)")
		return func() {}
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          "sonido-chords@" + releaseVersion,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Debug:            !cfg.IsProduction(),
	}); err != nil {
		logging.Error(err, "Failed to initialize Sentry")
		return func() {}
	}

	logging.SetGlobalLogger(logging.NewSentryLogger(logging.GetGlobalLogger(), sentry.CurrentHub()))
	logging.Info("Sentry initialized", logging.Fields{
		"environment": cfg.Environment,
		"release":     releaseVersion,
	})

	return func() { sentry.Flush(sentryFlushTimeout) }
}

func printUsage() {
	fmt.Println("usage: sonido-chords <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  analyze [-chords krumhansl] <audio_file|-> print key, tempo and chord timeline as JSON (- reads stdin)")
	fmt.Println("  serve   [-p 8000]                          start the HTTP service")
}

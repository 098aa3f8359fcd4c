package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-chords/analysis"
	"github.com/RyanBlaney/sonido-chords/internal/api"
	"github.com/RyanBlaney/sonido-chords/internal/config"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/separation"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

const shutdownTimeout = 30 * time.Second

// analyzeFile prints the analysis of path, or of stdin when path is "-"
func analyzeFile(cfg *config.Config, path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := analysis.NewAnalyzer(cfg.AnalysisConfig())
	if err != nil {
		return err
	}

	decoder := transcode.NewDecoder(cfg.DecoderConfig())
	var audio *transcode.AudioData
	if path == "-" {
		audio, err = decoder.DecodeReader(ctx, os.Stdin)
	} else {
		audio, err = decoder.DecodeFile(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	result, err := analyzer.AnalyzeAudio(ctx, audio)
	if err != nil {
		return err
	}
	if path != "-" {
		result.Filename = filepath.Base(path)
	}

	if audio.Metadata != nil && audio.Metadata.Truncated {
		color.New(color.FgYellow).Fprintf(os.Stderr, "analyzed the first %s only\n", cfg.DecoderConfig().MaxDuration)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	analyzer, err := analysis.NewAnalyzer(cfg.AnalysisConfig())
	if err != nil {
		return err
	}

	decoder := transcode.NewDecoder(cfg.DecoderConfig())
	if err := decoder.CheckAvailability(ctx); err != nil {
		logging.Warn("ffmpeg unavailable, /analyze will fail", logging.Fields{"error": err.Error()})
	}

	router := api.SetupRouter(cfg, api.Services{
		Loader:   decoder,
		Analyzer: analyzer,
		Splitter: separation.NewSeparator(cfg.SeparationConfig()),
	}, releaseVersion)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Starting server", logging.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"static_dir":  cfg.StaticDir,
		})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

package config

import (
	"os"
	"strconv"
	"time"

	analysisconfig "github.com/RyanBlaney/sonido-chords/analysis/config"
	"github.com/RyanBlaney/sonido-chords/separation"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// Config holds the service configuration
type Config struct {
	// Environment
	Environment string
	Port        string
	LogLevel    string

	// Observability
	SentryDSN string // Sentry DSN for error tracking

	// Files
	StaticDir    string // published stems
	MaxUploadMB  int64
	FFmpegPath   string
	FFprobePath  string
	DemucsPython string // interpreter running "-m demucs"
	DemucsModel  string

	// Analysis
	MaxConcurrentAnalyses int
	AnalysisMaxSeconds    int // decode cap, 0 analyses whole files
	ChordProfile          string
}

func Load() *Config {
	return &Config{
		Environment:           getEnv("ENVIRONMENT", "development"),
		Port:                  getEnv("PORT", "8000"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		SentryDSN:             getEnv("SENTRY_DSN", ""),
		StaticDir:             getEnv("STATIC_DIR", "static"),
		MaxUploadMB:           int64(getEnvInt("MAX_UPLOAD_MB", 100)),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		DemucsPython:          getEnv("DEMUCS_PYTHON", "python3"),
		DemucsModel:           getEnv("DEMUCS_MODEL", "htdemucs_6s"),
		MaxConcurrentAnalyses: getEnvInt("MAX_CONCURRENT_ANALYSES", 2),
		AnalysisMaxSeconds:    getEnvInt("ANALYSIS_MAX_SECONDS", 120),
		ChordProfile:          getEnv("CHORD_PROFILE", "krumhansl"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to the default on unset or malformed values
func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AnalysisConfig derives the pipeline configuration
func (c *Config) AnalysisConfig() *analysisconfig.AnalysisConfig {
	cfg := analysisconfig.DefaultAnalysisConfig()
	cfg.MaxDuration = time.Duration(c.AnalysisMaxSeconds) * time.Second
	cfg.ChordProfile = c.ChordProfile
	return cfg
}

// DecoderConfig derives the ffmpeg decoder configuration
func (c *Config) DecoderConfig() *transcode.DecoderConfig {
	analysis := c.AnalysisConfig()
	cfg := transcode.DefaultDecoderConfig()
	cfg.TargetSampleRate = analysis.SampleRate
	cfg.MaxDuration = analysis.MaxDuration
	cfg.FFmpegPath = c.FFmpegPath
	cfg.FFprobePath = c.FFprobePath
	return cfg
}

// SeparationConfig derives the demucs configuration
func (c *Config) SeparationConfig() *separation.Config {
	cfg := separation.DefaultConfig()
	cfg.Python = c.DemucsPython
	cfg.Model = c.DemucsModel
	cfg.OutputDir = c.StaticDir
	return cfg
}

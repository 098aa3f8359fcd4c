package separation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-chords/logging"
)

// Stem is one separated source
type Stem string

const (
	Vocals Stem = "vocals"
	Drums  Stem = "drums"
	Bass   Stem = "bass"
	Piano  Stem = "piano"
	Other  Stem = "other"
)

// Stems lists the sources published by Split, in response order
var Stems = []Stem{Vocals, Drums, Bass, Piano, Other}

// Config configures the demucs invocation
type Config struct {
	Python    string        `json:"python"`     // interpreter with demucs installed
	Model     string        `json:"model"`      // htdemucs_6s separates piano
	Device    string        `json:"device"`     // "cpu" or "cuda"
	OutputDir string        `json:"output_dir"` // where stems are published
	Timeout   time.Duration `json:"timeout"`    // 0 waits indefinitely
}

// DefaultConfig returns the six-stem CPU model writing into ./static
func DefaultConfig() *Config {
	return &Config{
		Python:    "python3",
		Model:     "htdemucs_6s",
		Device:    "cpu",
		OutputDir: "static",
		Timeout:   10 * time.Minute,
	}
}

// CommandRunner runs an external command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Separator splits audio files into stems with demucs
type Separator struct {
	config *Config
	run    CommandRunner
	logger logging.Logger
}

// NewSeparator creates a separator (nil config selects defaults)
func NewSeparator(config *Config) *Separator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Separator{
		config: config,
		run:    execRunner,
		logger: logging.WithFields(logging.Fields{
			"component": "demucs_separator",
		}),
	}
}

// SetRunner replaces the command runner
func (s *Separator) SetRunner(run CommandRunner) {
	if run != nil {
		s.run = run
	}
}

// Config returns the separator configuration
func (s *Separator) Config() *Config {
	return s.config
}

// Split separates inputPath and moves each stem into the output directory
// as "<input name>_<stem>.wav". The returned map holds the published file
// names. A missing piano stem is replaced by a copy of "other"; any other
// missing stem is left out. The demucs scratch directory is always removed.
func (s *Separator) Split(ctx context.Context, inputPath string) (map[Stem]string, error) {
	name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	logger := s.logger.WithFields(logging.Fields{
		"function": "Split",
		"input":    name,
		"model":    s.config.Model,
	})

	if err := os.MkdirAll(s.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	scratch, err := os.MkdirTemp(s.config.OutputDir, "separated-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("Failed to remove scratch dir", logging.Fields{"error": err.Error()})
		}
	}()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	args := []string{"-m", "demucs", "-n", s.config.Model, "-d", s.config.Device, "--out", scratch, inputPath}
	if output, err := s.run(ctx, s.config.Python, args...); err != nil {
		logger.Error(err, "Demucs failed", logging.Fields{
			"output": tail(string(output), 2000),
		})
		return nil, fmt.Errorf("demucs: %w", err)
	}

	logger.Info("Demucs separation finished", logging.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	// demucs writes <out>/<model>/<input name>/<stem>.wav
	stemDir := filepath.Join(scratch, s.config.Model, name)
	if _, err := os.Stat(stemDir); err != nil {
		return nil, fmt.Errorf("demucs output folder not found: %w", err)
	}

	published := make(map[Stem]string, len(Stems))
	for _, stem := range Stems {
		src := filepath.Join(stemDir, string(stem)+".wav")
		target := fmt.Sprintf("%s_%s.wav", name, stem)
		dst := filepath.Join(s.config.OutputDir, target)

		err := os.Rename(src, dst)
		if errors.Is(err, os.ErrNotExist) && stem == Piano {
			logger.Warn("Piano stem missing, publishing other stem in its place")
			err = copyFile(filepath.Join(stemDir, string(Other)+".wav"), dst)
		}
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Stem not produced", logging.Fields{"stem": string(stem)})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("publish %s stem: %w", stem, err)
		}
		published[stem] = target
	}

	if len(published) == 0 {
		return nil, fmt.Errorf("demucs produced no stems")
	}

	return published, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/RyanBlaney/sonido-chords/analysis"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

type AnalyzeHandler struct {
	loader   transcode.AudioLoader
	analyzer AudioAnalyzer
	slots    *semaphore.Weighted
}

// NewAnalyzeHandler runs at most maxConcurrent analyses at a time
func NewAnalyzeHandler(loader transcode.AudioLoader, analyzer AudioAnalyzer, maxConcurrent int) *AnalyzeHandler {
	return &AnalyzeHandler{
		loader:   loader,
		analyzer: analyzer,
		slots:    semaphore.NewWeighted(int64(max(1, maxConcurrent))),
	}
}

// Analyze estimates key, tempo and chords of an uploaded song
// POST /analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	file, status, err := audioUpload(c)
	if err != nil {
		respondError(c, status, err)
		return
	}

	ctx := c.Request.Context()
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "analyze_handler",
		"filename":  file.Filename,
		"size":      file.Size,
	})

	tempDir, err := os.MkdirTemp("", "sonido-upload-*")
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(tempDir)

	tempPath := filepath.Join(tempDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		respondError(c, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		respondError(c, http.StatusServiceUnavailable, fmt.Errorf("waiting for analysis slot: %w", err))
		return
	}
	defer h.slots.Release(1)

	audio, err := h.loader.DecodeFile(ctx, tempPath)
	if err != nil {
		logger.Error(err, "Failed to decode upload")
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	result, err := h.analyzer.AnalyzeAudio(ctx, audio)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidInput) {
			respondError(c, http.StatusUnprocessableEntity, err)
			return
		}
		logger.Error(err, "Analysis failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	result.Filename = file.Filename

	logger.Info("Analysis served", logging.Fields{
		"key":    result.Key,
		"tempo":  result.Tempo,
		"chords": len(result.Chords),
	})

	c.JSON(http.StatusOK, result)
}

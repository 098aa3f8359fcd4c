package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-chords/logging"
)

type SplitHandler struct {
	splitter  Splitter
	staticDir string
	urlPrefix string
}

// NewSplitHandler stores uploads in staticDir and publishes stems under
// urlPrefix
func NewSplitHandler(splitter Splitter, staticDir, urlPrefix string) *SplitHandler {
	return &SplitHandler{
		splitter:  splitter,
		staticDir: staticDir,
		urlPrefix: urlPrefix,
	}
}

// Split separates an uploaded song into stems
// POST /split
func (h *SplitHandler) Split(c *gin.Context) {
	file, status, err := audioUpload(c)
	if err != nil {
		respondError(c, status, err)
		return
	}

	ext := filepath.Ext(file.Filename)
	base := strings.TrimSuffix(filepath.Base(file.Filename), ext)
	uniqueName := fmt.Sprintf("%s_%s", base, uuid.NewString()[:8])
	inputPath := filepath.Join(h.staticDir, uniqueName+ext)

	logger := logging.WithContext(c.Request.Context()).WithFields(logging.Fields{
		"component": "split_handler",
		"input":     uniqueName,
	})

	if err := os.MkdirAll(h.staticDir, 0o755); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		respondError(c, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}
	defer os.Remove(inputPath)

	stems, err := h.splitter.Split(c.Request.Context(), inputPath)
	if err != nil {
		logger.Error(err, "Separation failed")
		respondError(c, http.StatusInternalServerError, fmt.Errorf("audio separation failed: %w", err))
		return
	}

	urls := make(map[string]string, len(stems))
	for stem, name := range stems {
		urls[string(stem)] = path.Join(h.urlPrefix, name)
	}

	logger.Info("Stems published", logging.Fields{"stems": len(urls)})
	c.JSON(http.StatusOK, urls)
}

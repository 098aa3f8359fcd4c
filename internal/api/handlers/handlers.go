package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-chords/analysis"
	"github.com/RyanBlaney/sonido-chords/internal/api/middleware"
	"github.com/RyanBlaney/sonido-chords/separation"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

const uploadField = "file"

var errNotAudio = errors.New("invalid file type: must be an audio file")

// AudioAnalyzer runs beat tracking and the key/chord pipeline on decoded audio
type AudioAnalyzer interface {
	AnalyzeAudio(ctx context.Context, audio *transcode.AudioData) (*analysis.Result, error)
}

// Splitter separates an audio file into published stems
type Splitter interface {
	Split(ctx context.Context, inputPath string) (map[separation.Stem]string, error)
}

func respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString(middleware.RequestIDKey),
	})
}

// audioUpload returns the uploaded audio part, rejecting anything that is
// not declared as audio
func audioUpload(c *gin.Context) (*multipart.FileHeader, int, error) {
	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "audio/") {
		return nil, http.StatusBadRequest, errNotAudio
	}
	return file, http.StatusOK, nil
}

// LimitUploadSize caps request bodies at maxBytes
func LimitUploadSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

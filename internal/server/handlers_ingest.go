package server

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

// timestampLayout matches the uploader's filename-derived timestamp field.
const timestampLayout = "20060102_150405"

// processedRingSize bounds the duplicate-detection window. The uploader
// retries aggressively, so the last few uploads are remembered by signature.
const processedRingSize = 25

type uploadSignature struct {
	stem string
	size int64
}

// requireAPIKey guards the ingest endpoint with the shared uploader key.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.IngestAPIKey)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid API key"})
		}
		return next(c)
	}
}

// handleUpload accepts one call from the uploader: multipart fields
// talkgroupId, timestamp, radioId plus an mp3 part and a transcription part.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	talkgroupID, err := strconv.ParseInt(c.FormValue("talkgroupId"), 10, 64)
	if err != nil {
		metrics.IngestUploads.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid talkgroupId"})
	}
	timestamp, err := time.Parse(timestampLayout, c.FormValue("timestamp"))
	if err != nil {
		metrics.IngestUploads.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid timestamp"})
	}
	radioID, err := strconv.ParseInt(c.FormValue("radioId"), 10, 64)
	if err != nil {
		metrics.IngestUploads.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid radioId"})
	}

	text, err := s.readTranscription(c)
	if err != nil {
		metrics.IngestUploads.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing transcription"})
	}
	if strings.TrimSpace(text) == "" {
		metrics.IngestUploads.WithLabelValues("empty").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty transcription"})
	}

	mp3, err := c.FormFile("mp3")
	if err != nil {
		metrics.IngestUploads.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing mp3"})
	}

	sig := uploadSignature{
		stem: strings.TrimSuffix(mp3.Filename, filepath.Ext(mp3.Filename)),
		size: mp3.Size,
	}
	if s.alreadyProcessed(sig) {
		metrics.IngestUploads.WithLabelValues("duplicate").Inc()
		slog.Info("Skipping duplicate upload", "stem", sig.stem)
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}

	audioPath, err := s.saveAudio(mp3)
	if err != nil {
		metrics.IngestUploads.WithLabelValues("error").Inc()
		slog.Error("Failed to store call audio", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store audio"})
	}

	event := domain.TranscriptionEvent{
		ID:          uuid.New(),
		Text:        text,
		Timestamp:   timestamp,
		TalkgroupID: talkgroupID,
		RadioID:     radioID,
		AudioPath:   audioPath,
	}

	if err := s.transcriptions.Insert(ctx, event); err != nil {
		metrics.IngestUploads.WithLabelValues("error").Inc()
		slog.Error("Failed to persist transcription", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist transcription"})
	}

	s.markProcessed(sig)
	metrics.IngestUploads.WithLabelValues("accepted").Inc()

	s.pipeline.OnNewTranscription(ctx, event)
	s.coordinator.OnAudioReady(audioPath, talkgroupID)

	return c.JSON(http.StatusCreated, map[string]string{
		"status": "accepted",
		"id":     event.ID.String(),
	})
}

func (s *Server) readTranscription(c echo.Context) (string, error) {
	part, err := c.FormFile("transcription")
	if err != nil {
		return "", err
	}
	f, err := part.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) saveAudio(mp3 *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.config.AudioDir, 0o755); err != nil {
		return "", err
	}

	// Base-name only, so a hostile filename cannot escape the audio dir.
	filename := filepath.Base(mp3.Filename)
	dst, err := os.Create(filepath.Join(s.config.AudioDir, filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	src, err := mp3.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return "/audio/" + filename, nil
}

func (s *Server) alreadyProcessed(sig uploadSignature) bool {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	for _, seen := range s.processed {
		if seen == sig {
			return true
		}
	}
	return false
}

func (s *Server) markProcessed(sig uploadSignature) {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	s.processed = append(s.processed, sig)
	if len(s.processed) > processedRingSize {
		s.processed = s.processed[len(s.processed)-processedRingSize:]
	}
}

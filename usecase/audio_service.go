package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// DefaultMaxUploadSize is the upload ceiling used when no explicit limit
// is configured
const DefaultMaxUploadSize = 50 * 1024 * 1024 // 50MB

const maxFilenameLength = 255

// validAudioExtensions is the allow-list of audio container types
var validAudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".flac": true,
}

// AudioTranscriber runs the transcription fallback chain over raw audio
type AudioTranscriber interface {
	TranscribeBytes(ctx context.Context, audio []byte, ext string, language string) (string, error)
}

// ProcessRequest is one audio submission to the orchestrator
type ProcessRequest struct {
	UserID    string
	Filename  string
	Size      int64
	Data      io.Reader
	Language  string
	Reference string // optional expected-correct sentence
}

// ProcessResult aggregates what one submission produced
type ProcessResult struct {
	AudioID                string             `json:"audio_id"`
	Transcription          string             `json:"transcription"`
	TranscriptionAvailable bool               `json:"transcription_available"`
	Feedback               *entities.Feedback `json:"feedback"`
}

// AudioService sequences one audio submission through validation, storage,
// transcription, feedback generation and persistence. Validation and
// storage failures abort the request; transcription and feedback failures
// degrade the result instead. No stage is retried.
type AudioService struct {
	store         repositories.AudioStore
	audioRepo     repositories.AudioRepository
	feedbackRepo  repositories.FeedbackRepository
	transcriber   AudioTranscriber
	feedback      *FeedbackService
	mistakes      *MistakeService
	maxUploadSize int64
	logger        *zap.Logger
}

// NewAudioService creates the audio processing orchestrator. mistakes may
// be nil to skip mistake tracking; maxUploadSize <= 0 falls back to
// DefaultMaxUploadSize.
func NewAudioService(
	store repositories.AudioStore,
	audioRepo repositories.AudioRepository,
	feedbackRepo repositories.FeedbackRepository,
	transcriber AudioTranscriber,
	feedback *FeedbackService,
	mistakes *MistakeService,
	maxUploadSize int64,
	logger *zap.Logger,
) *AudioService {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &AudioService{
		store:         store,
		audioRepo:     audioRepo,
		feedbackRepo:  feedbackRepo,
		transcriber:   transcriber,
		feedback:      feedback,
		mistakes:      mistakes,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// ProcessAudio runs the pipeline for one submission
func (s *AudioService) ProcessAudio(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	ext, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	// Buffer the upload once; both storage and transcription need it.
	// One extra byte past the ceiling is enough to reject oversized
	// uploads whose declared size lied.
	data, err := io.ReadAll(io.LimitReader(req.Data, s.maxUploadSize+1))
	if err != nil {
		return nil, &entities.StorageError{Op: "read", Err: err}
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, entities.NewValidationError("file size too large, maximum size: %dMB", s.maxUploadSize/1024/1024)
	}
	if len(data) == 0 {
		return nil, entities.NewValidationError("empty audio file")
	}

	path, size, err := s.store.Save(ctx, req.UserID, req.Filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	record := entities.NewAudioRecord(req.UserID, req.Filename, path, ext, size, req.Language)
	if err := s.audioRepo.Create(ctx, record); err != nil {
		// The file is orphaned without its record; remove it.
		if rmErr := s.store.Remove(ctx, path); rmErr != nil {
			s.logger.Warn("failed to remove orphaned audio file",
				zap.String("path", path), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("failed to persist audio record: %w", err)
	}
	audioID := record.ID.Hex()

	s.logger.Info("audio stored",
		zap.String("audio_id", audioID),
		zap.String("user_id", req.UserID),
		zap.Int64("size", size))

	transcription, available := s.transcribe(ctx, data, ext, record.Language)
	if available {
		if err := s.audioRepo.AttachTranscription(ctx, audioID, transcription); err != nil {
			s.logger.Warn("failed to attach transcription",
				zap.String("audio_id", audioID), zap.Error(err))
		}
	}

	fb := s.feedback.Generate(ctx, audioID, entities.TargetAudio, req.UserID,
		transcription, req.Reference, FeedbackContext{})
	if err := s.feedbackRepo.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("failed to persist feedback: %w", err)
	}

	if s.mistakes != nil && available {
		s.mistakes.RecordFromFeedback(ctx, req.UserID, transcription, fb, FeedbackContext{})
	}

	return &ProcessResult{
		AudioID:                audioID,
		Transcription:          transcription,
		TranscriptionAvailable: available,
		Feedback:               fb,
	}, nil
}

// GetAudio loads an audio record the user owns
func (s *AudioService) GetAudio(ctx context.Context, audioID, userID string) (*entities.AudioRecord, error) {
	record, err := s.audioRepo.GetByID(ctx, audioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio record: %w", err)
	}
	if record == nil {
		return nil, ErrAudioNotFound
	}
	if record.UserID != userID {
		return nil, ErrAccessDenied
	}
	return record, nil
}

// validate applies the format allow-list and size ceiling. Failures are
// terminal and reported to the caller; nothing is stored.
func (s *AudioService) validate(req ProcessRequest) (string, error) {
	if req.Filename == "" {
		return "", entities.NewValidationError("no audio file provided")
	}
	if len(req.Filename) > maxFilenameLength {
		return "", entities.NewValidationError("filename too long")
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !validAudioExtensions[ext] {
		return "", entities.NewValidationError("invalid audio format %q, supported formats: %s",
			ext, strings.Join(supportedExtensions(), ", "))
	}

	if req.Size > s.maxUploadSize {
		return "", entities.NewValidationError("file size too large, maximum size: %dMB", s.maxUploadSize/1024/1024)
	}

	return ext, nil
}

// transcribe runs the fallback chain. Total failure across all backends
// does not abort the pipeline: the caller is informed the transcription is
// unavailable and processing continues with the sentinel text.
func (s *AudioService) transcribe(ctx context.Context, data []byte, ext, language string) (string, bool) {
	text, err := s.transcriber.TranscribeBytes(ctx, data, ext, language)
	if err != nil {
		s.logger.Warn("transcription unavailable, continuing degraded", zap.Error(err))
		return MsgTranscriptionUnavailable, false
	}
	if strings.TrimSpace(text) == "" {
		return MsgEmptyTranscription, false
	}
	return text, true
}

func supportedExtensions() []string {
	exts := make([]string, 0, len(validAudioExtensions))
	for ext := range validAudioExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
)

type aiResponseRepo interface {
	Create(ctx context.Context, resp *models.DoubtResponse) error
}

type aiDoubtRepo interface {
	MarkAIAssisted(ctx context.Context, doubtID string) error
}

type textGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
	Model() string
}

const aiSystemPrompt = `You are a CLAT law-entrance exam tutor. Answer the student's doubt clearly and concisely. Explain the underlying concept, cite relevant provisions or case law where applicable, and keep the answer suitable for exam preparation.`

// AIResponderService generates a first answer for a doubt when the student
// asks for AI assistance. Failures are soft: callers proceed as if no AI
// assistance was requested.
type AIResponderService struct {
	generator  textGenerator
	responses  aiResponseRepo
	doubts     aiDoubtRepo
	activity   activityRecorder
	logger     *zap.Logger
	timeout    time.Duration
	confidence float64
}

// NewAIResponderService constructs the service. generator may be nil when AI
// assistance is disabled; GenerateForDoubt then reports an error the caller
// swallows.
func NewAIResponderService(generator textGenerator, responses aiResponseRepo, doubts aiDoubtRepo, activity activityRecorder, logger *zap.Logger, timeout time.Duration, confidence float64) *AIResponderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if confidence <= 0 || confidence > 1 {
		// Heuristic constant: the upstream model has no confidence signal.
		confidence = 0.75
	}
	return &AIResponderService{
		generator:  generator,
		responses:  responses,
		doubts:     doubts,
		activity:   activity,
		logger:     logger,
		timeout:    timeout,
		confidence: confidence,
	}
}

// Enabled reports whether a generator is configured.
func (s *AIResponderService) Enabled() bool { return s.generator != nil }

// GenerateForDoubt builds a prompt from the doubt fields, requests a
// completion bounded by the configured timeout, and attaches the result as a
// system-authored response.
func (s *AIResponderService) GenerateForDoubt(ctx context.Context, doubt *models.Doubt) (*models.DoubtResponse, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("ai responder disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Subject: %s\nTopic type: %s\nDifficulty (1-5): %d\n\nQuestion: %s\n\nDetails: %s",
		doubt.Subject, doubt.Type, doubt.DifficultyLevel, doubt.Title, doubt.Description)

	content, err := s.generator.GenerateText(ctx, aiSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate ai response: %w", err)
	}

	model := s.generator.Model()
	confidence := s.confidence
	resp := &models.DoubtResponse{
		DoubtID:           doubt.ID,
		AuthorID:          nil,
		AuthorType:        models.AuthorTypeAI,
		Content:           content,
		AIGenerated:       true,
		AIModel:           &model,
		AIConfidenceScore: &confidence,
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		return nil, fmt.Errorf("persist ai response: %w", err)
	}

	if err := s.doubts.MarkAIAssisted(ctx, doubt.ID); err != nil {
		s.logger.Warn("failed to flag doubt as ai assisted",
			zap.String("doubt_id", doubt.ID), zap.Error(err))
	}

	s.activity.Record(ctx, doubt.ID, nil, models.ActivityAIResponse,
		"attached AI-generated response", nil,
		map[string]interface{}{"response_id": resp.ID, "model": model})

	return resp, nil
}

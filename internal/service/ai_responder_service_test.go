package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
)

type stubGenerator struct {
	reply  string
	err    error
	system string
	user   string
}

func (s *stubGenerator) GenerateText(_ context.Context, system, user string) (string, error) {
	s.system = system
	s.user = user
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubGenerator) Model() string { return "gpt-4o-mini" }

type markTrackingDoubtRepo struct {
	marked  []string
	markErr error
}

func (m *markTrackingDoubtRepo) MarkAIAssisted(_ context.Context, doubtID string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, doubtID)
	return nil
}

func sampleDoubt() *models.Doubt {
	return &models.Doubt{
		ID:              "doubt-1",
		Title:           "Res judicata scope",
		Description:     "Does res judicata bind co-defendants inter se?",
		Subject:         "Civil Procedure",
		Type:            models.DoubtTypeConcept,
		DifficultyLevel: 4,
		StudentID:       "stu-1",
		Status:          models.DoubtStatusOpen,
	}
}

func TestGenerateForDoubtAttachesAIResponse(t *testing.T) {
	gen := &stubGenerator{reply: "Res judicata binds co-defendants when..."}
	responses := &mockResponseRepo{}
	doubts := &markTrackingDoubtRepo{}
	activity := &mockActivityRecorder{}
	svc := NewAIResponderService(gen, responses, doubts, activity, zap.NewNop(), time.Second, 0.8)

	resp, err := svc.GenerateForDoubt(context.Background(), sampleDoubt())
	require.NoError(t, err)

	assert.Equal(t, models.AuthorTypeAI, resp.AuthorType)
	assert.Nil(t, resp.AuthorID)
	assert.True(t, resp.AIGenerated)
	require.NotNil(t, resp.AIModel)
	assert.Equal(t, "gpt-4o-mini", *resp.AIModel)
	require.NotNil(t, resp.AIConfidenceScore)
	assert.Equal(t, 0.8, *resp.AIConfidenceScore)

	assert.Contains(t, gen.user, "Civil Procedure")
	assert.Contains(t, gen.user, "Res judicata scope")

	assert.Equal(t, []string{"doubt-1"}, doubts.marked)
	require.Len(t, activity.records, 1)
	assert.Equal(t, models.ActivityAIResponse, activity.records[0].activityType)
	assert.Nil(t, activity.records[0].userID)
}

func TestGenerateForDoubtGeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("timeout")}
	responses := &mockResponseRepo{}
	doubts := &markTrackingDoubtRepo{}
	svc := NewAIResponderService(gen, responses, doubts, &mockActivityRecorder{}, zap.NewNop(), time.Second, 0.75)

	_, err := svc.GenerateForDoubt(context.Background(), sampleDoubt())
	require.Error(t, err)
	assert.Empty(t, responses.responses, "no response row on failure")
	assert.Empty(t, doubts.marked, "doubt stays ai_assisted=false on failure")
}

func TestGenerateForDoubtMarkFailureIsSoft(t *testing.T) {
	gen := &stubGenerator{reply: "answer"}
	responses := &mockResponseRepo{}
	doubts := &markTrackingDoubtRepo{markErr: errors.New("update failed")}
	svc := NewAIResponderService(gen, responses, doubts, &mockActivityRecorder{}, zap.NewNop(), time.Second, 0.75)

	resp, err := svc.GenerateForDoubt(context.Background(), sampleDoubt())
	require.NoError(t, err, "the response row is the durable part")
	assert.NotNil(t, resp)
}

func TestAIResponderDisabled(t *testing.T) {
	svc := NewAIResponderService(nil, &mockResponseRepo{}, &markTrackingDoubtRepo{}, &mockActivityRecorder{}, zap.NewNop(), time.Second, 0.75)
	assert.False(t, svc.Enabled())

	_, err := svc.GenerateForDoubt(context.Background(), sampleDoubt())
	require.Error(t, err)
}

func TestConfidenceFallback(t *testing.T) {
	gen := &stubGenerator{reply: "answer"}
	svc := NewAIResponderService(gen, &mockResponseRepo{}, &markTrackingDoubtRepo{}, &mockActivityRecorder{}, zap.NewNop(), time.Second, 1.5)

	resp, err := svc.GenerateForDoubt(context.Background(), sampleDoubt())
	require.NoError(t, err)
	require.NotNil(t, resp.AIConfidenceScore)
	assert.Equal(t, 0.75, *resp.AIConfidenceScore)
}

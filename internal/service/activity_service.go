package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
)

type activityRepository interface {
	Create(ctx context.Context, entry *models.DoubtActivityLog) error
}

// ActivityService appends audit entries for doubt mutations. It is best
// effort: a failed write is logged and swallowed so the primary operation
// never fails because of its audit trail.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// Record appends one activity entry. userID is nil for automatic actions.
// Old and new values are marshalled snapshots; marshal failures degrade to
// nil rather than dropping the entry.
func (s *ActivityService) Record(ctx context.Context, doubtID string, userID *string, activityType, description string, oldValues, newValues interface{}) {
	entry := &models.DoubtActivityLog{
		DoubtID:      doubtID,
		UserID:       userID,
		ActivityType: activityType,
		Description:  description,
		OldValues:    marshalSnapshot(oldValues),
		NewValues:    marshalSnapshot(newValues),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("activity log write failed",
			zap.String("doubt_id", doubtID),
			zap.String("activity_type", activityType),
			zap.Error(err))
	}
}

func marshalSnapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
	"github.com/clatprep/clat-prep-api/pkg/config"
)

type assignmentDoubtRepo interface {
	AssignEducator(ctx context.Context, doubtID, educatorID string) (bool, error)
}

type educatorRanker interface {
	RankEducators(ctx context.Context, subject string, limit int) ([]models.EducatorCandidate, error)
}

type activityRecorder interface {
	Record(ctx context.Context, doubtID string, userID *string, activityType, description string, oldValues, newValues interface{})
}

type notifier interface {
	Send(ctx context.Context, in SendNotificationInput) (*models.DoubtNotification, error)
}

// AssignmentService selects the best-suited educator for a new doubt. No
// candidate is an expected outcome under low coverage, not an error.
type AssignmentService struct {
	doubts         assignmentDoubtRepo
	ranker         educatorRanker
	activity       activityRecorder
	notifications  notifier
	metrics        *MetricsService
	logger         *zap.Logger
	enabled        bool
	timeout        time.Duration
	candidateLimit int
}

// NewAssignmentService constructs the service. metrics may be nil.
func NewAssignmentService(doubts assignmentDoubtRepo, ranker educatorRanker, activity activityRecorder, notifications notifier, metrics *MetricsService, logger *zap.Logger, cfg config.AssignmentConfig) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	return &AssignmentService{
		doubts:         doubts,
		ranker:         ranker,
		activity:       activity,
		notifications:  notifications,
		metrics:        metrics,
		logger:         logger,
		enabled:        cfg.Enabled,
		timeout:        cfg.RequestTimeout,
		candidateLimit: cfg.CandidateLimit,
	}
}

// Assign picks the top-ranked educator for the subject and applies the
// open -> assigned transition atomically. Returns the assignee id, or nil
// when no candidate was found or the doubt moved on concurrently.
func (s *AssignmentService) Assign(ctx context.Context, doubtID, subject string) (*string, error) {
	if !s.enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	candidates, err := s.ranker.RankEducators(ctx, subject, s.candidateLimit)
	s.metrics.ObserveDBQuery("rank_educators", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("rank educators: %w", err)
	}
	if len(candidates) == 0 {
		s.logger.Info("no educator candidate for subject, doubt stays open",
			zap.String("doubt_id", doubtID), zap.String("subject", subject))
		return nil, nil
	}

	educatorID := candidates[0].EducatorID
	assigned, err := s.doubts.AssignEducator(ctx, doubtID, educatorID)
	if err != nil {
		return nil, fmt.Errorf("assign educator: %w", err)
	}
	if !assigned {
		// Guard did not match: already assigned or the status moved on.
		s.logger.Info("auto-assignment skipped, doubt no longer open",
			zap.String("doubt_id", doubtID))
		return nil, nil
	}

	// nil actor marks the assignment as automatic, distinct from staff action.
	s.activity.Record(ctx, doubtID, nil, models.ActivityAutoAssigned,
		fmt.Sprintf("auto-assigned educator %s by subject match on %q", educatorID, subject),
		nil, map[string]interface{}{"assigned_educator_id": educatorID, "score": candidates[0].Score})

	if _, err := s.notifications.Send(ctx, SendNotificationInput{
		UserID:   educatorID,
		DoubtID:  &doubtID,
		Type:     models.NotificationDoubtAssigned,
		Title:    "New doubt assigned",
		Message:  fmt.Sprintf("A %s doubt was assigned to you", subject),
		Priority: models.NotificationPriorityNormal,
	}); err != nil {
		s.logger.Warn("assignment notification failed",
			zap.String("doubt_id", doubtID), zap.Error(err))
	}

	return &educatorID, nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
	"github.com/clatprep/clat-prep-api/internal/realtime"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.DoubtNotification) error
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.DoubtNotification, int, error)
	MarkRead(ctx context.Context, ids []string, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type realtimePublisher interface {
	Publish(ctx context.Context, event string, payload interface{}, rooms ...string) error
}

// SendNotificationInput describes one fan-out.
type SendNotificationInput struct {
	UserID   string
	DoubtID  *string
	Type     models.NotificationType
	Title    string
	Message  string
	Metadata map[string]interface{}
	Priority models.NotificationPriority
}

// NotificationService persists notification rows and fans them out over the
// realtime hub. Delivery is at-least-once: repeated sends create repeated
// rows.
type NotificationService struct {
	repo      notificationRepository
	cache     cacheStore
	publisher realtimePublisher
	metrics   *MetricsService
	logger    *zap.Logger
	unreadTTL time.Duration
}

// NewNotificationService constructs the service. cache and publisher may be
// nil; both degrade gracefully.
func NewNotificationService(repo notificationRepository, cache cacheStore, publisher realtimePublisher, metrics *MetricsService, logger *zap.Logger, unreadTTL time.Duration) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unreadTTL <= 0 {
		unreadTTL = time.Minute
	}
	return &NotificationService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		unreadTTL: unreadTTL,
	}
}

// Send writes the notification row, then publishes to the recipient's room
// and the broadcast rooms the event type calls for. The row write is the
// durable part; publish failures are logged and dropped.
func (s *NotificationService) Send(ctx context.Context, in SendNotificationInput) (*models.DoubtNotification, error) {
	n := &models.DoubtNotification{
		DoubtID:  in.DoubtID,
		UserID:   in.UserID,
		Type:     in.Type,
		Title:    in.Title,
		Message:  in.Message,
		Priority: in.Priority,
	}
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			s.logger.Warn("notification metadata dropped",
				zap.String("type", string(in.Type)),
				zap.Error(err))
		} else {
			n.Metadata = raw
		}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	s.metrics.ObserveNotificationSent(string(in.Type))
	s.invalidateUnread(ctx, in.UserID)

	if s.publisher != nil {
		rooms := s.roomsFor(n)
		if err := s.publisher.Publish(ctx, string(n.Type), n, rooms...); err != nil {
			s.logger.Warn("realtime publish failed",
				zap.String("notification_id", n.ID),
				zap.String("type", string(n.Type)),
				zap.Error(err))
		}
	}
	return n, nil
}

// roomsFor maps a notification onto its realtime rooms: always the recipient;
// doubt-scoped events also hit the doubt room; new doubts reach the educator
// pool; resolutions and closures reach staff.
func (s *NotificationService) roomsFor(n *models.DoubtNotification) []string {
	rooms := []string{realtime.UserRoom(n.UserID)}
	if n.DoubtID != nil {
		rooms = append(rooms, realtime.DoubtRoom(*n.DoubtID))
	}
	switch n.Type {
	case models.NotificationDoubtCreated:
		rooms = append(rooms, realtime.RoomEducators)
	case models.NotificationDoubtResolved, models.NotificationDoubtClosed:
		rooms = append(rooms, realtime.RoomStaff)
	}
	return rooms
}

// ListForUser returns the recipient's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.DoubtNotification, int, error) {
	notifications, total, err := s.repo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, total, nil
}

// MarkRead acknowledges the given notifications for the requesting user only.
func (s *NotificationService) MarkRead(ctx context.Context, ids []string, userID string) (int64, error) {
	updated, err := s.repo.MarkRead(ctx, ids, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	if updated > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return updated, nil
}

// UnreadCount returns the unread badge count, served from cache when warm.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCountKey(userID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil {
			s.logger.Debug("unread count cache set failed", zap.Error(err))
		}
	}
	return count, nil
}

// PurgeOlderThan removes notifications past the retention window.
func (s *NotificationService) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	removed, err := s.repo.PurgeOlderThan(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return removed, nil
}

// StartPurgeLoop runs retention cleanup on a ticker until ctx is cancelled.
// It is independent of request flow.
func (s *NotificationService) StartPurgeLoop(ctx context.Context, interval time.Duration, retentionDays int) {
	if interval <= 0 || retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.PurgeOlderThan(ctx, retentionDays)
				if err != nil {
					s.logger.Warn("notification purge failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					s.logger.Info("purged notifications",
						zap.Int64("removed", removed),
						zap.Int("retention_days", retentionDays))
				}
			}
		}
	}()
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadCountKey(userID)); err != nil {
		s.logger.Debug("unread count cache invalidation failed", zap.Error(err))
	}
}

func unreadCountKey(userID string) string {
	return "notifications:unread:" + userID
}

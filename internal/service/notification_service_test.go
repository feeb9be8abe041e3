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
	"github.com/clatprep/clat-prep-api/internal/realtime"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
)

type mockNotificationRepo struct {
	created     []models.DoubtNotification
	createErr   error
	unread      int
	unreadCalls int
	markedIDs   []string
	markedUser  string
	markedCount int64
	purgedDays  int
	purged      int64
}

func (m *mockNotificationRepo) Create(_ context.Context, n *models.DoubtNotification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = "notif-new"
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationRepo) ListForUser(_ context.Context, _ string, _, _ int) ([]models.DoubtNotification, int, error) {
	return m.created, len(m.created), nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, ids []string, userID string) (int64, error) {
	m.markedIDs = ids
	m.markedUser = userID
	return m.markedCount, nil
}

func (m *mockNotificationRepo) UnreadCount(_ context.Context, _ string) (int, error) {
	m.unreadCalls++
	return m.unread, nil
}

func (m *mockNotificationRepo) PurgeOlderThan(_ context.Context, days int) (int64, error) {
	m.purgedDays = days
	return m.purged, nil
}

type mockPublisher struct {
	events []string
	rooms  [][]string
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event string, _ interface{}, rooms ...string) error {
	m.events = append(m.events, event)
	m.rooms = append(m.rooms, rooms)
	return m.err
}

type memoryCache struct {
	values  map[string]int
	deleted []string
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*int)) = v
	return nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.values == nil {
		m.values = map[string]int{}
	}
	m.values[key] = value.(int)
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.values, key)
	return nil
}

func TestSendPersistsAndPublishes(t *testing.T) {
	repo := &mockNotificationRepo{}
	pub := &mockPublisher{}
	svc := NewNotificationService(repo, nil, pub, nil, zap.NewNop(), time.Minute)

	doubtID := "doubt-1"
	n, err := svc.Send(context.Background(), SendNotificationInput{
		UserID:   "stu-1",
		DoubtID:  &doubtID,
		Type:     models.NotificationDoubtResolved,
		Title:    "Doubt resolved",
		Message:  "done",
		Priority: models.NotificationPriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, "notif-new", n.ID)
	require.Len(t, repo.created, 1)

	require.Len(t, pub.rooms, 1)
	assert.Contains(t, pub.rooms[0], realtime.UserRoom("stu-1"))
	assert.Contains(t, pub.rooms[0], realtime.DoubtRoom("doubt-1"))
	assert.Contains(t, pub.rooms[0], realtime.RoomStaff)
}

func TestSendNewDoubtReachesEducatorPool(t *testing.T) {
	repo := &mockNotificationRepo{}
	pub := &mockPublisher{}
	svc := NewNotificationService(repo, nil, pub, nil, zap.NewNop(), time.Minute)

	doubtID := "doubt-1"
	_, err := svc.Send(context.Background(), SendNotificationInput{
		UserID:  "stu-1",
		DoubtID: &doubtID,
		Type:    models.NotificationDoubtCreated,
		Title:   "Doubt submitted",
	})
	require.NoError(t, err)
	assert.Contains(t, pub.rooms[0], realtime.RoomEducators)
	assert.NotContains(t, pub.rooms[0], realtime.RoomStaff)
}

func TestSendPublishFailureStillSucceeds(t *testing.T) {
	repo := &mockNotificationRepo{}
	pub := &mockPublisher{err: errors.New("relay down")}
	svc := NewNotificationService(repo, nil, pub, nil, zap.NewNop(), time.Minute)

	_, err := svc.Send(context.Background(), SendNotificationInput{
		UserID: "stu-1",
		Type:   models.NotificationResponseAdded,
	})
	require.NoError(t, err, "the persisted row is the durable part")
	assert.Len(t, repo.created, 1)
}

func TestSendUnmarshalableMetadataDropped(t *testing.T) {
	repo := &mockNotificationRepo{}
	pub := &mockPublisher{}
	svc := NewNotificationService(repo, nil, pub, nil, zap.NewNop(), time.Minute)

	n, err := svc.Send(context.Background(), SendNotificationInput{
		UserID:   "stu-1",
		Type:     models.NotificationResponseAdded,
		Metadata: map[string]interface{}{"bad": make(chan int)},
	})
	require.NoError(t, err, "metadata is best-effort; the notification still lands")
	assert.Nil(t, n.Metadata)
	require.Len(t, repo.created, 1)
}

func TestSendRepoFailure(t *testing.T) {
	repo := &mockNotificationRepo{createErr: errors.New("insert failed")}
	pub := &mockPublisher{}
	svc := NewNotificationService(repo, nil, pub, nil, zap.NewNop(), time.Minute)

	_, err := svc.Send(context.Background(), SendNotificationInput{UserID: "stu-1", Type: models.NotificationResponseAdded})
	require.Error(t, err)
	assert.Empty(t, pub.events, "nothing published without a persisted row")
}

func TestUnreadCountCaching(t *testing.T) {
	repo := &mockNotificationRepo{unread: 7}
	cache := &memoryCache{}
	svc := NewNotificationService(repo, cache, nil, nil, zap.NewNop(), time.Minute)

	count, err := svc.UnreadCount(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 1, repo.unreadCalls)

	count, err = svc.UnreadCount(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 1, repo.unreadCalls, "second read served from cache")
}

func TestMarkReadInvalidatesUnreadCache(t *testing.T) {
	repo := &mockNotificationRepo{markedCount: 2}
	cache := &memoryCache{values: map[string]int{"notifications:unread:stu-1": 5}}
	svc := NewNotificationService(repo, cache, nil, nil, zap.NewNop(), time.Minute)

	updated, err := svc.MarkRead(context.Background(), []string{"n1", "n2"}, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	assert.Equal(t, []string{"n1", "n2"}, repo.markedIDs)
	assert.Equal(t, "stu-1", repo.markedUser)
	assert.Contains(t, cache.deleted, "notifications:unread:stu-1")
}

func TestMarkReadNoRowsKeepsCache(t *testing.T) {
	repo := &mockNotificationRepo{markedCount: 0}
	cache := &memoryCache{values: map[string]int{"notifications:unread:stu-1": 5}}
	svc := NewNotificationService(repo, cache, nil, nil, zap.NewNop(), time.Minute)

	updated, err := svc.MarkRead(context.Background(), []string{"other"}, "stu-1")
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Empty(t, cache.deleted)
}

func TestPurgeOlderThan(t *testing.T) {
	repo := &mockNotificationRepo{purged: 11}
	svc := NewNotificationService(repo, nil, nil, nil, zap.NewNop(), time.Minute)

	removed, err := svc.PurgeOlderThan(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(11), removed)
	assert.Equal(t, 90, repo.purgedDays)
}

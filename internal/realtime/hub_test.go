package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clatprep/clat-prep-api/internal/models"
)

func newTestClient(hub *Hub, userID string, role models.UserRole) *Client {
	return NewClient(hub, nil, userID, role, nil)
}

func receive(t *testing.T, c *Client) map[string]json.RawMessage {
	t.Helper()
	select {
	case body := <-c.send:
		var out map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &out))
		return out
	default:
		t.Fatal("expected a delivered event")
		return nil
	}
}

func TestClientJoinsDefaultRooms(t *testing.T) {
	hub := NewHub(nil, nil)

	newTestClient(hub, "stu-1", models.RoleStudent)
	newTestClient(hub, "edu-1", models.RoleEducator)
	newTestClient(hub, "adm-1", models.RoleAdmin)
	newTestClient(hub, "om-1", models.RoleOperationManager)

	assert.Equal(t, 1, hub.RoomSize(UserRoom("stu-1")))
	assert.Equal(t, 1, hub.RoomSize(RoomEducators))
	assert.Equal(t, 2, hub.RoomSize(RoomStaff))
	assert.Equal(t, 0, hub.RoomSize(DoubtRoom("doubt-1")))
}

func TestPublishDeliversToRoomMembers(t *testing.T) {
	hub := NewHub(nil, nil)
	student := newTestClient(hub, "stu-1", models.RoleStudent)
	other := newTestClient(hub, "stu-2", models.RoleStudent)

	err := hub.Publish(context.Background(), "doubt_resolved", map[string]string{"doubt_id": "doubt-1"}, UserRoom("stu-1"))
	require.NoError(t, err)

	msg := receive(t, student)
	assert.JSONEq(t, `"doubt_resolved"`, string(msg["event"]))
	assert.Empty(t, other.send, "event must not reach other users' rooms")
}

func TestPublishDeduplicatesAcrossRooms(t *testing.T) {
	hub := NewHub(nil, nil)
	educator := newTestClient(hub, "edu-1", models.RoleEducator)
	hub.join(educator, DoubtRoom("doubt-1"))

	err := hub.Publish(context.Background(), "response_added", nil, DoubtRoom("doubt-1"), RoomEducators, UserRoom("edu-1"))
	require.NoError(t, err)

	receive(t, educator)
	assert.Empty(t, educator.send, "a client in several target rooms receives the event once")
}

func TestSubscribeAndUnsubscribeDoubtRoom(t *testing.T) {
	hub := NewHub(nil, nil)
	client := newTestClient(hub, "stu-1", models.RoleStudent)

	hub.join(client, DoubtRoom("doubt-1"))
	assert.Equal(t, 1, hub.RoomSize(DoubtRoom("doubt-1")))

	hub.leave(client, DoubtRoom("doubt-1"))
	assert.Equal(t, 0, hub.RoomSize(DoubtRoom("doubt-1")))

	require.NoError(t, hub.Publish(context.Background(), "response_added", nil, DoubtRoom("doubt-1")))
	assert.Empty(t, client.send)
}

func TestRemoveClearsAllMemberships(t *testing.T) {
	hub := NewHub(nil, nil)
	educator := newTestClient(hub, "edu-1", models.RoleEducator)
	hub.join(educator, DoubtRoom("doubt-1"))

	hub.remove(educator)

	assert.Equal(t, 0, hub.RoomSize(UserRoom("edu-1")))
	assert.Equal(t, 0, hub.RoomSize(RoomEducators))
	assert.Equal(t, 0, hub.RoomSize(DoubtRoom("doubt-1")))
}

func TestSlowConsumerDoesNotBlockFanOut(t *testing.T) {
	hub := NewHub(nil, nil)
	client := newTestClient(hub, "stu-1", models.RoleStudent)

	for i := 0; i < sendBuffer+10; i++ {
		require.NoError(t, hub.Publish(context.Background(), "doubt_created", nil, UserRoom("stu-1")))
	}
	assert.Len(t, client.send, sendBuffer, "overflow events are dropped, not queued")
}

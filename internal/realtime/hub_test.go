package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

func newTestClient(hub *Hub, courseID string, buffer int) *Client {
	return &Client{
		hub:      hub,
		courseID: courseID,
		send:     make(chan Message, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func TestHubBroadcastReachesCourseSubscribers(t *testing.T) {
	hub := NewHub(nil)
	subscribed := newTestClient(hub, "course-1", 8)
	other := newTestClient(hub, "course-2", 8)
	hub.attach("course-1", subscribed)
	hub.attach("course-2", other)

	update := models.AttendanceUpdate{
		CourseID:  "course-1",
		StudentID: "stu-1",
		Status:    models.StatusPresent,
		Method:    models.MethodOTP,
		At:        time.Now(),
	}
	hub.Broadcast("course-1", update)

	select {
	case msg := <-subscribed.send:
		assert.Equal(t, MessageTypeAttendance, msg.Type)
		got, ok := msg.Data.(models.AttendanceUpdate)
		require.True(t, ok)
		assert.Equal(t, "stu-1", got.StudentID)
	default:
		t.Fatal("subscriber did not receive the update")
	}

	assert.Empty(t, other.send, "updates must not leak across courses")
}

func TestHubBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast("course-1", models.AttendanceUpdate{CourseID: "course-1"})
	assert.Equal(t, 0, hub.SubscriberCount("course-1"))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	slow := newTestClient(hub, "course-1", 1)
	fast := newTestClient(hub, "course-1", 8)
	hub.attach("course-1", slow)
	hub.attach("course-1", fast)
	require.Equal(t, 2, hub.SubscriberCount("course-1"))

	for i := 0; i < 3; i++ {
		hub.Broadcast("course-1", models.AttendanceUpdate{
			CourseID:  "course-1",
			StudentID: fmt.Sprintf("stu-%d", i),
		})
	}

	// The slow client's buffer filled after one message and it was dropped;
	// its done channel tells the pumps to exit.
	assert.Equal(t, 1, hub.SubscriberCount("course-1"))
	assert.Len(t, fast.send, 3)
	assert.True(t, slow.stopped())
	assert.False(t, fast.stopped())
}

func TestPingReplyAfterDropDoesNotPanic(t *testing.T) {
	hub := NewHub(nil)
	slow := newTestClient(hub, "course-1", 1)
	hub.attach("course-1", slow)

	for i := 0; i < 3; i++ {
		hub.Broadcast("course-1", models.AttendanceUpdate{
			CourseID:  "course-1",
			StudentID: fmt.Sprintf("stu-%d", i),
		})
	}
	require.True(t, slow.stopped())

	// An inbound ping can still arrive on the connection after the hub has
	// dropped the client; the reply must be discarded, not crash.
	require.NotPanics(t, func() { slow.replyPong() })
	assert.Len(t, slow.send, 1, "no pong queued after stop")
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	client := newTestClient(hub, "course-1", 8)
	hub.attach("course-1", client)

	hub.Unsubscribe("course-1", client)
	hub.Unsubscribe("course-1", client)

	assert.Equal(t, 0, hub.SubscriberCount("course-1"))
	assert.True(t, client.stopped())
}

func TestHubClose(t *testing.T) {
	hub := NewHub(nil)
	a := newTestClient(hub, "course-1", 8)
	b := newTestClient(hub, "course-2", 8)
	hub.attach("course-1", a)
	hub.attach("course-2", b)

	hub.Close()

	assert.Equal(t, 0, hub.SubscriberCount("course-1"))
	assert.Equal(t, 0, hub.SubscriberCount("course-2"))
	assert.True(t, a.stopped())
	assert.True(t, b.stopped())
}

package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

// Message is the envelope pushed to subscribers.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	MessageTypeAttendance = "attendance_update"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Hub fans attendance updates out to per-course subscriber sets. Broadcasts
// never block: a subscriber whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	courses map[string]map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		courses: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Subscribe attaches a client to a course channel and starts its pumps.
func (h *Hub) Subscribe(courseID string, client *Client) {
	h.attach(courseID, client)
	client.start()
}

func (h *Hub) attach(courseID string, client *Client) {
	h.mu.Lock()
	set, ok := h.courses[courseID]
	if !ok {
		set = make(map[*Client]struct{})
		h.courses[courseID] = set
	}
	set[client] = struct{}{}
	total := len(set)
	h.mu.Unlock()

	h.logger.Info("live subscriber attached",
		zap.String("course_id", courseID),
		zap.Int("subscribers", total))
}

// Unsubscribe detaches a client. Safe to call more than once.
func (h *Hub) Unsubscribe(courseID string, client *Client) {
	h.mu.Lock()
	set, ok := h.courses[courseID]
	if ok {
		if _, present := set[client]; present {
			delete(set, client)
			client.stop()
		}
		if len(set) == 0 {
			delete(h.courses, courseID)
		}
	}
	h.mu.Unlock()
}

// Broadcast pushes one attendance update to every subscriber of the course.
// Slow subscribers are dropped rather than blocking the caller.
func (h *Hub) Broadcast(courseID string, update models.AttendanceUpdate) {
	msg := Message{Type: MessageTypeAttendance, Data: update}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.courses[courseID]
	if !ok {
		return
	}

	var dropped []*Client
	for client := range set {
		select {
		case client.send <- msg:
		default:
			dropped = append(dropped, client)
		}
	}
	for _, client := range dropped {
		delete(set, client)
		client.stop()
		h.logger.Warn("dropping slow live subscriber", zap.String("course_id", courseID))
	}
	if len(set) == 0 {
		delete(h.courses, courseID)
	}
}

// SubscriberCount reports the number of subscribers for a course.
func (h *Hub) SubscriberCount(courseID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.courses[courseID])
}

// Close drops every subscriber. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for courseID, set := range h.courses {
		for client := range set {
			client.stop()
		}
		delete(h.courses, courseID)
	}
}

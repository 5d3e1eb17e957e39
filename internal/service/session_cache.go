package service

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

const cacheShardCount = 16

// MarkOutcome is the result of a compare-and-set check-in attempt.
type MarkOutcome int

const (
	MarkOK MarkOutcome = iota
	MarkAlreadyCheckedIn
	MarkSessionNotFound
	MarkStudentNotFound
)

// SessionCache is the concurrency-safe store of live attendance sessions,
// keyed by course ID. It is the single piece of shared mutable state in the
// attendance core: entry mutations and session removal for one course are
// serialized on the owning shard, so a check-in that wins the flip excludes a
// concurrent sweep of the same student and vice versa.
//
// The cache is an injected dependency, never a package-level singleton.
type SessionCache struct {
	shards [cacheShardCount]*cacheShard
}

type cacheShard struct {
	mu       sync.RWMutex
	sessions map[string]*models.AttendanceSession
}

// NewSessionCache constructs an empty cache.
func NewSessionCache() *SessionCache {
	c := &SessionCache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{sessions: make(map[string]*models.AttendanceSession)}
	}
	return c
}

func (c *SessionCache) shard(courseID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(courseID))
	return c.shards[h.Sum32()%cacheShardCount]
}

// Register inserts the session, replacing any previous session for the same
// course (last writer wins). Callers must not race two opens for one course.
func (c *SessionCache) Register(session *models.AttendanceSession) {
	shard := c.shard(session.CourseID)
	shard.mu.Lock()
	shard.sessions[session.CourseID] = session
	shard.mu.Unlock()
}

// Contains reports whether a live session exists for the course.
func (c *SessionCache) Contains(courseID string) bool {
	shard := c.shard(courseID)
	shard.mu.RLock()
	_, ok := shard.sessions[courseID]
	shard.mu.RUnlock()
	return ok
}

// Descriptor returns a copy of the session metadata without its entry set.
func (c *SessionCache) Descriptor(courseID string) (models.AttendanceSession, bool) {
	shard := c.shard(courseID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return models.AttendanceSession{}, false
	}
	desc := *session
	desc.Entries = nil
	return desc, true
}

// TryRemove atomically removes and returns the session. Exactly one caller
// can claim a given session, even under concurrent sweep ticks; ownership of
// the returned value transfers to that caller.
func (c *SessionCache) TryRemove(courseID string) (*models.AttendanceSession, bool) {
	shard := c.shard(courseID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return nil, false
	}
	delete(shard.sessions, courseID)
	return session, true
}

// EntryByStudent returns a copy of the student's entry.
func (c *SessionCache) EntryByStudent(courseID, studentID string) (models.AttendanceEntry, bool) {
	shard := c.shard(courseID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return models.AttendanceEntry{}, false
	}
	entry, ok := session.Entries[studentID]
	if !ok {
		return models.AttendanceEntry{}, false
	}
	return *entry, true
}

// EntryByEmail resolves an entry by student email, case-insensitively.
func (c *SessionCache) EntryByEmail(courseID, email string) (models.AttendanceEntry, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	shard := c.shard(courseID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return models.AttendanceEntry{}, false
	}
	for _, entry := range session.Entries {
		if strings.ToLower(entry.Email) == email {
			return *entry, true
		}
	}
	return models.AttendanceEntry{}, false
}

// MarkCheckedIn flips the entry to checked-in only if it is not already
// checked in, reporting a lost race instead of silently overwriting.
func (c *SessionCache) MarkCheckedIn(courseID, studentID string, method models.CheckInMethod, at time.Time) MarkOutcome {
	shard := c.shard(courseID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return MarkSessionNotFound
	}
	entry, ok := session.Entries[studentID]
	if !ok {
		return MarkStudentNotFound
	}
	if entry.CheckedIn {
		return MarkAlreadyCheckedIn
	}
	entry.CheckedIn = true
	entry.CheckedInAt = at
	entry.Method = method
	return MarkOK
}

// EntrySnapshot returns a stable view of all entries, sorted by student name.
func (c *SessionCache) EntrySnapshot(courseID string) ([]models.EntryView, bool) {
	shard := c.shard(courseID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	session, ok := shard.sessions[courseID]
	if !ok {
		return nil, false
	}
	views := make([]models.EntryView, 0, len(session.Entries))
	for _, entry := range session.Entries {
		view := models.EntryView{
			StudentID: entry.StudentID,
			FullName:  entry.FullName,
			Status:    models.EntryWaiting,
		}
		if entry.CheckedIn {
			view.Status = models.EntryPresent
			view.Method = entry.Method
			at := entry.CheckedInAt
			view.CheckedInAt = &at
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].FullName < views[j].FullName })
	return views, true
}

// ExpiredCourseIDs lists courses whose sessions are past their deadline.
func (c *SessionCache) ExpiredCourseIDs(now time.Time) []string {
	var expired []string
	for _, shard := range c.shards {
		shard.mu.RLock()
		for courseID, session := range shard.sessions {
			if session.Expired(now) {
				expired = append(expired, courseID)
			}
		}
		shard.mu.RUnlock()
	}
	sort.Strings(expired)
	return expired
}

// Len returns the number of live sessions.
func (c *SessionCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return total
}

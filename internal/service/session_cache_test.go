package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

func newTestSession(courseID string, expiresAt time.Time, studentIDs ...string) *models.AttendanceSession {
	entries := make(map[string]*models.AttendanceEntry, len(studentIDs))
	for i, id := range studentIDs {
		entries[id] = &models.AttendanceEntry{
			StudentID: id,
			CourseID:  courseID,
			Email:     id + "@example.com",
			FullName:  fmt.Sprintf("Student %02d", i),
		}
	}
	return &models.AttendanceSession{
		CourseID:  courseID,
		OpenedAt:  expiresAt.Add(-10 * time.Minute),
		ExpiresAt: expiresAt,
		Entries:   entries,
	}
}

func TestSessionCacheRegisterAndDescriptor(t *testing.T) {
	cache := NewSessionCache()
	expires := time.Now().Add(10 * time.Minute)
	cache.Register(newTestSession("course-1", expires, "stu-1", "stu-2"))

	require.True(t, cache.Contains("course-1"))
	assert.Equal(t, 1, cache.Len())

	desc, ok := cache.Descriptor("course-1")
	require.True(t, ok)
	assert.Equal(t, "course-1", desc.CourseID)
	// The descriptor never exposes the live entry map.
	assert.Nil(t, desc.Entries)

	_, ok = cache.Descriptor("course-2")
	assert.False(t, ok)
}

func TestSessionCacheEntryLookup(t *testing.T) {
	cache := NewSessionCache()
	cache.Register(newTestSession("course-1", time.Now().Add(time.Hour), "stu-1"))

	entry, ok := cache.EntryByStudent("course-1", "stu-1")
	require.True(t, ok)
	assert.Equal(t, "stu-1", entry.StudentID)

	_, ok = cache.EntryByStudent("course-1", "stu-9")
	assert.False(t, ok)

	byEmail, ok := cache.EntryByEmail("course-1", " STU-1@Example.com ")
	require.True(t, ok)
	assert.Equal(t, "stu-1", byEmail.StudentID)
}

func TestSessionCacheEntryCopiesAreIsolated(t *testing.T) {
	cache := NewSessionCache()
	cache.Register(newTestSession("course-1", time.Now().Add(time.Hour), "stu-1"))

	entry, ok := cache.EntryByStudent("course-1", "stu-1")
	require.True(t, ok)
	entry.CheckedIn = true

	fresh, _ := cache.EntryByStudent("course-1", "stu-1")
	assert.False(t, fresh.CheckedIn, "mutating a returned copy must not touch the cache")
}

func TestSessionCacheMarkCheckedIn(t *testing.T) {
	cache := NewSessionCache()
	cache.Register(newTestSession("course-1", time.Now().Add(time.Hour), "stu-1"))
	at := time.Now()

	assert.Equal(t, MarkOK, cache.MarkCheckedIn("course-1", "stu-1", models.MethodOTP, at))
	assert.Equal(t, MarkAlreadyCheckedIn, cache.MarkCheckedIn("course-1", "stu-1", models.MethodQR, at))
	assert.Equal(t, MarkStudentNotFound, cache.MarkCheckedIn("course-1", "stu-9", models.MethodOTP, at))
	assert.Equal(t, MarkSessionNotFound, cache.MarkCheckedIn("course-9", "stu-1", models.MethodOTP, at))

	entry, _ := cache.EntryByStudent("course-1", "stu-1")
	assert.True(t, entry.CheckedIn)
	assert.Equal(t, models.MethodOTP, entry.Method, "losing attempt must not overwrite the method")
}

func TestSessionCacheConcurrentCheckInSingleWinner(t *testing.T) {
	cache := NewSessionCache()
	cache.Register(newTestSession("course-1", time.Now().Add(time.Hour), "stu-1"))

	const attempts = 64
	var wg sync.WaitGroup
	outcomes := make(chan MarkOutcome, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- cache.MarkCheckedIn("course-1", "stu-1", models.MethodOTP, time.Now())
		}()
	}
	wg.Wait()
	close(outcomes)

	wins := 0
	for outcome := range outcomes {
		if outcome == MarkOK {
			wins++
		} else {
			assert.Equal(t, MarkAlreadyCheckedIn, outcome)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestSessionCacheTryRemoveClaimedOnce(t *testing.T) {
	cache := NewSessionCache()
	cache.Register(newTestSession("course-1", time.Now().Add(time.Hour), "stu-1"))

	const claimers = 16
	var wg sync.WaitGroup
	claimed := make(chan *models.AttendanceSession, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if session, ok := cache.TryRemove("course-1"); ok {
				claimed <- session
			}
		}()
	}
	wg.Wait()
	close(claimed)

	assert.Len(t, claimed, 1)
	assert.False(t, cache.Contains("course-1"))
}

func TestSessionCacheExpiredCourseIDs(t *testing.T) {
	cache := NewSessionCache()
	now := time.Now()
	cache.Register(newTestSession("course-b", now.Add(-time.Minute), "stu-1"))
	cache.Register(newTestSession("course-a", now.Add(-time.Second), "stu-2"))
	cache.Register(newTestSession("course-c", now.Add(time.Hour), "stu-3"))

	expired := cache.ExpiredCourseIDs(now)
	assert.Equal(t, []string{"course-a", "course-b"}, expired)

	// Exactly at the deadline counts as expired.
	boundary := newTestSession("course-d", now, "stu-4")
	cache.Register(boundary)
	assert.Contains(t, cache.ExpiredCourseIDs(now), "course-d")
}

func TestSessionCacheSnapshotSortedByName(t *testing.T) {
	cache := NewSessionCache()
	session := newTestSession("course-1", time.Now().Add(time.Hour), "stu-3", "stu-1", "stu-2")
	cache.Register(session)
	require.Equal(t, MarkOK, cache.MarkCheckedIn("course-1", "stu-2", models.MethodQR, time.Now()))

	views, ok := cache.EntrySnapshot("course-1")
	require.True(t, ok)
	require.Len(t, views, 3)
	for i := 1; i < len(views); i++ {
		assert.LessOrEqual(t, views[i-1].FullName, views[i].FullName)
	}

	statuses := map[string]models.EntryStatus{}
	for _, v := range views {
		statuses[v.StudentID] = v.Status
	}
	assert.Equal(t, models.EntryPresent, statuses["stu-2"])
	assert.Equal(t, models.EntryWaiting, statuses["stu-1"])
}

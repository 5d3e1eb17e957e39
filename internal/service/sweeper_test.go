package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

type sweepWriterStub struct {
	mu        sync.Mutex
	records   []*models.AttendanceRecord
	present   map[string]bool
	recordErr map[string]error
	existsErr error
}

func (s *sweepWriterStub) Record(ctx context.Context, record *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.recordErr[record.StudentID]; ok {
		return err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *sweepWriterStub) Exists(ctx context.Context, courseID, studentID string, openedAt time.Time, status models.AttendanceStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.present[courseID+"|"+studentID], nil
}

func (s *sweepWriterStub) written() []*models.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AttendanceRecord, len(s.records))
	copy(out, s.records)
	return out
}

type notifierStub struct {
	mu      sync.Mutex
	updates []models.AttendanceUpdate
}

func (n *notifierStub) Broadcast(courseID string, update models.AttendanceUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

func (n *notifierStub) sent() []models.AttendanceUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.AttendanceUpdate, len(n.updates))
	copy(out, n.updates)
	return out
}

func TestFinalizeSessionMarksUnresolvedAbsent(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{}
	notifier := &notifierStub{}
	sweeper := NewSweeper(cache, writer, notifier, nil, nil, SweeperConfig{})

	session := newTestSession("course-1", time.Now().Add(-time.Minute), "stu-1", "stu-2", "stu-3")
	session.Entries["stu-2"].CheckedIn = true

	absents := sweeper.FinalizeSession(context.Background(), session)
	assert.Equal(t, 2, absents)

	records := writer.written()
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, models.StatusAbsent, record.Status)
		assert.NotEqual(t, "stu-2", record.StudentID)
		assert.True(t, record.SessionOpenedAt.Equal(session.OpenedAt))
	}

	updates := notifier.sent()
	require.Len(t, updates, 2)
	for _, update := range updates {
		assert.Equal(t, models.StatusAbsent, update.Status)
	}
}

func TestFinalizeSessionSkipsAlreadyPresentRecords(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{present: map[string]bool{"course-1|stu-1": true}}
	sweeper := NewSweeper(cache, writer, &notifierStub{}, nil, nil, SweeperConfig{})

	session := newTestSession("course-1", time.Now().Add(-time.Minute), "stu-1", "stu-2")

	absents := sweeper.FinalizeSession(context.Background(), session)
	assert.Equal(t, 1, absents)

	records := writer.written()
	require.Len(t, records, 1)
	assert.Equal(t, "stu-2", records[0].StudentID)
}

func TestFinalizeSessionIsolatesEntryFailures(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{recordErr: map[string]error{"stu-1": errors.New("boom")}}
	sweeper := NewSweeper(cache, writer, &notifierStub{}, nil, nil, SweeperConfig{})

	session := newTestSession("course-1", time.Now().Add(-time.Minute), "stu-1", "stu-2")

	absents := sweeper.FinalizeSession(context.Background(), session)
	assert.Equal(t, 1, absents)

	records := writer.written()
	require.Len(t, records, 1)
	assert.Equal(t, "stu-2", records[0].StudentID)
}

func TestSweepClaimsOnlyExpiredSessions(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{}
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	sweeper := NewSweeper(cache, writer, &notifierStub{}, nil, nil, SweeperConfig{
		Now: func() time.Time { return now },
	})

	cache.Register(newTestSession("course-expired", now.Add(-time.Second), "stu-1"))
	cache.Register(newTestSession("course-live", now.Add(time.Hour), "stu-2"))

	absents := sweeper.Sweep(context.Background())
	assert.Equal(t, 1, absents)

	assert.False(t, cache.Contains("course-expired"))
	assert.True(t, cache.Contains("course-live"))

	records := writer.written()
	require.Len(t, records, 1)
	assert.Equal(t, "stu-1", records[0].StudentID)
}

func TestSweeperLifecycle(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{}
	sweeper := NewSweeper(cache, writer, &notifierStub{}, nil, nil, SweeperConfig{
		Interval:         10 * time.Millisecond,
		IdleConfirmation: 5 * time.Millisecond,
	})

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	cache.Register(newTestSession("course-1", time.Now().Add(-time.Second), "stu-1"))
	sweeper.Wake()

	require.Eventually(t, func() bool {
		return len(writer.written()) == 1
	}, 2*time.Second, 5*time.Millisecond, "expired session should be finalized by the loop")

	assert.Equal(t, 0, cache.Len())

	// A second registration after the loop idles must be picked up again.
	cache.Register(newTestSession("course-2", time.Now().Add(-time.Second), "stu-2"))
	sweeper.Wake()

	require.Eventually(t, func() bool {
		return len(writer.written()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSweeperTickSurvivesFrequentWakes(t *testing.T) {
	cache := NewSessionCache()
	writer := &sweepWriterStub{}
	sweeper := NewSweeper(cache, writer, &notifierStub{}, nil, nil, SweeperConfig{
		Interval:         50 * time.Millisecond,
		IdleConfirmation: 25 * time.Millisecond,
	})

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	cache.Register(newTestSession("course-1", time.Now().Add(-time.Second), "stu-1"))
	sweeper.Wake()

	// Wakes arriving faster than the tick interval must not push the next
	// sweep out; the expired session still gets finalized within a few ticks.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			sweeper.Wake()
			time.Sleep(25 * time.Millisecond)
		}
	}()

	require.Eventually(t, func() bool {
		return len(writer.written()) == 1
	}, 250*time.Millisecond, 5*time.Millisecond, "sweep starved by wake traffic")
	assert.Equal(t, 0, cache.Len())
	<-done
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	cache := NewSessionCache()
	sweeper := NewSweeper(cache, &sweepWriterStub{}, &notifierStub{}, nil, nil, SweeperConfig{
		Interval: 10 * time.Millisecond,
	})

	sweeper.Stop() // not started yet

	sweeper.Start(context.Background())
	sweeper.Start(context.Background()) // second start is a no-op
	sweeper.Stop()
}

package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

type sweeperWriter interface {
	Record(ctx context.Context, record *models.AttendanceRecord) error
	Exists(ctx context.Context, courseID, studentID string, openedAt time.Time, status models.AttendanceStatus) (bool, error)
}

type sweeperNotifier interface {
	Broadcast(courseID string, update models.AttendanceUpdate)
}

// SweeperConfig tunes the background expiration loop.
type SweeperConfig struct {
	// Interval is the tick period while the sweeper is active.
	Interval time.Duration
	// IdleConfirmation is the shortened wait after an empty scan; a second
	// consecutive empty scan sends the loop idle.
	IdleConfirmation time.Duration
	// Now is the injected clock.
	Now func() time.Time
}

// Sweeper finalizes expired attendance sessions in the background: it claims
// each expired session from the cache exactly once, persists an absent record
// for every unresolved entry and broadcasts the outcome. The loop is event
// driven: it idles while no sessions are tracked and wakes when one is
// registered.
type Sweeper struct {
	cache    *SessionCache
	writer   sweeperWriter
	notifier sweeperNotifier
	metrics  *MetricsService
	logger   *zap.Logger

	interval    time.Duration
	idleConfirm time.Duration
	now         func() time.Time

	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewSweeper constructs the sweeper.
func NewSweeper(cache *SessionCache, writer sweeperWriter, notifier sweeperNotifier, metrics *MetricsService, logger *zap.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.IdleConfirmation <= 0 {
		cfg.IdleConfirmation = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cache:       cache,
		writer:      writer,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		interval:    cfg.Interval,
		idleConfirm: cfg.IdleConfirmation,
		now:         cfg.Now,
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the background loop. Safe to call once.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	s.started = true
	s.logger.Info("attendance sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("idle_confirmation", s.idleConfirm))
}

// Stop cancels the loop and waits for it to exit. An in-flight sweep batch
// finishes its current entry before returning.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("attendance sweeper stopped")
}

// Wake moves the loop from idle to active. Called when a session is
// registered; extra wakes coalesce.
func (s *Sweeper) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	idle := true
	emptyScans := 0
	timer := time.NewTimer(s.interval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if idle {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				idle = false
				emptyScans = 0
				timer.Reset(s.interval)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			// A registration while active restarts the idle countdown. The
			// pending tick is left alone: re-arming it here would let a steady
			// stream of wakes postpone sweeps indefinitely.
			emptyScans = 0
		case <-timer.C:
			s.Sweep(ctx)
			if s.cache.Len() == 0 {
				emptyScans++
				if emptyScans >= 2 {
					idle = true
					s.logger.Debug("sweeper idling, no sessions tracked")
					continue
				}
			} else {
				emptyScans = 0
			}
			wait := s.interval
			if emptyScans == 1 {
				// Secondary confirmation scan before going idle, so a
				// transient empty cache does not flap the loop.
				wait = s.idleConfirm
			}
			timer.Reset(wait)
		}
	}
}

// Sweep claims every expired session and finalizes it. It returns the number
// of entries marked absent. Exported so an early session close reuses the
// same finalization path.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	start := time.Now()
	finalized := 0
	for _, courseID := range s.cache.ExpiredCourseIDs(now) {
		session, ok := s.cache.TryRemove(courseID)
		if !ok {
			// Lost the claim to a concurrent tick or an early close.
			continue
		}
		finalized += s.FinalizeSession(ctx, session)
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(start), finalized)
		s.metrics.SetOpenSessions(s.cache.Len())
	}
	return finalized
}

// FinalizeSession writes an absent record for every entry that never checked
// in and broadcasts the outcome. Per-entry persistence failures are logged
// and skipped so one bad record does not abort the rest of the session; the
// write is idempotent against a late check-in that already recorded presence.
func (s *Sweeper) FinalizeSession(ctx context.Context, session *models.AttendanceSession) int {
	absents := 0
	now := s.now()
	for _, entry := range session.Entries {
		if entry.CheckedIn {
			continue
		}

		present, err := s.writer.Exists(ctx, session.CourseID, entry.StudentID, session.OpenedAt, models.StatusPresent)
		if err != nil {
			s.logger.Error("sweep: presence lookup failed",
				zap.String("course_id", session.CourseID),
				zap.String("student_id", entry.StudentID),
				zap.Error(err))
			continue
		}
		if present {
			continue
		}

		record := &models.AttendanceRecord{
			CourseID:        session.CourseID,
			StudentID:       entry.StudentID,
			SessionOpenedAt: session.OpenedAt,
			Status:          models.StatusAbsent,
			RecordedAt:      now,
		}
		if err := s.writer.Record(ctx, record); err != nil {
			s.logger.Error("sweep: absent write failed",
				zap.String("course_id", session.CourseID),
				zap.String("student_id", entry.StudentID),
				zap.Error(err))
			continue
		}
		absents++
		if s.notifier != nil {
			s.notifier.Broadcast(session.CourseID, models.AttendanceUpdate{
				CourseID:  session.CourseID,
				StudentID: entry.StudentID,
				Status:    models.StatusAbsent,
				At:        now,
			})
		}
	}
	if s.metrics != nil {
		s.metrics.AddAbsentsFinalized(absents)
	}
	s.logger.Info("attendance session finalized",
		zap.String("course_id", session.CourseID),
		zap.Int("absent", absents),
		zap.Int("roster", len(session.Entries)))
	return absents
}

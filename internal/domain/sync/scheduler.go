package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
)

// SyncRunner is the slice of the orchestrator the scheduler drives
type SyncRunner interface {
	IncrementalSync(ctx context.Context, userID string) (Result, error)
	CancelSync(ctx context.Context, userID string) error
	LinkedAccountIDs(ctx context.Context, userID string) ([]string, error)
}

// Scheduler runs periodic incremental syncs per user. Each scheduled user
// gets one timer goroutine; rescheduling replaces the previous one.
type Scheduler struct {
	runner  SyncRunner
	tracker *Tracker
	log     *zap.Logger

	mu   stdsync.Mutex
	jobs map[string]*scheduledJob
}

type scheduledJob struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler. tracker may be nil if next-sync times
// need not be published.
func NewScheduler(runner SyncRunner, tracker *Tracker, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		tracker: tracker,
		log:     log,
		jobs:    make(map[string]*scheduledJob),
	}
}

// ScheduleBackgroundSync starts periodic incremental syncs for the user.
// The first run fires after one full interval. Scheduling a user that is
// already scheduled replaces the previous interval.
func (s *Scheduler) ScheduleBackgroundSync(ctx context.Context, userID string, interval time.Duration) error {
	if interval <= 0 {
		return errors.NewValidationError(fmt.Sprintf("sync interval must be positive, got %s", interval))
	}

	s.mu.Lock()
	// A concurrent reschedule can insert a job while the lock is released
	// to wait on the previous one, so re-check the slot until it is empty.
	for {
		prev, ok := s.jobs[userID]
		if !ok {
			break
		}
		delete(s.jobs, userID)
		s.mu.Unlock()
		prev.cancel()
		<-prev.done
		s.mu.Lock()
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &scheduledJob{interval: interval, cancel: cancel, done: make(chan struct{})}
	s.jobs[userID] = job
	s.mu.Unlock()

	s.log.Info("scheduled background sync",
		zap.String("userId", userID),
		zap.Duration("interval", interval))
	go s.run(jobCtx, userID, job)
	return nil
}

// StopBackgroundSync stops the user's periodic syncs and cancels any pass
// currently in flight. Stopping an unscheduled user is a no-op.
func (s *Scheduler) StopBackgroundSync(ctx context.Context, userID string) error {
	s.mu.Lock()
	job, ok := s.jobs[userID]
	if ok {
		delete(s.jobs, userID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	job.cancel()
	<-job.done
	if err := s.runner.CancelSync(ctx, userID); err != nil {
		return err
	}
	s.log.Info("stopped background sync", zap.String("userId", userID))
	return nil
}

// Close stops every scheduled job and waits for their timer goroutines
func (s *Scheduler) Close() {
	s.mu.Lock()
	jobs := make(map[string]*scheduledJob, len(s.jobs))
	for userID, job := range s.jobs {
		jobs[userID] = job
	}
	s.jobs = make(map[string]*scheduledJob)
	s.mu.Unlock()

	for _, job := range jobs {
		job.cancel()
	}
	for _, job := range jobs {
		<-job.done
	}
}

func (s *Scheduler) run(ctx context.Context, userID string, job *scheduledJob) {
	defer close(job.done)

	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	s.publishNextSyncTime(ctx, userID, job.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := s.runner.IncrementalSync(ctx, userID)
		if err != nil {
			s.log.Warn("background sync failed",
				zap.String("userId", userID),
				zap.Error(err))
		} else {
			s.log.Info("background sync finished",
				zap.String("userId", userID),
				zap.String("outcome", string(res.Outcome)),
				zap.Int("transactionsAdded", res.TransactionsAdded),
				zap.Int("transactionsUpdated", res.TransactionsUpdated),
				zap.Duration("duration", res.Duration))
		}
		s.publishNextSyncTime(ctx, userID, job.interval)
	}
}

func (s *Scheduler) publishNextSyncTime(ctx context.Context, userID string, interval time.Duration) {
	if s.tracker == nil {
		return
	}
	accountIDs, err := s.runner.LinkedAccountIDs(ctx, userID)
	if err != nil {
		s.log.Debug("could not resolve accounts for next sync time",
			zap.String("userId", userID), zap.Error(err))
		return
	}
	next := time.Now().UTC().Add(interval)
	for _, accountID := range accountIDs {
		s.tracker.SetNextSyncTime(accountID, next)
	}
}

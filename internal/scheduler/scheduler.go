// Package scheduler runs periodic maintenance jobs with a file lock so two
// gateway processes sharing a data dir never run the same job at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is a named task run every Every.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context, now time.Time) error
}

type entry struct {
	job     *Job
	next    time.Time
	running atomic.Bool
}

// Scheduler manages job registration, tick dispatch and overlap control.
type Scheduler struct {
	lockDir string
	tick    time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry
	wg   sync.WaitGroup
}

// New creates a Scheduler that keeps its lock files in lockDir.
func New(lockDir string, tick time.Duration, log *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		lockDir: lockDir,
		tick:    tick,
		log:     log.Named("scheduler"),
		now:     time.Now,
		jobs:    make(map[string]*entry),
	}
}

// Register adds job, replacing one with the same name. The first run is due
// on the next tick.
func (s *Scheduler) Register(job *Job) error {
	if job == nil || job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run func")
	}
	if job.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &entry{job: job}
	s.log.Info("job registered", zap.String("job", job.Name), zap.Duration("every", job.Every))
	return nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run ticks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.dispatchDue(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.dispatchDue(ctx, s.now())
		}
	}
}

// dispatchDue starts every job whose next run is at or before now.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if now.Before(e.next) {
			continue
		}
		if !e.running.CompareAndSwap(false, true) {
			s.log.Debug("job still running, skipping tick", zap.String("job", e.job.Name))
			continue
		}
		e.next = now.Add(e.job.Every)
		s.wg.Add(1)
		go s.runJob(ctx, e, now)
	}
}

func (s *Scheduler) runJob(ctx context.Context, e *entry, now time.Time) {
	defer s.wg.Done()
	defer e.running.Store(false)

	lock := NewFileLock(filepath.Join(s.lockDir, e.job.Name+".lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		s.log.Warn("job lock error", zap.String("job", e.job.Name), zap.Error(err))
		return
	}
	if !acquired {
		s.log.Debug("job lock held by another process", zap.String("job", e.job.Name))
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn("job unlock error", zap.String("job", e.job.Name), zap.Error(err))
		}
	}()

	start := s.now()
	if err := e.job.Run(ctx, now); err != nil {
		s.log.Warn("job failed", zap.String("job", e.job.Name), zap.Error(err))
		return
	}
	s.log.Debug("job finished", zap.String("job", e.job.Name), zap.Duration("took", s.now().Sub(start)))
}

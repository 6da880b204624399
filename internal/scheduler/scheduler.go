// Package scheduler implements the MaintenanceScheduler from spec §4.7:
// a daily cron-style job bound to the server's lifecycle that enforces
// retention and pre-warms a fixed country set. Grounded on the
// teacher's ticker+ctx.Done() background-loop shape (e.g.
// internal/usage.Tracker.cleanupLoop), generalized into an explicit
// Register/Start/Stop object per spec §9's "decorator-based scheduler
// registration" redesign note, and on the original podcast_generator's
// APScheduler CronTrigger semantics (daily at a configured hour:minute,
// a missed fire while the process was down is never back-filled).
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gdelt-article-cache/internal/gdeltclock"
)

// Job is a named unit of work the Scheduler invokes on its own
// goroutine at each fire instant.
type Job func(ctx context.Context) error

type registration struct {
	name string
	hour int
	min  int
	job  Job
}

// Scheduler fires registered jobs once per day at their configured
// wall-clock instant (in the clock's zone). Each job is independent:
// one job's failure never prevents another's next fire.
type Scheduler struct {
	clock gdeltclock.Clock
	log   *zap.Logger

	mu    sync.Mutex
	jobs  []registration

	stop   chan struct{}
	done   chan struct{}
	ticker func(d time.Duration) *time.Ticker // test seam
}

// New returns an empty Scheduler ticking against clock.
func New(clock gdeltclock.Clock, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		clock:  clock,
		log:    log,
		ticker: time.NewTicker,
	}
}

// Register adds job to fire daily at hour:min in the Scheduler's clock
// zone. Must be called before Start.
func (s *Scheduler) Register(name string, hour, min int, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, registration{name: name, hour: hour, min: min, job: job})
}

// Start begins the Scheduler's background loop, checking once per
// minute whether any registered job's fire instant has arrived. A
// missed fire (process down through the instant) is never back-filled —
// the loop only compares against "now", never against history.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx)
}

// Stop signals the background loop to exit and waits for it to finish.
// Safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	t := s.ticker(time.Minute)
	defer t.Stop()

	lastFired := make(map[string]string) // job name -> "YYYY-MM-DD" last fired

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-t.C:
			s.tick(ctx, lastFired)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, lastFired map[string]string) {
	now := s.clock.Now()
	today := now.Format("2006-01-02")

	s.mu.Lock()
	jobs := make([]registration, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, r := range jobs {
		if now.Hour() != r.hour || now.Minute() != r.min {
			continue
		}
		if lastFired[r.name] == today {
			continue
		}
		lastFired[r.name] = today

		go func(r registration) {
			if err := r.job(ctx); err != nil {
				s.log.Error("scheduled job failed", zap.String("job", r.name), zap.Error(err))
			}
		}(r)
	}
}

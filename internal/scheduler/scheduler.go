package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Sessions is the part of the session manager the scheduler drives.
type Sessions interface {
	RefreshAll() int
	ExpireIdle(maxIdle time.Duration) int
}

// Scheduler periodically refreshes loaded sessions and sweeps idle ones.
type Scheduler struct {
	scheduler       *gocron.Scheduler
	sessions        Sessions
	refreshInterval time.Duration
	idleTimeout     time.Duration
}

// New creates a new Scheduler. A zero interval or timeout disables that job.
func New(sessions Sessions, refreshInterval, idleTimeout time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:       s,
		sessions:        sessions,
		refreshInterval: refreshInterval,
		idleTimeout:     idleTimeout,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.refreshInterval > 0 {
		_, err := s.scheduler.Every(s.refreshInterval).WaitForSchedule().Do(func() {
			n := s.sessions.RefreshAll()
			log.Printf("scheduler: refreshed %d sessions", n)
		})
		if err != nil {
			return err
		}
	}

	if s.idleTimeout > 0 {
		sweep := s.idleTimeout / 2
		if sweep > time.Minute {
			sweep = time.Minute
		}
		_, err := s.scheduler.Every(sweep).WaitForSchedule().Do(func() {
			if n := s.sessions.ExpireIdle(s.idleTimeout); n > 0 {
				log.Printf("scheduler: expired %d idle sessions", n)
			}
		})
		if err != nil {
			return err
		}
	}

	if s.scheduler.Len() == 0 {
		log.Println("scheduler: refresh and idle expiry disabled; nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

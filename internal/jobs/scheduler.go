// Package jobs runs periodic maintenance tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// StateSweeper drops expired OAuth login states.
type StateSweeper interface {
	SweepExpired() int
}

// ServerRefresher re-reads guild metadata for known servers.
type ServerRefresher interface {
	RefreshServers(ctx context.Context) (int, error)
}

// Specs holds cron expressions; an empty spec disables that job.
type Specs struct {
	StateSweep    string
	ServerRefresh string
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron    *cron.Cron
	states  StateSweeper
	servers ServerRefresher
	timeout time.Duration
}

// NewScheduler builds a UTC scheduler. servers may be nil.
func NewScheduler(states StateSweeper, servers ServerRefresher) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		states:  states,
		servers: servers,
		timeout: 5 * time.Minute,
	}
}

// Register adds the jobs named in specs.
func (s *Scheduler) Register(specs Specs) error {
	if specs.StateSweep != "" && s.states != nil {
		if _, err := s.cron.AddFunc(specs.StateSweep, s.sweepStates); err != nil {
			return fmt.Errorf("schedule state sweep %q: %w", specs.StateSweep, err)
		}
	}
	if specs.ServerRefresh != "" && s.servers != nil {
		if _, err := s.cron.AddFunc(specs.ServerRefresh, s.refreshServers); err != nil {
			return fmt.Errorf("schedule server refresh %q: %w", specs.ServerRefresh, err)
		}
	}
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("job scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("job scheduler stopped")
}

func (s *Scheduler) sweepStates() {
	if n := s.states.SweepExpired(); n > 0 {
		log.WithField("removed", n).Debug("[cron] expired oauth states swept")
	}
}

func (s *Scheduler) refreshServers() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.servers.RefreshServers(ctx)
	if err != nil {
		log.WithError(err).Error("[cron] server refresh failed")
		return
	}
	log.WithField("updated", n).Info("[cron] servers refreshed")
}

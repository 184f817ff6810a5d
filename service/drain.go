package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Scheduler drains the queue on a cron schedule.
type Scheduler struct {
	svc  *Service
	spec string
	c    *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

// NewScheduler parses spec (standard five-field cron or a descriptor such as
// "@every 1m"). An empty spec returns a nil scheduler.
func NewScheduler(svc *Service, spec string) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("service: drain schedule %q: %w", spec, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		svc:  svc,
		spec: spec,
		c:    cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:  ctx,
		stop: cancel,
	}
	s.c.Schedule(sched, cron.FuncJob(s.run))
	return s, nil
}

func (s *Scheduler) run() {
	if n := s.svc.Drain(s.ctx); n > 0 {
		s.svc.log.Debug().Str("schedule", s.spec).Int("processed", n).Msg("scheduled drain finished")
	}
}

// Start begins firing. Safe on a nil scheduler.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.c.Start()
	s.svc.log.Info().Str("schedule", s.spec).Msg("scheduled queue drain enabled")
}

// Stop halts the schedule and waits for a running drain to finish. Safe on a
// nil scheduler.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stop()
	<-s.c.Stop().Done()
}

// Package scheduler wires up the cron job that periodically runs a harvest
// cycle for every configured keyword.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/jobs"
	"github.com/tjma/job-market-pipeline/internal/pipeline"
)

// Scheduler wraps robfig/cron and manages the periodic harvest loop.
type Scheduler struct {
	cron     *cron.Cron
	orch     *pipeline.Orchestrator
	spec     string
	keywords []string
	area     string
	maxPages int
	logger   *zap.Logger
}

// New creates a Scheduler that fires on the given cron spec (e.g. "@every 6h").
func New(orch *pipeline.Orchestrator, spec string, keywords []string, area string, maxPages int, logger *zap.Logger) (*Scheduler, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("at least one schedule keyword is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		orch:     orch,
		spec:     spec,
		keywords: keywords,
		area:     area,
		maxPages: maxPages,
		logger:   logger,
	}, nil
}

// Start registers the job and starts the scheduler. One cycle runs
// immediately so a fresh deployment does not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Strings("keywords", s.keywords))

	go s.runCycle(ctx)
	return nil
}

// Stop shuts the scheduler down, waiting for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("harvest cycle started")
	for _, keyword := range s.keywords {
		summary, err := s.orch.RunBronze(ctx, keyword, s.area, s.maxPages)
		if err != nil {
			s.logger.Error("harvest cycle keyword failed",
				zap.String("keyword", keyword),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("harvest cycle keyword completed",
			zap.String("keyword", keyword),
			zap.Int("fetched", summary.Outcomes[jobs.OutcomeFetched]),
			zap.Int("upserted", summary.Write.Upserted),
		)
	}
	s.logger.Info("harvest cycle complete")
}

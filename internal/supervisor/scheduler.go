package supervisor

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/contextvault/cv/internal/logging"
)

// ResyncFunc triggers a full delta-sync resync; wired by cmd/cv to the
// Delta-Sync Engine's full-scan entry point.
type ResyncFunc func(ctx context.Context) error

// Scheduler re-runs health checks on a fixed interval and triggers a
// full resync on a separate cron schedule, grounded on
// ternarybob-quaero's use of robfig/cron for its background ticker.
type Scheduler struct {
	sup    *Supervisor
	cron   *cron.Cron
	resync ResyncFunc
}

// NewScheduler wires health-check and resync cron entries.
// healthCheckSpec and resyncSpec are standard 5-field cron expressions
// (e.g. "*/1 * * * *" for health checks, "0 3 * * *" for a nightly resync).
func NewScheduler(sup *Supervisor, resync ResyncFunc, healthCheckSpec, resyncSpec string) (*Scheduler, error) {
	s := &Scheduler{sup: sup, cron: cron.New(), resync: resync}

	if _, err := s.cron.AddFunc(healthCheckSpec, s.runHealthChecks); err != nil {
		return nil, err
	}
	if resync != nil && resyncSpec != "" {
		if _, err := s.cron.AddFunc(resyncSpec, s.runResync); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runHealthChecks() {
	ctx := context.Background()
	for _, backend := range []Backend{BackendGraph, BackendVector, BackendEmbedding} {
		if _, err := s.sup.Ensure(ctx, backend); err != nil {
			logging.Warnf(logging.CategorySupervisor, "supervisor: scheduled health check failed for %s: %v", backend, err)
		}
	}
}

func (s *Scheduler) runResync() {
	ctx := context.Background()
	logging.Infof(logging.CategorySupervisor, "supervisor: starting scheduled full resync")
	if err := s.resync(ctx); err != nil {
		logging.Errorf(logging.CategorySupervisor, "supervisor: scheduled resync failed: %v", err)
	}
}

package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/services"
)

// Scheduler periodically runs the reconciliation batch as a safety net for
// missed or delayed webhooks. A failed pass is logged; the next tick retries
// independently.
type Scheduler struct {
	reconciler *services.ReconcileService
	cfg        *config.SchedulerConfig
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(reconciler *services.ReconcileService, cfg *config.SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		reconciler: reconciler,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start launches the reconciliation loop. Returns immediately.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		log.Println("[SCHEDULER] Disabled by config")
		close(s.done)
		return
	}

	log.Printf("[SCHEDULER] Reconciliation loop started (interval: %v)", s.cfg.Interval)
	go s.run()
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
	log.Println("[SCHEDULER] Stopped")
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Run once on startup to pick up claims that accumulated while down.
	s.runOnce()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	summary, err := s.reconciler.ReconcileBatch(s.ctx)
	if err != nil {
		// Gateway outages land here; the next tick retries.
		log.Printf("[SCHEDULER] Reconciliation pass failed: %v", err)
		return
	}

	if summary.Success > 0 || summary.Failed > 0 {
		log.Printf("[SCHEDULER] Reconciliation pass: success=%d failed=%d", summary.Success, summary.Failed)
	}
}

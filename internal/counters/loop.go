package counters

import (
	"context"
	"sync"
	"time"

	"propsift/internal/logging"
)

// Loop runs incremental reconciliation on a fixed interval: each tick
// reconciles records modified since the previous tick, for every tenant.
type Loop struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *logging.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLoop creates the periodic reconciliation loop.
func NewLoop(reconciler *Reconciler, interval time.Duration, logger *logging.Logger) *Loop {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Loop{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.WithComponent("reconciler"),
		done:       make(chan struct{}),
	}
}

// Start begins the loop in a background goroutine.
func (l *Loop) Start() {
	l.logger.Info("Starting reconciliation loop", map[string]interface{}{
		"interval": l.interval.String(),
	})
	l.wg.Add(1)
	go l.run()
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (l *Loop) Stop() {
	close(l.done)
	l.wg.Wait()
	l.logger.Info("Reconciliation loop stopped", nil)
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Each pass looks back one interval with a small overlap so a record
	// updated right at a tick boundary is never skipped.
	lookback := l.interval + time.Minute

	for {
		select {
		case <-ticker.C:
			l.pass(time.Now().Add(-lookback))
		case <-l.done:
			return
		}
	}
}

func (l *Loop) pass(since time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), l.interval)
	defer cancel()

	tenants, err := l.reconciler.Tenants(ctx)
	if err != nil {
		l.logger.Warn("Reconciliation pass failed to list tenants", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, tenant := range tenants {
		summary, err := l.reconciler.ReconcileSince(ctx, tenant, since)
		if err != nil {
			l.logger.Warn("Reconciliation pass failed", map[string]interface{}{
				"tenant": tenant,
				"error":  err.Error(),
			})
			continue
		}
		if len(summary.Corrections) > 0 || summary.Failed > 0 {
			l.logger.Info("Reconciliation pass finished", map[string]interface{}{
				"tenant":      tenant,
				"scanned":     summary.Scanned,
				"corrections": len(summary.Corrections),
				"failed":      summary.Failed,
			})
		}
	}
}

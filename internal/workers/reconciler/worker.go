// Package reconciler sweeps undelivered orders through the pull
// confirmation path. It is the safety net for lost webhooks and users
// who paid but never tapped "I paid": any order that settled upstream
// is eventually delivered here.
package reconciler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// Verifier answers whether an order has settled on its rail.
type Verifier interface {
	Settled(ctx context.Context, order *entities.Order) (bool, error)
}

// Settler delivers a settled order exactly once.
type Settler interface {
	Settle(ctx context.Context, provider entities.Provider, orderID string) (*entities.Order, error)
}

// Config holds worker configuration
type Config struct {
	// Spec is a cron spec, e.g. "@every 1m".
	Spec string
	// Grace keeps freshly created orders out of the sweep so the
	// normal webhook/poll path gets there first.
	Grace time.Duration
	// MaxAge bounds how far back the sweep looks.
	MaxAge time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Spec:   "@every 1m",
		Grace:  2 * time.Minute,
		MaxAge: 24 * time.Hour,
	}
}

// Worker periodically reconciles undelivered orders.
type Worker struct {
	store    repositories.OrderStore
	verifier Verifier
	settler  Settler
	config   *Config
	cron     *cron.Cron
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewWorker creates a new reconciliation worker
func NewWorker(store repositories.OrderStore, verifier Verifier, settler Settler, config *Config, m *metrics.Metrics, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		store:    store,
		verifier: verifier,
		settler:  settler,
		config:   config,
		cron:     cron.New(),
		metrics:  m,
		logger:   log,
	}
}

// Start schedules the sweep and runs the scheduler in the background.
func (w *Worker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.config.Spec, func() {
		w.sweep(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Reconciliation worker started",
		"spec", w.config.Spec,
		"grace", w.config.Grace.String(),
		"max_age", w.config.MaxAge.String())
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (w *Worker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("Reconciliation worker stopped")
}

// RunOnce runs one sweep (for testing or manual trigger)
func (w *Worker) RunOnce(ctx context.Context) {
	w.sweep(ctx)
}

// sweep verifies and settles every undelivered order in the window.
func (w *Worker) sweep(ctx context.Context) {
	now := time.Now().UTC()
	oldest := now.Add(-w.config.MaxAge)
	newest := now.Add(-w.config.Grace)

	orders, err := w.store.ListUndelivered(ctx, oldest, newest)
	if err != nil {
		w.logger.Error("Failed to list undelivered orders", "error", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	w.logger.Debug("Reconciling undelivered orders", "count", len(orders))

	settled := 0
	for _, order := range orders {
		ok, err := w.verifier.Settled(ctx, order)
		if err != nil {
			w.logger.Warn("Settlement check failed",
				"provider", order.Provider, "order_id", order.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		w.metrics.PaymentsConfirmed.WithLabelValues(string(order.Provider), "reconcile").Inc()

		if _, err := w.settler.Settle(ctx, order.Provider, order.ID); err != nil {
			w.logger.Error("Reconcile delivery failed",
				"provider", order.Provider, "order_id", order.ID, "error", err)
			continue
		}
		settled++
	}

	if settled > 0 {
		w.logger.Info("Reconciliation sweep completed",
			"checked", len(orders), "settled", settled)
	}
}

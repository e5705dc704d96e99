package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker drives the collect/evaluate/notify loop in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker wires a collector and an alerter into a periodic checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs > 0 {
		return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	}
	return defaultCheckInterval
}

// Run blocks until ctx is cancelled. The first check runs at startup, then
// once per interval.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("ledger health checks enabled",
		zap.Duration("interval", c.interval()),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("ledger health checks stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("health check: collecting ledger metrics failed", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("health check passed",
			zap.Int64("attempts", snap.Attempts),
			zap.Float64("failure_rate", snap.FailureRate),
		)
		return
	}

	delivered := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("health check raised alerts",
		zap.Int("raised", len(alerts)),
		zap.Int("delivered", delivered),
	)
}

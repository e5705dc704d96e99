package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertExtractionFailureRate AlertType = "extraction_failure_rate"
	AlertProviderDegraded      AlertType = "provider_degraded"
	AlertCostOverrun           AlertType = "cost_overrun"
)

// minFinishedForRate is the closed-attempt floor below which failure
// rates are too noisy to alert on.
const minFinishedForRate = 5

const webhookTimeout = 10 * time.Second

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()

	var alerts []Alert
	if alert, ok := a.checkFailureRate(snap, now); ok {
		alerts = append(alerts, alert)
	}
	alerts = append(alerts, a.checkProviders(snap, now)...)
	if alert, ok := a.checkCost(snap, now); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

// checkFailureRate flags the overall failure rate across all providers.
func (a *Alerter) checkFailureRate(snap *MetricsSnapshot, now time.Time) (Alert, bool) {
	finished := snap.Successes + snap.Failures
	if finished < minFinishedForRate || snap.FailureRate <= a.cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertExtractionFailureRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"Extraction failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
			snap.Failures, finished, snap.LookbackHours,
		),
		Details: map[string]any{
			"failure_rate": snap.FailureRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.Failures,
			"finished":     finished,
		},
		Timestamp: now,
	}, true
}

// checkProviders flags individual providers whose failure rate crosses the
// threshold. A degraded provider can hide behind a healthy overall rate when
// its fallback keeps succeeding.
func (a *Alerter) checkProviders(snap *MetricsSnapshot, now time.Time) []Alert {
	var alerts []Alert
	for _, p := range snap.Providers {
		finished := p.Successes + p.Failures
		if finished < minFinishedForRate {
			continue
		}
		rate := float64(p.Failures) / float64(finished)
		if rate <= a.cfg.FailureRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertProviderDegraded,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Provider %s failure rate %.1f%% over last %dh (%d failed / %d finished)",
				p.Provider, rate*100, snap.LookbackHours, p.Failures, finished,
			),
			Details: map[string]any{
				"provider":     p.Provider,
				"failure_rate": rate,
				"failed":       p.Failures,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// checkCost flags spend over the configured window limit.
func (a *Alerter) checkCost(snap *MetricsSnapshot, now time.Time) (Alert, bool) {
	if a.cfg.CostLimitUSD <= 0 || snap.CostUSD <= a.cfg.CostLimitUSD {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message: fmt.Sprintf(
			"Extraction spend $%.2f exceeds limit $%.2f in last %dh",
			snap.CostUSD, a.cfg.CostLimitUSD, snap.LookbackHours,
		),
		Details: map[string]any{
			"cost_usd":  snap.CostUSD,
			"limit_usd": a.cfg.CostLimitUSD,
			"attempts":  snap.Attempts,
		},
		Timestamp: now,
	}, true
}

// SendAlerts delivers alerts to the configured webhook URL and reports how
// many went through.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.postWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: alert delivery failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) postWebhook(ctx context.Context, alert Alert) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(alert); err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, &body)
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}

package metrics

import (
	"context"
	"strconv"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

// TurnRecorder adapts the metrics registry to the audit publisher port
// so turn summaries feed Prometheus without extra plumbing in the
// orchestrator.
type TurnRecorder struct {
	metrics *HTTPServerMetrics
	service string
}

var _ ports.TurnAuditPublisher = (*TurnRecorder)(nil)

func NewTurnRecorder(metrics *HTTPServerMetrics, service string) *TurnRecorder {
	return &TurnRecorder{metrics: metrics, service: service}
}

func (r *TurnRecorder) PublishTurnCompleted(_ context.Context, audit domain.TurnAudit) error {
	flow := string(audit.Flow)
	if flow == "" {
		flow = "none"
	}
	m := r.metrics

	m.turnsTotal.WithLabelValues(r.service, flow, strconv.FormatBool(audit.Ephemeral)).Inc()
	m.turnDuration.WithLabelValues(r.service, flow).Observe(audit.Duration.Seconds())
	m.turnToolCalls.WithLabelValues(r.service, flow).Observe(float64(audit.ToolCalls))
	m.turnRecoveryAttempts.WithLabelValues(r.service, flow).Observe(float64(audit.RecoveryAttempts))
	if audit.EventsEmitted > 0 {
		m.eventsEmittedTotal.WithLabelValues(r.service).Add(float64(audit.EventsEmitted))
	}
	if audit.EventsSuppressed > 0 {
		m.eventsSuppressedTotal.WithLabelValues(r.service).Add(float64(audit.EventsSuppressed))
	}
	return nil
}

// FanoutPublisher forwards each audit to every target, ignoring
// individual failures so metrics and the audit topic stay independent.
type FanoutPublisher struct {
	targets []ports.TurnAuditPublisher
}

var _ ports.TurnAuditPublisher = (*FanoutPublisher)(nil)

func NewFanoutPublisher(targets ...ports.TurnAuditPublisher) *FanoutPublisher {
	kept := make([]ports.TurnAuditPublisher, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &FanoutPublisher{targets: kept}
}

func (f *FanoutPublisher) PublishTurnCompleted(ctx context.Context, audit domain.TurnAudit) error {
	var firstErr error
	for _, target := range f.targets {
		if err := target.PublishTurnCompleted(ctx, audit); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

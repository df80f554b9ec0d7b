package review

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/metrics"
)

// AlertKind names the escalation channels.
type AlertKind string

const (
	AlertImmediate AlertKind = "immediate"
	AlertVolume    AlertKind = "volume"
	AlertDigest    AlertKind = "digest"
)

// Alert is one delivery-ready escalation decision.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Reason  string    `json:"reason"`
	Summary Summary   `json:"summary"`
}

// Store persists review records. Implemented by internal/storage/{postgres,memory}.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	ListPending(ctx context.Context, limit int) ([]Record, error)
	MarkReviewed(ctx context.Context, id, reviewer string, correctedDate *time.Time) error
}

// Publisher pushes alert payloads to the delivery channel (Pub/Sub or
// similar); the actual notification formatting lives downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Policy holds the escalation rules. It is side-effect-free: Evaluate only
// classifies and summarizes.
type Policy struct {
	// VolumeThreshold triggers a volume alert at this many combined
	// Critical+High standing items.
	VolumeThreshold int
	Bands           Bands
}

// DefaultPolicy returns the shipped rules.
func DefaultPolicy() Policy {
	return Policy{VolumeThreshold: 5, Bands: DefaultBands()}
}

// Evaluate computes the aggregate summary and the warranted alerts: an
// immediate alert for any Critical item and a volume alert when the
// Critical+High count crosses the threshold. The periodic digest is driven by
// the Escalator's ticker, not by Evaluate.
func (p Policy) Evaluate(records []Record) (Summary, []Alert) {
	sum := Summarize(records)

	var alerts []Alert
	if sum.ByPriority[PriorityCritical] > 0 {
		alerts = append(alerts, Alert{
			Kind:    AlertImmediate,
			Reason:  fmt.Sprintf("%d critical review item(s) outstanding", sum.ByPriority[PriorityCritical]),
			Summary: sum,
		})
	}
	urgent := sum.ByPriority[PriorityCritical] + sum.ByPriority[PriorityHigh]
	if p.VolumeThreshold > 0 && urgent >= p.VolumeThreshold {
		alerts = append(alerts, Alert{
			Kind:    AlertVolume,
			Reason:  fmt.Sprintf("%d critical/high review items exceed threshold %d", urgent, p.VolumeThreshold),
			Summary: sum,
		})
	}
	return sum, alerts
}

// Escalator binds the policy to persistence and delivery. Delivery failures
// are logged, never propagated: escalation must not break ingestion.
type Escalator struct {
	store     Store
	policy    Policy
	publisher Publisher
	topic     string
	clock     Clock
	logger    *zap.Logger
}

// NewEscalator constructs an Escalator. publisher may be nil to classify
// without delivering.
func NewEscalator(store Store, policy Policy, publisher Publisher, topic string, clock Clock, logger *zap.Logger) *Escalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{
		store:     store,
		policy:    policy,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// Bands returns the classification bands in effect.
func (e *Escalator) Bands() Bands {
	return e.policy.Bands
}

// Escalate persists the record and fires any alerts the standing queue now
// warrants.
func (e *Escalator) Escalate(ctx context.Context, rec Record) error {
	if err := e.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert review record: %w", err)
	}

	pending, err := e.store.ListPending(ctx, 0)
	if err != nil {
		e.logger.Warn("list pending for escalation failed", zap.Error(err))
		return nil
	}
	_, alerts := e.policy.Evaluate(pending)
	for _, alert := range alerts {
		// Immediate alerts track new critical arrivals, not standing ones.
		if alert.Kind == AlertImmediate && rec.Priority != PriorityCritical {
			continue
		}
		e.deliver(ctx, alert)
	}
	return nil
}

// PublishDigest emits the periodic digest covering every standing review
// item, regardless of volume.
func (e *Escalator) PublishDigest(ctx context.Context) error {
	pending, err := e.store.ListPending(ctx, 0)
	if err != nil {
		return fmt.Errorf("list pending for digest: %w", err)
	}
	sum := Summarize(pending)
	if sum.TotalNeeding == 0 {
		return nil
	}
	e.deliver(ctx, Alert{
		Kind:    AlertDigest,
		Reason:  fmt.Sprintf("periodic digest: %d item(s) awaiting review", sum.TotalNeeding),
		Summary: sum,
	})
	return nil
}

// RunDigestLoop publishes digests on the interval until the context ends.
func (e *Escalator) RunDigestLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.PublishDigest(ctx); err != nil {
				e.logger.Warn("digest publish failed", zap.Error(err))
			}
		}
	}
}

func (e *Escalator) deliver(ctx context.Context, alert Alert) {
	metrics.ObserveReviewAlert(string(alert.Kind))
	if e.publisher == nil || e.topic == "" {
		return
	}
	if _, err := e.publisher.Publish(ctx, e.topic, alert); err != nil {
		e.logger.Warn("alert delivery failed",
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("review alert published",
		zap.String("kind", string(alert.Kind)),
		zap.String("reason", alert.Reason),
	)
}

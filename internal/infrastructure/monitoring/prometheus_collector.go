package monitoring

import (
	"context"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsFunc reports live rooms and participants.
type StatsFunc func() (rooms, participants int)

type PrometheusCollector struct {
	// Connections
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	messagesRejected  *prometheus.CounterVec

	// Relay
	envelopesRouted    *prometheus.CounterVec
	envelopeRecipients prometheus.Histogram
	deliveryFailures   *prometheus.CounterVec
	membershipEvents   *prometheus.CounterVec

	// Registry
	roomsActive        prometheus.Gauge
	participantsActive prometheus.Gauge
	roomSize           prometheus.Histogram
}

// NewPrometheusCollector registers the relay metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on /metrics.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camerasystem_connections_active",
			Help: "Number of open signaling connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "camerasystem_connections_total",
			Help: "Total number of signaling connections accepted",
		}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camerasystem_messages_received_total",
			Help: "Signaling messages received, by type",
		}, []string{"type"}),

		messagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camerasystem_messages_rejected_total",
			Help: "Signaling messages or connections rejected, by reason",
		}, []string{"reason"}),

		envelopesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camerasystem_envelopes_routed_total",
			Help: "Signal envelopes routed, by mode",
		}, []string{"mode"}),

		envelopeRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camerasystem_envelope_recipients",
			Help:    "Recipients reached per routed envelope",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}),

		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camerasystem_delivery_failures_total",
			Help: "Envelopes or snapshots that could not be delivered, by reason",
		}, []string{"reason"}),

		membershipEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camerasystem_membership_events_total",
			Help: "Membership changes, by change type",
		}, []string{"change"}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camerasystem_rooms_active",
			Help: "Number of live rooms",
		}),

		participantsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camerasystem_participants_active",
			Help: "Number of participants in rooms",
		}),

		roomSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camerasystem_room_size",
			Help:    "Room member count after each membership change",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) MessageReceived(messageType string) {
	p.messagesReceived.WithLabelValues(messageType).Inc()
}

func (p *PrometheusCollector) MessageRejected(reason string) {
	p.messagesRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordEnvelopeRouted(directed bool, recipients int) {
	mode := "broadcast"
	if directed {
		mode = "directed"
	}
	p.envelopesRouted.WithLabelValues(mode).Inc()
	p.envelopeRecipients.Observe(float64(recipients))
}

func (p *PrometheusCollector) RecordDeliveryFailure(reason string) {
	p.deliveryFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordMembership(event domain.MembershipEvent) {
	change := string(event.Change)
	if event.Deleted() {
		change = "deleted"
	}
	p.membershipEvents.WithLabelValues(change).Inc()
	p.roomSize.Observe(float64(len(event.Members)))
}

// Run samples registry gauges every interval until ctx is done.
func (p *PrometheusCollector) Run(ctx context.Context, interval time.Duration, stats StatsFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.sample(stats)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sample(stats)
		}
	}
}

func (p *PrometheusCollector) sample(stats StatsFunc) {
	rooms, participants := stats()
	p.roomsActive.Set(float64(rooms))
	p.participantsActive.Set(float64(participants))
}

var _ ports.RelayMetrics = (*PrometheusCollector)(nil)

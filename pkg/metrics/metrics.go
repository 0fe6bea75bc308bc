// Package metrics wraps the Prometheus counters/gauges the MAC engine
// reports, following the collector-registration style used elsewhere
// in the 802.11 tooling ecosystem for exposing link statistics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the metrics the MAC engine's actors update. A nil
// *Registry is valid and makes every method a no-op, so instrumenting
// callers never need a feature flag.
type Registry struct {
	FramesReceived  *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	CRCFailures     prometheus.Counter
	SenderTransitions *prometheus.CounterVec
	TxOutcomes      *prometheus.CounterVec
	OutboundDepth   prometheus.Gauge
	BeaconOffsetMS  prometheus.Gauge
}

// New creates a Registry and registers its metrics with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_frames_received_total",
			Help: "Frames accepted by the Receiver, by frame type.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_frames_dropped_total",
			Help: "Frames dropped by the Receiver, by reason.",
		}, []string{"reason"}),
		CRCFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_crc_failures_total",
			Help: "Frames dropped due to a CRC-32 mismatch.",
		}),
		SenderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_sender_transitions_total",
			Help: "Sender state machine transitions, by state.",
		}, []string{"state"}),
		TxOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_tx_outcomes_total",
			Help: "Terminal transmission outcomes, by outcome.",
		}, []string{"outcome"}),
		OutboundDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "link_outbound_queue_depth",
			Help: "Current depth of the Sender's outbound queue.",
		}),
		BeaconOffsetMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "link_beacon_offset_ms",
			Help: "Last observed clock offset correction from an absorbed beacon.",
		}),
	}

	reg.MustRegister(r.FramesReceived, r.FramesDropped, r.CRCFailures,
		r.SenderTransitions, r.TxOutcomes, r.OutboundDepth, r.BeaconOffsetMS)

	return r
}

func (r *Registry) received(typ string) {
	if r == nil {
		return
	}
	r.FramesReceived.WithLabelValues(typ).Inc()
}

func (r *Registry) dropped(reason string) {
	if r == nil {
		return
	}
	r.FramesDropped.WithLabelValues(reason).Inc()
}

// ObserveReceived records a successfully dispatched inbound frame.
func (r *Registry) ObserveReceived(typ string) { r.received(typ) }

// ObserveDropped records a frame the Receiver discarded.
func (r *Registry) ObserveDropped(reason string) {
	r.dropped(reason)
	if reason == "corrupt_crc" && r != nil {
		r.CRCFailures.Inc()
	}
}

// ObserveTransition records a Sender state machine transition.
func (r *Registry) ObserveTransition(state string) {
	if r == nil {
		return
	}
	r.SenderTransitions.WithLabelValues(state).Inc()
}

// ObserveOutcome records a terminal Sender outcome.
func (r *Registry) ObserveOutcome(outcome string) {
	if r == nil {
		return
	}
	r.TxOutcomes.WithLabelValues(outcome).Inc()
}

// SetOutboundDepth reports the Sender's current outbound queue depth.
func (r *Registry) SetOutboundDepth(n int) {
	if r == nil {
		return
	}
	r.OutboundDepth.Set(float64(n))
}

// SetBeaconOffset reports the clock offset applied by the most recent
// absorbed beacon.
func (r *Registry) SetBeaconOffset(ms int64) {
	if r == nil {
		return
	}
	r.BeaconOffsetMS.Set(float64(ms))
}

package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline tracks send and delivery statistics per stream. A nil *Pipeline is
// valid and records nothing.
type Pipeline struct {
	mu sync.RWMutex

	streams map[string]*StreamStats

	sentTotal         *prometheus.CounterVec
	sendFailuresTotal *prometheus.CounterVec
	receivedTotal     *prometheus.CounterVec
	checkpointedTotal *prometheus.CounterVec
	deliveryFailures  *prometheus.CounterVec
	decodeFallbacks   *prometheus.CounterVec
	deliveryDuration  *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// StreamStats holds the in-process counters for one stream.
type StreamStats struct {
	Sent             uint64    `json:"sent"`
	SendFailures     uint64    `json:"send_failures"`
	Received         uint64    `json:"received"`
	Checkpointed     uint64    `json:"checkpointed"`
	DeliveryFailures uint64    `json:"delivery_failures"`
	DecodeFallbacks  uint64    `json:"decode_fallbacks"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// Snapshot is a point-in-time copy of every stream's stats.
type Snapshot struct {
	Streams     map[string]StreamStats `json:"streams"`
	CollectedAt time.Time              `json:"collected_at"`
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubflow",
			Subsystem: "pipeline",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates pipeline metrics bound to registerer, or the default registerer when nil.
func New(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	streamPartition := []string{"stream", "partition"}
	return &Pipeline{
		streams:           make(map[string]*StreamStats),
		registerer:        registerer,
		sentTotal:         newCounterVec("sent_total", "Envelopes acknowledged by the broker", []string{"stream"}),
		sendFailuresTotal: newCounterVec("send_failures_total", "Envelopes the broker did not accept", []string{"stream"}),
		receivedTotal:     newCounterVec("received_total", "Wire messages read from a partition", streamPartition),
		checkpointedTotal: newCounterVec("checkpointed_total", "Checkpoint updates after successful delivery", streamPartition),
		deliveryFailures:  newCounterVec("delivery_failures_total", "Deliveries that failed and were left for redelivery", streamPartition),
		decodeFallbacks:   newCounterVec("decode_fallbacks_total", "CloudEvents that degraded to opaque delivery", streamPartition),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hubflow",
				Subsystem: "pipeline",
				Name:      "delivery_duration_seconds",
				Help:      "Time spent in the receiver per delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stream"},
		),
	}
}

// Register registers the collectors. Safe to call more than once and when
// another instance already registered identical collectors.
func (m *Pipeline) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.sentTotal,
		m.sendFailuresTotal,
		m.receivedTotal,
		m.checkpointedTotal,
		m.deliveryFailures,
		m.decodeFallbacks,
		m.deliveryDuration,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Pipeline) RecordSent(stream string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.Sent++ })
	m.sentTotal.WithLabelValues(stream).Inc()
}

func (m *Pipeline) RecordSendFailure(stream string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.SendFailures++ })
	m.sendFailuresTotal.WithLabelValues(stream).Inc()
}

func (m *Pipeline) RecordReceived(stream, partition string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.Received++ })
	m.receivedTotal.WithLabelValues(stream, partition).Inc()
}

func (m *Pipeline) RecordCheckpoint(stream, partition string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.Checkpointed++ })
	m.checkpointedTotal.WithLabelValues(stream, partition).Inc()
}

func (m *Pipeline) RecordDeliveryFailure(stream, partition string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.DeliveryFailures++ })
	m.deliveryFailures.WithLabelValues(stream, partition).Inc()
}

func (m *Pipeline) RecordDecodeFallback(stream, partition string) {
	if m == nil {
		return
	}
	m.update(stream, func(s *StreamStats) { s.DecodeFallbacks++ })
	m.decodeFallbacks.WithLabelValues(stream, partition).Inc()
}

func (m *Pipeline) ObserveDelivery(stream string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// Snapshot returns a copy of the per-stream stats.
func (m *Pipeline) Snapshot() Snapshot {
	snap := Snapshot{Streams: map[string]StreamStats{}, CollectedAt: time.Now()}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for stream, stats := range m.streams {
		snap.Streams[stream] = *stats
	}
	return snap
}

func (m *Pipeline) update(stream string, fn func(*StreamStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.streams[stream]
	if !ok {
		stats = &StreamStats{}
		m.streams[stream] = stats
	}
	fn(stats)
	stats.LastUpdatedAt = time.Now()
}

// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services record through.
type Recorder interface {
	RecordAward(medal, outcome string)
	RecordFriendMutation(op string, err error)
	RecordIncomingNotified(count int)
	RecordHydration(duration time.Duration)
}

type Collector struct {
	awards           *prometheus.CounterVec
	friendMutations  *prometheus.CounterVec
	incomingNotified prometheus.Counter
	hydration        prometheus.Histogram
}

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		awards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawsocial_awards_total",
			Help: "Medal allocation attempts by medal and outcome.",
		}, []string{"medal", "outcome"}),
		friendMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawsocial_friend_mutations_total",
			Help: "Relationship mutations by operation and result.",
		}, []string{"op", "result"}),
		incomingNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawsocial_incoming_requests_notified_total",
			Help: "Newly arrived friend requests that triggered a notification.",
		}),
		hydration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drawsocial_hydration_seconds",
			Help:    "Wall time of a concurrent profile hydration.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.awards,
		c.friendMutations,
		c.incomingNotified,
		c.hydration,
	)

	return c
}

func (c *Collector) RecordAward(medal, outcome string) {
	c.awards.WithLabelValues(medal, outcome).Inc()
}

func (c *Collector) RecordFriendMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.friendMutations.WithLabelValues(op, result).Inc()
}

func (c *Collector) RecordIncomingNotified(count int) {
	c.incomingNotified.Add(float64(count))
}

func (c *Collector) RecordHydration(duration time.Duration) {
	c.hydration.Observe(duration.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type NopRecorder struct{}

func (NopRecorder) RecordAward(string, string)         {}
func (NopRecorder) RecordFriendMutation(string, error) {}
func (NopRecorder) RecordIncomingNotified(int)         {}
func (NopRecorder) RecordHydration(time.Duration)      {}

package publisher

import "github.com/prometheus/client_golang/prometheus"

var (
	publishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_attempts_total",
		Help: "Platform publish calls by platform and result.",
	}, []string{"platform", "result"})
	passOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_posts_settled_total",
		Help: "Posts moved out of PUBLISHING by a pass, by final status.",
	}, []string{"status"})
	sweepEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_sweep_enqueued_total",
		Help: "Publish tasks queued by the scheduler sweep, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(publishAttempts, passOutcomes, sweepEnqueued)
}

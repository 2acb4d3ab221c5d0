package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	signatureRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_rejected_total",
		Help: "Webhook requests refused because their signature or verify token did not match.",
	}, []string{"platform"})
	deliveriesAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_accepted_total",
		Help: "Verified webhook deliveries queued for processing.",
	}, []string{"platform"})
)

func init() {
	prometheus.MustRegister(signatureRejected, deliveriesAccepted)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eduva_ai"

// Pipeline groups the collectors of the content-generation pipeline. A nil
// *Pipeline is valid and records nothing.
type Pipeline struct {
	jobsSubmitted      prometheus.Counter
	progressApplied    *prometheus.CounterVec
	progressRejected   *prometheus.CounterVec
	jobsConfirmed      *prometheus.CounterVec
	creditsCharged     *prometheus.CounterVec
	publishFailures    *prometheus.CounterVec
	notifyFailures     prometheus.Counter
	republished        *prometheus.CounterVec
	brokerDeliveries   *prometheus.CounterVec
	operationDurations *prometheus.HistogramVec
}

// NewPipeline creates the collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted and persisted by the submission step.",
		}),
		progressApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_applied_total",
			Help:      "Worker progress reports applied, by resulting status.",
		}, []string{"status"}),
		progressRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_rejected_total",
			Help:      "Worker progress reports rejected, by error code.",
		}, []string{"code"}),
		jobsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_confirmed_total",
			Help:      "Jobs confirmed and charged, by service type.",
		}, []string{"service_type"}),
		creditsCharged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_charged_total",
			Help:      "Credits debited at confirmation, by service type.",
		}, []string{"service_type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Broker publishes that failed after a durable commit.",
		}, []string{"task_type"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Live notifications that could not be delivered.",
		}),
		republished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_republished_total",
			Help:      "Messages re-published by the reconciliation sweep.",
		}, []string{"task_type"}),
		brokerDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_deliveries_total",
			Help:      "Consumed broker deliveries, by outcome.",
		}, []string{"outcome"}),
		operationDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(
			p.jobsSubmitted, p.progressApplied, p.progressRejected,
			p.jobsConfirmed, p.creditsCharged, p.publishFailures,
			p.notifyFailures, p.republished, p.brokerDeliveries,
			p.operationDurations,
		)
	}
	return p
}

func (p *Pipeline) JobSubmitted() {
	if p != nil {
		p.jobsSubmitted.Inc()
	}
}

func (p *Pipeline) ProgressApplied(status string) {
	if p != nil {
		p.progressApplied.WithLabelValues(status).Inc()
	}
}

func (p *Pipeline) ProgressRejected(code string) {
	if p != nil {
		p.progressRejected.WithLabelValues(code).Inc()
	}
}

func (p *Pipeline) JobConfirmed(serviceType string, credits int64) {
	if p != nil {
		p.jobsConfirmed.WithLabelValues(serviceType).Inc()
		p.creditsCharged.WithLabelValues(serviceType).Add(float64(credits))
	}
}

func (p *Pipeline) PublishFailed(taskType string) {
	if p != nil {
		p.publishFailures.WithLabelValues(taskType).Inc()
	}
}

func (p *Pipeline) NotificationFailed() {
	if p != nil {
		p.notifyFailures.Inc()
	}
}

func (p *Pipeline) Republished(taskType string) {
	if p != nil {
		p.republished.WithLabelValues(taskType).Inc()
	}
}

func (p *Pipeline) Delivery(outcome string) {
	if p != nil {
		p.brokerDeliveries.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) ObserveOperation(operation string, seconds float64) {
	if p != nil {
		p.operationDurations.WithLabelValues(operation).Observe(seconds)
	}
}

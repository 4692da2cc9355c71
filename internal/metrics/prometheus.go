package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink backed by prometheus collectors.
type Prometheus struct {
	messages  *prometheus.CounterVec
	jobs      *prometheus.CounterVec
	fires     *prometheus.CounterVec
	fireErrs  prometheus.Counter
	activeSch prometheus.Gauge
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus creates and registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zapsend_messages_total",
			Help: "Delivery attempts by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zapsend_jobs_total",
			Help: "Finalized bulk jobs by terminal status.",
		}, []string{"status"}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zapsend_schedule_fires_total",
			Help: "Schedule firings by schedule type.",
		}, []string{"type"}),
		fireErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zapsend_schedule_errors_total",
			Help: "Schedules that failed to fire.",
		}),
		activeSch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zapsend_schedules_active",
			Help: "Schedules currently in active status.",
		}),
	}
	reg.MustRegister(p.messages, p.jobs, p.fires, p.fireErrs, p.activeSch)
	return p
}

func (p *Prometheus) MessageSent(ok bool) {
	if ok {
		p.messages.WithLabelValues("sent").Inc()
	} else {
		p.messages.WithLabelValues("failed").Inc()
	}
}

func (p *Prometheus) JobFinished(failed bool) {
	if failed {
		p.jobs.WithLabelValues("failed").Inc()
	} else {
		p.jobs.WithLabelValues("completed").Inc()
	}
}

func (p *Prometheus) ScheduleFired(scheduleType string) {
	p.fires.WithLabelValues(scheduleType).Inc()
}

func (p *Prometheus) ScheduleError() { p.fireErrs.Inc() }

func (p *Prometheus) ActiveSchedules(n int) { p.activeSch.Set(float64(n)) }

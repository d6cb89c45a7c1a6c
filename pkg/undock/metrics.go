package undock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the sequencer's Prometheus collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	attempts *prometheus.CounterVec
	commands *prometheus.CounterVec
	reports  *prometheus.CounterVec
	state    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "undock_runs_total",
			Help: "Undock runs by terminal outcome.",
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "undock_discharge_attempts_total",
			Help: "Discharge phase results.",
		}, []string{"result"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "undock_velocity_commands_total",
			Help: "Velocity commands sent, by result.",
		}, []string{"result"}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "undock_status_reports_total",
			Help: "Status reports published, by result.",
		}, []string{"result"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Name: "undock_state",
			Help: "Current sequencer state (0=idle 1=discharging 2=moving 3=succeeded 4=failed 5=cancelled).",
		}),
	}
}

// Discharge attempt results.
const (
	attemptAccepted  = "accepted"
	attemptRejected  = "rejected"
	attemptTimeout   = "timeout"
	attemptCancelled = "cancelled"
	attemptStopped   = "stopped"
)

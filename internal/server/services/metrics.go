package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts command traffic. A nil *Metrics records nothing.
type Metrics struct {
	commands      *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	servedBytes   prometheus.Counter
	stored        *prometheus.CounterVec
}

// NewMetrics registers the server counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletin_commands_total",
			Help: "Commands handled, by command and result code",
		}, []string{"command", "result"}),
		uploadedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "bulletin_upload_bytes_total",
			Help: "Bulletin archive bytes accepted in upload chunks",
		}),
		servedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "bulletin_download_bytes_total",
			Help: "Bulletin archive bytes served in download chunks",
		}),
		stored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletin_stored_total",
			Help: "Bulletins stored after a completed upload or mirror pull, by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) command(command, result string) {
	if m != nil {
		m.commands.WithLabelValues(command, result).Inc()
	}
}

func (m *Metrics) uploaded(n int) {
	if m != nil {
		m.uploadedBytes.Add(float64(n))
	}
}

func (m *Metrics) served(n int) {
	if m != nil {
		m.servedBytes.Add(float64(n))
	}
}

// Stored counts one bulletin written with status.
func (m *Metrics) Stored(status string) {
	if m != nil {
		m.stored.WithLabelValues(status).Inc()
	}
}

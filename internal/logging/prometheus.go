package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PrometheusHook counts log lines per level.
type PrometheusHook struct {
	counters *prometheus.CounterVec
}

// NewPrometheusHook creates the log line counter and registers it on reg.
func NewPrometheusHook(reg prometheus.Registerer) (*PrometheusHook, error) {
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perfmaster_log_messages_total",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	if err := reg.Register(counters); err != nil {
		return nil, err
	}
	return &PrometheusHook{counters: counters}, nil
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
	}
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counters.WithLabelValues(entry.Level.String()).Inc()
	return nil
}

package resource

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/justwrite/internal/apperr"
)

// Metrics exposes per-collection operation counters and sizes. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	records    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "justwrite_operations_total",
				Help: "Collection operations by outcome status",
			},
			[]string{"collection", "operation", "status"},
		),
		records: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "justwrite_collection_records",
				Help: "Number of records in the cached collection snapshot",
			},
			[]string{"collection"},
		),
	}
	reg.MustRegister(m.operations, m.records)
	return m
}

func (m *Metrics) observe(collection, op string, err error) {
	if m == nil {
		return
	}
	status := 200
	if err != nil {
		status = apperr.StatusOf(err)
	}
	m.operations.WithLabelValues(collection, op, strconv.Itoa(status)).Inc()
}

func (m *Metrics) setSize(collection string, n int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(collection).Set(float64(n))
}

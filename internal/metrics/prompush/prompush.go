// Package prompush pushes export metrics to a Prometheus Pushgateway.
package prompush

import (
	"fmt"

	"github.com/dma198/pg2sqlite/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	rows          *prometheus.CounterVec
	commits       *prometheus.CounterVec
	tables        *prometheus.CounterVec
	tableDuration *prometheus.SummaryVec
}

// NewBackend registers the export collectors on a private registry.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "pg2sqlite"
	}

	reg := prometheus.NewRegistry()

	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows copied into the destination, per table.",
		},
		[]string{"table"},
	)
	commits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.CommitsTotal,
			Help: "Destination transactions committed, per table.",
		},
		[]string{"table"},
	)
	tables := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TablesTotal,
			Help: "Table exports, per table and status.",
		},
		[]string{"table", "status"},
	)
	tableDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.TableDuration,
			Help:       "Duration of table exports in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"table", "status"},
	)

	for _, c := range []prometheus.Collector{rows, commits, tables, tableDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		rows:          rows,
		commits:       commits,
		tables:        tables,
		tableDuration: tableDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["table"]).Add(delta)
	case metrics.CommitsTotal:
		b.commits.WithLabelValues(labels["table"]).Add(delta)
	case metrics.TablesTotal:
		b.tables.WithLabelValues(labels["table"], labels["status"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.TableDuration {
		return
	}
	b.tableDuration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/custodia-labs/formsync/internal/core/services"
)

const namespace = "formsync"

// metrics holds the relay's collectors on a private registry.
type metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Counter
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	patches     *prometheus.CounterVec
}

func newMetrics(stats func() services.RelayStats) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Websocket connections accepted.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from clients, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded, by reason.",
		}, []string{"reason"}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_total",
			Help:      "Document PATCH requests, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.received, m.dropped, m.patches,
	)

	if stats != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rooms",
				Help:      "Documents with at least one live connection.",
			}, func() float64 { return float64(stats().Rooms) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "peers",
				Help:      "Live websocket connections.",
			}, func() float64 { return float64(stats().Peers) }),
		)
	}
	return m
}

// Package metrics holds the Prometheus collectors of the billing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Issuance modes used as the "mode" label of billing_documents_issued_total.
const (
	ModeOnline    = "online"
	ModeOffline   = "offline"
	ModeFailed    = "failed"
	ModeNonFiscal = "non_fiscal"
	ModeReplay    = "replay"
)

// Billing groups the domain collectors. A nil *Billing is valid and records nothing.
type Billing struct {
	documentsIssued     *prometheus.CounterVec
	contingencyPending  prometheus.Gauge
	contingencyFailures prometheus.Counter
	syncLatency         prometheus.Histogram
	webhooks            *prometheus.CounterVec
}

func NewBilling(reg prometheus.Registerer) (*Billing, error) {
	b := &Billing{
		documentsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_documents_issued_total",
				Help: "Billing documents issued, by issuance mode.",
			},
			[]string{"mode"},
		),
		contingencyPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billing_contingency_pending",
			Help: "Contingency queue items waiting for the provider.",
		}),
		contingencyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_contingency_failures_total",
			Help: "Failed contingency sync attempts.",
		}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_contingency_sync_latency_seconds",
			Help:    "Time from offline enqueue to successful provider sync.",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}),
		webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhooks_total",
				Help: "Provider webhooks processed, by reported status and result.",
			},
			[]string{"status", "result"},
		),
	}

	for _, c := range []prometheus.Collector{
		b.documentsIssued,
		b.contingencyPending,
		b.contingencyFailures,
		b.syncLatency,
		b.webhooks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Billing) DocumentIssued(mode string) {
	if b == nil {
		return
	}
	b.documentsIssued.WithLabelValues(mode).Inc()
}

func (b *Billing) SetContingencyPending(n int) {
	if b == nil {
		return
	}
	b.contingencyPending.Set(float64(n))
}

func (b *Billing) ContingencyFailure() {
	if b == nil {
		return
	}
	b.contingencyFailures.Inc()
}

func (b *Billing) ObserveSyncLatency(d time.Duration) {
	if b == nil {
		return
	}
	b.syncLatency.Observe(d.Seconds())
}

func (b *Billing) Webhook(status, result string) {
	if b == nil {
		return
	}
	b.webhooks.WithLabelValues(status, result).Inc()
}

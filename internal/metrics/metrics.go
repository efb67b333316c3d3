// Package metrics holds the Prometheus collectors of the lottery engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks ticket sales and drawings. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ticketsIssued     prometheus.Counter
	purchasesRejected *prometheus.CounterVec
	draws             *prometheus.CounterVec
	drawDuration      prometheus.Histogram
	winners           prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lottery_tickets_issued_total",
			Help: "Total number of tickets issued",
		}),
		purchasesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_purchases_rejected_total",
			Help: "Total number of rejected ticket purchases by reason",
		}, []string{"reason"}),
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Total number of drawing attempts by outcome",
		}, []string{"outcome"}),
		drawDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lottery_draw_duration_seconds",
			Help:    "Time spent selecting and persisting winners",
			Buckets: prometheus.DefBuckets,
		}),
		winners: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lottery_winners_total",
			Help: "Total number of winners drawn",
		}),
	}
	reg.MustRegister(m.ticketsIssued, m.purchasesRejected, m.draws, m.drawDuration, m.winners)
	return m
}

func (m *Metrics) TicketIssued() {
	if m == nil {
		return
	}
	m.ticketsIssued.Inc()
}

func (m *Metrics) PurchaseRejected(reason string) {
	if m == nil {
		return
	}
	m.purchasesRejected.WithLabelValues(reason).Inc()
}

// DrawFinished records one drawing attempt.
func (m *Metrics) DrawFinished(outcome string, seconds float64, winners int) {
	if m == nil {
		return
	}
	m.draws.WithLabelValues(outcome).Inc()
	m.drawDuration.Observe(seconds)
	m.winners.Add(float64(winners))
}

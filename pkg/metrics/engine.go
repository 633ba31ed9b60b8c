package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EngineMetrics counts domain outcomes: placements, commissions and payout transitions.
type EngineMetrics struct {
	placements        *prometheus.CounterVec
	commissions       *prometheus.CounterVec
	commissionAmount  *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmn_placements_total",
		Help: "Members placed in the binary tree.",
	}, []string{"kind"})
	commissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmn_commissions_created_total",
		Help: "Commission rows created.",
	}, []string{"type"})
	commissionAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmn_commission_amount_total",
		Help: "Sum of commission amounts created.",
	}, []string{"type"})
	payoutTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmn_payout_transitions_total",
		Help: "Payout state transitions by target status.",
	}, []string{"status"})
	reg.MustRegister(placements, commissions, commissionAmount, payoutTransitions)
	return &EngineMetrics{
		placements:        placements,
		commissions:       commissions,
		commissionAmount:  commissionAmount,
		payoutTransitions: payoutTransitions,
	}
}

// IncPlacement counts a placement, labelled root or member.
func (m *EngineMetrics) IncPlacement(kind string) {
	if m == nil || m.placements == nil {
		return
	}
	m.placements.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveCommission counts a created commission and its amount.
func (m *EngineMetrics) ObserveCommission(commissionType string, amount decimal.Decimal) {
	if m == nil || m.commissions == nil {
		return
	}
	label := normalizeLabel(commissionType)
	m.commissions.WithLabelValues(label).Inc()
	if amount.IsPositive() {
		m.commissionAmount.WithLabelValues(label).Add(amount.InexactFloat64())
	}
}

// IncPayoutTransition counts a payout moving into status.
func (m *EngineMetrics) IncPayoutTransition(status string) {
	if m == nil || m.payoutTransitions == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

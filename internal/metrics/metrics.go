package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

var (
	// SubmissionsTotal counts transactions handed to a submission engine, by engine result token
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Transactions handed to a submission engine, by engine result.",
	}, []string{"engine", "result"})

	// RejectionsTotal counts submit requests rejected by the validation pipeline, by stage
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Submit requests rejected by the validation pipeline, by stage.",
	}, []string{"stage"})

	// PeerActionsTotal counts connect and disconnect actions issued against the overlay
	PeerActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "peer_actions_total",
		Help:      "Connect and disconnect actions issued by the cluster controller.",
	}, []string{"action"})

	// RelaysTotal counts transactions relayed to peers
	RelaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relays_total",
		Help:      "Transaction relays to peers, by outcome.",
	}, []string{"outcome"})

	// AttackSessionsTotal counts attack sessions by outcome
	AttackSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attack_sessions_total",
		Help:      "Attack sessions, by outcome.",
	}, []string{"outcome"})

	// AttackActive is 1 while an attack session is active
	AttackActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "attack_active",
		Help:      "Whether an attack session is active.",
	})
)

// RegisterSuppressionSize exports the number of transaction ids held by
// the suppression registry
func RegisterSuppressionSize(size func() int) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "suppressed_transactions",
		Help:      "Transaction ids held by the suppression registry.",
	}, func() float64 { return float64(size()) })
}

// Handler returns the HTTP handler exposing the collectors
func Handler() http.Handler {
	return promhttp.Handler()
}

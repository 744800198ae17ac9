package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(codesIssuedTotal, codesRedeemedTotal, codeCollisionsTotal, codeRejectionsTotal, orphanedProofsTotal, codesByState, disbursedAmount)
}

var (
	codesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bonus_codes_issued_total",
		Help: "Bonus codes created.",
	})

	codesRedeemedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_codes_redeemed_total",
			Help: "Successful redemptions by provenance mode.",
		},
		[]string{"mode"}, // evidence | owner_assertion
	)

	codeCollisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_code_collisions_total",
			Help: "Generated candidates that were already taken.",
		},
		[]string{"stage"}, // precheck | insert
	)

	codeRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bonus_code_rejections_total",
			Help: "Redemption attempts rejected, by reason.",
		},
		[]string{"reason"},
	)

	orphanedProofsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bonus_code_orphaned_proofs_total",
		Help: "Stored residence proofs that could not be removed after a lost redemption.",
	})

	codesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bonus_codes",
			Help: "Bonus codes currently in each state.",
		},
		[]string{"state"}, // open | used | expired
	)

	disbursedAmount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bonus_codes_disbursed_chf",
		Help: "Total bonus value of redeemed codes.",
	})
)

func IncCodeIssued()                { codesIssuedTotal.Inc() }
func IncCodeRedeemed(mode string)   { codesRedeemedTotal.WithLabelValues(norm(mode)).Inc() }
func IncCodeCollision(stage string) { codeCollisionsTotal.WithLabelValues(norm(stage)).Inc() }
func IncCodeRejected(reason string) { codeRejectionsTotal.WithLabelValues(norm(reason)).Inc() }
func IncOrphanedProof()             { orphanedProofsTotal.Inc() }

// SetCodeStates publishes a point-in-time snapshot of the code table.
func SetCodeStates(open, used, expired int, disbursed int64) {
	codesByState.WithLabelValues("open").Set(float64(open))
	codesByState.WithLabelValues("used").Set(float64(used))
	codesByState.WithLabelValues("expired").Set(float64(expired))
	disbursedAmount.Set(float64(disbursed))
}

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otpgate_challenges_issued_total",
		Help: "The total number of OTP challenges successfully dispatched",
	})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otpgate_dispatch_failures_total",
		Help: "The total number of failed OTP dispatches",
	}, []string{"kind"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otpgate_verifications_total",
		Help: "The total number of verification attempts by outcome",
	}, []string{"result"})

	ProfileStoreCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otpgate_profile_store_calls_total",
		Help: "Calls to the external profile store",
	}, []string{"op", "result"})

	SweptChallenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otpgate_swept_challenges_total",
		Help: "Challenges removed by the expiry sweep",
	})
)

// Outcome labels a call result
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Package metrics centralizes the prometheus collectors shared across the
// shard core (spec.md §2 component K): HSM sign/verify counters, router
// dispatch counters, and MTLS retry/circuit-breaker counters. Grounded on
// github.com/prometheus/client_golang, used directly in other_examples/
// cuemby-warren and pulled (indirect) by orbas1-Synnergy's go.mod.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HSM counters: sign/verify counts by mode and error counts. Cumulative
	// latency and round-robin hits are not exported.
	HSMSignTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "hsm",
		Name:      "sign_total",
		Help:      "Total sign operations by mode (real|fallback).",
	}, []string{"mode"})

	HSMSignErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "hsm",
		Name:      "sign_errors_total",
		Help:      "Total sign operation errors.",
	})

	HSMVerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "hsm",
		Name:      "verify_total",
		Help:      "Total verify operations by mode (real|fallback).",
	}, []string{"mode"})

	HSMVerifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "hsm",
		Name:      "verify_errors_total",
		Help:      "Total verify operation errors.",
	})

	// Router counters (spec.md §4.J get_statistics: total / local / remote
	// / scatter-gather / errors).
	RouterDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "router",
		Name:      "dispatch_total",
		Help:      "Total router dispatches by kind (local|remote|scatter_gather).",
	}, []string{"kind"})

	RouterErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "router",
		Name:      "errors_total",
		Help:      "Total router dispatch errors.",
	})

	// MTLS transport counters.
	MTLSRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "mtls",
		Name:      "retry_total",
		Help:      "Total retry attempts by endpoint.",
	}, []string{"endpoint"})

	CircuitBreakerOpen = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "themis",
		Subsystem: "mtls",
		Name:      "circuit_breaker_open_total",
		Help:      "Total times a circuit breaker tripped open, by endpoint.",
	}, []string{"endpoint"})
)

// Registry is the collector registry the process exposes on its metrics
// endpoint. Tests may use their own prometheus.NewRegistry() instead.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		HSMSignTotal, HSMSignErrors, HSMVerifyTotal, HSMVerifyErrors,
		RouterDispatchTotal, RouterErrorsTotal,
		MTLSRetryTotal, CircuitBreakerOpen,
	)
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// APIErrors counts failed REST operations by the domain error kind.
	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalengine",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Failed REST operations by operation and error kind",
		},
		[]string{"op", "kind"},
	)

	APIThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalengine",
			Subsystem: "api",
			Name:      "throttled_total",
			Help:      "Requests rejected by the per-client rate limit",
		},
		[]string{"route"},
	)
)

// Register adds the API collectors to reg (the default registerer when nil).
// Safe to call more than once.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(APIErrors, APIThrottled)
	})
}

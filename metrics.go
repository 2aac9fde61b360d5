package securebank

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "securebank_client"

// metrics holds the client's Prometheus collectors. A nil *metrics records
// nothing.
type metrics struct {
	calls          *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	keyFetches     *prometheus.CounterVec
	unlockFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "secure_calls_total",
			Help:      "Secure gateway calls by target and outcome.",
		}, []string{"target", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "secure_call_duration_seconds",
			Help:      "Duration of secure gateway calls, signing to decryption.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		keyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "server_key_fetches_total",
			Help:      "Server public key fetches by outcome.",
		}, []string{"outcome"}),
		unlockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unlock_failures_total",
			Help:      "Failed key unlocks by reason.",
		}, []string{"reason"}),
	}

	var err error
	if m.calls, err = register(reg, m.calls); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.keyFetches, err = register(reg, m.keyFetches); err != nil {
		return nil, err
	}
	if m.unlockFailures, err = register(reg, m.unlockFailures); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. When an identical collector is already registered,
// as with two clients sharing a registry, the existing one is reused.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observeCall(target, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(target, outcome).Inc()
	m.duration.WithLabelValues(target).Observe(elapsed.Seconds())
}

func (m *metrics) observeKeyFetch(outcome string) {
	if m == nil {
		return
	}
	m.keyFetches.WithLabelValues(outcome).Inc()
}

func (m *metrics) observeUnlockFailure(reason string) {
	if m == nil {
		return
	}
	m.unlockFailures.WithLabelValues(reason).Inc()
}

// outcomeLabel maps an error to a low-cardinality metric label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrServerKeyUnavailable):
		return "server_key"
	case errors.Is(err, ErrDecryption):
		return "decryption"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrGateway):
		return "gateway"
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "network"
	}
	return "error"
}

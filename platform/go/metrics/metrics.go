package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Identity-related Prometheus metrics. These live in a standalone package so
// the session, tenantctx and authz packages can record them without importing
// each other.

var (
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"}) // result: success|rejected|error

	SessionRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_session_refreshes_total",
		Help: "Proactive session refreshes by result",
	}, []string{"result"}) // result: success|failure

	TenantSwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_tenant_switches_total",
		Help: "Tenant context switches by result",
	}, []string{"result"}) // result: success|not_member|inactive|error

	GuardDenialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_guard_denials_total",
		Help: "Permission guard denials by required permission",
	}, []string{"permission"})

	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_tokens_issued_total",
		Help: "Session tokens minted by the auth service",
	})
)

// Register registers the identity metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		LoginsTotal,
		SessionRefreshesTotal,
		TenantSwitchesTotal,
		GuardDenialsTotal,
		TokensIssuedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler exposes the default gatherer, where Register puts the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

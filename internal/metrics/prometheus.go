package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors are created eagerly so callers never see a nil metric, even
// when InitCustomMetrics was not called (tests).
var (
	CodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authserver_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	TokenExchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authserver_token_exchanges_total",
		Help: "Token exchanges by outcome (OAuth error code or \"success\").",
	}, []string{"outcome"})
	CodeReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authserver_code_replays_total",
		Help: "Redemption attempts of an already used authorization code.",
	})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authserver_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authserver_logins_failure_total",
		Help: "Total number of failed logins.",
	})
)

// OutcomeSuccess labels a successful exchange.
const OutcomeSuccess = "success"

// InitCustomMetrics registers the collectors with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"CodesIssuedTotal":    CodesIssuedTotal,
		"TokenExchangesTotal": TokenExchangesTotal,
		"CodeReplaysTotal":    CodeReplaysTotal,
		"LoginSuccessTotal":   LoginSuccessTotal,
		"LoginFailureTotal":   LoginFailureTotal,
	}

	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}

			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}

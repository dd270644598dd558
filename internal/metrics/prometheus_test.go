package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCustomMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	InitCustomMetrics(reg)
	InitCustomMetrics(reg) // second call must not panic

	before := testutil.ToFloat64(CodesIssuedTotal)
	CodesIssuedTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CodesIssuedTotal))

	TokenExchangesTotal.WithLabelValues(OutcomeSuccess).Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "authserver_codes_issued_total")
	assert.Contains(t, names, "authserver_token_exchanges_total")
}

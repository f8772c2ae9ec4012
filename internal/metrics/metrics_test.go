package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueOf(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}

func TestSuppressionSizeFollowsRegistry(t *testing.T) {
	size := 3
	gauge := RegisterSuppressionSize(func() int { return size })
	assert.Equal(t, float64(3), valueOf(t, gauge))

	size = 7
	assert.Equal(t, float64(7), valueOf(t, gauge))
}

func TestRejectionsByStage(t *testing.T) {
	before := valueOf(t, RejectionsTotal.WithLabelValues("decode"))
	RejectionsTotal.WithLabelValues("decode").Inc()
	assert.Equal(t, before+1, valueOf(t, RejectionsTotal.WithLabelValues("decode")))
}

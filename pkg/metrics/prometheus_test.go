package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSignalGenerated("buy", "BTC")
	r.RecordSignalGenerated("buy", "BTC")
	r.RecordSignalSkipped("policy_skip")
	r.RecordSignalSkipped("validation")
	r.RecordNotification("system", "sent")
	r.RecordOutcome("buy", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signalsGenerated.WithLabelValues("buy", "BTC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalsSkipped.WithLabelValues("policy_skip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalsSkipped.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("system", "sent")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "signalengine_outcome_accuracy")
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

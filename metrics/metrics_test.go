package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIsSingleton(t *testing.T) {
	require.Same(t, Get(), Get())
}

func TestCounters(t *testing.T) {
	r := Get()
	before := testutil.ToFloat64(r.RPCServed)
	r.RPCServed.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(r.RPCServed))

	r.FramesRead.WithLabelValues("LOG_REPLY").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(r.FramesRead.WithLabelValues("LOG_REPLY")))
}

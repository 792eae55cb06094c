package prometheus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/storage/memory"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveRemote("put", 10*time.Millisecond, nil)
	m.ObserveRemote("put", 10*time.Millisecond, errors.New("boom"))
	m.ObserveAlreadyStored()
	m.ObserveCommit(3, nil)
	m.ObserveReadDegraded("cold")
	m.ObserveColdTransition("AVAILABLE")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteErrors.WithLabelValues("put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alreadyStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readsDegraded.WithLabelValues("cold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.coldTransitions.WithLabelValues("AVAILABLE")))

	expected := `
# HELP blobtier_already_stored_total Total number of uploads skipped because the content was already stored
# TYPE blobtier_already_stored_total counter
blobtier_already_stored_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "blobtier_already_stored_total"))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCache(true)
		m.ObserveRemote("get", time.Second, nil)
		m.ObserveAlreadyStored()
		m.ObserveCommit(1, nil)
		m.ObserveReadDegraded("hot")
		m.ObserveColdTransition("ARCHIVED")
	})
}

func TestMetrics_RemoteStore(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := New(reg)

	store := blobtier.NewRemoteStore(memory.New(), blobtier.WithMetrics(m))
	for i := 0; i < 2; i++ {
		_, err := store.Write(ctx, blobtier.WriteContext{Content: []byte("foo")})
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.alreadyStored))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.remoteErrors.WithLabelValues("put")))
}

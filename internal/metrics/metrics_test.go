package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveCatalogFetch(20*time.Millisecond, nil)
	m.SetCatalogSize(3)
	m.IncStaleServed()
	m.ObserveRecommendation("composed")
	m.ObserveCompletion("ollama", time.Second, nil)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "agora_catalog_fetch_total")
	assert.Contains(t, names, "agora_catalog_fetch_duration_seconds")
	assert.Contains(t, names, "agora_catalog_assistants")
	assert.Contains(t, names, "agora_catalog_stale_served_total")
	assert.Contains(t, names, "agora_recommendations_total")
	assert.Contains(t, names, "agora_completion_duration_seconds")
}

func TestCatalogFetchOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCatalogFetch(time.Millisecond, nil)
	m.ObserveCatalogFetch(time.Millisecond, errors.New("boom"))
	m.ObserveCatalogFetch(time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.catalogFetches.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.catalogFetches.WithLabelValues("error")))

	var fetchTime dto.Metric
	require.NoError(t, m.catalogFetchTime.Write(&fetchTime))
	assert.Equal(t, uint64(3), fetchTime.GetHistogram().GetSampleCount())
	assert.Equal(t, 1, testutil.CollectAndCount(m.catalogFetchTime), "one unlabelled series")
}

func TestGaugesAndCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetCatalogSize(10)
	m.SetCatalogSize(4)
	m.IncStaleServed()
	m.ObserveRecommendation("similarity_only")
	m.ObserveRecommendation("similarity_only")
	m.ObserveRecommendation("no_match")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.catalogAssistants))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleServed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recommendations.WithLabelValues("similarity_only")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recommendations.WithLabelValues("no_match")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)
	assert.Panics(t, func() { New(registry) })
}

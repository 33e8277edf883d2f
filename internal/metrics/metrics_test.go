package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndTextfile(t *testing.T) {
	t.Parallel()

	m := New()
	m.Source(ResultResolved)
	m.Article(ResultInserted)
	m.Article(ResultInserted)
	m.Article(ResultDuplicate)
	m.AICall("relativity", true, 0.25)
	m.AICall("relativity", false, 0.05)
	m.Observe("crawl", 3*time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Articles.WithLabelValues(ResultInserted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AICalls.WithLabelValues("relativity", ResultRejected)), 0)
	assert.InDelta(t, 0.30, testutil.ToFloat64(m.AICost), 1e-9)

	path := filepath.Join(t.TempDir(), "newsingest.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.Contains(body, `newsingest_articles_total{result="duplicate"} 1`), body)
	assert.Contains(t, body, "newsingest_run_duration_seconds_bucket")
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Source(ResultFailed)
	m.AICall("x", true, 1)
	m.Observe("crawl", time.Second)
	assert.NoError(t, m.WriteTextfile("ignored"))
	assert.NoError(t, New().WriteTextfile(""))
}

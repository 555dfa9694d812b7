package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	Init()

	RecordIndexFile(ResultIndexed, 7, 10*time.Millisecond)
	RecordIndexFile(ResultSkipped, 0, 0)
	RecordWatchTrigger()
	RecordHTTPRequest("GET", "/api/stats", "200")

	body := scrape(t)
	assert.Contains(t, body, `acta_index_files_total{result="indexed"}`)
	assert.Contains(t, body, `acta_index_files_total{result="skipped"}`)
	assert.Contains(t, body, "acta_index_events_total")
	assert.Contains(t, body, "acta_index_duration_seconds_bucket")
	assert.Contains(t, body, "acta_watch_triggers_total")
	assert.Contains(t, body, `acta_http_requests_total{method="GET",path="/api/stats",status="200"}`)
}

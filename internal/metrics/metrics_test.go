package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBackupAppend(t *testing.T) {
	before := testutil.ToFloat64(backupAppendsTotal.WithLabelValues("metrics-test", "written"))
	RecordBackupAppend("metrics-test", "written")
	after := testutil.ToFloat64(backupAppendsTotal.WithLabelValues("metrics-test", "written"))
	assert.Equal(t, before+1, after)
}

func TestRecordBackupRecovery(t *testing.T) {
	RecordBackupRecovery("metrics-test", "invalid_json")
	assert.GreaterOrEqual(t, testutil.ToFloat64(backupRecoveriesTotal.WithLabelValues("metrics-test", "invalid_json")), 1.0)
}

func TestRecordSubmission(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("metrics-test", "ok"))
	RecordSubmission("metrics-test", "ok", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(submissionsTotal.WithLabelValues("metrics-test", "ok")))
}

func TestHandler(t *testing.T) {
	RecordProxyRequest("POST", "200")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pnmtrack_proxy_requests_total")
}

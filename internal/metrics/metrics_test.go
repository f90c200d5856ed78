package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, Status(nil))
	assert.Equal(t, StatusNotAuthenticated, Status(fmt.Errorf("list: %w", common.ErrNotAuthenticated)))
	assert.Equal(t, StatusNotFound, Status(common.ErrorNotFound))
	assert.Equal(t, StatusError, Status(errors.New("boom")))
}

func TestCounters(t *testing.T) {
	m := New()
	start := time.Now()

	m.ObserveSync("push", "meal", start, nil)
	m.ObserveSync("push", "meal", start, nil)
	m.ObserveSync("pull", "poop", start, errors.New("offline"))
	m.MigrationFile(nil)
	m.ObserveBackup("sync", start, common.ErrNotAuthenticated)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncOperations.WithLabelValues("push", "meal", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncOperations.WithLabelValues("pull", "poop", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.migratedFiles.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backupRuns.WithLabelValues("sync", StatusNotAuthenticated)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSync("push", "meal", time.Now(), nil)
		m.MigrationFile(nil)
		m.ObserveBackup("sync", time.Now(), nil)
	})
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.ObserveSync("push", "meal", time.Now(), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `carekeeper_sync_operations_total{operation="push",record_type="meal",status="success"} 1`)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toastem/internal/models"
	"toastem/internal/process"
)

func TestCollectorCountsEvents(t *testing.T) {
	c := NewCollector()

	c.Observe(process.Event{Kind: process.EventBatchCreated, BatchID: 1, BatchStatus: models.BatchStatusInProgress})
	c.Observe(process.Event{Kind: process.EventStageSubmitted, Stage: "depulping", RecordStatus: "finished", BatchStatus: models.BatchStatusInProgress})
	c.Observe(process.Event{Kind: process.EventStageSubmitted, Stage: "depulping", RecordStatus: "finished", BatchStatus: models.BatchStatusInProgress})
	c.Observe(process.Event{
		Kind:  process.EventStageRejected,
		Stage: "grading",
		Violations: []models.Violation{
			{Field: "total_weight", Code: models.CodeSumMismatch},
			{Field: "grade", Code: models.CodeRequired},
		},
	})
	c.Observe(process.Event{Kind: process.EventStageRestarted, Stage: "screening"})
	c.Observe(process.Event{Kind: process.EventDryingCompleted, Stage: "drying", RecordStatus: "finished", BatchStatus: models.BatchStatusFinished})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.submissions.WithLabelValues("depulping", "finished")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("grading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violations.WithLabelValues("grading", models.CodeSumMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.corrections.WithLabelValues("screening", "restart")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches.WithLabelValues("batch_created", "in_progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches.WithLabelValues("drying_completed", "finished")))
}

func TestHandlerExposesSeries(t *testing.T) {
	c := NewCollector()
	c.Observe(process.Event{Kind: process.EventBatchCancelled, BatchStatus: models.BatchStatusCancelled})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `toastem_batch_events_total{kind="batch_cancelled",status="cancelled"} 1`))
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toastem/internal/catalog"
	"toastem/internal/events"
	"toastem/internal/monitoring"
	"toastem/internal/process"
	"toastem/internal/store"
)

const testSecret = "test-secret"

type fixture struct {
	api     *BatchAPI
	monitor *monitoring.Monitor
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemoryStore()
	monitor := monitoring.NewMonitor()
	clock := func() time.Time { return time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC) }
	orc := process.NewOrchestrator(s, catalog.Default(), process.WithClock(clock), process.WithObserver(monitor))

	return &fixture{
		api:     NewBatchAPI(orc, s, testSecret, events.NewHub(), monitor),
		monitor: monitor,
		token:   mustToken(t, "grower-1"),
	}
}

func mustToken(t *testing.T, user string) string {
	t.Helper()
	token, err := IssueToken(testSecret, user, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.api.Router.ServeHTTP(w, req)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

// seed creates a farm and a 100 kg batch owned by the fixture user
func (f *fixture) seed(t *testing.T) (farmID, batchID int) {
	t.Helper()
	w, farm := f.do(t, "POST", "/api/v1/farms", f.token, gin.H{"name": "Finca Alta"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	farmID = int(farm["id"].(float64))

	w, batch := f.do(t, "POST", fmt.Sprintf("/api/v1/farms/%d/batches", farmID), f.token, gin.H{
		"harvest_date":   "2024-03-01T00:00:00Z",
		"initial_weight": 100,
		"coffee_type":    "arabica",
		"harvest_method": "selective",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, fmt.Sprintf("F%d-2024-0001", farmID), batch["code"])
	return farmID, int(batch["id"].(float64))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, "GET", "/api/v1/stages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, "GET", "/api/v1/stages", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := IssueToken("other-secret", "grower-1", time.Hour)
	require.NoError(t, err)
	w, _ = f.do(t, "GET", "/api/v1/stages", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, "grower-1", -time.Minute)
	require.NoError(t, err)
	w, _ = f.do(t, "GET", "/api/v1/stages", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListStages(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/stages", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	f.api.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stages []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	require.Len(t, stages, 11)
	assert.Equal(t, "harvest", stages[0]["name"])
	assert.Equal(t, true, stages[4]["time_spanning"])
	assert.Equal(t, "quality_control", stages[10]["name"])
}

func TestSubmitStageAdvancesBatch(t *testing.T) {
	f := newFixture(t)
	_, batchID := f.seed(t)

	w, body := f.do(t, "POST", fmt.Sprintf("/api/v1/batches/%d/stages/depulping", batchID), f.token, gin.H{
		"output_weight": 60,
		"data":          gin.H{"date": "2024-03-02T00:00:00Z"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "fermentation", body["next_stage"])
	assert.Equal(t, "in_progress", body["next_status"])

	w, body = f.do(t, "GET", fmt.Sprintf("/api/v1/batches/%d", batchID), f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := body["current_stage"].(map[string]interface{})
	assert.Equal(t, "fermentation", current["name"])

	stages := body["stages"].([]interface{})
	depulping := stages[1].(map[string]interface{})
	records := depulping["records"].([]interface{})
	require.Len(t, records, 1)
	record := records[0].(map[string]interface{})
	assert.Equal(t, 60.0, record["output_weight"])
	assert.Equal(t, 100.0, record["input_weight"])

	metrics := f.monitor.GetMetrics()
	assert.Equal(t, 1, metrics["stage_submitted_depulping"])
}

func TestSubmitStageErrors(t *testing.T) {
	f := newFixture(t)
	_, batchID := f.seed(t)
	base := fmt.Sprintf("/api/v1/batches/%d", batchID)

	t.Run("validation", func(t *testing.T) {
		w, body := f.do(t, "POST", base+"/stages/depulping", f.token, gin.H{
			"output_weight": 120,
			"data":          gin.H{},
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "validation_failed", body["error"])
		violations := body["violations"].([]interface{})
		codes := map[string]bool{}
		for _, v := range violations {
			codes[v.(map[string]interface{})["code"].(string)] = true
		}
		assert.True(t, codes["required"])
		assert.True(t, codes["exceeds_reference"])
	})

	t.Run("out of order", func(t *testing.T) {
		w, body := f.do(t, "POST", base+"/stages/grading", f.token, gin.H{
			"data": gin.H{"date": "2024-03-02T00:00:00Z"},
		})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "sequence", body["error"])
	})

	t.Run("harvest is not recordable", func(t *testing.T) {
		w, body := f.do(t, "POST", base+"/stages/harvest", f.token, gin.H{})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, process.SeqNotRecordable, body["code"])
	})

	t.Run("unknown stage", func(t *testing.T) {
		w, _ := f.do(t, "POST", base+"/stages/brewing", f.token, gin.H{})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed data", func(t *testing.T) {
		w, _ := f.do(t, "POST", base+"/stages/depulping", f.token, gin.H{"data": gin.H{"date": 12}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOwnership(t *testing.T) {
	f := newFixture(t)
	farmID, batchID := f.seed(t)
	stranger := mustToken(t, "grower-2")

	w, _ := f.do(t, "GET", fmt.Sprintf("/api/v1/batches/%d", batchID), stranger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, "POST", fmt.Sprintf("/api/v1/batches/%d/sell", batchID), stranger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, "POST", fmt.Sprintf("/api/v1/farms/%d/batches", farmID), stranger, gin.H{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, "GET", "/api/v1/batches/999", f.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, "GET", "/api/v1/batches/abc", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestartAndAudit(t *testing.T) {
	f := newFixture(t)
	_, batchID := f.seed(t)
	base := fmt.Sprintf("/api/v1/batches/%d", batchID)

	w, body := f.do(t, "POST", base+"/stages/depulping", f.token, gin.H{
		"output_weight": 60,
		"data":          gin.H{"date": "2024-03-02T00:00:00Z"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	recordID := int(body["record"].(map[string]interface{})["id"].(float64))

	w, body = f.do(t, "POST", fmt.Sprintf("%s/records/%d/restart", base, recordID), f.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, body["status"])

	w, body = f.do(t, "GET", base+"/stages/depulping/pending", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(recordID), body["id"])

	w, _ = f.do(t, "POST", fmt.Sprintf("%s/records/%d/restart", base, recordID), f.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	req, _ := http.NewRequest("GET", base+"/audit", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.api.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "restart", entries[0]["action"])
	assert.Equal(t, "grower-1", entries[0]["actor"])
}

func TestCancelAndSell(t *testing.T) {
	f := newFixture(t)
	_, batchID := f.seed(t)
	base := fmt.Sprintf("/api/v1/batches/%d", batchID)

	w, body := f.do(t, "POST", base+"/cancel", f.token, gin.H{"reason": " "})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_failed", body["error"])

	w, body = f.do(t, "POST", base+"/cancel", f.token, gin.H{"reason": "flooded warehouse"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", body["status"])

	w, _ = f.do(t, "POST", base+"/sell", f.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = f.do(t, "POST", base+"/reconcile", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])
}

func TestMonitorEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w, body := f.do(t, "GET", "/api/v1/monitor", f.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "uptime_seconds")
	assert.Equal(t, 1.0, body["events_batch_created"])
}

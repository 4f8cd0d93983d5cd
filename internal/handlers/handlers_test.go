package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/engine"
	"github.com/ternarybob/dreamforge/internal/executor"
	"github.com/ternarybob/dreamforge/internal/handlers/steps"
	"github.com/ternarybob/dreamforge/internal/metrics"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/objectstore"
	"github.com/ternarybob/dreamforge/internal/queue"
	"github.com/ternarybob/dreamforge/internal/registry"
	"github.com/ternarybob/dreamforge/internal/storage/sqlite"
	"github.com/ternarybob/dreamforge/internal/upscaler"
)

// testHarness wires the whole chain (§8's scenarios run "with eager queueing
// and a fake engine") the same way app.New does, minus the HTTP listener.
type testHarness struct {
	Jobs     *JobsHandler
	Logs     *LogsHandler
	Progress *ProgressHandler
	Config   *common.Config
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := arbor.NewLogger()

	cfg := common.NewDefaultConfig()
	cfg.SQLite.Path = t.TempDir() + "/test.db"
	cfg.SQLite.Environment = "test"
	cfg.Queue.Eager = true
	cfg.Streaming.SSEPollMS = 5
	cfg.Streaming.SSEHeartbeatS = 60

	db, err := sqlite.NewSQLiteDB(logger, &cfg.SQLite)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewRepository(db)

	objStore := objectstore.NewMemory()
	reg := registry.New(repo, t.TempDir(), "/fake/fallback-model")
	upReg := upscaler.NewRegistry()
	eng := engine.NewFake()

	handlers := map[models.StepName]executor.Handler{
		models.StepGenerate: &steps.GenerateHandler{Engine: eng, Store: objStore, Registry: reg, Logger: logger},
		models.StepUpscale:  &steps.UpscaleHandler{Repo: repo, Store: objStore, Registry: upReg, Logger: logger},
	}
	exec := executor.New(repo, handlers, logger)
	q := queue.NewEager(exec.Execute)
	exec.SetQueue(q)

	m := metrics.New(func() float64 { return 0 })

	return &testHarness{
		Jobs:     NewJobsHandler(repo, objStore, q, m, cfg, logger),
		Logs:     NewLogsHandler(repo, cfg, logger),
		Progress: NewProgressHandler(repo, cfg, logger),
		Config:   cfg,
	}
}

func submit(t *testing.T, h *testHarness, body map[string]interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.Jobs.Submit(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func withID(req *http.Request, id string) *http.Request {
	req.SetPathValue("id", id)
	return req
}

func TestS1_SingleSuccess(t *testing.T) {
	h := newTestHarness(t)

	rec, body := submit(t, h, map[string]interface{}{
		"type": "generate", "prompt": "test", "width": 64, "height": 64, "steps": 2, "guidance": 1.0, "format": "png",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	job := body["job"].(map[string]interface{})
	id := job["id"].(string)

	artReq := withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/artifacts", nil), id)
	artRec := httptest.NewRecorder()
	h.Jobs.Artifacts(artRec, artReq)
	require.Equal(t, http.StatusOK, artRec.Code)

	var artBody map[string]interface{}
	require.NoError(t, json.Unmarshal(artRec.Body.Bytes(), &artBody))
	artifacts := artBody["artifacts"].([]interface{})
	require.Len(t, artifacts, 1)
	a := artifacts[0].(map[string]interface{})
	assert.Equal(t, "png", a["format"])
	assert.Equal(t, float64(0), a["item_index"])
	assert.Contains(t, a["s3_key"], "dreamforge/")

	logsReq := withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/logs", nil), id)
	logsRec := httptest.NewRecorder()
	h.Logs.Tail(logsRec, logsReq)
	require.Equal(t, http.StatusOK, logsRec.Code)
	codes := ndjsonCodes(t, logsRec.Body.Bytes())
	assert.Contains(t, codes, models.EventStepStart)
	assert.Contains(t, codes, models.EventArtifactWritten)
	assert.Contains(t, codes, models.EventJobFinish)
}

func TestS2_BatchOfFive(t *testing.T) {
	h := newTestHarness(t)

	rec, body := submit(t, h, map[string]interface{}{
		"type": "generate", "prompt": "test", "width": 64, "height": 64, "steps": 2, "guidance": 1.0, "count": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["job"].(map[string]interface{})["id"].(string)

	artRec := httptest.NewRecorder()
	h.Jobs.Artifacts(artRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/artifacts", nil), id))
	var artBody map[string]interface{}
	require.NoError(t, json.Unmarshal(artRec.Body.Bytes(), &artBody))
	artifacts := artBody["artifacts"].([]interface{})
	require.Len(t, artifacts, 5)

	indices := map[float64]bool{}
	seeds := map[interface{}]bool{}
	for _, raw := range artifacts {
		a := raw.(map[string]interface{})
		indices[a["item_index"].(float64)] = true
		seeds[a["seed"]] = true
		assert.Contains(t, a["s3_key"], "_"+strconv.Itoa(int(a["item_index"].(float64)))+"_")
	}
	assert.Len(t, indices, 5)
	assert.GreaterOrEqual(t, len(seeds), 2)

	progRec := httptest.NewRecorder()
	h.Progress.Snapshot(progRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/progress", nil), id))
	require.Equal(t, http.StatusOK, progRec.Code)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(progRec.Body.Bytes(), &snap))
	assert.Equal(t, 1.0, snap["progress"])
	assert.Len(t, snap["items"].([]interface{}), 5)
}

func TestS3_SeededBatchStillRandomizes(t *testing.T) {
	h := newTestHarness(t)

	rec, body := submit(t, h, map[string]interface{}{
		"type": "generate", "prompt": "test", "width": 32, "height": 32, "steps": 1, "count": 3, "seed": 123456,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["job"].(map[string]interface{})["id"].(string)

	artRec := httptest.NewRecorder()
	h.Jobs.Artifacts(artRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/artifacts", nil), id))
	var artBody map[string]interface{}
	require.NoError(t, json.Unmarshal(artRec.Body.Bytes(), &artBody))
	artifacts := artBody["artifacts"].([]interface{})
	require.Len(t, artifacts, 3)

	seeds := map[interface{}]bool{}
	for _, raw := range artifacts {
		seeds[raw.(map[string]interface{})["seed"]] = true
	}
	assert.GreaterOrEqual(t, len(seeds), 2)
}

func TestS4_Chain2x(t *testing.T) {
	h := newTestHarness(t)

	rec, body := submit(t, h, map[string]interface{}{
		"type": "generate", "prompt": "test", "width": 32, "height": 32, "steps": 1, "count": 2,
		"chain": map[string]interface{}{"upscale": map[string]interface{}{"scale": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["job"].(map[string]interface{})["id"].(string)

	getRec := httptest.NewRecorder()
	h.Jobs.Get(getRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil), id))
	require.Equal(t, http.StatusOK, getRec.Code)
	var getBody map[string]interface{}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &getBody))
	stepViews := getBody["steps"].([]interface{})
	require.Len(t, stepViews, 2)
	assert.Equal(t, "generate", stepViews[0].(map[string]interface{})["name"])
	assert.Equal(t, "upscale", stepViews[1].(map[string]interface{})["name"])

	artRec := httptest.NewRecorder()
	h.Jobs.Artifacts(artRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/artifacts", nil), id))
	var artBody map[string]interface{}
	require.NoError(t, json.Unmarshal(artRec.Body.Bytes(), &artBody))
	artifacts := artBody["artifacts"].([]interface{})
	require.Len(t, artifacts, 4) // 2 generate + 2 upscale

	var sawGenerate, sawUpscale bool
	for _, raw := range artifacts {
		a := raw.(map[string]interface{})
		key := a["s3_key"].(string)
		if strings.Contains(key, "/generate/") {
			sawGenerate = true
		}
		if strings.Contains(key, "/upscale/") {
			sawUpscale = true
			assert.Equal(t, float64(64), a["width"])
			assert.Equal(t, float64(64), a["height"])
		}
	}
	assert.True(t, sawGenerate)
	assert.True(t, sawUpscale)

	progRec := httptest.NewRecorder()
	h.Progress.Snapshot(progRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/progress", nil), id))
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(progRec.Body.Bytes(), &snap))
	assert.Equal(t, 1.0, snap["progress"])

	streamRec := httptest.NewRecorder()
	h.Progress.Stream(streamRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/progress/stream", nil), id))
	assert.Contains(t, streamRec.Body.String(), "event: progress")
}

func TestS5_Validation(t *testing.T) {
	h := newTestHarness(t)

	cases := []map[string]interface{}{
		{"type": "generate", "prompt": "x", "width": 32, "height": 32, "steps": 1, "count": 0},
		{"type": "generate", "prompt": "x", "width": 32, "height": 32, "steps": 1, "count": 101},
		{"type": "generate", "prompt": "x", "width": 32, "height": 32, "steps": 1,
			"chain": map[string]interface{}{"upscale": map[string]interface{}{"scale": 3}}},
		{"type": "generate", "prompt": "x", "width": 32, "height": 32, "steps": 1,
			"chain": map[string]interface{}{"upscale": map[string]interface{}{"scale": 2, "impl": "unknown"}}},
		{"type": "generate", "prompt": "x", "width": 32, "height": 32, "steps": 1,
			"chain": map[string]interface{}{"upscale": map[string]interface{}{"scale": 2, "impl": "diffusion", "strict_scale": true}}},
	}

	for _, body := range cases {
		rec, decoded := submit(t, h, body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "invalid_input", decoded["error_code"])
	}
}

func TestS6_LogsSinceTs(t *testing.T) {
	h := newTestHarness(t)

	rec, body := submit(t, h, map[string]interface{}{
		"type": "generate", "prompt": "test", "width": 32, "height": 32, "steps": 1, "guidance": 1.0, "format": "png",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := body["job"].(map[string]interface{})["id"].(string)

	logsRec := httptest.NewRecorder()
	h.Logs.Tail(logsRec, withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/logs", nil), id))
	lines := ndjsonLines(t, logsRec.Body.Bytes())

	var cursor int64
	for _, l := range lines {
		if l["code"] == models.EventArtifactWritten {
			cursor = int64(l["ts"].(float64))
			break
		}
	}
	require.NotZero(t, cursor)

	sinceReq := withID(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/logs?since_ts="+strconv.FormatInt(cursor, 10), nil), id)
	sinceRec := httptest.NewRecorder()
	h.Logs.Tail(sinceRec, sinceReq)
	sinceLines := ndjsonLines(t, sinceRec.Body.Bytes())

	var codes []interface{}
	for _, l := range sinceLines {
		codes = append(codes, l["code"])
		assert.GreaterOrEqual(t, l["ts"].(float64), float64(cursor))
	}
	assert.Contains(t, codes, models.EventStepFinish)
	assert.Contains(t, codes, models.EventJobFinish)
}

func TestSubmit_IdempotencyReplaysExistingJob(t *testing.T) {
	h := newTestHarness(t)

	body := map[string]interface{}{"type": "generate", "prompt": "test", "width": 32, "height": 32, "steps": 1}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req1 := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(raw))
	req1.Header.Set("Idempotency-Key", "dup-key")
	rec1 := httptest.NewRecorder()
	h.Jobs.Submit(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)
	var decoded1 map[string]interface{}
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &decoded1))
	id1 := decoded1["job"].(map[string]interface{})["id"].(string)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(raw))
	req2.Header.Set("Idempotency-Key", "dup-key")
	rec2 := httptest.NewRecorder()
	h.Jobs.Submit(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	var decoded2 map[string]interface{}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &decoded2))
	id2 := decoded2["job"].(map[string]interface{})["id"].(string)

	assert.Equal(t, id1, id2)
}

// --- small local helpers, kept out of the shared handlers helpers.go since
// they only exist to decode test fixtures ---

func ndjsonLines(t *testing.T, raw []byte) []map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	var out []map[string]interface{}
	for {
		var line map[string]interface{}
		if err := dec.Decode(&line); err != nil {
			break
		}
		out = append(out, line)
	}
	return out
}

func ndjsonCodes(t *testing.T, raw []byte) []interface{} {
	var codes []interface{}
	for _, l := range ndjsonLines(t, raw) {
		codes = append(codes, l["code"])
	}
	return codes
}


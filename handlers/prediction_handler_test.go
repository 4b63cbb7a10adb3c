package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"predictive-maintenance/classifier"
	"predictive-maintenance/models"
	"predictive-maintenance/predict"
	"predictive-maintenance/simulator"
)

type memCache struct {
	mu       sync.Mutex
	latest   map[string]models.SensorReading
	analysis map[string]models.MachineAnalysis
}

func newMemCache() *memCache {
	return &memCache{latest: map[string]models.SensorReading{}, analysis: map[string]models.MachineAnalysis{}}
}

func (c *memCache) SaveLatest(_ context.Context, id string, r models.SensorReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[id] = r
	return nil
}

func (c *memCache) GetLatest(_ context.Context, id string) (*models.SensorReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.latest[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *memCache) GetAnalysis(_ context.Context, id string) (*models.MachineAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.analysis[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

type memHistory struct {
	limit int
	err   error
}

func (h *memHistory) History(_ context.Context, limit int) ([]models.LogRecord, error) {
	h.limit = limit
	return []models.LogRecord{{ID: 1, Status: classifier.StatusNormal}}, h.err
}

// powerModel flags readings whose power factor exceeds 80000.
func powerModel() *classifier.Model {
	w := make([]float64, len(models.DefaultFeatureColumns))
	w[5] = 1
	mean := make([]float64, len(w))
	mean[5] = 80000
	scale := []float64{1, 1, 1, 1, 1, 1000, 1}
	return &classifier.Model{
		Features:  models.DefaultFeatureColumns,
		Mean:      mean,
		Scale:     scale,
		Weights:   w,
		Threshold: 0.5,
	}
}

func newRouter(t *testing.T, withModel bool, cache ReadingCache, history HistoryReader) *mux.Router {
	t.Helper()
	store := classifier.NewStore("unused.json")
	if withModel {
		store.Set(powerModel())
	}
	svc := predict.New(store, models.DefaultFeatureColumns)
	r := mux.NewRouter()
	NewPredictionHandler(svc, cache, history, simulator.New(1)).Register(r)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRootAndHealth(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	for _, path := range []string{"/", "/health"} {
		if rec := do(r, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestPredict_NormalCase(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	before := testutil.ToFloat64(predictionsTotal.WithLabelValues(classifier.StatusNormal))

	rec := do(r, http.MethodPost, "/predict",
		`{"air_temp": 300.0, "process_temp": 310.0, "rpm": 1500, "torque": 40.0, "tool_wear": 100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}

	var p models.Prediction
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Label != 0 || p.Status != classifier.StatusNormal {
		t.Errorf("prediction: %+v", p)
	}
	if p.Reading.PowerFactor != 60000 || p.Reading.TempDiff != 10 {
		t.Errorf("derived fields: %+v", p.Reading)
	}
	if len(p.Features) != 7 || p.Features[2] != 1500 {
		t.Errorf("feature vector: %v", p.Features)
	}
	if got := testutil.ToFloat64(predictionsTotal.WithLabelValues(classifier.StatusNormal)); got != before+1 {
		t.Errorf("predictions_total: got %v, want %v", got, before+1)
	}
}

func TestPredict_FailureRisk(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	rec := do(r, http.MethodPost, "/predict",
		`{"air_temp": 302, "process_temp": 312, "rpm": 1500, "torque": 70, "tool_wear": 240}`)
	var p models.Prediction
	_ = json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Label != 1 || p.Status != classifier.StatusFailureRisk {
		t.Errorf("prediction: %+v", p)
	}
}

func TestPredict_MissingField(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	rec := do(r, http.MethodPost, "/predict", `{"air_temp": 300.0, "rpm": 1500, "torque": 40.0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["field"] != models.ColProcessTemp {
		t.Errorf("field: %q", body["field"])
	}
}

func TestPredict_BadJSON(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	if rec := do(r, http.MethodPost, "/predict", `{"air_temp":`); rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestPredict_NoModel(t *testing.T) {
	r := newRouter(t, false, nil, nil)
	rec := do(r, http.MethodPost, "/predict",
		`{"air_temp": 300, "process_temp": 310, "rpm": 1500, "torque": 40, "tool_wear": 100}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", rec.Code)
	}
}

func TestSimulateThenLatest(t *testing.T) {
	cache := newMemCache()
	r := newRouter(t, true, cache, nil)

	if rec := do(r, http.MethodGet, "/latest?machine_id=press-9", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("latest before simulate: status %d", rec.Code)
	}

	rec := do(r, http.MethodGet, "/simulate?machine_id=press-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: status %d: %s", rec.Code, rec.Body)
	}
	var sim SimulationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sim); err != nil {
		t.Fatal(err)
	}
	if sim.MachineID != "press-9" || sim.Reading.RPM == 0 {
		t.Errorf("simulation: %+v", sim)
	}

	rec = do(r, http.MethodGet, "/latest?machine_id=press-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest: status %d", rec.Code)
	}
	var latest models.EnrichedReading
	_ = json.Unmarshal(rec.Body.Bytes(), &latest)
	if latest.RPM != sim.Reading.RPM || latest.PowerFactor != sim.Reading.PowerFactor {
		t.Errorf("latest %+v does not match simulated %+v", latest, sim.Reading)
	}
}

func TestAnalyze(t *testing.T) {
	cache := newMemCache()
	cache.analysis["press-1"] = models.MachineAnalysis{MachineID: "press-1", Samples: 3}
	r := newRouter(t, true, cache, nil)

	if rec := do(r, http.MethodGet, "/analyze", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("no machine_id: status %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/analyze?machine_id=press-2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown machine: status %d", rec.Code)
	}
	rec := do(r, http.MethodGet, "/analyze?machine_id=press-1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"samples":3`) {
		t.Errorf("analysis: %d %s", rec.Code, rec.Body)
	}
}

func TestHistory(t *testing.T) {
	hist := &memHistory{}
	r := newRouter(t, true, nil, hist)

	if rec := do(r, http.MethodGet, "/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", rec.Code)
	}
	rec := do(r, http.MethodGet, "/history?limit=25", "")
	if rec.Code != http.StatusOK || hist.limit != 25 {
		t.Errorf("history: status %d, limit %d", rec.Code, hist.limit)
	}

	hist.err = errors.New("db down")
	if rec := do(r, http.MethodGet, "/history", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("db error: status %d", rec.Code)
	}
}

func TestOptionalBackends(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	for _, path := range []string{"/history", "/latest", "/analyze?machine_id=x"} {
		if rec := do(r, http.MethodGet, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, true, nil, nil)
	do(r, http.MethodGet, "/health", "")
	rec := do(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Errorf("metrics: %d", rec.Code)
	}
}

func TestCountAnomaly(t *testing.T) {
	CountAnomaly("press-7")
	if got := testutil.ToFloat64(AnomaliesDetectedTotal.WithLabelValues("press-7")); got != 1 {
		t.Errorf("anomalies_detected_total: %v", got)
	}
}

func TestPredict_FeatureMismatch(t *testing.T) {
	m := powerModel()
	m.Features = slices.Clone(models.DefaultFeatureColumns)
	slices.Reverse(m.Features)
	store := classifier.NewStore("unused.json")
	store.Set(m)

	r := mux.NewRouter()
	NewPredictionHandler(predict.New(store, models.DefaultFeatureColumns), nil, nil, simulator.New(1)).Register(r)

	rec := do(r, http.MethodPost, "/predict", `{"air_temp":300,"process_temp":310,"rpm":1500,"torque":40,"tool_wear":10}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503: %s", rec.Code, rec.Body)
	}
}

func TestInstrument_WebsocketUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	r := newRouter(t, true, nil, nil)
	r.HandleFunc("/ws/echo", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello")) //nolint:errcheck
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/echo", nil)
	if err != nil {
		t.Fatalf("dial through instrumented router: %v (resp %v)", err, resp)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != "hello" {
		t.Errorf("message %q, err %v", msg, err)
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("want error from a writer without Hijack")
	}
}

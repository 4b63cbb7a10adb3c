package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"predictive-maintenance/classifier"
	"predictive-maintenance/features"
	"predictive-maintenance/models"
	"predictive-maintenance/predict"
	"predictive-maintenance/simulator"
)

// ReadingCache stores the latest simulated reading and analysis per machine.
type ReadingCache interface {
	SaveLatest(ctx context.Context, machineID string, reading models.SensorReading) error
	GetLatest(ctx context.Context, machineID string) (*models.SensorReading, error)
	GetAnalysis(ctx context.Context, machineID string) (*models.MachineAnalysis, error)
}

type HistoryReader interface {
	History(ctx context.Context, limit int) ([]models.LogRecord, error)
}

type SimulationResponse struct {
	models.Prediction
	Anomalous bool `json:"anomalous"`
}

type PredictionHandler struct {
	service   *predict.Service
	cache     ReadingCache
	history   HistoryReader
	generator *simulator.Generator
}

// NewPredictionHandler wires the API. cache and history may be nil; the
// endpoints that need them then answer 503.
func NewPredictionHandler(svc *predict.Service, cache ReadingCache, history HistoryReader, gen *simulator.Generator) *PredictionHandler {
	return &PredictionHandler{
		service:   svc,
		cache:     cache,
		history:   history,
		generator: gen,
	}
}

// Register adds every API route to r.
func (h *PredictionHandler) Register(r *mux.Router) {
	r.Use(Instrument)
	r.HandleFunc("/", Root).Methods(http.MethodGet)
	r.HandleFunc("/health", HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.HandlePredict).Methods(http.MethodPost)
	r.HandleFunc("/simulate", h.HandleSimulate).Methods(http.MethodGet)
	r.HandleFunc("/latest", h.HandleLatest).Methods(http.MethodGet)
	r.HandleFunc("/analyze", h.HandleAnalyze).Methods(http.MethodGet)
	r.HandleFunc("/history", h.HandleHistory).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())
}

func (h *PredictionHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.ReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	reading, err := features.DeriveRecord(req.ToRecord())
	if err != nil {
		var mfe *features.MissingFieldError
		if errors.As(err, &mfe) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
				"field": mfe.Field,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading.Timestamp = time.Now().UTC()

	h.respondPrediction(w, r, req.MachineID, reading)
}

func (h *PredictionHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	machineID := machineParam(r)
	raw := h.generator.Generate()

	if h.cache != nil {
		if err := h.cache.SaveLatest(r.Context(), machineID, raw); err != nil {
			slog.Error("cache latest reading failed", "machine_id", machineID, "err", err)
		}
	}

	p, err := h.service.Predict(r.Context(), machineID, features.Derive(raw))
	if err != nil {
		writePredictError(w, err)
		return
	}
	predictionsTotal.WithLabelValues(p.Status).Inc()
	writeJSON(w, http.StatusOK, SimulationResponse{Prediction: p, Anomalous: simulator.IsAnomalous(raw)})
}

func (h *PredictionHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	machineID := machineParam(r)
	reading, err := h.cache.GetLatest(r.Context(), machineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get reading: "+err.Error())
		return
	}
	if reading == nil {
		writeError(w, http.StatusNotFound, "no reading for machine "+machineID)
		return
	}
	writeJSON(w, http.StatusOK, features.Derive(*reading))
}

func (h *PredictionHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		writeError(w, http.StatusBadRequest, "machine_id parameter is required")
		return
	}
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}

	result, err := h.cache.GetAnalysis(r.Context(), machineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get analysis: "+err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no analysis for machine "+machineID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PredictionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction log not configured")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	records, err := h.history.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch history: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *PredictionHandler) respondPrediction(w http.ResponseWriter, r *http.Request, machineID string, reading models.EnrichedReading) {
	p, err := h.service.Predict(r.Context(), machineID, reading)
	if err != nil {
		writePredictError(w, err)
		return
	}
	predictionsTotal.WithLabelValues(p.Status).Inc()
	writeJSON(w, http.StatusOK, p)
}

func Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "API is running. Use the /predict endpoint for predictions.",
	})
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func machineParam(r *http.Request) string {
	if id := r.URL.Query().Get("machine_id"); id != "" {
		return id
	}
	return predict.DefaultMachineID
}

func writePredictError(w http.ResponseWriter, err error) {
	var mfe *features.MissingFieldError
	switch {
	case errors.Is(err, classifier.ErrModelNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
	case errors.Is(err, classifier.ErrFeatureMismatch):
		slog.Error("model does not match configured features", "err", err)
		writeError(w, http.StatusServiceUnavailable, "model does not match configured features")
	case errors.As(err, &mfe):
		writeError(w, http.StatusInternalServerError, "feature column not available: "+mfe.Field)
	default:
		slog.Error("prediction failed", "err", err)
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "err", err)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

const (
	queryType        = "type"
	queryCritical    = "critical"
	queryFrom        = "from"
	queryTo          = "to"
	queryPrioritized = "prioritized"
	querySize        = "size"

	headerActor  = "X-User"
	defaultActor = "system"
	maxBatchSize = 1000
)

type handler struct {
	deps   Deps
	logger *logging.Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/healthz", h.handleHealth)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	if h.deps.Stream != nil {
		router.Method(http.MethodGet, "/ws", h.deps.Stream)
	}

	router.Route("/api", func(r chi.Router) {
		if h.deps.Diagnostics != nil {
			r.Get("/stats", h.handleStats)
		}
		if h.deps.Readings != nil {
			r.Get("/readings", h.handleListReadings)
			r.Get("/readings/counts", h.handleReadingCounts)
			r.Get("/readings/{type}/summary", h.handleReadingSummary)
		}
		if h.deps.Submitter != nil {
			r.Post("/readings", h.handleIngest)
		}
		if h.deps.Alerts != nil {
			r.Get("/alerts", h.handleListAlerts)
			r.Post("/alerts/{id}/acknowledge", h.handleAcknowledge)
			r.Post("/alerts/{id}/resolve", h.handleResolve)
		}
		if h.deps.Simulation != nil {
			r.Get("/simulation", h.handleSimulationState)
			r.Post("/simulation/enable", h.handleSimulationToggle(true))
			r.Post("/simulation/disable", h.handleSimulationToggle(false))
			r.Post("/simulation/batch", h.handleSimulationBatch)
		}
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type readingSummaryResponse struct {
	Type                string   `json:"type"`
	Description         string   `json:"description"`
	Count               int64    `json:"count"`
	AverageProcessingMs *float64 `json:"averageProcessingMs"`
}

type ingestRequest struct {
	Type        string     `json:"type"`
	SourceID    string     `json:"sensorId"`
	Location    string     `json:"location"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	Description string     `json:"description"`
	ObservedAt  *time.Time `json:"timestamp"`
}

type actorRequest struct {
	Actor string `json:"actor"`
}

type simulationResponse struct {
	Enabled bool `json:"enabled"`
}

type batchResponse struct {
	Submitted int `json:"submitted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	diag, err := h.deps.Diagnostics.Diagnostics(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, diag)
}

func (h *handler) handleListReadings(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	typeParam := params.Get(queryType)
	criticalParam := params.Get(queryCritical)
	fromParam := params.Get(queryFrom)
	toParam := params.Get(queryTo)

	var (
		readings []domain.Reading
		err      error
	)
	switch {
	case typeParam != "" && (criticalParam != "" || fromParam != "" || toParam != ""):
		h.writeError(w, http.StatusBadRequest, "provide only one of type, critical or time range")
		return
	case typeParam != "":
		sensorType, perr := domain.ParseSensorType(typeParam)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, "unknown sensor type")
			return
		}
		readings, err = h.deps.Readings.FindByType(r.Context(), sensorType)
	case criticalParam != "":
		critical, perr := strconv.ParseBool(criticalParam)
		if perr != nil || !critical {
			h.writeError(w, http.StatusBadRequest, "critical only supports true")
			return
		}
		readings, err = h.deps.Readings.FindCritical(r.Context())
	case fromParam != "" || toParam != "":
		from, to, ok := h.parseRange(w, fromParam, toParam)
		if !ok {
			return
		}
		readings, err = h.deps.Readings.FindByTimeRange(r.Context(), from, to)
	default:
		h.writeError(w, http.StatusBadRequest, "missing required query parameters")
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, readings)
}

func (h *handler) parseRange(w http.ResponseWriter, fromParam, toParam string) (time.Time, time.Time, bool) {
	if fromParam == "" || toParam == "" {
		h.writeError(w, http.StatusBadRequest, "both from and to parameters are required")
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339Nano, fromParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339Nano, toParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return time.Time{}, time.Time{}, false
	}
	if from.After(to) {
		h.writeError(w, http.StatusBadRequest, "from must be before to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *handler) handleReadingCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.deps.Readings.CountAllByType(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

func (h *handler) handleReadingSummary(w http.ResponseWriter, r *http.Request) {
	sensorType, err := domain.ParseSensorType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown sensor type")
		return
	}

	count, err := h.deps.Readings.CountByType(r.Context(), sensorType)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	avg, ok, err := h.deps.Readings.AverageProcessingTime(r.Context(), sensorType)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := readingSummaryResponse{Type: string(sensorType), Description: sensorType.Description(), Count: count}
	if ok {
		resp.AverageProcessingMs = &avg
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sensorType, err := domain.ParseSensorType(req.Type)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown sensor type")
		return
	}

	reading := domain.Reading{
		Type:        sensorType,
		SourceID:    req.SourceID,
		Location:    req.Location,
		Value:       req.Value,
		Unit:        req.Unit,
		Description: req.Description,
		ObservedAt:  time.Now().UTC(),
	}
	if req.ObservedAt != nil {
		reading.ObservedAt = req.ObservedAt.UTC()
	}
	if err := reading.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	future, err := h.deps.Submitter.Submit(reading)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	processed, err := future.Await(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, processed)
}

func (h *handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	list := h.deps.Alerts.ListActive
	if prioritized, _ := strconv.ParseBool(r.URL.Query().Get(queryPrioritized)); prioritized {
		list = h.deps.Alerts.ListActivePrioritized
	}
	alerts, err := list(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

func (h *handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.alertTransition(w, r, h.deps.Alerts.Acknowledge)
}

func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.alertTransition(w, r, h.deps.Alerts.Resolve)
}

func (h *handler) alertTransition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id int64, actor string) (domain.Alert, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := apply(r.Context(), id, actorFrom(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(headerActor)); actor != "" {
		return actor
	}
	var body actorRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && strings.TrimSpace(body.Actor) != "" {
			return strings.TrimSpace(body.Actor)
		}
	}
	return defaultActor
}

func (h *handler) handleSimulationState(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, simulationResponse{Enabled: h.deps.Simulation.Enabled()})
}

func (h *handler) handleSimulationToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if enable {
			h.deps.Simulation.Enable()
		} else {
			h.deps.Simulation.Disable()
		}
		h.logger.Info("simulation toggled", "enabled", enable)
		h.writeJSON(w, http.StatusOK, simulationResponse{Enabled: h.deps.Simulation.Enabled()})
	}
}

func (h *handler) handleSimulationBatch(w http.ResponseWriter, r *http.Request) {
	size := 10
	if raw := r.URL.Query().Get(querySize); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxBatchSize {
			h.writeError(w, http.StatusBadRequest, "size must be between 1 and 1000")
			return
		}
		size = n
	}

	results, err := h.deps.Simulation.Tick(r.Context(), size).Await(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	resp := batchResponse{Submitted: len(results)}
	for _, res := range results {
		if res.Err != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidReading), errors.Is(err, domain.ErrUnknownSensorType):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrDispatcherClosed), errors.Is(err, domain.ErrCancelled):
		h.writeError(w, http.StatusServiceUnavailable, "processing capacity exhausted")
	default:
		h.logger.Error("request failed", logging.AttachError(err)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

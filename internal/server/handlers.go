package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"shipment-tracker/internal/carriers"
	"shipment-tracker/internal/tracking"
)

// maxBatchSize bounds the shipments of one POST /api/track request
const maxBatchSize = 50

// reserved query keys of the track endpoint; every other key is a carrier param
var reservedQueryKeys = map[string]bool{"lang": true, "refresh": true, "provider": true}

// HealthChecker reports the health of a backing store
type HealthChecker interface {
	IsHealthy() error
}

// Handler serves the tracking API
type Handler struct {
	service  *tracking.Service
	db       HealthChecker
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a handler. db may be nil when no database is used.
func NewHandler(service *tracking.Service, db HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service:  service,
		db:       db,
		logger:   logger,
		validate: validator.New(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// BatchRequest is the body of POST /api/track
type BatchRequest struct {
	Requests []tracking.Request `json:"requests" validate:"required,min=1,max=50,dive"`
}

// BatchResponse carries one result per request, in request order
type BatchResponse struct {
	Results []tracking.Result `json:"results"`
}

// HealthCheck handles GET /api/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "healthy",
		Database: "ok",
	}
	if h.db == nil {
		response.Database = "disabled"
		writeJSON(w, http.StatusOK, response)
		return
	}

	if err := h.db.IsHealthy(); err != nil {
		response.Status = "unhealthy"
		response.Database = "error"
		response.Message = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetCarriers handles GET /api/carriers
func (h *Handler) GetCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"carriers":  h.service.Carriers(),
		"providers": h.service.Providers(),
	})
}

// GetTrackingURL handles GET /api/carriers/{carrier}/url/{number}
func (h *Handler) GetTrackingURL(w http.ResponseWriter, r *http.Request) {
	carrier, number := chi.URLParam(r, "carrier"), chi.URLParam(r, "number")

	params, err := queryParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	trackingURL, err := h.service.TrackingURL(carrier, number, r.URL.Query().Get("lang"), params)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"carrier":         carrier,
		"tracking_number": number,
		"tracking_url":    trackingURL,
	})
}

// TrackShipment handles GET /api/carriers/{carrier}/track/{number}
func (h *Handler) TrackShipment(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := tracking.Request{
		Carrier:        chi.URLParam(r, "carrier"),
		TrackingNumber: chi.URLParam(r, "number"),
		Language:       query.Get("lang"),
		Provider:       query.Get("provider"),
	}

	if raw := query.Get("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("invalid refresh value: %q", raw))
			return
		}
		req.Refresh = refresh
	}

	params, err := queryParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	req.Params = params

	result, err := h.service.Track(r.Context(), req)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TrackBatch handles POST /api/track
func (h *Handler) TrackBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "Invalid JSON")
		return
	}

	if err := h.validate.Struct(batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", validationMessage(err))
		return
	}

	results := h.service.TrackMany(r.Context(), batch.Requests)
	writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// InvalidateShipment handles DELETE /api/carriers/{carrier}/track/{number}/cache
func (h *Handler) InvalidateShipment(w http.ResponseWriter, r *http.Request) {
	carrier, number := chi.URLParam(r, "carrier"), chi.URLParam(r, "number")

	removed, err := h.service.Invalidate(carrier, number)
	if err != nil {
		h.writeTrackingError(w, err)
		return
	}

	h.logger.Info("Invalidated cached tracks", "carrier", carrier, "tracking_number", number, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// CacheStats handles GET /api/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CacheStats()
	if err != nil {
		h.logger.Error("Failed to get cache stats", "error", err)
		writeError(w, http.StatusInternalServerError, "error", "Failed to get cache stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeTrackingError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= 500 {
		h.logger.Error("Tracking request failed", "error", err)
	}
	writeError(w, status, tracking.Outcome(err), err.Error())
}

// errorStatus maps tracking failures to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, carriers.ErrUnknownCarrier):
		return http.StatusNotFound
	case errors.Is(err, carriers.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, carriers.ErrFetch), errors.Is(err, carriers.ErrParse), errors.Is(err, carriers.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// queryParams collects the carrier params of a request. Keys prefixed with
// "tracking_url." or "endpoint_url." build the split form; the bare group
// names are rejected.
func queryParams(r *http.Request) (map[string]any, error) {
	params := map[string]any{}
	for key, values := range r.URL.Query() {
		if reservedQueryKeys[key] {
			continue
		}
		var value any = values[0]
		if len(values) > 1 {
			value = values
		}

		if key == "tracking_url" || key == "endpoint_url" {
			return nil, fmt.Errorf("param %q needs a name, use %s.<name>=value", key, key)
		}
		group, name, nested := strings.Cut(key, ".")
		if !nested || (group != "tracking_url" && group != "endpoint_url") {
			params[key] = value
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("empty param name in %q", key)
		}
		sub, ok := params[group].(map[string]any)
		if !ok {
			sub = map[string]any{}
			params[group] = sub
		}
		sub[name] = value
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.TrimPrefix(fe.Namespace(), "BatchRequest.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must contain between 1 and %d items", field, maxBatchSize))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Code: status, Kind: kind, Message: message})
}

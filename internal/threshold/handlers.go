package threshold

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/acopio-api/internal/common"
	"github.com/noah-isme/acopio-api/internal/quality"
)

// Handler exposes threshold management endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the threshold admin endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/thresholds", h.List)
	r.Post("/thresholds", h.Create)
	r.Put("/thresholds/{thresholdID}", h.Update)
}

type createRequest struct {
	FruitTypeID  string `json:"fruit_type_id" validate:"required,uuid4"`
	Metric       string `json:"metric" validate:"required"`
	LimitPercent string `json:"limit_percent" validate:"required,max=32"`
}

type updateRequest struct {
	LimitPercent string `json:"limit_percent" validate:"required,max=32"`
	Enabled      *bool  `json:"enabled"`
}

type thresholdResponse struct {
	ID           string `json:"id"`
	FruitTypeID  string `json:"fruit_type_id"`
	Metric       string `json:"metric"`
	LimitPercent string `json:"limit_percent"`
	Enabled      bool   `json:"enabled"`
}

// List handles GET /admin/thresholds?fruit_type_id=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	fruitTypeID, err := uuid.Parse(r.URL.Query().Get("fruit_type_id"))
	if err != nil {
		common.RenderError(w, common.Validation("fruit_type_id query parameter is required", nil))
		return
	}
	rows, err := h.Svc.List(r.Context(), fruitTypeID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list thresholds")
		common.RenderError(w, err)
		return
	}
	out := make([]thresholdResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toResponse(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"thresholds": out})
}

// Create handles POST /admin/thresholds.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, common.Validation("invalid request body", nil))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.RenderError(w, common.Validation("request validation failed", err.Error()))
			return
		}
	}
	fruitTypeID, err := uuid.Parse(req.FruitTypeID)
	if err != nil {
		common.RenderError(w, common.Validation("invalid fruit type id", nil))
		return
	}
	metric, ok := quality.ParseMetric(req.Metric)
	if !ok {
		common.RenderError(w, common.Validation("unknown metric: "+req.Metric, nil))
		return
	}
	limit, ok := common.ParsePercent(req.LimitPercent)
	if !ok {
		common.RenderError(w, common.Validation("limit_percent must be a percentage between 0 and 100", nil))
		return
	}

	row, err := h.Svc.Create(r.Context(), fruitTypeID, metric, limit)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toResponse(row))
}

// Update handles PUT /admin/thresholds/{thresholdID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "thresholdID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid threshold id", nil))
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, common.Validation("invalid request body", nil))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.RenderError(w, common.Validation("request validation failed", err.Error()))
			return
		}
	}
	limit, ok := common.ParsePercent(req.LimitPercent)
	if !ok {
		common.RenderError(w, common.Validation("limit_percent must be a percentage between 0 and 100", nil))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	row, err := h.Svc.Update(r.Context(), id, limit, enabled)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toResponse(row))
}

func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrThresholdExists):
		common.RenderError(w, common.Conflict("threshold already exists for this fruit type and metric"))
	case errors.Is(err, ErrThresholdNotFound):
		common.RenderError(w, common.NotFound("threshold not found"))
	case errors.Is(err, ErrFruitTypeNotFound):
		common.RenderError(w, common.NotFound("fruit type not found"))
	default:
		h.Logger.Error().Err(err).Msg("threshold handler")
		common.RenderError(w, err)
	}
}

func toResponse(row Row) thresholdResponse {
	return thresholdResponse{
		ID:           row.ID.String(),
		FruitTypeID:  row.FruitTypeID.String(),
		Metric:       string(row.Metric),
		LimitPercent: row.LimitPercent.String(),
		Enabled:      row.Enabled,
	}
}

package quality

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/common"
)

// Handler exposes quality reading endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the reading endpoints under a reception.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/receptions/{receptionID}/quality", h.CreateReading)
	r.Put("/receptions/{receptionID}/quality", h.UpdateReading)
}

type readingRequest struct {
	Violetas   *string `json:"violetas_percent" validate:"omitempty,max=32"`
	Humedad    *string `json:"humedad_percent" validate:"omitempty,max=32"`
	Moho       *string `json:"moho_percent" validate:"omitempty,max=32"`
	RecordedBy string  `json:"recorded_by" validate:"omitempty,max=120"`
}

type lineItemResponse struct {
	Parameter        string `json:"parameter"`
	ThresholdPercent string `json:"threshold_percent"`
	ObservedPercent  string `json:"observed_percent"`
	DiscountPercent  string `json:"discount_percent"`
	DeductedWeightKG string `json:"deducted_weight_kg"`
}

type readingResponse struct {
	ReadingID            string             `json:"reading_id"`
	ReceptionID          string             `json:"reception_id"`
	TotalDiscountKG      string             `json:"total_discount_kg"`
	TotalDiscountPercent string             `json:"total_discount_percent"`
	FinalWeightKG        string             `json:"final_weight_kg"`
	Breakdown            []lineItemResponse `json:"breakdown"`
}

// CreateReading handles POST /receptions/{receptionID}/quality.
func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	receptionID, err := uuid.Parse(chi.URLParam(r, "receptionID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid reception id", nil))
		return
	}
	values, recordedBy, appErr := h.decodeReading(r)
	if appErr != nil {
		common.RenderError(w, appErr)
		return
	}

	outcome, err := h.Svc.CreateReading(r.Context(), receptionID, recordedBy, values)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, toReadingResponse(outcome))
}

// UpdateReading handles PUT /receptions/{receptionID}/quality.
func (h *Handler) UpdateReading(w http.ResponseWriter, r *http.Request) {
	receptionID, err := uuid.Parse(chi.URLParam(r, "receptionID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid reception id", nil))
		return
	}
	values, _, appErr := h.decodeReading(r)
	if appErr != nil {
		common.RenderError(w, appErr)
		return
	}

	outcome, err := h.Svc.UpdateReading(r.Context(), receptionID, values)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, toReadingResponse(outcome))
}

func (h *Handler) decodeReading(r *http.Request) (MetricValues, string, error) {
	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return MetricValues{}, "", common.Validation("invalid request body", nil)
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			return MetricValues{}, "", common.Validation("request validation failed", err.Error())
		}
	}
	var values MetricValues
	var appErr error
	if values.Violetas, appErr = parsePercentField("violetas_percent", req.Violetas); appErr != nil {
		return MetricValues{}, "", appErr
	}
	if values.Humedad, appErr = parsePercentField("humedad_percent", req.Humedad); appErr != nil {
		return MetricValues{}, "", appErr
	}
	if values.Moho, appErr = parsePercentField("moho_percent", req.Moho); appErr != nil {
		return MetricValues{}, "", appErr
	}
	if values.Violetas == nil && values.Humedad == nil && values.Moho == nil {
		return MetricValues{}, "", common.Validation("at least one metric value is required", nil)
	}
	return values, req.RecordedBy, nil
}

func parsePercentField(name string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, ok := common.ParsePercent(*raw)
	if !ok {
		return nil, common.Validation(name+" must be a percentage between 0 and 100", nil)
	}
	return &d, nil
}

func (h *Handler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrReceptionNotFound):
		common.RenderError(w, common.NotFound("reception not found"))
	case errors.Is(err, ErrReadingExists):
		common.RenderError(w, common.Conflict("reception already has a quality reading"))
	case errors.Is(err, ErrReadingNotFound):
		common.RenderError(w, common.NotFound("quality reading not found"))
	default:
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("quality handler")
		common.RenderError(w, err)
	}
}

func toReadingResponse(o RecomputeOutcome) readingResponse {
	resp := readingResponse{
		ReadingID:            o.Reading.ID.String(),
		ReceptionID:          o.Reading.ReceptionID.String(),
		TotalDiscountKG:      common.WeightString(o.Discount.TotalDiscountWeight),
		TotalDiscountPercent: o.Discount.TotalDiscountPercent.StringFixed(4),
		FinalWeightKG:        common.WeightString(o.FinalWeight),
		Breakdown:            make([]lineItemResponse, 0, len(o.Discount.Breakdown)),
	}
	for _, item := range o.Discount.Breakdown {
		resp.Breakdown = append(resp.Breakdown, lineItemResponse{
			Parameter:        string(item.Parameter),
			ThresholdPercent: item.ThresholdPercent.String(),
			ObservedPercent:  item.ObservedPercent.String(),
			DiscountPercent:  item.DiscountPercent.String(),
			DeductedWeightKG: common.WeightString(item.DeductedWeight),
		})
	}
	return resp
}

package batch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/common"
)

// Handler exposes batch endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the batch endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/batches", h.Create)
	r.Get("/batches", h.List)
	r.Get("/batches/{batchID}", h.Get)
	r.Post("/batches/{batchID}/contributions", h.AddContribution)
	r.Post("/batches/{batchID}/dried-weight", h.SetDriedWeight)
}

type createRequest struct {
	ProcessType string `json:"process_type" validate:"required,oneof=drying fermentation both"`
}

type contributionRequest struct {
	ReceptionID string `json:"reception_id" validate:"required,uuid4"`
	WetWeightKG string `json:"wet_weight_kg" validate:"required,max=32"`
}

type driedWeightRequest struct {
	TotalDriedKG string `json:"total_dried_kg" validate:"required,max=32"`
}

type batchResponse struct {
	ID              string  `json:"id"`
	ProcessType     string  `json:"process_type"`
	Status          string  `json:"status"`
	TotalWetKG      string  `json:"total_wet_kg"`
	TotalDriedKG    *string `json:"total_dried_kg,omitempty"`
	SackCount       *int64  `json:"sack_count,omitempty"`
	SackRemainderKG *string `json:"sack_remainder_kg,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type contributionResponse struct {
	ID             string  `json:"id"`
	ReceptionID    string  `json:"reception_id"`
	WetWeightKG    string  `json:"wet_weight_kg"`
	PercentOfTotal *string `json:"percent_of_total,omitempty"`
	DriedShareKG   *string `json:"dried_share_kg,omitempty"`
}

type batchDetailResponse struct {
	batchResponse
	Contributions []contributionResponse `json:"contributions"`
}

// Create handles POST /batches.
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
	b, err := h.Svc.Create(r.Context(), req.ProcessType)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toBatchResponse(b))
}

// Get handles GET /batches/{batchID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid batch id", nil))
		return
	}
	b, contribs, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toDetailResponse(b, contribs))
}

// List handles GET /batches?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	batches, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list batches")
		common.RenderError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	common.JSON(w, http.StatusOK, map[string]any{"batches": out})
}

// AddContribution handles POST /batches/{batchID}/contributions.
func (h *Handler) AddContribution(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid batch id", nil))
		return
	}
	var req contributionRequest
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
	receptionID, err := uuid.Parse(req.ReceptionID)
	if err != nil {
		common.RenderError(w, common.Validation("invalid reception id", nil))
		return
	}
	wet, ok := common.ParseWeight(req.WetWeightKG)
	if !ok || wet.Sign() <= 0 {
		common.RenderError(w, common.Validation("wet_weight_kg must be a positive weight", nil))
		return
	}

	contrib, err := h.Svc.AddContribution(r.Context(), batchID, receptionID, wet)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toContributionResponse(contrib))
}

// SetDriedWeight handles POST /batches/{batchID}/dried-weight.
func (h *Handler) SetDriedWeight(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid batch id", nil))
		return
	}
	var req driedWeightRequest
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
	dried, ok := common.ParseWeight(req.TotalDriedKG)
	if !ok || dried.Sign() <= 0 {
		common.RenderError(w, common.Validation("total_dried_kg must be a positive weight", nil))
		return
	}

	b, contribs, err := h.Svc.SetDriedWeight(r.Context(), batchID, dried)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toDetailResponse(b, contribs))
}

func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBatchNotFound):
		common.RenderError(w, common.NotFound("batch not found"))
	case errors.Is(err, ErrReceptionNotFound):
		common.RenderError(w, common.NotFound("reception not found"))
	case errors.Is(err, ErrBatchCompleted):
		common.RenderError(w, common.Conflict("batch is already completed"))
	case errors.Is(err, ErrContributionExists):
		common.RenderError(w, common.Conflict("reception already contributes to this batch"))
	case errors.Is(err, ErrUnknownProcessType), errors.Is(err, ErrNoWetWeight):
		common.RenderError(w, common.Validation(err.Error(), nil))
	default:
		h.Logger.Error().Err(err).Msg("batch handler")
		common.RenderError(w, err)
	}
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		ID:              b.ID.String(),
		ProcessType:     b.ProcessType,
		Status:          b.Status,
		TotalWetKG:      common.WeightString(b.TotalWetWeight),
		TotalDriedKG:    weightPtr(b.TotalDried),
		SackCount:       b.SackCount,
		SackRemainderKG: weightPtr(b.SackRemainder),
		CreatedAt:       b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toDetailResponse(b Batch, contribs []StoredContribution) batchDetailResponse {
	resp := batchDetailResponse{
		batchResponse: toBatchResponse(b),
		Contributions: make([]contributionResponse, 0, len(contribs)),
	}
	for _, c := range contribs {
		resp.Contributions = append(resp.Contributions, toContributionResponse(c))
	}
	return resp
}

func toContributionResponse(c StoredContribution) contributionResponse {
	resp := contributionResponse{
		ID:           c.ID.String(),
		ReceptionID:  c.ReceptionID.String(),
		WetWeightKG:  common.WeightString(c.WetWeight),
		DriedShareKG: weightPtr(c.DriedShare),
	}
	if c.PercentOfTotal != nil {
		s := c.PercentOfTotal.String()
		resp.PercentOfTotal = &s
	}
	return resp
}

func weightPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := common.WeightString(*d)
	return &s
}

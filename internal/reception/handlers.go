package reception

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/acopio-api/internal/common"
	"github.com/noah-isme/acopio-api/internal/quality"
)

// Handler exposes reception endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the reception endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/receptions", h.Create)
	r.Get("/receptions", h.List)
	r.Get("/receptions/{receptionID}", h.Get)
}

type createRequest struct {
	FruitType        string  `json:"fruit_type" validate:"required,max=32"`
	SupplierName     string  `json:"supplier_name" validate:"required,max=160"`
	CacaoSubtype     string  `json:"cacao_subtype" validate:"omitempty,max=32"`
	ReceivedAt       string  `json:"received_at" validate:"omitempty,datetime=2006-01-02"`
	OriginalWeightKG string  `json:"original_weight_kg" validate:"required,max=32"`
	LabSampleWetKG   *string `json:"lab_sample_wet_kg" validate:"omitempty,max=32"`
	LabSampleDriedKG *string `json:"lab_sample_dried_kg" validate:"omitempty,max=32"`
}

type receptionResponse struct {
	ID                   string  `json:"id"`
	FruitType            string  `json:"fruit_type"`
	SupplierName         string  `json:"supplier_name"`
	CacaoSubtype         string  `json:"cacao_subtype,omitempty"`
	ReceivedAt           string  `json:"received_at"`
	OriginalWeightKG     string  `json:"original_weight_kg"`
	TotalDiscountKG      *string `json:"total_discount_kg,omitempty"`
	FinalWeightKG        *string `json:"final_weight_kg,omitempty"`
	LabSampleWetKG       *string `json:"lab_sample_wet_kg,omitempty"`
	LabSampleDriedKG     *string `json:"lab_sample_dried_kg,omitempty"`
	PricingCalculationID *string `json:"pricing_calculation_id,omitempty"`
}

type lineItemResponse struct {
	Parameter        string `json:"parameter"`
	ThresholdPercent string `json:"threshold_percent"`
	ObservedPercent  string `json:"observed_percent"`
	DiscountPercent  string `json:"discount_percent"`
	DeductedWeightKG string `json:"deducted_weight_kg"`
}

type calculationResponse struct {
	ID             string `json:"id"`
	CurrencyCode   string `json:"currency_code"`
	PriceDate      string `json:"price_date"`
	PricePerKG     string `json:"price_per_kg"`
	GrossAmount    string `json:"gross_amount"`
	DiscountAmount string `json:"discount_amount"`
	NetAmount      string `json:"net_amount"`
}

type detailResponse struct {
	receptionResponse
	Breakdown []lineItemResponse   `json:"breakdown"`
	Pricing   *calculationResponse `json:"pricing,omitempty"`
}

// Create handles POST /receptions.
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
	n, appErr := toNewReception(req)
	if appErr != nil {
		common.RenderError(w, appErr)
		return
	}

	rec, err := h.Svc.Create(r.Context(), n)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toReceptionResponse(rec))
}

// Get handles GET /receptions/{receptionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "receptionID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid reception id", nil))
		return
	}
	detail, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toDetailResponse(detail))
}

// List handles GET /receptions?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recs, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list receptions")
		common.RenderError(w, err)
		return
	}
	out := make([]receptionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toReceptionResponse(rec))
	}
	common.JSON(w, http.StatusOK, map[string]any{"receptions": out})
}

func (h *Handler) renderServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReceptionNotFound):
		common.RenderError(w, common.NotFound("reception not found"))
	case errors.Is(err, ErrFruitTypeNotFound):
		common.RenderError(w, common.NotFound("unknown fruit type"))
	default:
		if _, ok := common.AsAppError(err); !ok {
			h.Logger.Error().Err(err).Msg("reception handler")
		}
		common.RenderError(w, err)
	}
}

func toNewReception(req createRequest) (NewReception, error) {
	n := NewReception{
		FruitTypeCode: req.FruitType,
		SupplierName:  req.SupplierName,
		CacaoSubtype:  req.CacaoSubtype,
	}
	var ok bool
	if n.OriginalWeight, ok = common.ParseWeight(req.OriginalWeightKG); !ok {
		return NewReception{}, common.Validation("original_weight_kg must be a non-negative weight", nil)
	}
	if req.ReceivedAt != "" {
		parsed, err := time.Parse("2006-01-02", req.ReceivedAt)
		if err != nil {
			return NewReception{}, common.Validation("received_at must be YYYY-MM-DD", nil)
		}
		n.ReceivedAt = parsed
	}
	var appErr error
	if n.LabSampleWetWeight, appErr = parseWeightField("lab_sample_wet_kg", req.LabSampleWetKG); appErr != nil {
		return NewReception{}, appErr
	}
	if n.LabSampleDriedWeight, appErr = parseWeightField("lab_sample_dried_kg", req.LabSampleDriedKG); appErr != nil {
		return NewReception{}, appErr
	}
	return n, nil
}

func parseWeightField(name string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, ok := common.ParseWeight(*raw)
	if !ok {
		return nil, common.Validation(name+" must be a non-negative weight", nil)
	}
	return &d, nil
}

func toReceptionResponse(rec Reception) receptionResponse {
	return receptionResponse{
		ID:                   rec.ID.String(),
		FruitType:            rec.FruitTypeCode,
		SupplierName:         rec.SupplierName,
		CacaoSubtype:         rec.CacaoSubtype,
		ReceivedAt:           rec.ReceivedAt.Format("2006-01-02"),
		OriginalWeightKG:     common.WeightString(rec.OriginalWeight),
		TotalDiscountKG:      weightPtr(rec.TotalDiscount),
		FinalWeightKG:        weightPtr(rec.FinalWeight),
		LabSampleWetKG:       weightPtr(rec.LabSampleWetWeight),
		LabSampleDriedKG:     weightPtr(rec.LabSampleDriedWeight),
		PricingCalculationID: uuidPtr(rec.PricingCalculationID),
	}
}

func toDetailResponse(detail Detail) detailResponse {
	resp := detailResponse{
		receptionResponse: toReceptionResponse(detail.Reception),
		Breakdown:         make([]lineItemResponse, 0, len(detail.Breakdown)),
	}
	for _, item := range detail.Breakdown {
		resp.Breakdown = append(resp.Breakdown, toLineItemResponse(item))
	}
	if detail.Pricing != nil {
		resp.Pricing = &calculationResponse{
			ID:             detail.Pricing.ID.String(),
			CurrencyCode:   detail.Pricing.CurrencyCode,
			PriceDate:      detail.Pricing.PriceDate.Format("2006-01-02"),
			PricePerKG:     detail.Pricing.PricePerKG.String(),
			GrossAmount:    common.MoneyString(detail.Pricing.GrossAmount),
			DiscountAmount: common.MoneyString(detail.Pricing.DiscountAmount),
			NetAmount:      common.MoneyString(detail.Pricing.NetAmount),
		}
	}
	return resp
}

func toLineItemResponse(item quality.LineItem) lineItemResponse {
	return lineItemResponse{
		Parameter:        string(item.Parameter),
		ThresholdPercent: item.ThresholdPercent.String(),
		ObservedPercent:  item.ObservedPercent.String(),
		DiscountPercent:  item.DiscountPercent.String(),
		DeductedWeightKG: common.WeightString(item.DeductedWeight),
	}
}

func weightPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := common.WeightString(*d)
	return &s
}

func uuidPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

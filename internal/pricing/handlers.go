package pricing

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

	"github.com/noah-isme/acopio-api/internal/common"
)

// Handler exposes pricing endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the reception pricing endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/receptions/{receptionID}/pricing", h.CalculatePricing)
}

// AdminRoutes mounts the daily price table management endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/prices", h.SetDailyPrice)
	r.Get("/prices", h.ListDailyPrices)
}

type calculationResponse struct {
	CalculationID  string `json:"calculation_id"`
	ReceptionID    string `json:"reception_id"`
	CurrencyCode   string `json:"currency_code"`
	PriceDate      string `json:"price_date"`
	PricePerKG     string `json:"price_per_kg"`
	GrossAmount    string `json:"gross_amount"`
	DiscountAmount string `json:"discount_amount"`
	NetAmount      string `json:"net_amount"`
}

type pricingResponse struct {
	Status      string               `json:"status"`
	Calculation *calculationResponse `json:"calculation,omitempty"`
}

// CalculatePricing handles POST /receptions/{receptionID}/pricing.
func (h *Handler) CalculatePricing(w http.ResponseWriter, r *http.Request) {
	receptionID, err := uuid.Parse(chi.URLParam(r, "receptionID"))
	if err != nil {
		common.RenderError(w, common.Validation("invalid reception id", nil))
		return
	}
	outcome, err := h.Svc.CalculateForReception(r.Context(), receptionID)
	if err != nil {
		if errors.Is(err, ErrReceptionNotFound) {
			common.RenderError(w, common.NotFound("reception not found"))
			return
		}
		h.Logger.Error().Err(err).Str("reception_id", receptionID.String()).Msg("calculate pricing")
		common.RenderError(w, err)
		return
	}
	if outcome.Status == StatusUnavailable {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodePriceUnavailable,
			"no daily price configured for this fruit type and date", nil)
		return
	}
	common.JSON(w, http.StatusOK, pricingResponse{
		Status:      outcome.Status,
		Calculation: toCalculationResponse(outcome.Calculation),
	})
}

type dailyPriceRequest struct {
	FruitTypeID string `json:"fruit_type_id" validate:"required,uuid4"`
	PricePerKG  string `json:"price_per_kg" validate:"required,max=32"`
	ValidDate   string `json:"valid_date" validate:"required,datetime=2006-01-02"`
}

type dailyPriceResponse struct {
	ID          string `json:"id"`
	FruitTypeID string `json:"fruit_type_id"`
	PricePerKG  string `json:"price_per_kg"`
	ValidDate   string `json:"valid_date"`
}

// SetDailyPrice handles POST /admin/prices.
func (h *Handler) SetDailyPrice(w http.ResponseWriter, r *http.Request) {
	var req dailyPriceRequest
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
	price, ok := common.ParseDecimal(req.PricePerKG)
	if !ok || price.Sign() <= 0 {
		common.RenderError(w, common.Validation("price_per_kg must be a positive amount", nil))
		return
	}
	validDate, err := time.Parse("2006-01-02", req.ValidDate)
	if err != nil {
		common.RenderError(w, common.Validation("valid_date must be YYYY-MM-DD", nil))
		return
	}

	dp, err := h.Svc.SetDailyPrice(r.Context(), fruitTypeID, price, validDate)
	if err != nil {
		if errors.Is(err, ErrFruitTypeNotFound) {
			common.RenderError(w, common.NotFound("fruit type not found"))
			return
		}
		h.Logger.Error().Err(err).Msg("set daily price")
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toDailyPriceResponse(dp))
}

// ListDailyPrices handles GET /admin/prices?fruit_type_id=...&limit=...
func (h *Handler) ListDailyPrices(w http.ResponseWriter, r *http.Request) {
	fruitTypeID, err := uuid.Parse(r.URL.Query().Get("fruit_type_id"))
	if err != nil {
		common.RenderError(w, common.Validation("fruit_type_id query parameter is required", nil))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	prices, err := h.Svc.ListDailyPrices(r.Context(), fruitTypeID, limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list daily prices")
		common.RenderError(w, err)
		return
	}
	out := make([]dailyPriceResponse, 0, len(prices))
	for _, dp := range prices {
		out = append(out, toDailyPriceResponse(dp))
	}
	common.JSON(w, http.StatusOK, map[string]any{"prices": out})
}

func toCalculationResponse(c *Calculation) *calculationResponse {
	if c == nil {
		return nil
	}
	return &calculationResponse{
		CalculationID:  c.ID.String(),
		ReceptionID:    c.ReceptionID.String(),
		CurrencyCode:   c.CurrencyCode,
		PriceDate:      c.PriceDate.Format("2006-01-02"),
		PricePerKG:     c.PricePerKG.String(),
		GrossAmount:    common.MoneyString(c.GrossAmount),
		DiscountAmount: common.MoneyString(c.DiscountAmount),
		NetAmount:      common.MoneyString(c.NetAmount),
	}
}

func toDailyPriceResponse(dp DailyPrice) dailyPriceResponse {
	return dailyPriceResponse{
		ID:          dp.ID.String(),
		FruitTypeID: dp.FruitTypeID.String(),
		PricePerKG:  dp.PricePerKG.String(),
		ValidDate:   dp.ValidDate.Format("2006-01-02"),
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/tradestore"
	"github.com/mtlprog/cdsrisk/internal/valuation"
)

const maxBodyBytes = 1 << 20

// Valuator runs engine-backed valuations.
type Valuator interface {
	Calculate(ctx context.Context, req valuation.CalculationRequest) (*valuation.CalculationResult, error)
	Stress(ctx context.Context, req valuation.StressRequest) (*valuation.StressResult, error)
	Sensitivity(ctx context.Context, req valuation.SensitivityRequest) (*valuation.CalculationResult, error)
	HealthCheck(ctx context.Context) valuation.HealthStatus
}

// RiskHandler serves valuation requests.
type RiskHandler struct {
	valuations Valuator
}

// NewRiskHandler creates a new RiskHandler.
func NewRiskHandler(valuations Valuator) *RiskHandler {
	return &RiskHandler{valuations: valuations}
}

type calculateBody struct {
	TradeIDs      []int64                 `json:"tradeIds"`
	Trades        []tradestore.TradeInput `json:"trades"`
	ValuationDate string                  `json:"valuationDate"`
	YieldShiftBp  decimal.Decimal         `json:"yieldShiftBp"`
}

type stressBody struct {
	TradeID       int64                  `json:"tradeId"`
	Trade         *tradestore.TradeInput `json:"trade"`
	RecoveryRates []decimal.Decimal      `json:"recoveryRates"`
	SpreadShifts  []decimal.Decimal      `json:"spreadShifts"`
	Combined      bool                   `json:"combined"`
	ValuationDate string                 `json:"valuationDate"`
}

type sensitivityBody struct {
	TradeIDs      []int64                    `json:"tradeIds"`
	Trades        []tradestore.TradeInput    `json:"trades"`
	ValuationDate string                     `json:"valuationDate"`
	Scenarios     map[string]decimal.Decimal `json:"scenarios"`
}

// Calculate handles POST /api/v1/risk/calculate.
func (h *RiskHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var body calculateBody
	if !decodeBody(w, r, &body) {
		return
	}
	trades, date, err := convertInputs(body.Trades, body.ValuationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.valuations.Calculate(r.Context(), valuation.CalculationRequest{
		TradeIDs:      body.TradeIDs,
		Trades:        trades,
		ValuationDate: date,
		YieldShiftBp:  body.YieldShiftBp,
	})
	if err != nil {
		writeValuationError(w, "calculation", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stress handles POST /api/v1/risk/stress.
func (h *RiskHandler) Stress(w http.ResponseWriter, r *http.Request) {
	var body stressBody
	if !decodeBody(w, r, &body) {
		return
	}
	var inputs []tradestore.TradeInput
	if body.Trade != nil {
		inputs = []tradestore.TradeInput{*body.Trade}
	}
	trades, date, err := convertInputs(inputs, body.ValuationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := valuation.StressRequest{
		TradeID:       body.TradeID,
		RecoveryRates: body.RecoveryRates,
		SpreadShifts:  body.SpreadShifts,
		Combined:      body.Combined,
		ValuationDate: date,
	}
	if len(trades) > 0 {
		req.Trade = &trades[0]
	}

	res, err := h.valuations.Stress(r.Context(), req)
	if err != nil {
		writeValuationError(w, "stress analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sensitivity handles POST /api/v1/risk/sensitivity.
func (h *RiskHandler) Sensitivity(w http.ResponseWriter, r *http.Request) {
	var body sensitivityBody
	if !decodeBody(w, r, &body) {
		return
	}
	trades, date, err := convertInputs(body.Trades, body.ValuationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.valuations.Sensitivity(r.Context(), valuation.SensitivityRequest{
		TradeIDs:      body.TradeIDs,
		Trades:        trades,
		ValuationDate: date,
		Scenarios:     body.Scenarios,
	})
	if err != nil {
		writeValuationError(w, "sensitivity run", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EngineHealth handles GET /api/v1/engine/health.
func (h *RiskHandler) EngineHealth(w http.ResponseWriter, r *http.Request) {
	status := h.valuations.HealthCheck(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func convertInputs(inputs []tradestore.TradeInput, dateStr string) ([]domain.Trade, time.Time, error) {
	var date time.Time
	if dateStr != "" {
		d, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			return nil, time.Time{}, errors.New("invalid valuationDate, expected YYYY-MM-DD")
		}
		date = d
	}

	trades := make([]domain.Trade, 0, len(inputs))
	for _, in := range inputs {
		t, err := in.Trade()
		if err != nil {
			return nil, time.Time{}, err
		}
		trades = append(trades, t)
	}
	return trades, date, nil
}

func writeValuationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, valuation.ErrNoTrades), errors.Is(err, domain.ErrInvalidTrade):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tradestore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, valuation.ErrBaseRun):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("valuation request failed", "operation", op, "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

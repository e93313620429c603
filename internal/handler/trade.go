package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// TradeHandler handles HTTP requests for buy and sell orders.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

// orderRequest is the JSON request body for buy and sell orders.
type orderRequest struct {
	Symbol string      `json:"symbol"`
	Shares json.Number `json:"shares"`
}

// fillResponse is the JSON representation of an executed fill.
type fillResponse struct {
	FillID     string `json:"fill_id"`
	AccountID  int64  `json:"account_id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Shares     int64  `json:"shares"`
	Amount     string `json:"amount"`
	ExecutedAt string `json:"executed_at"`
}

// orderResponse is the JSON response for an executed order.
type orderResponse struct {
	Fill    fillResponse `json:"fill"`
	Message string       `json:"message"`
}

// Buy handles POST /accounts/{account_id}/buy.
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, "bought", h.tradeSvc.Buy)
}

// Sell handles POST /accounts/{account_id}/sell.
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, "sold", h.tradeSvc.Sell)
}

func (h *TradeHandler) execute(
	w http.ResponseWriter,
	r *http.Request,
	verb string,
	trade func(ctx context.Context, accountID int64, symbol string, shares int64) (*domain.Fill, error),
) {
	id, err := accountIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req orderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	shares, err := strconv.ParseInt(req.Shares.String(), 10, 64)
	if err != nil || shares < 1 {
		WriteError(w, http.StatusBadRequest, domain.KindInvalidInput,
			"Please enter a valid number (shares must be a positive integer)")
		return
	}

	f, err := trade(r.Context(), id, req.Symbol, shares)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientShares) {
			WriteError(w, http.StatusUnprocessableEntity, domain.Kind(err),
				fmt.Sprintf("You don't own %d share(s) of %s", shares, domain.NormalizeSymbol(req.Symbol)))
			return
		}
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, orderResponse{
		Fill: toFillResponse(f),
		Message: fmt.Sprintf("%d share(s) of %s %s for %s!",
			f.Shares, f.Name, verb, domain.FormatUSD(f.Amount())),
	})
}

func toFillResponse(f *domain.Fill) fillResponse {
	return fillResponse{
		FillID:     f.FillID,
		AccountID:  f.AccountID,
		Symbol:     f.Symbol,
		Name:       f.Name,
		Side:       string(f.Side),
		Price:      money(f.Price),
		Shares:     f.Shares,
		Amount:     money(f.Amount()),
		ExecutedAt: timestamp(f.ExecutedAt),
	}
}

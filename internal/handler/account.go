package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc   *service.AccountService
	portfolioSvc *service.PortfolioService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, portfolioSvc *service.PortfolioService) *AccountHandler {
	return &AccountHandler{
		accountSvc:   accountSvc,
		portfolioSvc: portfolioSvc,
	}
}

// registerRequest is the JSON request body for POST /accounts.
type registerRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// accountResponse is the JSON response for account creation and lookup.
type accountResponse struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Cash      string `json:"cash"`
	CreatedAt string `json:"created_at"`
	Message   string `json:"message,omitempty"`
}

// holdingResponse is one valued position in the portfolio response.
type holdingResponse struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Quantity     int64  `json:"quantity"`
	CurrentPrice string `json:"current_price"`
	AverageCost  string `json:"average_cost"`
	Value        string `json:"value"`
}

// portfolioResponse is the JSON response for GET /accounts/{account_id}/portfolio.
type portfolioResponse struct {
	AccountID     int64             `json:"account_id"`
	Username      string            `json:"username"`
	Holdings      []holdingResponse `json:"holdings"`
	Cash          string            `json:"cash"`
	HoldingsValue string            `json:"holdings_value"`
	TotalValue    string            `json:"total_value"`
}

// historyResponse is the JSON response for GET /accounts/{account_id}/history.
type historyResponse struct {
	Fills []fillResponse `json:"fills"`
	Limit int            `json:"limit"`
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.accountSvc.Register(r.Context(), req.Username, req.PasswordHash)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := toAccountResponse(a)
	resp.Message = a.Username + " registered!"
	WriteJSON(w, http.StatusCreated, resp)
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.accountSvc.Get(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAccountResponse(a))
}

// Portfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.portfolioSvc.GetPortfolio(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}

	holdings := make([]holdingResponse, len(p.Holdings))
	for i, hv := range p.Holdings {
		holdings[i] = holdingResponse{
			Symbol:       hv.Symbol,
			Name:         hv.Name,
			Quantity:     hv.Quantity,
			CurrentPrice: money(hv.CurrentPrice),
			AverageCost:  money(hv.AverageCost),
			Value:        money(hv.Value),
		}
	}

	WriteJSON(w, http.StatusOK, portfolioResponse{
		AccountID:     p.AccountID,
		Username:      p.Username,
		Holdings:      holdings,
		Cash:          money(p.Cash),
		HoldingsValue: money(p.HoldingsValue),
		TotalValue:    money(p.TotalValue),
	})
}

// History handles GET /accounts/{account_id}/history.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			WriteError(w, http.StatusBadRequest, domain.KindInvalidInput, "limit must be a positive integer")
			return
		}
	}

	fills, err := h.portfolioSvc.History(r.Context(), id, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	switch {
	case limit == 0:
		limit = service.DefaultHistoryLimit
	case limit > service.MaxHistoryLimit:
		limit = service.MaxHistoryLimit
	}
	resp := historyResponse{
		Fills: make([]fillResponse, len(fills)),
		Limit: limit,
	}
	for i := range fills {
		resp.Fills[i] = toFillResponse(&fills[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Audit handles GET /accounts/{account_id}/audit.
func (h *AccountHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.portfolioSvc.Audit(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"status":     "consistent",
	})
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		AccountID: a.AccountID,
		Username:  a.Username,
		Cash:      money(a.Cash),
		CreatedAt: timestamp(a.CreatedAt),
	}
}

package handler

import (
	"net/http"

	"github.com/efreitasn/papertrade/internal/service"
)

// LeaderboardHandler handles HTTP requests for the leaderboard.
type LeaderboardHandler struct {
	leaderboardSvc *service.LeaderboardService
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(leaderboardSvc *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardSvc: leaderboardSvc}
}

// standingResponse is one row of the leaderboard.
type standingResponse struct {
	Rank          int    `json:"rank"`
	AccountID     int64  `json:"account_id"`
	Username      string `json:"username"`
	HoldingsValue string `json:"holdings_value"`
	Cash          string `json:"cash"`
	Total         string `json:"total"`
}

// leaderboardResponse is the JSON response for GET /leaderboard.
type leaderboardResponse struct {
	Ranked      []standingResponse `json:"ranked"`
	CurrentRank int                `json:"current_rank"`
}

// Get handles GET /leaderboard?current={account_id}.
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := parseAccountID(r.URL.Query().Get("current"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "current "+err.Error())
		return
	}

	lb, err := h.leaderboardSvc.GetLeaderboard(r.Context(), current)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := leaderboardResponse{
		Ranked:      make([]standingResponse, len(lb.Ranked)),
		CurrentRank: lb.CurrentRank,
	}
	for i, st := range lb.Ranked {
		resp.Ranked[i] = standingResponse{
			Rank:          i,
			AccountID:     st.AccountID,
			Username:      st.Username,
			HoldingsValue: money(st.HoldingsValue),
			Cash:          money(st.Cash),
			Total:         money(st.Total),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

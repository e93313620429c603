package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/internal/service"
	"github.com/efreitasn/papertrade/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router http.Handler
	ledger *store.MemoryStore
	prices *quote.Static
	ping   error
}

func newTestEnv() *testEnv {
	ledger := store.NewMemoryStore()
	prices := quote.NewStatic(
		domain.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.RequireFromString("150.25")},
		domain.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.RequireFromString("400.00")},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	quoteSvc := service.NewQuoteService(prices, time.Second, logger)
	accountSvc := service.NewAccountService(ledger, decimal.RequireFromString("10000.00"), time.Second, logger)
	tradeSvc := service.NewTradeService(ledger, quoteSvc, time.Second, logger)
	portfolioSvc := service.NewPortfolioService(ledger, quoteSvc, time.Second, logger)
	leaderboardSvc := service.NewLeaderboardService(ledger, quoteSvc, time.Second, logger)

	env := &testEnv{ledger: ledger, prices: prices}
	ping := func(context.Context) error { return env.ping }
	env.router = NewRouter(accountSvc, tradeSvc, portfolioSvc, leaderboardSvc, quoteSvc, ping, logger)
	return env
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

// register creates an account via the API and returns its id.
func (env *testEnv) register(t *testing.T, username string) int64 {
	t.Helper()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{
		"username":      username,
		"password_hash": "pbkdf2:sha256$abc",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rr.Code, rr.Body.String())
	}
	var resp accountResponse
	decodeJSON(t, rr, &resp)
	return resp.AccountID
}

// trade submits a buy or sell order via the API.
func (env *testEnv) trade(t *testing.T, id int64, side, symbol string, shares any) *httptest.ResponseRecorder {
	t.Helper()
	return env.doJSON(t, "POST", fmt.Sprintf("/accounts/%d/%s", id, side), map[string]any{
		"symbol": symbol,
		"shares": shares,
	})
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Fatalf("expected error %q, got %q (%s)", code, resp.Error, resp.Message)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	decodeJSON(t, rr, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}

	env.ping = errors.New("database is closed")
	rr = env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestAccount_Register_Success(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/accounts", map[string]any{
		"username":      "alice",
		"password_hash": "h",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp accountResponse
	decodeJSON(t, rr, &resp)
	if resp.AccountID == 0 {
		t.Error("expected account_id")
	}
	if resp.Cash != "10000.00" {
		t.Errorf("expected cash 10000.00, got %s", resp.Cash)
	}
	if resp.Message != "alice registered!" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if _, err := time.Parse(time.RFC3339Nano, resp.CreatedAt); err != nil {
		t.Errorf("created_at not RFC3339: %q", resp.CreatedAt)
	}

	rr = env.doJSON(t, "GET", fmt.Sprintf("/accounts/%d", resp.AccountID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAccount_Register_Errors(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice")

	rr := env.doJSON(t, "POST", "/accounts", map[string]any{"username": "alice", "password_hash": "x"})
	expectError(t, rr, http.StatusConflict, "account_already_exists")

	rr = env.doJSON(t, "POST", "/accounts", map[string]any{"username": "bad name", "password_hash": "x"})
	expectError(t, rr, http.StatusBadRequest, "invalid_input")

	rr = env.doJSON(t, "POST", "/accounts", map[string]any{"username": "bob", "password": "x"})
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestAccount_NotFound(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{"/accounts/42", "/accounts/42/portfolio", "/accounts/42/history", "/accounts/42/audit"} {
		rr := env.doJSON(t, "GET", path, nil)
		expectError(t, rr, http.StatusNotFound, "account_not_found")
	}

	rr := env.doJSON(t, "GET", "/accounts/abc/portfolio", nil)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestTrade_BuyAndSell(t *testing.T) {
	env := newTestEnv()
	id := env.register(t, "alice")

	rr := env.trade(t, id, "buy", "aapl", 3)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	decodeJSON(t, rr, &resp)
	if resp.Fill.Symbol != "AAPL" || resp.Fill.Side != "BUY" || resp.Fill.Shares != 3 {
		t.Errorf("unexpected fill %+v", resp.Fill)
	}
	if resp.Fill.Price != "150.25" || resp.Fill.Amount != "450.75" {
		t.Errorf("unexpected price/amount %s/%s", resp.Fill.Price, resp.Fill.Amount)
	}
	if resp.Message != "3 share(s) of Apple Inc. bought for $450.75!" {
		t.Errorf("unexpected message %q", resp.Message)
	}

	rr = env.trade(t, id, "sell", "AAPL", 3)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	decodeJSON(t, rr, &resp)
	if resp.Message != "3 share(s) of Apple Inc. sold for $450.75!" {
		t.Errorf("unexpected message %q", resp.Message)
	}

	rr = env.doJSON(t, "GET", fmt.Sprintf("/accounts/%d/history?limit=5", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var hist historyResponse
	decodeJSON(t, rr, &hist)
	if len(hist.Fills) != 2 || hist.Fills[0].Side != "SELL" || hist.Limit != 5 {
		t.Errorf("unexpected history %+v", hist)
	}
}

func TestTrade_ErrorKindsAreDistinct(t *testing.T) {
	env := newTestEnv()
	id := env.register(t, "alice")
	env.trade(t, id, "buy", "AAPL", 2)

	tests := []struct {
		name   string
		side   string
		symbol string
		shares any
		status int
		code   string
	}{
		{"zero shares", "buy", "AAPL", 0, http.StatusBadRequest, "invalid_input"},
		{"fractional shares", "buy", "AAPL", 1.5, http.StatusBadRequest, "invalid_input"},
		{"unknown symbol", "buy", "ZZZZ", 1, http.StatusBadRequest, "invalid_symbol"},
		{"insufficient funds", "buy", "MSFT", 1000, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"no position", "sell", "MSFT", 1, http.StatusUnprocessableEntity, "no_position"},
		{"insufficient shares", "sell", "AAPL", 3, http.StatusUnprocessableEntity, "insufficient_shares"},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.trade(t, id, tt.side, tt.symbol, tt.shares)
			resp := expectError(t, rr, tt.status, tt.code)
			if resp.Message == "" || strings.Contains(resp.Message, "unexpected") {
				t.Errorf("expected a specific message, got %q", resp.Message)
			}
			if prev, ok := seen[resp.Message]; ok && prev != tt.code {
				t.Errorf("message %q shared by %s and %s", resp.Message, prev, tt.code)
			}
			seen[resp.Message] = tt.code
		})
	}

	st, err := env.ledger.Statement(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Fills) != 1 {
		t.Errorf("rejected orders wrote fills: %d", len(st.Fills))
	}
}

func TestPortfolio(t *testing.T) {
	env := newTestEnv()
	id := env.register(t, "alice")
	env.trade(t, id, "buy", "MSFT", 2)
	env.prices.Set(domain.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.RequireFromString("410.50")})

	rr := env.doJSON(t, "GET", fmt.Sprintf("/accounts/%d/portfolio", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var p portfolioResponse
	decodeJSON(t, rr, &p)
	if len(p.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(p.Holdings))
	}
	h := p.Holdings[0]
	if h.Symbol != "MSFT" || h.Quantity != 2 || h.CurrentPrice != "410.50" || h.AverageCost != "400.00" || h.Value != "821.00" {
		t.Errorf("unexpected holding %+v", h)
	}
	if p.Cash != "9200.00" || p.TotalValue != "10021.00" {
		t.Errorf("unexpected totals cash=%s total=%s", p.Cash, p.TotalValue)
	}

	env.prices.Remove("MSFT")
	rr = env.doJSON(t, "GET", fmt.Sprintf("/accounts/%d/portfolio", id), nil)
	resp := expectError(t, rr, http.StatusServiceUnavailable, "quote_unavailable")
	if !resp.Retryable {
		t.Error("quote_unavailable should be retryable")
	}
}

func TestAudit(t *testing.T) {
	env := newTestEnv()
	id := env.register(t, "alice")
	env.trade(t, id, "buy", "AAPL", 1)

	rr := env.doJSON(t, "GET", fmt.Sprintf("/accounts/%d/audit", id), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, "GET", "/quotes/aapl", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var q quoteResponse
	decodeJSON(t, rr, &q)
	if q.Symbol != "AAPL" || q.Price != "150.25" {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.Message != "A share of Apple Inc. (AAPL) costs $150.25." {
		t.Errorf("unexpected message %q", q.Message)
	}

	rr = env.doJSON(t, "GET", "/quotes/NOPE", nil)
	expectError(t, rr, http.StatusBadRequest, "invalid_symbol")
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.trade(t, alice, "buy", "MSFT", 10)
	env.prices.Set(domain.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.RequireFromString("300.00")})

	rr := env.doJSON(t, "GET", fmt.Sprintf("/leaderboard?current=%d", alice), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var lb leaderboardResponse
	decodeJSON(t, rr, &lb)
	if len(lb.Ranked) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(lb.Ranked))
	}
	if lb.Ranked[0].AccountID != bob || lb.Ranked[1].AccountID != alice {
		t.Errorf("unexpected order %+v", lb.Ranked)
	}
	if lb.CurrentRank != 1 {
		t.Errorf("expected current_rank 1, got %d", lb.CurrentRank)
	}
	if lb.Ranked[1].Total != "9000.00" || lb.Ranked[1].HoldingsValue != "3000.00" {
		t.Errorf("unexpected standing %+v", lb.Ranked[1])
	}

	rr = env.doJSON(t, "GET", "/leaderboard", nil)
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestContentType_MissingOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/accounts", "", `{"username":"a","password_hash":"h"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestContentType_WrongOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/accounts/1/buy", "text/plain", `{"symbol":"AAPL","shares":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", &domain.ValidationError{Message: "bad"}, http.StatusBadRequest, "invalid_input", false},
		{"invalid symbol", domain.ErrInvalidSymbol, http.StatusBadRequest, "invalid_symbol", false},
		{"not found", domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found", false},
		{"duplicate", domain.ErrAccountAlreadyExists, http.StatusConflict, "account_already_exists", false},
		{"funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds", false},
		{"no position", domain.ErrNoPosition, http.StatusUnprocessableEntity, "no_position", false},
		{"shares", domain.ErrInsufficientShares, http.StatusUnprocessableEntity, "insufficient_shares", false},
		{"inconsistent", fmt.Errorf("%w: no BUY fills", domain.ErrInconsistentLedger), http.StatusInternalServerError, "inconsistent_ledger", false},
		{"quote", fmt.Errorf("%w: upstream 502", domain.ErrQuoteUnavailable), http.StatusServiceUnavailable, "quote_unavailable", true},
		{"storage", fmt.Errorf("%w: timeout", domain.ErrStorageUnavailable), http.StatusServiceUnavailable, "storage_unavailable", true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mapError(w, tt.err)

			resp := expectError(t, w, tt.status, tt.code)
			if resp.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", resp.Retryable, tt.retryable)
			}
			if got := w.Header().Get("Retry-After") != ""; got != tt.retryable {
				t.Errorf("Retry-After present = %v, want %v", got, tt.retryable)
			}
			if resp.Message == "" {
				t.Error("missing message")
			}
		})
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/internal/data"
	"github.com/candleworks/backtest/internal/strategy"
	"github.com/candleworks/backtest/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	store, err := data.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, 50)
	price := decimal.NewFromInt(100)
	for i := range candles {
		price = price.Add(decimal.NewFromInt(1))
		candles[i] = types.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.NewFromInt(10),
		}
	}
	if err := store.SaveCandles("BTCUSDT", types.Timeframe1h, candles); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	cfg := types.DefaultServerConfig()
	return NewServer(logger, cfg, store, strategy.NewRegistry(logger))
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestSymbolsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/data/symbols", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Symbols) != 1 || body.Symbols[0] != "BTCUSDT" {
		t.Errorf("symbols = %v, want [BTCUSDT]", body.Symbols)
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/strategies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Strategies []string `json:"strategies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Strategies) == 0 {
		t.Error("no strategies listed")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/data/history/BTCUSDT?timeframe=1h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Count != 50 {
		t.Errorf("count = %d, want 50", body.Count)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/data/history/UNKNOWN", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for unknown symbol, want 404", rec.Code)
	}
}

func TestSubmitRunLifecycle(t *testing.T) {
	s := newTestServer(t)

	req := RunRequest{
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Strategy:  "buy_and_hold",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/runs", req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var submitted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if submitted.ID == "" || submitted.Status != "running" {
		t.Fatalf("unexpected submission response: %+v", submitted)
	}

	// The run executes in the background; poll until it settles.
	var state RunState
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doRequest(t, s, http.MethodGet, "/api/v1/runs/"+submitted.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d fetching run, want 200", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
			t.Fatalf("decoding run state: %v", err)
		}
		if state.Status != "running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not settle within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if state.Status != "completed" {
		t.Fatalf("run status = %s (%s), want completed", state.Status, state.Error)
	}
	if state.Result == nil || len(state.Result.SpotTrades) != 1 {
		t.Fatalf("expected one buy-and-hold trade, got %+v", state.Result)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/v1/runs/%s/trades", submitted.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d fetching trades, want 200", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/v1/runs/%s/log", submitted.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d fetching log, want 200", rec.Code)
	}
}

func TestSubmitRunValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/runs", RunRequest{Symbol: "BTCUSDT"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for missing strategy, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/runs", RunRequest{
		Symbol:   "BTCUSDT",
		Strategy: "does_not_exist",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for unknown strategy, want 400", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/runs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

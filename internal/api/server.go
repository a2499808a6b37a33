// Package api provides the HTTP and WebSocket server around the backtest
// engine.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/internal/backtest"
	"github.com/candleworks/backtest/internal/data"
	"github.com/candleworks/backtest/internal/strategy"
	"github.com/candleworks/backtest/pkg/types"
)

// Server is the HTTP/WebSocket API server.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	store      *data.Store
	strategies *strategy.Registry
	metrics    *Metrics
	runs       map[string]*RunState
}

// RunState tracks one submitted backtest run.
type RunState struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"` // running, completed, failed
	Request   RunRequest       `json:"request"`
	Submitted time.Time        `json:"submitted"`
	Error     string           `json:"error,omitempty"`
	Result    *backtest.Result `json:"result,omitempty"`
}

// RunRequest is the submission payload for a backtest run.
type RunRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
	Strategy  string          `json:"strategy"`
	Config    types.RunConfig `json:"config"`
}

// NewServer creates an API server over a candle store and strategy registry.
func NewServer(logger *zap.Logger, config *types.ServerConfig, store *data.Store, strategies *strategy.Registry) *Server {
	server := &Server{
		logger:     logger,
		config:     config,
		router:     mux.NewRouter(),
		hub:        NewHub(logger),
		store:      store,
		strategies: strategies,
		metrics:    NewMetrics(),
		runs:       make(map[string]*RunState),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/data/symbols", s.handleGetSymbols).Methods("GET")
	s.router.HandleFunc("/api/v1/data/history/{symbol}", s.handleGetHistory).Methods("GET")

	s.router.HandleFunc("/api/v1/strategies", s.handleGetStrategies).Methods("GET")

	s.router.HandleFunc("/api/v1/runs", s.handleSubmitRun).Methods("POST")
	s.router.HandleFunc("/api/v1/runs/{id}", s.handleGetRun).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{id}/trades", s.handleGetRunTrades).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{id}/log", s.handleGetRunLog).Methods("GET")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.HandleFunc("/ws", s.hub.HandleConnection)
}

// Handler returns the server's root handler, CORS included. Exposed for
// tests.
func (s *Server) Handler() http.Handler {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"symbols": s.store.AvailableSymbols(),
	})
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"strategies": s.strategies.List(),
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	timeframe := types.Timeframe(r.URL.Query().Get("timeframe"))
	if timeframe == "" {
		timeframe = types.Timeframe1h
	}

	candles, err := s.store.LoadCandles(r.Context(), symbol, timeframe)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var start, end time.Time
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			end = t
		}
	}
	candles = data.FilterByTime(candles, start, end)

	writeJSON(w, map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"bars":      candles,
		"count":     len(candles),
	})
}

// handleSubmitRun starts a backtest run. The run executes in a single
// goroutine per submission; the candle loop itself is never decomposed.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" || req.Strategy == "" {
		http.Error(w, "symbol and strategy are required", http.StatusBadRequest)
		return
	}
	if req.Timeframe == "" {
		req.Timeframe = types.Timeframe1h
	}

	if _, ok := s.strategies.Create(req.Strategy); !ok {
		http.Error(w, fmt.Sprintf("unknown strategy %q", req.Strategy), http.StatusBadRequest)
		return
	}

	state := &RunState{
		ID:        uuid.NewString(),
		Status:    "running",
		Request:   req,
		Submitted: time.Now(),
	}

	s.mu.Lock()
	s.runs[state.ID] = state
	s.mu.Unlock()

	s.metrics.RunsStarted.Inc()
	go s.executeRun(state)

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{
		"id":        state.ID,
		"status":    state.Status,
		"submitted": state.Submitted.Unix(),
	})
}

func (s *Server) executeRun(state *RunState) {
	result, err := s.runBacktest(state)

	s.mu.Lock()
	if err != nil {
		state.Status = "failed"
		state.Error = err.Error()
		s.metrics.RunsFailed.Inc()
		s.logger.Error("Backtest run failed", zap.String("id", state.ID), zap.Error(err))
	} else {
		state.Status = "completed"
		state.Result = result
		s.metrics.RunsCompleted.Inc()
		s.metrics.RunDuration.Observe(result.Duration.Seconds())
	}
	status := state.Status
	s.mu.Unlock()

	payload := map[string]interface{}{"id": state.ID, "status": status}
	if result != nil {
		payload["profitQuote"] = result.ProfitQuote
		payload["trades"] = len(result.SpotTrades)
	}
	s.hub.Broadcast(&Message{
		Type:    "event",
		Method:  "run:complete",
		Payload: payload,
	})
}

func (s *Server) runBacktest(state *RunState) (*backtest.Result, error) {
	req := state.Request

	candles, err := s.store.LoadCandles(context.Background(), req.Symbol, req.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("loading candles: %w", err)
	}

	strat, ok := s.strategies.Create(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", req.Strategy)
	}

	builder, err := backtest.FromConfig(candles, req.Config)
	if err != nil {
		return nil, err
	}

	runID := state.ID
	result, err := builder.
		OnTick(strat.OnTick).
		PostTick(func(st *backtest.State) {
			s.metrics.CandlesEvaluated.Inc()
		}).
		OnLogEntry(func(entry backtest.LogEntry, _ *backtest.State) {
			s.hub.Broadcast(&Message{
				Type:   "event",
				Method: "run:log",
				Payload: map[string]interface{}{
					"runId":       runID,
					"candleIndex": entry.CandleIndex,
					"level":       entry.Level.String(),
					"message":     entry.Message,
				},
			})
		}).
		Run()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookupRun(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, state)
}

func (s *Server) handleGetRunTrades(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookupRun(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if state.Result == nil {
		http.Error(w, "run not complete", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]interface{}{
		"id":        state.ID,
		"trades":    state.Result.SpotTrades,
		"positions": state.Result.MarginPositions,
	})
}

func (s *Server) handleGetRunLog(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookupRun(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if state.Result == nil {
		http.Error(w, "run not complete", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]interface{}{
		"id":  state.ID,
		"log": state.Result.Log,
	})
}

// lookupRun returns a snapshot of the run state so handlers never marshal a
// struct the executing goroutine is still writing to.
func (s *Server) lookupRun(id string) (*RunState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	snapshot := *state
	return &snapshot, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

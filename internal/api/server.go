// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/advisor"
	"github.com/tradeforge/quant-backend/internal/agent"
	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/config"
	"github.com/tradeforge/quant-backend/internal/data"
	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/internal/metrics"
	"github.com/tradeforge/quant-backend/internal/optimize"
	"github.com/tradeforge/quant-backend/internal/regime"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Run lifecycle states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunState tracks one asynchronous evaluation run.
type RunState struct {
	ID         string                     `json:"id"`
	Status     string                     `json:"status"`
	Started    time.Time                  `json:"started"`
	Error      string                     `json:"error,omitempty"`
	Result     *agent.RunResult           `json:"result,omitempty"`
	MonteCarlo *backtest.MonteCarloResult `json:"monte_carlo,omitempty"`
}

// SearchState tracks one asynchronous grid search.
type SearchState struct {
	ID      string           `json:"id"`
	Status  string           `json:"status"`
	Started time.Time        `json:"started"`
	Error   string           `json:"error,omitempty"`
	Done    int              `json:"done"`
	Total   int              `json:"total"`
	Result  *optimize.Result `json:"result,omitempty"`
}

// Server serves the evaluation pipeline over HTTP and WebSocket.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     types.Config
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	loader     *data.Loader
	advisor    *advisor.Client
	recorder   *metrics.Recorder
	classifier *regime.Classifier
	runs       map[string]*RunState
	searches   map[string]*SearchState
}

// NewServer creates the API server. The advisor may be nil.
func NewServer(logger *zap.Logger, cfg types.Config, loader *data.Loader,
	adv *advisor.Client, recorder *metrics.Recorder) *Server {

	server := &Server{
		logger:     logger.Named("api"),
		config:     cfg,
		router:     mux.NewRouter(),
		clients:    make(map[string]*Client),
		loader:     loader,
		advisor:    adv,
		recorder:   recorder,
		classifier: regime.NewClassifier(logger, regime.DefaultConfig()),
		runs:       make(map[string]*RunState),
		searches:   make(map[string]*SearchState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/analysis/{symbol}", s.handleAnalysis).Methods("GET")

	s.router.HandleFunc("/api/v1/backtest/run", s.handleRunBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest/{id}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtest/{id}/trades", s.handleGetTrades).Methods("GET")

	s.router.HandleFunc("/api/v1/optimize/run", s.handleRunOptimize).Methods("POST")
	s.router.HandleFunc("/api/v1/optimize/{id}", s.handleGetSearch).Methods("GET")

	s.router.HandleFunc("/ws/progress", s.handleWebSocket)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and drops WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleAnalysis classifies the regime for a symbol and returns the
// indicator snapshot. Query parameters start, end, and interval override
// the configured window.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Data
	cfg.Symbol = mux.Vars(r)["symbol"]
	if v := r.URL.Query().Get("start"); v != "" {
		cfg.Start = v
	}
	if v := r.URL.Query().Get("end"); v != "" {
		cfg.End = v
	}
	if v := r.URL.Query().Get("interval"); v != "" {
		cfg.Interval = types.Interval(v)
	}

	bars, err := s.loader.Load(r.Context(), cfg)
	if err != nil {
		s.recorder.RecordError("analysis")
		s.respondError(w, err)
		return
	}
	state, err := s.classifier.Classify(bars)
	if err != nil {
		s.recorder.RecordError("analysis")
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, map[string]interface{}{
		"symbol":               bars.Symbol,
		"bars":                 bars.Len(),
		"regime":               state,
		"features":             indicators.Snapshot(bars),
		"recommended_strategy": regime.RecommendedStrategy(state.Regime),
	})
}

// RunRequest selects what to evaluate. Empty fields fall back to the
// server's configuration.
type RunRequest struct {
	Symbol     string                `json:"symbol,omitempty"`
	Start      string                `json:"start,omitempty"`
	End        string                `json:"end,omitempty"`
	Interval   string                `json:"interval,omitempty"`
	Strategy   *types.StrategyConfig `json:"strategy,omitempty"`
	Sizing     *types.SizingConfig   `json:"sizing,omitempty"`
	MonteCarlo bool                  `json:"monte_carlo,omitempty"`
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := s.config
	applyDataOverrides(&cfg.Data, req.Symbol, req.Start, req.End, req.Interval)
	if req.Strategy != nil {
		cfg.Strategy = *req.Strategy
	}
	if req.Sizing != nil {
		cfg.Sizing = *req.Sizing
	}
	if err := config.Validate(&cfg); err != nil {
		s.respondError(w, err)
		return
	}

	a, err := agent.New(s.logger, cfg, s.loader, s.advisor)
	if err != nil {
		s.respondError(w, err)
		return
	}

	state := &RunState{
		ID:      uuid.New().String(),
		Status:  StatusRunning,
		Started: time.Now(),
	}
	s.mu.Lock()
	s.runs[state.ID] = state
	s.mu.Unlock()

	go s.executeRun(state, a, cfg, req.MonteCarlo)

	s.respondJSON(w, map[string]interface{}{
		"id":      state.ID,
		"status":  state.Status,
		"started": state.Started.Unix(),
	})
}

// executeRun drives one evaluation in the background and broadcasts its
// completion.
func (s *Server) executeRun(state *RunState, a *agent.Agent, cfg types.Config, withMonteCarlo bool) {
	run, err := a.Run(context.Background())

	s.mu.Lock()
	if err != nil {
		state.Status = StatusFailed
		state.Error = err.Error()
	} else {
		state.Status = StatusCompleted
		state.Result = run
		if withMonteCarlo {
			state.MonteCarlo = backtest.NewMonteCarlo(s.logger, cfg.MonteCarlo).Run(run.NetReturns)
		}
	}
	status := state.Status
	s.mu.Unlock()

	if err != nil {
		s.recorder.RecordError("backtest")
		s.logger.Error("evaluation run failed", zap.String("id", state.ID), zap.Error(err))
	} else {
		s.recorder.RecordRun(run.Symbol, run.Strategy.Name, string(run.Regime.Regime), run.Elapsed.Seconds())
		s.recorder.RecordRunStats(run.Symbol, run.Strategy.Name, run.Stats.Sharpe, run.Stats.TotalReturn)
	}

	s.broadcast(&Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "run:complete",
		Payload:   map[string]interface{}{"id": state.ID, "status": status},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.runs[id]
	var snapshot RunState
	if ok {
		snapshot = *state
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, snapshot)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.runs[id]
	var result *agent.RunResult
	if ok {
		result = state.Result
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if result == nil {
		http.Error(w, "run not complete", http.StatusBadRequest)
		return
	}

	s.respondJSON(w, map[string]interface{}{
		"id":     id,
		"trades": result.Trades,
		"count":  len(result.Trades),
	})
}

// OptimizeRequest selects what to tune. Empty fields fall back to the
// server's configuration; an empty grid uses the built-in grid for the
// strategy family.
type OptimizeRequest struct {
	Symbol       string                `json:"symbol,omitempty"`
	Start        string                `json:"start,omitempty"`
	End          string                `json:"end,omitempty"`
	Interval     string                `json:"interval,omitempty"`
	Strategy     *types.StrategyConfig `json:"strategy,omitempty"`
	Grid         map[string][]float64  `json:"grid,omitempty"`
	TargetMetric string                `json:"target_metric,omitempty"`
}

func (s *Server) handleRunOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := s.config
	applyDataOverrides(&cfg.Data, req.Symbol, req.Start, req.End, req.Interval)
	if req.Strategy != nil {
		cfg.Strategy = *req.Strategy
	}
	if req.Grid != nil {
		cfg.Optimizer.Grid = req.Grid
	}
	if req.TargetMetric != "" {
		cfg.Optimizer.TargetMetric = req.TargetMetric
	}
	if err := config.Validate(&cfg); err != nil {
		s.respondError(w, err)
		return
	}

	state := &SearchState{
		ID:      uuid.New().String(),
		Status:  StatusRunning,
		Started: time.Now(),
	}
	s.mu.Lock()
	s.searches[state.ID] = state
	s.mu.Unlock()

	go s.executeSearch(state, cfg)

	s.respondJSON(w, map[string]interface{}{
		"id":      state.ID,
		"status":  state.Status,
		"started": state.Started.Unix(),
	})
}

// executeSearch drives one grid search in the background, resolving an
// auto strategy against the classified regime first.
func (s *Server) executeSearch(state *SearchState, cfg types.Config) {
	fail := func(err error) {
		s.mu.Lock()
		state.Status = StatusFailed
		state.Error = err.Error()
		s.mu.Unlock()

		s.recorder.RecordError("optimize")
		s.logger.Error("grid search failed", zap.String("id", state.ID), zap.Error(err))
		s.broadcast(&Message{
			ID:        uuid.New().String(),
			Type:      "event",
			Method:    "optimize:complete",
			Payload:   map[string]interface{}{"id": state.ID, "status": StatusFailed},
			Timestamp: time.Now().UnixMilli(),
		})
	}

	ctx := context.Background()
	bars, err := s.loader.Load(ctx, cfg.Data)
	if err != nil {
		fail(err)
		return
	}

	stratCfg := cfg.Strategy
	if stratCfg.Name == strategy.NameAuto {
		regimeState, err := s.classifier.Classify(bars)
		if err != nil {
			fail(err)
			return
		}
		stratCfg.Name = string(regime.RecommendedStrategy(regimeState.Regime))
	}

	opt := optimize.NewOptimizer(s.logger, cfg.Optimizer, cfg.Backtest)
	opt.SetOnProgress(func(done, total int) {
		s.recorder.RecordGridEvaluation(stratCfg.Name)
		s.mu.Lock()
		state.Done, state.Total = done, total
		s.mu.Unlock()

		s.broadcastToSubscribers("progress", &Message{
			ID:        uuid.New().String(),
			Type:      "event",
			Method:    "optimize:progress",
			Payload:   map[string]interface{}{"id": state.ID, "done": done, "total": total},
			Timestamp: time.Now().UnixMilli(),
		})
	})

	result, err := opt.Optimize(ctx, bars, stratCfg)
	if err != nil {
		fail(err)
		return
	}

	s.mu.Lock()
	state.Status = StatusCompleted
	state.Result = result
	s.mu.Unlock()

	s.broadcast(&Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "optimize:complete",
		Payload:   map[string]interface{}{"id": state.ID, "status": StatusCompleted, "best_params": result.BestParams},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.searches[id]
	var snapshot SearchState
	if ok {
		snapshot = *state
	}
	s.mu.RUnlock()

	if !ok {
		http.Error(w, "search not found", http.StatusNotFound)
		return
	}
	s.respondJSON(w, snapshot)
}

func applyDataOverrides(cfg *types.DataConfig, symbol, start, end, interval string) {
	if symbol != "" {
		cfg.Symbol = symbol
	}
	if start != "" {
		cfg.Start = start
	}
	if end != "" {
		cfg.End = end
	}
	if interval != "" {
		cfg.Interval = types.Interval(interval)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// respondError maps the error taxonomy onto HTTP statuses: bad
// configuration is the client's fault, too little data is unprocessable,
// anything else is internal.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

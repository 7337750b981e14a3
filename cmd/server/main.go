package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/compiler"
	"github.com/caretide/scenario/datasource"
	"github.com/caretide/scenario/eval"
	"github.com/caretide/scenario/internal/config"
	"github.com/caretide/scenario/internal/logger"
	"github.com/caretide/scenario/registry"
	"github.com/caretide/scenario/store"
)

type Server struct {
	db       *sql.DB
	registry *registry.Registry
	source   datasource.Source
	router   *chi.Mux
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db)
}

func NewServerWithDB(db *sql.DB) (*Server, error) {
	logger.Info("loading scenarios from database")
	reg, err := registry.New(store.NewPostgresScenarioStore(db))
	if err != nil {
		return nil, err
	}
	logger.Info("scenarios loaded", "count", len(reg.List()))

	s := &Server{
		db:       db,
		registry: reg,
		source:   datasource.NewPostgres(db),
	}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/scenarios", func(r chi.Router) {
		r.Get("/", s.handleListScenarios)
		r.Post("/", s.handleCreateScenario)

		r.Route("/{scenarioId}", func(r chi.Router) {
			r.Get("/", s.handleGetScenario)
			r.Put("/", s.handleUpdateScenario)
			r.Delete("/", s.handleDeleteScenario)
			r.Get("/artifact", s.handleGetArtifact)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		logger.ErrorHttp5xx()
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		ScenariosLoaded: len(s.registry.List()),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ScenarioID == "" || req.PatientID == "" {
		respondError(w, http.StatusBadRequest, "scenarioId and patientId are required", nil)
		return
	}
	if req.ReferenceTime.IsZero() {
		req.ReferenceTime = time.Now().UTC()
	}

	ir, err := s.registry.IR(req.ScenarioID)
	if err != nil {
		respondError(w, http.StatusNotFound, "scenario not found", err)
		return
	}

	evalReq := evalRequest(req)
	if req.Signals == nil {
		from := req.ReferenceTime.Add(-ir.MaxLookback())
		data, err := datasource.SignalData(r.Context(), s.source, req.PatientID,
			signalsOf(ir), from, req.ReferenceTime)
		if err != nil {
			logger.EvalError()
			respondError(w, http.StatusInternalServerError, "failed to fetch observations", err)
			return
		}
		evalReq.Signals = data
	}

	startTime := time.Now()
	result, err := s.registry.Evaluate(req.ScenarioID, evalReq)
	if err != nil {
		logger.EvalError()
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Result:         result,
		IRHash:         ir.IRHash,
		EvaluationTime: time.Since(startTime).String(),
	})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	records, err := s.registry.ListActive()
	if err != nil {
		logger.ErrorHttp5xx()
		respondError(w, http.StatusInternalServerError, "failed to list scenarios", err)
		return
	}

	out := make([]ScenarioResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, scenarioResponse(rec, s.registry, false))
	}
	respondJSON(w, http.StatusOK, ScenariosListResponse{Scenarios: out})
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req CreateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" || req.Source == "" {
		respondError(w, http.StatusBadRequest, "name and source are required", nil)
		return
	}

	rec, _, err := s.registry.Add(req.Name, req.Source, req.Active)
	if err != nil {
		respondCompileError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, scenarioResponse(rec, s.registry, true))
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioId")

	rec, err := s.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "scenario not found", err)
		return
	}
	respondJSON(w, http.StatusOK, scenarioResponse(rec, s.registry, true))
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioId")

	var req UpdateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rec, _, err := s.registry.Update(id, req.Name, req.Source, req.Active)
	if err != nil {
		respondCompileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scenarioResponse(rec, s.registry, true))
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioId")

	if err := s.registry.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "scenario not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioId")

	ir, err := s.registry.IR(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "scenario not found", err)
		return
	}
	respondJSON(w, http.StatusOK, ir.Artifact())
}

// Helpers

func evalRequest(req EvaluateRequest) (out eval.Request) {
	out.PatientID = req.PatientID
	out.ReferenceTime = req.ReferenceTime
	out.Attributes = req.Attributes
	out.PreviousState = req.PreviousState
	if req.Signals != nil {
		out.Signals = make(map[string][]scenario.DataPoint, len(req.Signals))
		for name, obs := range req.Signals {
			pts := make([]scenario.DataPoint, 0, len(obs))
			for _, o := range obs {
				pts = append(pts, scenario.DataPoint{Timestamp: o.Timestamp, Value: o.Value})
			}
			out.Signals[name] = pts
		}
	}
	return out
}

func signalsOf(ir *compiler.IR) []scenario.Signal {
	sigs := make([]scenario.Signal, 0, len(ir.Signals))
	for _, s := range ir.Signals {
		sigs = append(sigs, s.Signal)
	}
	return sigs
}

func scenarioResponse(rec *store.Record, reg *registry.Registry, withSource bool) ScenarioResponse {
	resp := ScenarioResponse{
		ID:        rec.ID,
		Name:      rec.Name,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if withSource {
		resp.Source = rec.Source
	}
	if ir, err := reg.IR(rec.ID); err == nil {
		resp.SpecHash = ir.SpecHash
		resp.IRHash = ir.IRHash
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if status >= 500 {
		logger.ErrorHttp5xx()
	} else if status >= 400 {
		logger.WarnHttp4xx()
	}
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// respondCompileError renders load/compile diagnostics as a 400 so the
// author sees every problem; anything else is a 500.
func respondCompileError(w http.ResponseWriter, err error) {
	var ce *registry.CompileError
	if errors.As(err, &ce) {
		logger.CompileFailure()
		logger.WarnHttp4xx()
		respondJSON(w, http.StatusBadRequest, DiagnosticsResponse{
			Error:       "scenario failed to compile",
			Diagnostics: ce.Diagnostics,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, "failed to store scenario", err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	logger.SetLevel(mustLevel(cfg.LogLevel))

	server, err := NewServer(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}
	logger.Info("server stopped")
}

func mustLevel(s string) logger.Level {
	level, err := logger.ParseLevel(s)
	if err != nil {
		return logger.LevelInfo
	}
	return level
}

// Package api exposes fusion runs over HTTP. Runs are accepted
// asynchronously and polled by ID.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/resilience"
	"github.com/sells-group/fusion-cli/internal/store"
)

// maxBodyBytes bounds a criteria payload.
const maxBodyBytes = 1 << 20

// Runner starts and drives runs. *pipeline.Pipeline satisfies it.
type Runner interface {
	Start(ctx context.Context, criteria *model.Criteria) (*model.Run, error)
	Execute(ctx context.Context, run *model.Run) (*model.RunResult, error)
}

// Options configure a Server. Breakers may be nil.
type Options struct {
	CORSOrigins []string
	Breakers    *resilience.Breakers
}

// Server serves the run API. Accepted runs execute under the context
// passed to New, so cancelling it stops in-flight runs.
type Server struct {
	ctx    context.Context
	runner Runner
	store  store.Store
	opts   Options

	wg sync.WaitGroup
}

// New creates a Server.
func New(ctx context.Context, runner Runner, st store.Store, opts Options) *Server {
	return &Server{ctx: ctx, runner: runner, store: st, opts: opts}
}

// Wait blocks until every accepted run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/sources", s.handleSources)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	out := map[string]string{}
	if s.opts.Breakers != nil {
		for name, st := range s.opts.Breakers.States() {
			out[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	criteria, err := model.ParseCriteria(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.runner.Start(r.Context(), criteria)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCriteria) || errors.Is(err, model.ErrEmptyCriteria) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("api: start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := s.runner.Execute(s.ctx, run)
		if err != nil {
			zap.L().Error("api: run failed", zap.String("run_id", run.ID), zap.Error(err))
			return
		}
		zap.L().Info("api: run complete",
			zap.String("run_id", run.ID),
			zap.Int("total_valid", result.TotalValid),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type runResponse struct {
	*model.Run
	Phases []model.RunPhase `json:"phases"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}

	phases, err := s.store.ListPhases(r.Context(), id)
	if err != nil {
		zap.L().Warn("api: list phases", zap.String("run_id", id), zap.Error(err))
	}
	if phases == nil {
		phases = []model.RunPhase{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Phases: phases})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ABOUTME: Localhost status server for the export desk
// ABOUTME: Dashboard, health, Prometheus metrics, event feed and operator actions, with an optional poll loop
package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/handlers"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/scoring"
)

//go:embed templates/*
var templatesFS embed.FS

type Options struct {
	Addr string
	// Interval runs a poll every tick when positive.
	Interval time.Duration
}

type Server struct {
	db        *sql.DB
	recorder  *scoring.Recorder
	queue     *scoring.EventQueue
	ingestor  *intake.Ingestor
	gatherer  prometheus.Gatherer
	templates *template.Template
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

func NewServer(database *sql.DB, recorder *scoring.Recorder, queue *scoring.EventQueue, ingestor *intake.Ingestor, gatherer prometheus.Gatherer, opts Options, logger zerolog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"band": func(score int) string {
			return recorder.Rules().Current().Classify(score).Color
		},
		"date": func(v any) string {
			switch t := v.(type) {
			case time.Time:
				return t.Local().Format("2006-01-02 15:04")
			case *time.Time:
				if t != nil {
					return t.Local().Format("2006-01-02 15:04")
				}
			}
			return ""
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		db:        database,
		recorder:  recorder,
		queue:     queue,
		ingestor:  ingestor,
		gatherer:  gatherer,
		templates: tmpl,
		opts:      opts,
		logger:    logger.With().Str("component", "web").Logger(),
		now:       time.Now,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleDashboard)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/classification-changes", s.handleClassificationChanges)
		r.Post("/ingest", s.handleIngest)
		r.Post("/requests/{id}/replied", s.handleRequestReplied)
		r.Post("/rules/reload", s.handleReloadRules)
	})
	return r
}

// Run serves until ctx is cancelled, polling every Interval when set.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.Interval > 0 && s.ingestor != nil {
		go s.pollLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.ingestor.Cancel()
			return
		case <-ticker.C:
			if _, err := s.ingestor.Poll(ctx); err != nil && !errors.Is(err, errs.ErrPollInProgress) {
				s.logger.Error().Err(err).Str("kind", errs.Kind(err)).Msg("scheduled poll failed")
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request completed")
	})
}

type dashboardData struct {
	Title    string
	Clients  []*models.Client
	Requests []*models.Request
	Sources  []db.SyncState
	Polling  bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clients, err := db.ListClients(ctx, s.db, db.ClientFilter{Limit: 100})
	if err != nil {
		s.writeError(w, err)
		return
	}
	requests, err := db.ListRequests(ctx, s.db, db.RequestFilter{ReplyStatus: models.ReplyPending, Limit: 50})
	if err != nil {
		s.writeError(w, err)
		return
	}
	sources, err := db.GetAllSyncStates(ctx, s.db)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data := dashboardData{
		Title:    "Export desk",
		Clients:  clients,
		Requests: requests,
		Sources:  sources,
		Polling:  s.ingestor != nil && s.ingestor.Running(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error().Err(err).Msg("template error rendering dashboard")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type healthResponse struct {
	Database string `json:"database"`
	Dropped  uint64 `json:"dropped"`
	Polling  bool   `json:"polling"`
	Queued   int    `json:"queued"`
	Status   string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Dropped:  s.queue.Dropped(),
		Polling:  s.ingestor != nil && s.ingestor.Running(),
		Queued:   s.queue.Len(),
		Status:   "ok",
		Database: "ok",
	}
	status := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		resp.Status, resp.Database = "degraded", err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := s.queue.Drain()
	if events == nil {
		events = []scoring.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleClassificationChanges(w http.ResponseWriter, r *http.Request) {
	since, err := handlers.ParseSince(r.URL.Query().Get("since"), s.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: errs.KindConfigInvalid})
		return
	}
	changes, err := db.ListClassificationChanges(r.Context(), s.db, since, 500)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if changes == nil {
		changes = []*models.ClassificationChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no sources configured", Kind: errs.KindConfigInvalid})
		return
	}
	summary, err := s.ingestor.Poll(r.Context())
	if err != nil && summary == nil {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("poll returned a partial summary")
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRequestReplied(w http.ResponseWriter, r *http.Request) {
	req, err := s.recorder.MarkRequestReplied(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleReloadRules(w http.ResponseWriter, _ *http.Request) {
	store := s.recorder.Rules()
	if err := store.Reload(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, store.Current().ClassificationThresholds)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrPollInProgress):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrConfigInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrProviderAuth), errors.Is(err, errs.ErrProviderTransient):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: errs.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

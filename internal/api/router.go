package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gebr/internal/flow"
	"gebr/internal/job"
	"gebr/internal/logging"
	"gebr/internal/notify"
	"gebr/internal/queue"
	"gebr/internal/scheduler"
	"gebr/internal/services"
)

// JobService is the scheduler surface served over HTTP.
type JobService interface {
	Submit(ctx context.Context, req scheduler.RunRequest) (job.Record, error)
	List(ctx context.Context) ([]job.Record, error)
	Get(ctx context.Context, id string) (job.Record, error)
	Clear(ctx context.Context, id string) error
	End(ctx context.Context, id string) error
	Kill(ctx context.Context, id string) error
	Queues(ctx context.Context) ([]queue.Info, error)
	RenameQueue(ctx context.Context, oldName, newName string) error
	Subscribe(ctx context.Context, hostname string) (*notify.Client, error)
	Unsubscribe(ctx context.Context, clientID string) error
}

// Options configures the HTTP handler.
type Options struct {
	Logger *slog.Logger
	// Token enables bearer authentication on /api routes.
	Token   string
	Logs    *logging.StreamHub
	Metrics *Metrics
	Status  func(ctx context.Context) DaemonStatus
}

type server struct {
	svc     JobService
	logger  *slog.Logger
	logs    *logging.StreamHub
	status  func(ctx context.Context) DaemonStatus
	metrics *Metrics
}

// NewHandler builds the HTTP handler for svc.
func NewHandler(svc JobService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &server{
		svc:     svc,
		logger:  logging.NewComponentLogger(logger, "api"),
		logs:    opts.Logs,
		status:  opts.Status,
		metrics: opts.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.Token))
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleClear)
		r.Post("/jobs/{id}/end", s.handleEnd)
		r.Post("/jobs/{id}/kill", s.handleKill)
		r.Get("/queues", s.handleQueues)
		r.Post("/queues/{name}/rename", s.handleRenameQueue)
		r.Get("/logs", s.handleLogs)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = r.WithContext(services.WithRequestID(r.Context(), middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithContext(r.Context(), s.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("status unavailable"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.Wrap(services.ErrProtocol, "api", "decode submit", "", err))
		return
	}
	doc, err := flow.Parse([]byte(req.Flow))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		hostname = remoteHost(r)
	}
	rec, err := s.svc.Submit(r.Context(), scheduler.RunRequest{
		Queue:    req.Queue,
		Account:  req.Account,
		Flow:     doc,
		NProcs:   req.NProcs,
		RunID:    req.RunID,
		Hostname: hostname,
		Display:  req.Display,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, JobResponse{Job: rec})
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: rec})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.svc.Clear)
}

func (s *server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.svc.End)
}

func (s *server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.svc.Kill)
}

func (s *server) jobAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) error) {
	if err := action(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.svc.Queues(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QueueListResponse{Queues: queues})
}

func (s *server) handleRenameQueue(w http.ResponseWriter, r *http.Request) {
	var req RenameQueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.Wrap(services.ErrProtocol, "api", "decode rename", "", err))
		return
	}
	if err := s.svc.RenameQueue(r.Context(), chi.URLParam(r, "name"), req.To); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.writeJSON(w, http.StatusOK, LogStreamResponse{})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := truthy(query.Get("follow"))
	tail := truthy(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))
	jobID := strings.TrimSpace(query.Get("job"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = s.logs.Tail(limit)
	} else {
		var err error
		events, next, err = s.logs.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if jobID != "" && evt.JobID != jobID {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: filtered, Next: next})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrProtocol):
		status = http.StatusBadRequest
	}
	s.writeError(w, status, err)
}

func truthy(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

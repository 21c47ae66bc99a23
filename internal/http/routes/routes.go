package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/callcache/instrument"
	appmw "github.com/briangreenhill/callcache/internal/http/middleware"
	"github.com/briangreenhill/callcache/internal/jobs"
	"github.com/briangreenhill/callcache/memo"
	"github.com/briangreenhill/callcache/store"
	"github.com/briangreenhill/callcache/webcache"
)

const maxValueBytes = 1 << 20

// Enqueuer schedules background tasks; *asynq.Client satisfies it
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router *chi.Mux
	Store  store.Store
	Memo   *memo.Cache
	Web    *webcache.Cache
	Jobs   Enqueuer // optional; nil disables /fetch/warm
}

type ServerOptions struct {
	Store    store.Store
	Memo     *memo.Cache
	Web      *webcache.Cache
	Jobs     Enqueuer
	Logger   zerolog.Logger
	APIToken string
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Store: opts.Store, Memo: opts.Memo, Web: opts.Web, Jobs: opts.Jobs}

	r.Get("/healthz", s.handleHealth)

	r.Group(func(pr chi.Router) {
		pr.Use(appmw.RequireToken(opts.APIToken))
		pr.Post("/cache", s.handleCacheStore)
		pr.Get("/cache/{handle}", s.handleCacheGet)
		pr.Get("/calls/{functionID}", s.handleCallCount)
		pr.Get("/replay/{functionID}", s.handleReplay)
		pr.Get("/fetch", s.handleFetch)
		pr.Get("/fetch/count", s.handleFetchCount)
		pr.Post("/fetch/warm", s.handleWarm)
	})

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
	}
}

func (s *Server) handleCacheStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxValueBytes {
		http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
		return
	}

	handle, err := s.Memo.Put(r.Context(), string(body))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.json(w, r, http.StatusCreated, map[string]string{"handle": handle})
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	ctx := r.Context()

	var (
		value any
		ok    bool
		err   error
	)
	switch as := r.URL.Query().Get("as"); as {
	case "", "string":
		value, ok, err = memo.Retrieve(ctx, s.Memo, handle, memo.AsString)
	case "int":
		value, ok, err = memo.Retrieve(ctx, s.Memo, handle, memo.AsInt)
	case "float":
		value, ok, err = memo.Retrieve(ctx, s.Memo, handle, memo.AsFloat)
	case "bool":
		value, ok, err = memo.Retrieve(ctx, s.Memo, handle, memo.AsBool)
	case "bytes":
		value, ok, err = memo.Retrieve(ctx, s.Memo, handle, memo.AsBytes)
	default:
		http.Error(w, "unknown coercion "+strconv.Quote(as), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.json(w, r, http.StatusOK, map[string]any{"handle": handle, "value": value})
}

func (s *Server) handleCallCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "functionID")
	n, err := s.Memo.CallCount(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.json(w, r, http.StatusOK, map[string]any{"function_id": id, "count": n})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	report, err := instrument.Replay(r.Context(), s.Store, chi.URLParam(r, "functionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if report.Warning != nil {
		w.Header().Set("X-History-Mismatch", report.Warning.Error())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, report.String()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write replay response")
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	content, err := s.Web.Fetch(r.Context(), url)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, content); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write fetch response")
	}
}

func (s *Server) handleFetchCount(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	n, err := s.Web.AccessCount(r.Context(), url)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.json(w, r, http.StatusOK, map[string]any{"url": url, "count": n})
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		http.Error(w, "background jobs disabled", http.StatusServiceUnavailable)
		return
	}
	var p jobs.WarmPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxValueBytes)).Decode(&p); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	task, err := jobs.NewWarmTask(p.URLs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := s.Jobs.Enqueue(task)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("[asynq] enqueue failed")
		http.Error(w, "failed to queue warm job", http.StatusInternalServerError)
		return
	}
	hlog.FromRequest(r).Info().Str("task_id", info.ID).Str("queue", info.Queue).Msg("[asynq] enqueued warm task")
	s.json(w, r, http.StatusAccepted, map[string]string{"task_id": info.ID})
}

// fail maps component errors to status codes
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *memo.CoercionError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &cerr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, webcache.ErrFetchFailure):
		status = http.StatusBadGateway
	case errors.Is(err, memo.ErrUnsupportedValue):
		status = http.StatusBadRequest
	}
	hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}

func (s *Server) json(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

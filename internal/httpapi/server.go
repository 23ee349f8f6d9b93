// Package httpapi exposes the post store and calendar queries over JSON/HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"postcal/internal/optimizer"
	"postcal/internal/store"
	"postcal/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Pprof        bool
}

type Option func(*Server)

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

func WithOptimizer(o optimizer.Optimizer) Option { return func(s *Server) { s.opt = o } }

type Server struct {
	cfg   Config
	log   logx.Logger
	posts *store.Store
	now   func() time.Time

	mu        sync.RWMutex
	opt       optimizer.Optimizer
	loc       *time.Location
	weekStart time.Weekday

	srvMu sync.Mutex
	srv   *http.Server
	addr  string
}

func New(cfg Config, posts *store.Store, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:   cfg,
		log:   log.Component("http"),
		posts: posts,
		now:   time.Now,
		opt:   optimizer.Disabled{},
		loc:   time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCalendar changes the timezone used for "today" and the default week start.
func (s *Server) SetCalendar(loc *time.Location, weekStart time.Weekday) {
	if loc == nil {
		loc = time.Local
	}
	s.mu.Lock()
	s.loc, s.weekStart = loc, weekStart
	s.mu.Unlock()
}

func (s *Server) clock() (time.Time, *time.Location, time.Weekday) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().In(s.loc), s.loc, s.weekStart
}

func (s *Server) optimizer() optimizer.Optimizer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opt
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(withRequestID, accessLog(s.log), recoverer(s.log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/posts", s.listPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.createPost).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.getPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", s.patchPost).Methods(http.MethodPatch)
	api.HandleFunc("/posts/{id}", s.deletePost).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/optimize", s.optimizePost).Methods(http.MethodPost)
	api.HandleFunc("/calendar/{year:[0-9]{4}}/{month:[0-9]{1,2}}", s.monthView).Methods(http.MethodGet)
	api.HandleFunc("/calendar/{year:[0-9]{4}}/{month:[0-9]{1,2}}/{day:[0-9]{1,2}}", s.dayView).Methods(http.MethodGet)

	if s.cfg.Pprof {
		dbg := r.PathPrefix("/debug/pprof").Subrouter()
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}
	return r
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv, s.addr = srv, ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.Err(err))
		}
	}()
	s.log.Info("http listening", logx.String("addr", s.addr), logx.Bool("pprof", s.cfg.Pprof))
	return nil
}

// Addr is the bound address while running.
func (s *Server) Addr() string {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srv, s.addr = nil, ""
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	s.log.Info("http stopped")
	return err
}

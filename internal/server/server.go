package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"readmark/internal/auth"
	"readmark/internal/library"
	"readmark/internal/store"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Enqueuer accepts background save jobs.
type Enqueuer interface {
	Push(ctx context.Context, job store.Job) error
}

// Options configures a Server.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CookieName     string
	SavesPerMinute float64
	SaveBurst      int
}

type Server struct {
	svc       *library.Service
	queue     Enqueuer
	issuer    *auth.Issuer
	logger    *zap.Logger
	router    *mux.Router
	server    *http.Server
	templates map[string]*template.Template
	flashes   *flashes
	limiter   *saveLimiter
	opts      Options
}

// NewServer builds the router. queue may be nil, in which case
// asynchronous saves are refused.
func NewServer(svc *library.Service, queue Enqueuer, issuer *auth.Issuer, logger *zap.Logger, opts Options) (*Server, error) {
	if opts.CookieName == "" {
		opts.CookieName = "readmark_token"
	}
	tmpls, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:       svc,
		queue:     queue,
		issuer:    issuer,
		logger:    logger,
		router:    mux.NewRouter(),
		templates: tmpls,
		flashes:   newFlashes(),
		limiter:   newSaveLimiter(opts.SavesPerMinute, opts.SaveBurst),
		opts:      opts,
	}
	s.routes()
	return s, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	pages := []string{"index.html", "view.html", "login.html"}
	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(assets, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		out[page] = t
	}
	return out, nil
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("Jan 02, 2006") },
	"host": func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return "unknown"
		}
		return u.Hostname()
	},
}

func (s *Server) routes() {
	s.router.Use(s.instrument)

	static, _ := fs.Sub(assets, "static")
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/login", s.handleLoginForm).Methods("GET")
	s.router.HandleFunc("/login", s.handleLogin).Methods("POST")

	// App Routes
	pages := s.router.NewRoute().Subrouter()
	pages.Use(s.authenticate(true))
	pages.HandleFunc("/", s.handleIndex).Methods("GET")
	pages.HandleFunc("/add", s.handleAdd).Methods("POST")
	pages.HandleFunc("/view/{id}", s.handleView).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate(false))
	api.HandleFunc("/articles", s.handleListArticles).Methods("GET")
	api.HandleFunc("/articles", s.handleCreateArticle).Methods("POST")
	api.HandleFunc("/articles/{id}", s.handleGetArticle).Methods("GET")
	api.HandleFunc("/articles/{id}", s.handleUpdateArticle).Methods("PATCH")
	api.HandleFunc("/articles/{id}", s.handleDeleteArticle).Methods("DELETE")
	api.HandleFunc("/articles/{id}/highlights", s.handleListHighlights).Methods("GET")
	api.HandleFunc("/articles/{id}/highlights", s.handleCreateHighlight).Methods("POST")
	api.HandleFunc("/articles/{id}/rendered", s.handleRendered).Methods("GET")
	api.HandleFunc("/articles/{id}/markdown", s.handleMarkdown).Methods("GET")
	api.HandleFunc("/highlights/{id}", s.handleUpdateHighlight).Methods("PATCH")
	api.HandleFunc("/highlights/{id}", s.handleDeleteHighlight).Methods("DELETE")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.logger.Info("Web server listening", zap.String("addr", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package server serves the built site during development and pushes
// reloads, stylesheet swaps and build errors to connected browsers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/sitesmith/internal/config"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/notify"
	"github.com/conneroisu/sitesmith/internal/version"
	"github.com/conneroisu/sitesmith/internal/watcher"
)

const (
	shutdownTimeout = 5 * time.Second
	outputDebounce  = 100 * time.Millisecond
)

// Options configures the development server.
type Options struct {
	Root           string
	Host           string
	Port           int
	Open           bool
	LiveReload     bool
	CSSInjection   bool
	AllowedOrigins []string
	// Debounce groups output changes before browsers are told about them.
	Debounce time.Duration
}

// OptionsFromConfig derives server options from the site configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:           cfg.Paths.Root,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Open:           cfg.Server.Open,
		LiveReload:     cfg.Server.LiveReload,
		CSSInjection:   cfg.Server.CSSInjection,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Debounce:       outputDebounce,
	}
}

// Server is the development server. It doubles as a notify.Notifier so
// recoverable build failures show up in the browser.
type Server struct {
	opts     Options
	logger   logging.Logger
	hub      *Hub
	gatherer prometheus.Gatherer
	started  time.Time

	ready     chan struct{}
	readyOnce sync.Once
	addrMu    sync.RWMutex
	addr      string

	clients sync.WaitGroup
}

// New creates a server. It does not listen until Run is called.
func New(opts Options, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("server")
	return &Server{
		opts:   opts,
		logger: logger,
		hub:    newHub(logger),
		ready:  make(chan struct{}),
	}
}

// WithMetrics exposes g at /metrics.
func (s *Server) WithMetrics(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// Addr returns the address the server listens on once Ready is closed.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return siteerrors.NewIOError("SERVER_LISTEN", fmt.Sprintf("cannot listen on %s", addr), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and
// returns ctx.Err(). Serve closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.run(runCtx)
	}()

	if s.opts.LiveReload {
		fw, err := s.watchOutput()
		if err != nil {
			cancel()
			wg.Wait()
			ln.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fw.Run(runCtx); err != nil {
				s.logger.Warn(runCtx, err, "Output watcher stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.addrMu.Lock()
	s.addr = ln.Addr().String()
	s.started = time.Now()
	s.addrMu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	siteURL := "http://" + s.Addr()
	s.logger.Info(ctx, "Serving site", "root", s.opts.Root, "url", siteURL)
	if s.opts.Open {
		go s.openBrowser(siteURL)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = siteerrors.NewIOError("SERVER_SERVE", "server stopped unexpectedly", err)
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, err, "Graceful shutdown failed")
	}
	wg.Wait()
	s.clients.Wait()

	if serveErr != nil {
		return serveErr
	}
	s.logger.Info(ctx, "Server stopped")
	return ctx.Err()
}

// watchOutput reloads browsers whenever anything under the root changes.
func (s *Server) watchOutput() (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(s.logger, s.opts.Debounce)
	if err != nil {
		return nil, siteerrors.NewIOError("SERVER_WATCH", "cannot watch output directory", err)
	}
	fw.AddFilter(watcher.NoEditorTempFilter)

	pattern := filepath.Join(s.opts.Root, "**", "*")
	if err := fw.Bind("livereload", []string{pattern}, s.handleOutputChange); err != nil {
		fw.Close()
		return nil, siteerrors.NewIOError("SERVER_WATCH", "cannot watch output directory", err)
	}
	return fw, nil
}

// handleOutputChange swaps stylesheets in place when only CSS changed and
// reloads the page otherwise. Source maps never trigger anything.
func (s *Server) handleOutputChange(ctx context.Context, events []watcher.ChangeEvent) error {
	var sheets []string
	reload := false
	for _, ev := range events {
		switch strings.ToLower(filepath.Ext(ev.Path)) {
		case ".map":
		case ".css":
			if ev.Type == watcher.EventTypeDeleted {
				reload = true
				continue
			}
			if u := s.urlFor(ev.Path); !slices.Contains(sheets, u) {
				sheets = append(sheets, u)
			}
		default:
			reload = true
		}
	}

	switch {
	case !reload && len(sheets) == 0:
		return nil
	case !reload && s.opts.CSSInjection:
		for _, u := range sheets {
			s.logger.Debug(ctx, "Injecting stylesheet", "target", u)
			s.hub.Broadcast(UpdateMessage{Type: MessageCSSUpdate, Target: u})
		}
	default:
		s.logger.Debug(ctx, "Reloading browsers", "changes", len(events))
		s.hub.Broadcast(UpdateMessage{Type: MessageFullReload})
	}
	return nil
}

func (s *Server) urlFor(file string) string {
	rel, err := filepath.Rel(s.opts.Root, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	return "/" + filepath.ToSlash(rel)
}

// Notify shows n as an overlay in every connected browser.
func (s *Server) Notify(ctx context.Context, n notify.Notification) {
	var b strings.Builder
	if err := Overlay(n).Render(ctx, &b); err != nil {
		s.logger.Error(ctx, err, "Failed to render error overlay")
		return
	}
	s.hub.Broadcast(UpdateMessage{Type: MessageBuildError, Content: b.String()})
}

// Handler returns the HTTP handler without listening.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /__health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	static := s.staticHandler()
	if s.opts.LiveReload {
		mux.HandleFunc(liveReloadPath, s.handleLiveReload)
		mux.HandleFunc("GET "+liveReloadScript, handleClientScript)
		static = injectLiveReload(static)
	}
	mux.Handle("/", static)

	return s.logRequests(mux)
}

func (s *Server) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.opts.Root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.exists(r.URL.Path) {
			templ.Handler(NotFound(r.URL.Path), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// exists reports whether urlPath names a file, or a directory with an
// index page, under the root.
func (s *Server) exists(urlPath string) bool {
	name := filepath.Join(s.opts.Root, filepath.FromSlash(path.Clean("/"+urlPath)))
	info, err := os.Stat(name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = os.Stat(filepath.Join(name, "index.html"))
		return err == nil
	}
	return true
}

func handleClientScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientScript))
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Version: version.GetVersion(),
		Clients: s.hub.Clients(),
		Uptime:  time.Since(s.startedAt()).Round(time.Second).String(),
	})
}

func (s *Server) startedAt() time.Time {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	if s.started.IsZero() {
		return time.Now()
	}
	return s.started
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// checkOrigin accepts websocket upgrades only from pages served by this
// server or from explicitly allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if originURL.Host == r.Host {
		return true
	}

	port := strconv.Itoa(s.opts.Port)
	allowed := []string{
		net.JoinHostPort(s.opts.Host, port),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
	if slices.Contains(allowed, originURL.Host) {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) openBrowser(target string) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.logger.Warn(context.Background(), err, "Refusing to open browser", "url", target)
		return
	}

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", target).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	case "darwin":
		err = exec.Command("open", target).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser")
	}
}

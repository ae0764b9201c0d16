// Package preview serves the html rendition of a book locally, rebuilding
// it when manuscript sources change and telling connected browsers to
// reload over SSE.
//
// The server deliberately keeps running through failed rebuilds: authors
// fix the manuscript with the page still open, and the last good rendition
// stays served until a rebuild succeeds.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/logfields"
	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
	"git.home.luguber.info/inful/bookbuilder/internal/workspace"
)

const (
	// debounceWindow batches editor save bursts into one rebuild.
	debounceWindow = 300 * time.Millisecond

	shutdownTimeout = 5 * time.Second
)

// Options tune a preview Server beyond what the config carries.
type Options struct {
	// Port overrides the configured preview port when positive.
	Port int
	// Registry, when non-nil and metrics are enabled in the config, is
	// served at the configured metrics path.
	Registry *prom.Registry
}

// Server builds and serves the html rendition of one book.
type Server struct {
	cfg     *config.Config
	builder *pipeline.Builder
	hub     *Hub
	opts    Options

	port     int
	siteRoot string
	start    time.Time

	status buildStatus
}

// New creates a preview server around an existing builder. The builder is
// used for the html target only; its Force and Jobs settings apply to every
// rebuild.
func New(cfg *config.Config, builder *pipeline.Builder, opts Options) *Server {
	port := opts.Port
	if port <= 0 {
		port = cfg.Preview.Port
	}
	return &Server{
		cfg:      cfg,
		builder:  builder,
		hub:      NewHub(),
		opts:     opts,
		port:     port,
		siteRoot: workspace.ForTarget(cfg, config.FormatHTML).BuildRoot,
	}
}

func (s *Server) recorder() metrics.Recorder {
	if s.builder.Recorder == nil {
		return metrics.NoopRecorder{}
	}
	return s.builder.Recorder
}

// Run builds once, then serves and watches until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.start = time.Now()

	// The initial build failing is not fatal; the error shows up on
	// /status and in the log, and the next file change retries.
	s.rebuild(ctx)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return bberrors.ServerError("listen", fmt.Errorf("port %d: %w", s.port, err))
	}

	srv := s.httpServer()
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("preview server error", logfields.Error(serveErr))
		}
	}()
	slog.Info("preview server listening",
		slog.Int("port", s.port),
		slog.String("url", fmt.Sprintf("http://localhost:%d", s.port)))

	watcher, err := s.setupWatcher()
	if err != nil {
		_ = srv.Close()
		return err
	}
	defer func() { _ = watcher.Close() }()

	rebuildReq, trigger := newDebouncer()
	go s.rebuildWorker(ctx, rebuildReq)

	sched, err := s.startScheduler(trigger)
	if err != nil {
		// Periodic rebuilds are a convenience; the watcher still drives
		// everything.
		slog.Warn("periodic rebuild disabled", logfields.Error(err))
	}

	s.watchLoop(ctx, watcher, trigger)

	return s.shutdown(srv, sched)
}

// rebuild runs one html build and broadcasts to browsers when the artifact
// actually changed. Fresh no-op builds stay silent so interval rebuilds do
// not force pointless page reloads.
func (s *Server) rebuild(ctx context.Context) {
	report, err := s.builder.Build(ctx, config.FormatHTML)
	if err != nil {
		s.status.setError(report, err)
		slog.Warn("preview rebuild failed", logfields.Error(err))
		return
	}

	s.status.setSuccess(report)
	if report.Compiled {
		s.recorder().IncPreviewReload()
		s.hub.Broadcast(strconv.FormatInt(time.Now().UnixNano(), 10))
	}
}

// httpServer assembles the mux: the rendered site at /, SSE livereload,
// health, status, and the optional metrics endpoint.
func (s *Server) httpServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", s.siteHandler())
	mux.Handle("/livereload", s.hub)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	if s.cfg.Metrics.Enabled && s.opts.Registry != nil {
		mux.Handle(s.cfg.Metrics.Path, metrics.HTTPHandler(s.opts.Registry))
		slog.Info("metrics endpoint registered", logfields.Path(s.cfg.Metrics.Path))
	}

	// No write timeout: /livereload connections are long-lived SSE streams.
	return &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 300 * time.Second,
	}
}

// siteHandler serves the html build tree, injecting the livereload script
// into pages. Assets missing from the build tree fall back to the book
// directory, mirroring the compiler's resource path: woven figures live
// under the build tree, author images next to the manuscript.
func (s *Server) siteHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || p == "/" {
			p = path.Join(p, "index.html")
		}

		if strings.HasSuffix(p, ".html") {
			s.servePage(w, r, filepath.Join(s.siteRoot, filepath.FromSlash(p)))
			return
		}

		for _, root := range []string{s.siteRoot, s.cfg.Dir()} {
			candidate := filepath.Join(root, filepath.FromSlash(p))
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
				http.ServeFile(w, r, candidate)
				return
			}
		}
		http.NotFound(w, r)
	})
}

// servePage serves one html file with the livereload client spliced in
// before the closing body tag.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "read page: "+err.Error(), http.StatusInternalServerError)
		return
	}

	page := string(data)
	snippet := "<script>" + LiveReloadScript + "</script></body>"
	if strings.Contains(page, "</body>") {
		page = strings.Replace(page, "</body>", snippet, 1)
	} else {
		page += "<script>" + LiveReloadScript + "</script>"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(page)); err != nil {
		slog.Debug("page write", logfields.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	hasGood, buildErr := s.status.snapshotHealth()
	state := "ok"
	if buildErr != nil || !hasGood {
		state = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": state})
}

type statusResponse struct {
	Status    string     `json:"status"`
	Uptime    string     `json:"uptime"`
	Clients   int        `json:"livereload_clients"`
	LastBuild *buildInfo `json:"last_build,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type buildInfo struct {
	BuildID  string    `json:"build_id"`
	Outcome  string    `json:"outcome"`
	Chapters int       `json:"chapters"`
	Rebuilt  int       `json:"rebuilt"`
	Blocks   int       `json:"blocks"`
	Duration string    `json:"duration"`
	Finished time.Time `json:"finished"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report, buildErr := s.status.snapshot()

	resp := statusResponse{
		Status:  "ok",
		Uptime:  time.Since(s.start).Truncate(time.Second).String(),
		Clients: s.hub.ClientCount(),
	}
	if buildErr != nil {
		resp.Status = "error"
		resp.Error = buildErr.Error()
	}
	if report != nil {
		resp.LastBuild = &buildInfo{
			BuildID:  report.BuildID,
			Outcome:  string(report.Outcome),
			Chapters: report.Chapters,
			Rebuilt:  report.Rebuilt,
			Blocks:   report.Blocks,
			Duration: report.Duration().Truncate(time.Millisecond).String(),
			Finished: report.End,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// setupWatcher watches the book directory tree, excluding derived trees
// so our own writes never trigger rebuilds.
func (s *Server) setupWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, bberrors.ServerError("watch", err)
	}
	if err := s.addDirsRecursive(watcher, s.cfg.Dir()); err != nil {
		_ = watcher.Close()
		return nil, bberrors.ServerError("watch", err)
	}
	return watcher, nil
}

func (s *Server) addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && s.excludedDir(p) {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(p); addErr != nil {
			slog.Warn("watch add failed", logfields.Path(p), logfields.Error(addErr))
		}
		return nil
	})
}

// excludedDir reports whether a directory must never be watched: hidden
// trees and everything the build writes itself.
func (s *Server) excludedDir(p string) bool {
	if strings.HasPrefix(filepath.Base(p), ".") {
		return true
	}
	for _, derived := range []string{s.cfg.BuildRoot(), s.cfg.OutputRoot()} {
		if p == derived {
			return true
		}
	}
	return false
}

// derivedPath reports whether a changed path is produced by the build
// itself (artifacts, intermediates, the history database) and must never
// feed back into the watch loop.
func (s *Server) derivedPath(name string) bool {
	roots := []string{s.cfg.BuildRoot(), s.cfg.OutputRoot()}
	for _, root := range roots {
		if root != "" && (name == root || strings.HasPrefix(name, root+string(os.PathSeparator))) {
			return true
		}
	}
	if db := s.cfg.Resolve(s.cfg.History.Path); db != "" {
		// sqlite writes sidecar files next to the database
		if name == db || strings.HasPrefix(name, db+"-") {
			return true
		}
	}
	return false
}

// newDebouncer returns the single-flight rebuild channel and a trigger
// that batches change bursts behind one timer.
func newDebouncer() (chan struct{}, func()) {
	var mu sync.Mutex
	var timer *time.Timer
	rebuildReq := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceWindow, func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		})
	}
	return rebuildReq, trigger
}

// rebuildWorker processes rebuild requests one at a time. Requests arriving
// during a build coalesce into exactly one follow-up build.
func (s *Server) rebuildWorker(ctx context.Context, rebuildReq chan struct{}) {
	var mu sync.Mutex
	running := false
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuildReq:
			mu.Lock()
			if running {
				pending = true
				mu.Unlock()
				continue
			}
			running = true
			mu.Unlock()

			slog.Info("change detected, rebuilding")
			s.rebuild(ctx)

			mu.Lock()
			running = false
			rerun := pending
			pending = false
			mu.Unlock()
			if rerun {
				select {
				case rebuildReq <- struct{}{}:
				default:
				}
			}
		}
	}
}

// startScheduler arms the optional periodic rebuild. Returns nil when the
// interval is not configured.
func (s *Server) startScheduler(trigger func()) (gocron.Scheduler, error) {
	interval := s.cfg.Preview.Interval()
	if interval <= 0 {
		return nil, nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(trigger),
		gocron.WithName("periodic-rebuild"),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule periodic rebuild: %w", err)
	}
	sched.Start()
	slog.Info("periodic rebuild scheduled", slog.Duration("interval", interval))
	return sched, nil
}

// watchLoop feeds filesystem events into the debouncer until ctx ends.
func (s *Server) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, trigger func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleFileEvent(watcher, ev, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (s *Server) handleFileEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, trigger func()) {
	if ignoredFile(ev.Name) || s.derivedPath(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && !s.excludedDir(ev.Name) {
			_ = s.addDirsRecursive(watcher, ev.Name)
		}
	}
	slog.Debug("file change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	trigger()
}

// ignoredFile filters events that should never trigger rebuilds: hidden
// files and editor temp/swap droppings.
func ignoredFile(p string) bool {
	base := filepath.Base(p)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	return base == "Thumbs.db"
}

// shutdown drains SSE clients first so the HTTP server can close its
// long-lived connections within the timeout.
func (s *Server) shutdown(srv *http.Server, sched gocron.Scheduler) error {
	slog.Info("shutting down preview server")
	s.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", logfields.Error(err))
	}
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			slog.Warn("scheduler shutdown", logfields.Error(err))
		}
	}
	return nil
}

// buildStatus tracks the last rebuild outcome for /status and /healthz.
type buildStatus struct {
	mu          sync.RWMutex
	lastReport  *pipeline.Report
	lastError   error
	hasArtifact bool
}

func (b *buildStatus) setError(report *pipeline.Report, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReport = report
	b.lastError = err
}

func (b *buildStatus) setSuccess(report *pipeline.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReport = report
	b.lastError = nil
	b.hasArtifact = true
}

func (b *buildStatus) snapshot() (*pipeline.Report, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastReport, b.lastError
}

func (b *buildStatus) snapshotHealth() (hasArtifact bool, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hasArtifact, b.lastError
}

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/cloradar/cloradar/cmd/web/components"
	"github.com/cloradar/cloradar/pkg/api"
	"github.com/cloradar/cloradar/pkg/config"
	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"github.com/cloradar/cloradar/pkg/version"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/urfave/cli/v3"
)

// WebCommand creates the web command
func WebCommand() *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Start the web interface",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (defaults to web.host)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port to listen on (defaults to web.port)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return startWebServer(ctx, c.String("config"), c.String("host"), c.String("port"))
		},
	}
}

// WebServer serves the HTML pages on top of the API server and its
// sessions.
type WebServer struct {
	api    *api.Server
	logger *log.Logger
}

func NewWebServer(apiServer *api.Server) *WebServer {
	return &WebServer{api: apiServer, logger: log.ForService("web")}
}

// Handler returns the routes of the web UI and the API. Responses are
// gzip-compressed except for WebSocket upgrades.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.api.RegisterRoutes(mux)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /preferences", s.handlePreferences)

	plain := api.CorsMiddleware(mux)
	compressed := gzhttp.GzipHandler(plain)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			plain.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// startWebServer starts the web server with both API and UI
func startWebServer(ctx context.Context, configPath, host, port string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	if host == "" {
		host = env.cfg.Web.Host
	}
	if port == "" {
		port = env.cfg.Web.Port
	}

	apiServer, backend := newAPIServer(env.cfg, env.db, env.prefs)
	defer apiServer.Close()

	logger := log.ForService("web")
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", host, port),
		Handler: NewWebServer(apiServer).Handler(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go apiServer.Run(ctx)
	go watchConfig(ctx, configPath, func() error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		searcher, idx := newSearcher(cfg, env.db)
		backend.Set(searcher)
		apiServer.SetIndex(idx)
		logger.Infof("search backend: %s", describeBackend(cfg))
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("starting web server on http://%s:%s (search backend: %s)", host, port, describeBackend(env.cfg))
		logger.Infof("  GET /search - search issues")
		logger.Infof("  GET /api/search, /api/view, /api/view/ws, /api/preferences, /api/stats, /health")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newAPIServer creates the API server on a switchable backend. Index
// statistics are only served when the local index is the backend.
func newAPIServer(cfg *config.Config, conn *sql.DB, store *prefs.Store) (*api.Server, *searchapi.Switch) {
	searcher, idx := newSearcher(cfg, conn)
	backend := searchapi.NewSwitch(searcher)
	return api.NewServer(backend, store, api.WithIndex(idx)), backend
}

func describeBackend(cfg *config.Config) string {
	if cfg.Search.Backend == config.BackendLocal {
		return "local index"
	}
	return cfg.Search.APIURL
}

// Web UI Handlers

func (s *WebServer) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/search", http.StatusFound)
}

// handleSearch renders the search page. Every request is a navigation of
// the caller's session; non canonical addresses are redirected first so
// that each state has exactly one URL.
func (s *WebServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	state := urlstate.Decode(r.URL.Query())
	canonical := urlstate.EncodeString(state)
	if canonical != r.URL.RawQuery {
		http.Redirect(w, r, urlstate.Path("/search", state), http.StatusFound)
		return
	}

	sess := s.api.Sessions().Get(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), api.DefaultWaitTimeout)
	defer cancel()

	v, err := sess.Visit(ctx, canonical)
	if err != nil {
		s.logger.Warnf("waiting for search results: %v", err)
		v = sess.Controller().Snapshot()
	}
	s.render(w, r, v)
}

// handlePreferences applies the sort, limit and theme selectors, then
// sends the browser to the address the session ended up on.
func (s *WebServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form, err := parsePreferencesForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.api.Sessions().Get(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), api.DefaultWaitTimeout)
	defer cancel()

	rawQuery := urlstate.EncodeString(urlstate.Parse(r.PostForm.Get("q")))
	if form.sort != nil || form.limit != nil {
		_, err = sess.Do(ctx, rawQuery, func(c *controller.Controller) {
			c.ChangeSearchPreferences(form.sort, form.limit)
		})
		if err != nil {
			s.logger.Warnf("applying preferences: %v", err)
		}
		rawQuery = sess.History().Current()
	}
	if form.theme != "" {
		if _, err := s.api.Preferences().Update(prefs.WithTheme(form.theme)); err != nil {
			s.logger.Errorf("saving theme: %v", err)
		}
	}

	http.Redirect(w, r, urlstate.Path("/search", urlstate.Parse(rawQuery)), http.StatusSeeOther)
}

type preferencesForm struct {
	sort  *core.SortBy
	limit *int
	theme string
}

func parsePreferencesForm(r *http.Request) (preferencesForm, error) {
	var form preferencesForm
	if v := r.PostForm.Get("sort"); v != "" {
		by, ok := core.ParseSortBy(v)
		if !ok {
			return form, fmt.Errorf("unknown sort %q", v)
		}
		form.sort = &by
	}
	if v := r.PostForm.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !slices.Contains(prefs.Limits, n) {
			return form, fmt.Errorf("unsupported limit %q", v)
		}
		form.limit = &n
	}
	if v := r.PostForm.Get("theme"); v != "" {
		if !slices.Contains(prefs.Themes, v) {
			return form, fmt.Errorf("unknown theme %q", v)
		}
		form.theme = v
	}
	return form, nil
}

func (s *WebServer) render(w http.ResponseWriter, r *http.Request, v controller.View) {
	data := components.NewSearchPage(v, version.Version)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := components.SearchPage(data).Render(r.Context(), w); err != nil {
		s.logger.Errorf("rendering search page: %v", err)
	}
}

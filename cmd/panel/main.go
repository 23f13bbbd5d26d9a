package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	panel "github.com/hostgenius/panel"
	"github.com/hostgenius/panel/internal/api"
	"github.com/hostgenius/panel/internal/cache"
	"github.com/hostgenius/panel/internal/config"
	"github.com/hostgenius/panel/internal/dashboard"
	"github.com/hostgenius/panel/internal/fetch"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/observability"
	"github.com/hostgenius/panel/internal/render"
	"github.com/hostgenius/panel/internal/state"
	"github.com/hostgenius/panel/internal/ticket"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// localResourceDir holds files that replace the embedded resources.
const localResourceDir = ".panel"

// CLI is the top-level command structure for panel.
type CLI struct {
	Globals

	Version   kong.VersionFlag `help:"Show version." short:"V"`
	Dashboard DashboardCmd     `cmd:"" help:"Open interactive dashboard TUI."`
	Show      ShowCmd          `cmd:"" help:"Print one module's content."`
	Modules   ModulesCmd       `cmd:"" help:"List dashboard modules and their cache policy."`
	Ticket    TicketCmd        `cmd:"" help:"Manage support tickets."`
	Chat      ChatCmd          `cmd:"" help:"Chat with another panel user."`
}

// Globals are flags shared by every command.
type Globals struct {
	BaseURL     string `help:"Panel base URL (overrides config)." name:"base-url"`
	Session     string `help:"Session token (overrides config)."`
	Profile     string `help:"Preferences profile." default:"default"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090." name:"metrics-addr"`
}

// loadConfig loads layered config from user and project paths, then
// applies env and flag overrides.
func loadConfig(g *Globals) (*config.Config, error) {
	home, _ := os.UserHomeDir()
	cfg, err := config.LoadLayered(config.DefaultPaths(home)...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g.BaseURL != "" {
		cfg.Server.BaseURL = g.BaseURL
	}
	if g.Session != "" {
		cfg.Server.Session = g.Session
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds the wired dependencies shared by commands.
type app struct {
	cfg        *config.Config
	profile    string
	logger     *zap.Logger
	metrics    *observability.Collector
	session    *fetch.Session
	registry   *module.Registry
	cache      *cache.Cache
	dispatcher *render.Dispatcher
	api        *api.Client
	prefs      *state.FileStore

	stopMetrics func()
}

// newApp builds the dependency graph from config.
func newApp(g *Globals) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry, err := module.Builtins(panel.OverlayFS(localResourceDir, panel.Resources))
	if err != nil {
		return nil, err
	}

	policy := cache.DefaultPolicy().With(cfg.Cache.DefaultTTL, cfg.Cache.TTL, cfg.Cache.ForceReload)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var sessOpts []fetch.SessionOption
	if cfg.Server.Timeout > 0 {
		sessOpts = append(sessOpts, fetch.WithTimeout(cfg.Server.Timeout))
	}
	if cfg.Server.Session != "" {
		sessOpts = append(sessOpts, fetch.WithSessionCookie(cfg.Server.SessionCookie, cfg.Server.Session))
	}
	session, err := fetch.NewSession(cfg.Server.BaseURL, sessOpts...)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewCollector("panel")
	c := cache.New(fetch.NewFetcher(session), registry,
		cache.WithPolicy(policy),
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(metrics),
	)
	d := render.NewDispatcher(registry, c,
		render.WithLogger(logger.Named("render")),
		render.WithMetrics(metrics),
	)
	client := api.NewClient(session, api.WithLogger(logger.Named("api")))
	dashboard.RegisterActions(d, client, session.BaseURL().String())

	a := &app{
		cfg:         cfg,
		profile:     g.Profile,
		logger:      logger,
		metrics:     metrics,
		session:     session,
		registry:    registry,
		cache:       c,
		dispatcher:  d,
		api:         client,
		prefs:       state.NewFileStore(cfg.State.Dir),
		stopMetrics: func() {},
	}
	if g.MetricsAddr != "" {
		a.stopMetrics = serveMetrics(g.MetricsAddr, metrics.Handler(), logger)
	}
	return a, nil
}

// close stops the metrics server and flushes the logger.
func (a *app) close() {
	a.stopMetrics()
	_ = a.logger.Sync()
}

// preferences returns the saved preferences for the active profile.
// A missing or unreadable file yields zero preferences.
func (a *app) preferences() state.Preferences {
	prefs, _, err := a.prefs.Load(a.profile)
	if err != nil {
		a.logger.Warn("loading preferences", zap.Error(err))
	}
	return prefs
}

// savePreferences applies fn to the active profile's preferences.
func (a *app) savePreferences(fn func(*state.Preferences)) error {
	if err := a.prefs.Update(a.profile, fn); err != nil {
		a.logger.Warn("saving preferences", zap.Error(err))
		return err
	}
	return nil
}

// openTickets opens the local ticket store.
func (a *app) openTickets() (*ticket.Store, error) {
	return ticket.Open(a.cfg.Tickets.DBPath)
}

// serveMetrics exposes h at /metrics on addr until the returned stop
// function is called.
func serveMetrics(addr string, h http.Handler, logger *zap.Logger) func() {
	r := chi.NewRouter()
	r.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Exit codes.
const (
	exitSuccess = 0
	exitRuntime = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code: failures talking
// to the panel or acting on data are runtime errors, anything else
// (flags, config, local setup) is a setup error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, fetch.ErrTransport),
		errors.Is(err, api.ErrAPI),
		errors.Is(err, render.ErrRender),
		errors.Is(err, render.ErrUnknownAction),
		errors.Is(err, module.ErrNotFound),
		errors.Is(err, ticket.ErrNotFound),
		errors.Is(err, ticket.ErrInvalid),
		errors.Is(err, ticket.ErrPinClosed),
		errors.Is(err, context.Canceled):
		return exitRuntime
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("panel"),
		kong.Description("Terminal client for the hosting control panel."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

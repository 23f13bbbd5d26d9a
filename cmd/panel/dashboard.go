package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/hostgenius/panel/internal/cache"
	"github.com/hostgenius/panel/internal/dashboard"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/render"
	"github.com/hostgenius/panel/internal/state"
)

// DashboardCmd opens the interactive dashboard.
type DashboardCmd struct {
	Module string `arg:"" optional:"" help:"Module to open first (default: last viewed)."`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// Run builds real dependencies and launches the dashboard TUI.
func (d *DashboardCmd) Run(g *Globals) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return d.run(false, nil)
	}

	a, err := newApp(g)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bg := a.cfg.Cache.Background
	go a.cache.RunInvalidator(ctx, bg.Module, bg.Interval)

	m := dashboard.NewModel(a.registry, a.dispatcher, a.cache,
		dashboard.WithContext(ctx),
		dashboard.WithLogger(a.logger.Named("dashboard")),
		dashboard.WithStartModule(startModule(d.Module, a.preferences(), a.registry)),
		dashboard.WithLastModuleSaver(func(id string) error {
			return a.savePreferences(func(p *state.Preferences) { p.LastModule = id })
		}),
	)

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	return d.run(true, prog)
}

// run executes the tea program, enabling testable wiring.
func (d *DashboardCmd) run(isTTY bool, prog teaRunner) error {
	if !isTTY {
		return fmt.Errorf("dashboard: requires a terminal (TTY)")
	}
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// startModule picks the first module: the argument, then the last viewed
// module, then the default. Unknown saved modules are ignored.
func startModule(arg string, prefs state.Preferences, reg *module.Registry) string {
	if arg != "" {
		return arg
	}
	if prefs.LastModule != "" && reg.Has(prefs.LastModule) {
		return prefs.LastModule
	}
	return dashboard.DefaultModule
}

// ShowCmd prints one module's content as plain text.
type ShowCmd struct {
	Module   string `arg:"" help:"Module ID."`
	Triggers bool   `help:"List the actions the module offers." default:"true" negatable:""`
	Cache    bool   `help:"Print cache entries after loading."`
}

// Run loads the module and prints it to stdout.
func (s *ShowCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return s.run(ctx, os.Stdout, a.dispatcher, a.cache, time.Now())
}

// screenShower loads a module into a screen. Satisfied by *render.Dispatcher.
type screenShower interface {
	Show(ctx context.Context, id string) (render.Screen, error)
}

// snapshotter lists cache entries. Satisfied by *cache.Cache.
type snapshotter interface {
	Snapshot() []cache.EntryInfo
}

func (s *ShowCmd) run(ctx context.Context, w io.Writer, screens screenShower, snap snapshotter, now time.Time) error {
	screen, err := screens.Show(ctx, s.Module)
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}

	m := screen.Module
	if len(m.Breadcrumb) > 0 {
		fmt.Fprintf(w, "%s  (%s)\n", m.Title, strings.Join(m.Breadcrumb, " › "))
	} else {
		fmt.Fprintln(w, m.Title)
	}
	status := dashboard.FreshnessLabel(screen.FetchedAt, now, screen.FromCache)
	if screen.Degraded {
		status = strings.TrimSpace("[stale] " + status)
	}
	if status != "" {
		fmt.Fprintln(w, status)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, screen.Page.Text())

	if s.Triggers && len(screen.Page.Triggers) > 0 {
		fmt.Fprintln(w, "\nActions:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, t := range screen.Page.Triggers {
			name := t.Name()
			if t.Kind == render.TriggerNavigate {
				name = "→ " + name
			}
			fmt.Fprintf(tw, "  %s\t%s\n", name, t.Label)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if s.Cache {
		fmt.Fprintln(w, "\nCache:")
		for _, e := range snap.Snapshot() {
			fmt.Fprintf(w, "  %s %s age=%s ttl=%s\n", e.ID, e.State, e.Age.Round(time.Second), e.TTL)
		}
	}
	return nil
}

// ModulesCmd lists the module table.
type ModulesCmd struct{}

// Run prints every module with its section and cache policy.
func (c *ModulesCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return fmt.Errorf("modules: %w", err)
	}
	defer a.close()
	return c.run(os.Stdout, a.registry, a.cache.Policy())
}

func (c *ModulesCmd) run(w io.Writer, reg *module.Registry, policy cache.Policy) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tID\tTITLE\tKIND\tTTL\tFORCE RELOAD")
	for _, s := range reg.Sections() {
		for _, m := range s.Modules {
			ttl, force := "-", "-"
			if m.Fetchable() {
				ttl = policy.TTL(m.ID).String()
				if policy.Forced(m.ID) {
					force = "yes"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, m.ID, m.Title, m.Kind, ttl, force)
		}
	}
	return tw.Flush()
}

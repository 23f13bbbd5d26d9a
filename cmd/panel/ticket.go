package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hostgenius/panel/internal/config"
	"github.com/hostgenius/panel/internal/state"
	"github.com/hostgenius/panel/internal/ticket"
)

// TicketCmd groups the support ticket commands.
type TicketCmd struct {
	List     TicketListCmd     `cmd:"" help:"List your tickets."`
	Admin    TicketAdminCmd    `cmd:"" help:"Page through all tickets (staff view)."`
	New      TicketNewCmd      `cmd:"" help:"Open a new ticket."`
	Show     TicketShowCmd     `cmd:"" help:"Show a ticket and its conversation."`
	Reply    TicketReplyCmd    `cmd:"" help:"Add a message to a ticket."`
	Status   TicketStatusCmd   `cmd:"" help:"Change a ticket's status."`
	Priority TicketPriorityCmd `cmd:"" help:"Change a ticket's priority."`
	Pin      TicketPinCmd      `cmd:"" help:"Pin or unpin a ticket."`
}

// TicketFlags are shared by every ticket command.
type TicketFlags struct {
	User string `help:"Acting user's email (default: config tickets.user, then the last user)."`
}

// ticketEnv is what a ticket command runs against.
type ticketEnv struct {
	store *ticket.Store
	user  string
	w     io.Writer
	now   time.Time
}

// open wires the app and ticket store. The returned cleanup closes both.
func (f TicketFlags) open(g *Globals) (*app, ticketEnv, func(), error) {
	a, err := newApp(g)
	if err != nil {
		return nil, ticketEnv{}, nil, err
	}
	store, err := a.openTickets()
	if err != nil {
		a.close()
		return nil, ticketEnv{}, nil, err
	}

	user := f.User
	if user == "" {
		user = a.cfg.Tickets.User
	}
	if user == "" {
		user = a.preferences().CurrentUser
	}
	if f.User != "" {
		_ = a.savePreferences(func(p *state.Preferences) { p.CurrentUser = f.User })
	}

	env := ticketEnv{store: store, user: user, w: os.Stdout, now: time.Now()}
	cleanup := func() {
		_ = store.Close()
		a.close()
	}
	return a, env, cleanup, nil
}

// errNoUser is returned when a command needs a user and none is configured.
var errNoUser = errors.New("ticket: no user; pass --user or set tickets.user")

func (e ticketEnv) requireUser() error {
	if e.user == "" {
		return errNoUser
	}
	return nil
}

func (e ticketEnv) ago(t time.Time) string {
	return humanize.RelTime(t, e.now, "ago", "from now")
}

func (e ticketEnv) table(tickets []ticket.Ticket) error {
	tw := tabwriter.NewWriter(e.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tSUBJECT\tUPDATED")
	for _, t := range tickets {
		subject := t.Subject
		if t.Pinned {
			subject = "📌 " + subject
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, subject, e.ago(t.UpdatedAt))
	}
	return tw.Flush()
}

// --- list ---

// TicketListCmd lists the acting user's tickets.
type TicketListCmd struct {
	TicketFlags
}

// Run lists tickets.
func (c *TicketListCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket list: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketListCmd) run(ctx context.Context, env ticketEnv) error {
	if err := env.requireUser(); err != nil {
		return err
	}
	all, err := env.store.List(ctx)
	if err != nil {
		return err
	}
	mine := ticket.UserView(all, env.user)
	if len(mine) == 0 {
		fmt.Fprintf(env.w, "No tickets for %s\n", env.user)
		return nil
	}
	return env.table(mine)
}

// --- admin ---

// TicketAdminCmd shows one page of the staff view.
type TicketAdminCmd struct {
	TicketFlags
	Page    int `help:"Page number (default: last viewed)."`
	PerPage int `help:"Tickets per page: 25, 50 or 100 (default: last used)." name:"per-page"`
}

// Run prints the page and remembers the paging choice.
func (c *TicketAdminCmd) Run(g *Globals) error {
	a, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket admin: %w", err)
	}
	defer cleanup()

	prefs := a.preferences()
	page := firstPositive(c.Page, prefs.TicketPage, 1)
	perPage := firstPositive(c.PerPage, prefs.TicketsPerPage, a.cfg.Tickets.PerPage)

	shown, err := c.run(context.Background(), env, page, perPage)
	if err != nil {
		return err
	}
	_ = a.savePreferences(func(p *state.Preferences) {
		p.TicketPage = shown.Page
		p.TicketsPerPage = shown.PerPage
	})
	return nil
}

func (c *TicketAdminCmd) run(ctx context.Context, env ticketEnv, page, perPage int) (ticket.AdminPage, error) {
	if !slices.Contains(config.PerPageChoices, perPage) {
		return ticket.AdminPage{}, fmt.Errorf("ticket admin: per-page must be one of %v, got %d", config.PerPageChoices, perPage)
	}
	all, err := env.store.List(ctx)
	if err != nil {
		return ticket.AdminPage{}, err
	}
	p := ticket.AdminView(all, perPage, page)

	if len(p.Pinned) > 0 {
		fmt.Fprintf(env.w, "Pinned (%d)\n", len(p.Pinned))
		if err := env.table(p.Pinned); err != nil {
			return p, err
		}
		fmt.Fprintln(env.w)
	}
	fmt.Fprintf(env.w, "Active (%d total)\n", p.TotalActive)
	if len(p.Active) > 0 {
		if err := env.table(p.Active); err != nil {
			return p, err
		}
	}
	fmt.Fprintf(env.w, "\nClosed (%d total)\n", p.TotalClosed)
	if len(p.Closed) > 0 {
		if err := env.table(p.Closed); err != nil {
			return p, err
		}
	}

	fmt.Fprintf(env.w, "\nPage %d of %d · %d tickets\n", p.Page, p.TotalPages, p.TotalItems)
	if window := ticket.PageWindow(p.Page, p.TotalPages); window != nil {
		parts := make([]string, len(window))
		for i, n := range window {
			if n == p.Page {
				parts[i] = fmt.Sprintf("[%d]", n)
			} else {
				parts[i] = fmt.Sprint(n)
			}
		}
		fmt.Fprintf(env.w, "Pages: %s\n", strings.Join(parts, " "))
	}
	return p, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// --- new ---

// TicketNewCmd opens a ticket.
type TicketNewCmd struct {
	TicketFlags
	Subject     string `help:"Short summary (3-200 characters)." required:""`
	Description string `help:"Full description of the problem." required:""`
	Priority    string `help:"Low, Medium, High or Urgent." default:"Medium"`
}

// Run creates the ticket.
func (c *TicketNewCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket new: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketNewCmd) run(ctx context.Context, env ticketEnv) error {
	if err := env.requireUser(); err != nil {
		return err
	}
	prio, err := ticket.ParsePriority(c.Priority)
	if err != nil {
		return fmt.Errorf("%w: %v", ticket.ErrInvalid, err)
	}
	t, err := env.store.Create(ctx, ticket.NewTicket{
		User:        env.user,
		Subject:     c.Subject,
		Description: c.Description,
		Priority:    prio,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(env.w, "Created ticket %s\n", t.ID)
	return nil
}

// --- show ---

// TicketShowCmd prints a ticket.
type TicketShowCmd struct {
	TicketFlags
	ID string `arg:"" help:"Ticket ID."`
}

// Run prints the ticket.
func (c *TicketShowCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket show: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketShowCmd) run(ctx context.Context, env ticketEnv) error {
	t, err := env.store.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	pinned := ""
	if t.Pinned {
		pinned = " · pinned"
	}
	fmt.Fprintf(env.w, "%s\n%s · %s · %s%s\n", t.Subject, t.ID, t.Status, t.Priority, pinned)
	fmt.Fprintf(env.w, "Opened by %s %s, updated %s\n\n", t.User, env.ago(t.CreatedAt), env.ago(t.UpdatedAt))
	fmt.Fprintln(env.w, t.Description)
	for _, m := range t.Messages {
		fmt.Fprintf(env.w, "\n%s (%s):\n%s\n", m.Sender, env.ago(m.Timestamp), m.Text)
	}
	return nil
}

// --- reply ---

// TicketReplyCmd adds a message.
type TicketReplyCmd struct {
	TicketFlags
	ID   string   `arg:"" help:"Ticket ID."`
	Text []string `arg:"" help:"Message text."`
}

// Run adds the message.
func (c *TicketReplyCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket reply: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketReplyCmd) run(ctx context.Context, env ticketEnv) error {
	if err := env.requireUser(); err != nil {
		return err
	}
	t, err := env.store.AddMessage(ctx, c.ID, env.user, strings.Join(c.Text, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.w, "Replied to %s (%d messages)\n", t.ID, len(t.Messages))
	return nil
}

// --- status / priority ---

// TicketStatusCmd changes a ticket's status.
type TicketStatusCmd struct {
	TicketFlags
	ID     string `arg:"" help:"Ticket ID."`
	Status string `arg:"" help:"open, in-progress, awaiting or closed."`
}

// Run updates the status.
func (c *TicketStatusCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket status: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketStatusCmd) run(ctx context.Context, env ticketEnv) error {
	s, err := ticket.ParseStatus(c.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", ticket.ErrInvalid, err)
	}
	t, err := env.store.Update(ctx, c.ID, ticket.Update{Status: &s})
	if err != nil {
		return err
	}
	fmt.Fprintf(env.w, "%s: status %s\n", t.ID, t.Status)
	return nil
}

// TicketPriorityCmd changes a ticket's priority.
type TicketPriorityCmd struct {
	TicketFlags
	ID       string `arg:"" help:"Ticket ID."`
	Priority string `arg:"" help:"Low, Medium, High or Urgent."`
}

// Run updates the priority.
func (c *TicketPriorityCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket priority: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketPriorityCmd) run(ctx context.Context, env ticketEnv) error {
	p, err := ticket.ParsePriority(c.Priority)
	if err != nil {
		return fmt.Errorf("%w: %v", ticket.ErrInvalid, err)
	}
	t, err := env.store.Update(ctx, c.ID, ticket.Update{Priority: &p})
	if err != nil {
		return err
	}
	fmt.Fprintf(env.w, "%s: priority %s\n", t.ID, t.Priority)
	return nil
}

// --- pin ---

// TicketPinCmd toggles a ticket's pin.
type TicketPinCmd struct {
	TicketFlags
	ID string `arg:"" help:"Ticket ID."`
}

// Run toggles the pin.
func (c *TicketPinCmd) Run(g *Globals) error {
	_, env, cleanup, err := c.open(g)
	if err != nil {
		return fmt.Errorf("ticket pin: %w", err)
	}
	defer cleanup()
	return c.run(context.Background(), env)
}

func (c *TicketPinCmd) run(ctx context.Context, env ticketEnv) error {
	t, err := env.store.TogglePin(ctx, c.ID)
	if err != nil {
		return err
	}
	word := "unpinned"
	if t.Pinned {
		word = "pinned"
	}
	fmt.Fprintf(env.w, "%s: %s\n", t.ID, word)
	return nil
}

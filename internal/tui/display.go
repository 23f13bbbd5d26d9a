package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by MessageMsg, ClosedMsg, and ErrorMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

func (MessageMsg) isDisplayEvent() {}
func (ClosedMsg) isDisplayEvent()  {}
func (ErrorMsg) isDisplayEvent()   {}

// Display renders a conversation and forwards what the user types.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer // Output destination (default: os.Stdout).
	Input      io.Reader // Line input for the plain display (default: os.Stdin).
	ForcePlain bool      // Force plain text even if TTY.
	Title      string
	Send       Sender
}

// NewDisplay returns a TUI display when stdout is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer, in: opts.Input, send: opts.Send}
	}

	return &TUIDisplay{title: opts.Title, w: opts.Writer, send: opts.Send}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a message producer and a Display consumer.
type Bridge struct {
	ch chan DisplayEvent
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 16)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Send delivers a line to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(l Line) {
	b.ch <- MessageMsg{Line: l}
}

// Done signals a normal end of conversation and closes the channel.
func (b *Bridge) Done() {
	b.ch <- ClosedMsg{}
	close(b.ch)
}

// Error signals a failed conversation and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- ErrorMsg{Err: err}
	close(b.ch)
}

// PlainDisplay prints messages as timestamped lines and sends each line
// read from its input.
type PlainDisplay struct {
	w    io.Writer
	in   io.Reader
	send Sender
}

// Run prints events until the channel closes, a terminal event arrives,
// or ctx is done.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	if d.send != nil && d.in != nil {
		go d.readInput(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case MessageMsg:
				d.renderLine(msg.Line)
			case ClosedMsg:
				return nil
			case ErrorMsg:
				return msg.Err
			}
		}
	}
}

func (d *PlainDisplay) readInput(ctx context.Context) {
	sc := bufio.NewScanner(d.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := sc.Text()
		if text == "" {
			continue
		}
		if err := d.send(ctx, text); err != nil {
			_, _ = fmt.Fprintf(d.w, "not sent: %v\n", err)
			continue
		}
		d.renderLine(Line{Mine: true, Text: text, At: time.Now()})
	}
}

func (d *PlainDisplay) renderLine(l Line) {
	at := l.At
	if at.IsZero() {
		at = time.Now()
	}
	who := "them"
	if l.Mine {
		who = "you"
	}
	_, _ = fmt.Fprintf(d.w, "[%s] %s: %s\n", at.Format("15:04:05"), who, l.Text)
}

// TUIDisplay renders the conversation using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	title string
	w     io.Writer
	send  Sender
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	model := NewModel(d.title, WithSender(d.send), WithContext(ctx))
	p := tea.NewProgram(model, tea.WithOutput(d.w), tea.WithContext(ctx))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w, send: d.send}
		return plain.Run(ctx, events)
	}
	close(stop)
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}

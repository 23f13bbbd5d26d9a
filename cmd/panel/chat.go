package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"go.uber.org/zap"

	"github.com/hostgenius/panel/internal/chat"
	"github.com/hostgenius/panel/internal/tui"
)

// ChatCmd opens a live conversation with another user.
type ChatCmd struct {
	PeerID  int  `arg:"" help:"User ID to chat with."`
	NoTUI   bool `help:"Force plain text output even if stdout is a TTY." default:"false"`
	History bool `help:"Show earlier messages first." default:"true" negatable:""`
}

// conversation is the live side of a chat. Satisfied by *chat.Conn.
type conversation interface {
	Messages() <-chan chat.Message
	Err() error
	Send(ctx context.Context, content string) (chat.Message, error)
}

// Run dials the peer and runs the chat display until either side ends it.
func (c *ChatCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := chat.NewClient(a.session, a.api, chat.WithLogger(a.logger.Named("chat")))

	var history []chat.Message
	if c.History {
		history, err = client.History(ctx, c.PeerID)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
	}

	conn, err := client.Dial(ctx, c.PeerID)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	defer func() { _ = conn.Close() }()
	a.logger.Info("chat connected", zap.Int("peer", c.PeerID))

	bridge := tui.NewBridge()
	display := tui.NewDisplay(tui.DisplayOptions{
		ForcePlain: c.NoTUI,
		Title:      "Chat with user " + strconv.Itoa(c.PeerID),
		Send:       senderFor(conn),
	})

	go relay(ctx, c.PeerID, history, conn, bridge)
	return display.Run(ctx, bridge.Events())
}

// senderFor adapts a conversation's Send to the display's Sender.
func senderFor(conv conversation) tui.Sender {
	return func(ctx context.Context, content string) error {
		_, err := conv.Send(ctx, content)
		return err
	}
}

// relay feeds history and then live messages into bridge, ending it when
// the conversation closes. History messages addressed to the peer are the
// local user's own.
func relay(ctx context.Context, peer int, history []chat.Message, conv conversation, bridge *tui.Bridge) {
	for _, m := range history {
		bridge.Send(tui.Line{Mine: m.RecipientID == peer, Text: m.Content})
	}
	for {
		select {
		case <-ctx.Done():
			bridge.Done()
			return
		case m, ok := <-conv.Messages():
			if !ok {
				if err := conv.Err(); err != nil {
					bridge.Error(fmt.Errorf("chat: %w", err))
				} else {
					bridge.Done()
				}
				return
			}
			bridge.Send(tui.Line{Text: m.Content})
		}
	}
}

// Package chat is the panel's direct-message client: history and send
// over the JSON API, live delivery over a WebSocket.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hostgenius/panel/internal/api"
	"github.com/hostgenius/panel/internal/fetch"
)

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Time allowed between pongs from the server.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest frame accepted from the server.
	maxMessageSize = 64 * 1024

	// Buffered frames in each direction.
	bufferSize = 64
)

// ErrClosed is returned when sending on a closed conversation.
var ErrClosed = errors.New("chat: connection closed")

// Message is the wire format shared by the API and the socket.
type Message struct {
	RecipientID int    `json:"recipient_id"`
	Content     string `json:"content"`
}

// Client opens conversations with other panel users.
type Client struct {
	session *fetch.Session
	api     *api.Client
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// NewClient creates a chat client sharing session credentials with apiClient.
func NewClient(session *fetch.Session, apiClient *api.Client, opts ...Option) *Client {
	c := &Client{
		session: session,
		api:     apiClient,
		dialer:  websocket.DefaultDialer,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// History returns the stored messages exchanged with peerID.
func (c *Client) History(ctx context.Context, peerID int) ([]Message, error) {
	var msgs []Message
	if err := c.api.GetJSON(ctx, "/chat/messages/"+strconv.Itoa(peerID), &msgs); err != nil {
		return nil, fmt.Errorf("chat: history with %d: %w", peerID, err)
	}
	return msgs, nil
}

// Dial opens the live socket for peerID.
func (c *Client) Dial(ctx context.Context, peerID int) (*Conn, error) {
	target := c.socketURL(peerID)

	header := http.Header{}
	var cookies []string
	for _, ck := range c.session.Cookies() {
		cookies = append(cookies, ck.Name+"="+ck.Value)
	}
	if len(cookies) > 0 {
		header.Set("Cookie", strings.Join(cookies, "; "))
	}

	ws, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, &fetch.TransportError{URL: target, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
		}
		return nil, &fetch.TransportError{URL: target, Err: err}
	}

	conn := &Conn{
		ws:       ws,
		peer:     peerID,
		api:      c.api,
		logger:   c.logger.With(zap.Int("peer", peerID)),
		incoming: make(chan Message, bufferSize),
		outgoing: make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
	go conn.writePump()
	go conn.readPump()
	conn.logger.Info("chat connected")
	return conn, nil
}

func (c *Client) socketURL(peerID int) string {
	u := c.session.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/chat/ws/" + strconv.Itoa(peerID)
	u.RawQuery = ""
	return u.String()
}

// Conn is a live conversation with one peer.
type Conn struct {
	ws       *websocket.Conn
	peer     int
	api      *api.Client
	logger   *zap.Logger
	incoming chan Message
	outgoing chan []byte

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// Peer returns the peer's user id.
func (c *Conn) Peer() int {
	return c.peer
}

// Messages delivers frames addressed to the peer. It is closed when the
// connection ends; Err then reports why.
func (c *Conn) Messages() <-chan Message {
	return c.incoming
}

// Err returns the error that ended the connection, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send stores content through the API, then pushes the same payload on
// the socket.
func (c *Conn) Send(ctx context.Context, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, errors.New("chat: message is empty")
	}
	select {
	case <-c.done:
		return Message{}, ErrClosed
	default:
	}
	msg := Message{RecipientID: c.peer, Content: content}
	if err := c.api.PostJSON(ctx, "/chat/messages", msg, nil); err != nil {
		return Message{}, fmt.Errorf("chat: send: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("chat: encoding message: %w", err)
	}
	select {
	case c.outgoing <- data:
		return msg, nil
	case <-c.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close sends a close frame and ends the conversation.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) readPump() {
	defer close(c.incoming)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("chat read failed", zap.Error(err))
					c.shutdown(err)
				} else {
					c.shutdown(nil)
				}
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring malformed frame", zap.ByteString("frame", data), zap.Error(err))
			continue
		}
		if msg.RecipientID != c.peer {
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.outgoing:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("chat write failed", zap.Error(err))
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("chat ping failed", zap.Error(err))
				c.shutdown(err)
				return
			}
		}
	}
}

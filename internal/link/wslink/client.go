// Package wslink implements link.Link over a WebSocket connection to the unit
// bridge. Every outbound message is acknowledged by the unit; recordings are
// streamed as base64 chunks correlated by message ID.
package wslink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roman-kulish/unit-companion/internal/link"
)

const (
	eventsBufferSize   = 64
	chunksBufferSize   = 16
	defaultDialTimeout = 10 * time.Second
	closeGracePeriod   = time.Second
)

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "wslink"), slog.String("url", c.url))
	}
}

// WithDialTimeout sets the websocket handshake timeout
func WithDialTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.dialer.HandshakeTimeout = d
	}
}

type waiter struct {
	ch   chan envelope
	done chan struct{}
}

// connection is one established websocket with its own lifetime signal.
type connection struct {
	ws      *websocket.Conn
	dropped chan struct{}
	writeMu sync.Mutex // gorilla/websocket supports a single concurrent writer
}

// Client is a link.Link backed by a websocket.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *connection
	waiters map[string]*waiter

	events chan link.Event
	closed chan struct{}
	once   sync.Once
}

// New creates a Client for the unit bridge at url (ws:// or wss://).
func New(url string, options ...func(*Client)) *Client {
	c := Client{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultDialTimeout,
		},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		waiters: make(map[string]*waiter),
		events:  make(chan link.Event, eventsBufferSize),
		closed:  make(chan struct{}),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Connect dials the unit bridge and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil // already connected
	}
	c.mu.Unlock()

	c.emit(link.StateChanged{State: link.StateConnecting})

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		err = fmt.Errorf("dialing unit bridge: %w", err)
		c.emit(link.StateChanged{State: link.StateFailed, Err: err})
		return err
	}

	conn := &connection{ws: ws, dropped: make(chan struct{})}

	c.mu.Lock()
	if c.conn != nil {
		// lost a race against a concurrent Connect
		c.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info("link established")
	c.emit(link.StateChanged{State: link.StateReady})

	return nil
}

// Disconnect closes the websocket. It is a no-op when not connected.
// A teardown requested through Disconnect is not reported on the event
// stream; only connections lost underneath the client emit StateDown.
func (c *Client) Disconnect(ctx context.Context) error {
	conn := c.detach()
	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(closeGracePeriod)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.writeMu.Lock()
	writeErr := conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.writeMu.Unlock()

	closeErr := conn.ws.Close()

	c.logger.Info("link closed")

	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return errors.Join(fmt.Errorf("sending close frame: %w", writeErr), closeErr)
	}
	return closeErr
}

// Close disconnects and releases the client. The client cannot be reused.
func (c *Client) Close() error {
	err := c.Disconnect(context.Background())
	c.once.Do(func() { close(c.closed) })
	return err
}

func (c *Client) Events() <-chan link.Event {
	return c.events
}

// Send writes msg and waits for the unit acknowledgement.
func (c *Client) Send(ctx context.Context, msg link.Message) error {
	id := uuid.NewString()

	env, err := newEnvelope(id, string(msg.Type()), msg)
	if err != nil {
		return err
	}

	w := c.register(id, 1)
	defer c.unregister(id)

	conn, err := c.write(ctx, env)
	if err != nil {
		return err
	}

	select {
	case reply := <-w.ch:
		return ackError(reply)

	case <-conn.dropped:
		return fmt.Errorf("awaiting %s acknowledgement: %w", msg.Type(), link.ErrNotConnected)

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Download requests a recording and collects its chunks.
func (c *Client) Download(ctx context.Context, name string, progress link.ProgressFunc) ([]byte, error) {
	id := uuid.NewString()

	env, err := newEnvelope(id, typeDownload, downloadRequest{Name: name})
	if err != nil {
		return nil, err
	}

	w := c.register(id, chunksBufferSize)
	defer c.unregister(id)

	conn, err := c.write(ctx, env)
	if err != nil {
		return nil, err
	}

	var data []byte
	for {
		select {
		case reply := <-w.ch:
			switch reply.Type {
			case typeDownloadChunk:
				var chunk downloadChunk
				if err = json.Unmarshal(reply.Payload, &chunk); err != nil {
					return nil, fmt.Errorf("decoding chunk of '%s': %w", name, err)
				}
				if chunk.Offset != int64(len(data)) {
					return nil, fmt.Errorf("chunk of '%s' out of order: offset %d, received %d", name, chunk.Offset, len(data))
				}

				data = append(data, chunk.Data...)
				if progress != nil {
					progress(int64(len(data)), chunk.Total)
				}

			case typeDownloadDone:
				return data, nil

			default:
				// a positive acknowledgement only confirms the request
				if err = ackError(reply); err != nil {
					return nil, fmt.Errorf("downloading '%s': %w", name, err)
				}
			}

		case <-conn.dropped:
			return nil, fmt.Errorf("downloading '%s': %w", name, link.ErrNotConnected)

		case <-ctx.Done():
			c.cancelDownload(id)
			return nil, ctx.Err()
		}
	}
}

func (c *Client) cancelDownload(id string) {
	env, _ := newEnvelope(id, typeDownloadCancel, nil)

	ctx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
	defer cancel()

	if _, err := c.write(ctx, env); err != nil {
		c.logger.Warn(fmt.Sprintf("cancelling download: %s", err.Error()), slog.String("id", id))
	}
}

func (c *Client) write(ctx context.Context, env envelope) (*connection, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, link.ErrNotConnected
	}

	p, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame: %w", err)
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err = conn.ws.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting write deadline: %w", err)
	}
	if err = conn.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return nil, fmt.Errorf("writing %s frame: %w", env.Type, err)
	}

	return conn, nil
}

func (c *Client) readLoop(conn *connection) {
	for {
		_, p, err := conn.ws.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		var env envelope
		if err = json.Unmarshal(p, &env); err != nil {
			c.logger.Warn(fmt.Sprintf("error decoding frame: %s", err.Error()))
			continue
		}

		switch env.Type {
		case typeAck, typeDownloadChunk, typeDownloadDone:
			c.deliver(env)

		default:
			ev, err := decodeEvent(env)
			if err != nil {
				c.logger.Warn(err.Error())
				continue
			}
			c.emit(ev)
		}
	}
}

// drop handles a connection lost underneath the client.
func (c *Client) drop(conn *connection, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	close(conn.dropped)
	_ = conn.ws.Close()

	if !current {
		return // closed through Disconnect
	}

	c.logger.Warn(fmt.Sprintf("link lost: %s", err.Error()))
	c.emit(link.StateChanged{State: link.StateDown, Err: err})
}

func (c *Client) detach() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	c.conn = nil
	return conn
}

func (c *Client) deliver(env envelope) {
	c.mu.Lock()
	w, ok := c.waiters[env.ID]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping frame without waiter", slog.String("type", env.Type), slog.String("id", env.ID))
		return
	}

	select {
	case w.ch <- env:
	case <-w.done:
	}
}

func (c *Client) register(id string, size int) *waiter {
	w := &waiter{ch: make(chan envelope, size), done: make(chan struct{})}

	c.mu.Lock()
	c.waiters[id] = w
	c.mu.Unlock()

	return w
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	w, ok := c.waiters[id]
	delete(c.waiters, id)
	c.mu.Unlock()

	if ok {
		close(w.done)
	}
}

func (c *Client) emit(ev link.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func ackError(env envelope) error {
	if env.Type != typeAck {
		return fmt.Errorf("expected acknowledgement, got '%s'", env.Type)
	}

	var ack ackPayload
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		return fmt.Errorf("decoding acknowledgement: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", link.ErrRejected, ack.Error)
	}
	return nil
}

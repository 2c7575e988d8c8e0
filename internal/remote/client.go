package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/clipd-io/clipd/internal/clip"
)

// ClientConfig holds WebSocket client configuration.
type ClientConfig struct {
	// URL is the backend WebSocket endpoint, e.g. wss://host/ws.
	// The namespace is appended as a query parameter.
	URL string

	// Namespace selects the event stream (empty = personal).
	Namespace string

	// OnStatus receives connectivity transitions. Optional.
	OnStatus func(Status)

	// WriteTimeout bounds each outbound write (default: 5s).
	WriteTimeout time.Duration

	// ReconnectDelay is the initial backoff after a dropped
	// connection; doubles up to ReconnectMax (defaults: 1s, 30s).
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration

	// Logger for client activity.
	Logger *log.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		WriteTimeout:   5 * time.Second,
		ReconnectDelay: time.Second,
		ReconnectMax:   30 * time.Second,
		Logger:         log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client maintains one WebSocket connection per namespace, dispatching
// inbound events to the handler and writing outbound notifications.
//
// Client implements Notifier. Writes fail fast while disconnected; the
// op log owns retrying them.
type Client struct {
	config  *ClientConfig
	handler EventHandler

	connMu sync.RWMutex
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client for one namespace stream.
//
// Use Start() to begin connecting; events flow to handler from then on.
func NewClient(handler EventHandler, config *ClientConfig) (*Client, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.URL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = time.Second
	}
	if config.ReconnectMax == 0 {
		config.ReconnectMax = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the connect/read loop in the background.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop closes the connection and waits for the read loop to exit.
func (c *Client) Stop() {
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "client shutting down")
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.setStatus(StatusDisconnected)
}

// run dials, reads until the connection drops, and reconnects with
// capped exponential backoff until the client is stopped.
func (c *Client) run() {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	first := true

	for {
		if c.ctx.Err() != nil {
			return
		}

		if !first {
			c.setStatus(StatusReconnecting)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.config.ReconnectMax {
				delay = c.config.ReconnectMax
			}
		}
		first = false

		conn, err := c.dial()
		if err != nil {
			c.config.Logger.Printf("Connect failed: %v", err)
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.setStatus(StatusConnected)
		delay = c.config.ReconnectDelay

		c.readLoop(conn)

		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	url := c.config.URL
	if c.config.Namespace != "" {
		url = fmt.Sprintf("%s?namespace=%s", url, c.config.Namespace)
	}

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return conn, nil
}

// readLoop decodes and dispatches events until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.config.Logger.Printf("Connection lost: %v", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.config.Logger.Printf("Warning: dropping malformed event: %v", err)
			continue
		}

		c.dispatch(ev)
	}
}

// dispatch applies one inbound event. Handler errors are logged, not
// fatal: at-least-once delivery means the event will come around again.
func (c *Client) dispatch(ev Event) {
	var err error

	switch ev.Kind {
	case EventCreated:
		if ev.Clip == nil {
			c.config.Logger.Printf("Warning: created event without clip")
			return
		}
		err = c.handler.ApplyRemoteCreated(c.ctx, ev.Clip)

	case EventUpdated:
		if ev.Clip == nil {
			c.config.Logger.Printf("Warning: updated event without clip")
			return
		}
		err = c.handler.ApplyRemoteUpdated(c.ctx, ev.Clip)

	case EventDeleted:
		if ev.ID == "" {
			c.config.Logger.Printf("Warning: deleted event without id")
			return
		}
		err = c.handler.ApplyRemoteDeleted(c.ctx, ev.ID)

	default:
		c.config.Logger.Printf("Warning: unknown event kind %q", ev.Kind)
		return
	}

	if err != nil {
		c.config.Logger.Printf("Error applying %s event: %v", ev.Kind, err)
	}
}

func (c *Client) setStatus(s Status) {
	if c.config.OnStatus != nil {
		c.config.OnStatus(s)
	}
}

// NotifyCreated implements Notifier.
func (c *Client) NotifyCreated(ctx context.Context, cl *clip.Clip) error {
	return c.send(ctx, Event{Kind: EventCreated, Namespace: c.config.Namespace, Clip: cl})
}

// NotifyUpdated implements Notifier.
func (c *Client) NotifyUpdated(ctx context.Context, cl *clip.Clip) error {
	return c.send(ctx, Event{Kind: EventUpdated, Namespace: c.config.Namespace, Clip: cl})
}

// NotifyDeleted implements Notifier.
func (c *Client) NotifyDeleted(ctx context.Context, id string) error {
	return c.send(ctx, Event{Kind: EventDeleted, Namespace: c.config.Namespace, ID: id})
}

// send writes one outbound event with a bounded timeout.
func (c *Client) send(ctx context.Context, ev Event) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", ev.Kind, err)
	}
	return nil
}

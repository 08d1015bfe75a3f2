package natsclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Error messages
var (
	ErrNotConnected     = errors.New("natsclient: not connected to NATS")
	ErrConnectionFailed = errors.New("natsclient: connection failed")
	ErrInvalidSubject   = errors.New("natsclient: invalid subject")
)

// Client manages one NATS connection used for telemetry publishing.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	url    string
	logger Logger

	conn *nats.Conn
	mu   sync.RWMutex

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	retryOnFailedConnect bool

	// Authentication
	username string
	password string
	token    string

	clientName string

	// Callbacks
	onDisconnect func(error)
	onReconnect  func()
}

// NewClient creates a new NATS client with optional configuration.
// It does not connect; call Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        noopLogger{},
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("natsclient: apply option: %w", err)
		}
	}

	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string {
	return c.url
}

// buildConnectionOptions builds NATS connection options from client configuration.
func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.retryOnFailedConnect {
		opts = append(opts, nats.RetryOnFailedConnect(true), nats.ConnectHandler(c.handleReconnect))
	}

	return opts
}

// Connect establishes the connection to the NATS server.
//
// With WithRetryOnFailedConnect an unreachable server is not an error: the
// connection is kept in the reconnecting state and IsConnected stays false
// until the server answers.
//
// Parameters:
//   - ctx: bounds the wait for the initial connection
//
// Returns:
//   - error: wraps ErrConnectionFailed, or the context error
func (c *Client) Connect(ctx context.Context) error {
	opts := c.buildConnectionOptions()

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, r.err)
		}
		c.mu.Lock()
		c.conn = r.conn
		c.mu.Unlock()
	case <-ctx.Done():
		// Close the connection if the dial completes after we gave up.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if c.IsConnected() {
		c.logger.Info("nats connected", "url", c.url)
	} else {
		c.logger.Warn("nats unreachable, retrying in background", "url", c.url)
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
// It is false while nats.go is reconnecting.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish publishes data on the subject derived from topic.
//
// Parameters:
//   - topic: '/'-separated telemetry topic
//   - data: payload bytes
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidSubject, or the nats.go error
func (c *Client) Publish(topic string, data []byte) error {
	subject, err := Subject(topic)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("natsclient: publish %s: %w", subject, err)
	}
	return nil
}

// HealthCheck verifies the connection is alive with a round trip to the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("nats health check: %w", err)
	}
	if _, err := conn.RTT(); err != nil {
		return fmt.Errorf("nats health check: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
// Calling Close on an unconnected client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("natsclient: drain: %w", err)
	}
	return nil
}

// Subject converts a '/'-separated topic into a NATS subject.
// Empty tokens are dropped; wildcards and whitespace are rejected.
func Subject(topic string) (string, error) {
	var tokens []string
	for _, tok := range strings.Split(topic, "/") {
		if tok == "" {
			continue
		}
		if strings.ContainsAny(tok, "*> \t\r\n.") {
			return "", fmt.Errorf("%w: %q", ErrInvalidSubject, topic)
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, topic)
	}
	return strings.Join(tokens, "."), nil
}

// Event handlers for NATS connection
func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.logger.Warn("nats disconnected", "error", err)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.logger.Info("nats reconnected", "url", conn.ConnectedUrlRedacted())

	c.mu.RLock()
	onReconnect := c.onReconnect
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("nats error", "error", err)
}

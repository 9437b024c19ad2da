package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"gorged/logger"
	"gorged/metrics"
	"gorged/models"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 5 * time.Second

// Client talks to a rewrite worker over a single connection. Calls are
// serialized; after any failure the connection is dropped and redialed on
// the next call.
type Client struct {
	network  string
	address  string
	timeout  time.Duration
	maxFrame int64
	metrics  *metrics.Recorder

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
}

type ClientOption func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxFrameBytes(n int64) ClientOption {
	return func(c *Client) { c.maxFrame = n }
}

func WithClientMetrics(r *metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = r }
}

// NewClient creates a client for addr (see ParseAddress). It does not dial.
func NewClient(addr string, opts ...ClientOption) *Client {
	network, address := ParseAddress(addr)
	c := &Client{
		network:  network,
		address:  address,
		timeout:  DefaultTimeout,
		maxFrame: DefaultMaxFrameBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends msg and waits for the worker's reply. The exchange is bounded by
// the client timeout and by ctx, whichever ends first. Every failure is a
// *models.TransportError.
func (c *Client) Call(ctx context.Context, msg Message) (string, error) {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return "", c.fail("encode", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if c.conn == nil {
		dialCtx, cancel := context.WithDeadline(ctx, deadline)
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, c.network, c.address)
		cancel()
		if err != nil {
			return "", c.fail("dial", err)
		}
		c.conn = conn
		c.br = bufio.NewReader(conn)
		logger.ProxyDebug("Transport: connected to %s %s", c.network, c.address)
	}

	conn := c.conn
	if err := conn.SetDeadline(deadline); err != nil {
		return "", c.fail("dial", err)
	}
	// Cancelling ctx unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := WriteFrame(conn, payload); err != nil {
		return "", c.fail("write", c.cause(ctx, err))
	}
	reply, err := ReadFrame(c.br, c.maxFrame)
	if err != nil {
		op := "read"
		if errors.Is(err, ErrMalformedFrame) {
			op = "decode"
		} else if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", c.fail(op, c.cause(ctx, err))
	}
	return string(reply), nil
}

// cause prefers the context error when cancellation produced err.
func (c *Client) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// fail drops the connection and wraps err. Callers hold c.mu, except for
// encode failures where no connection is touched.
func (c *Client) fail(op string, err error) error {
	if op != "encode" {
		c.closeLocked()
	}
	c.metrics.ObserveTransportError(op)
	return &models.TransportError{Op: op, Err: err}
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.br = nil
	}
}

// Close releases the connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

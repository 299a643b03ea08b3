package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

const (
	defaultContentType      = "application/json"
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = 30 * time.Second
)

var (
	ErrNotConnected = errors.New("rabbitmq: not connected")
	ErrClosed       = errors.New("rabbitmq: client closed")
	ErrNacked       = errors.New("rabbitmq: publish not acknowledged by broker")
)

// Options configures a Client.
type Options struct {
	URL              string
	Topology         Topology
	ContentType      string
	MessageType      string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Logger           *logger.Logger

	dial dialFunc
}

// Client owns one broker connection and channel for the process lifetime.
// The channel runs in confirm mode, so Publish returns only once the broker
// took responsibility for the message. When the connection drops the client
// reconnects in the background with capped exponential backoff.
type Client struct {
	url         string
	topology    Topology
	contentType string
	messageType string
	initial     time.Duration
	max         time.Duration
	dial        dialFunc
	logg        *logger.Logger

	mu     sync.Mutex
	conn   connection
	ch     channel
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if err := opts.Topology.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	c := &Client{
		url:         opts.URL,
		topology:    opts.Topology,
		contentType: opts.ContentType,
		messageType: opts.MessageType,
		initial:     opts.ReconnectInitial,
		max:         opts.ReconnectMax,
		dial:        opts.dial,
		logg:        opts.Logger,
		done:        make(chan struct{}),
	}
	if c.contentType == "" {
		c.contentType = defaultContentType
	}
	if c.initial <= 0 {
		c.initial = defaultReconnectInitial
	}
	if c.max < c.initial {
		c.max = defaultReconnectMax
	}
	if c.dial == nil {
		c.dial = dialAMQP
	}
	return c, nil
}

// Topology returns the layout declared on every connect.
func (c *Client) Topology() Topology {
	return c.topology
}

// Start connects once. When the broker is unreachable the error is logged
// and reconnection continues in the background, so callers never block on
// broker availability.
func (c *Client) Start(ctx context.Context) {
	if err := c.connect(); err != nil {
		c.logg.Error(ctx, "rabbitmq connect failed, retrying in background", err)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.reconnect()
		}()
		return
	}
	c.logg.Info(ctx, "rabbitmq connected")
}

// Connect performs a single connection attempt.
func (c *Client) Connect() error {
	return c.connect()
}

func (c *Client) connect() error {
	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.topology.Declare(ch); err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.ch = ch
	c.wg.Add(1)
	c.mu.Unlock()

	go c.watch(conn, connClosed, chClosed)
	return nil
}

func (c *Client) watch(conn connection, connClosed, chClosed chan *amqp.Error) {
	defer c.wg.Done()

	var cause *amqp.Error
	select {
	case <-c.done:
		return
	case cause = <-connClosed:
	case cause = <-chClosed:
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.ch = nil
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	_ = conn.Close()

	ctx := context.Background()
	if cause != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{"amqp_code": cause.Code, "amqp_reason": cause.Reason})
	}
	c.logg.Warn(ctx, "rabbitmq connection lost")
	c.reconnect()
}

func (c *Client) reconnect() {
	backoff := c.initial
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		err := c.connect()
		if err == nil {
			c.logg.Info(context.Background(), "rabbitmq reconnected")
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		ctx := c.logg.WithField(context.Background(), "retry_in", backoff.String())
		c.logg.Error(ctx, "rabbitmq reconnect failed", err)

		backoff *= 2
		if backoff > c.max {
			backoff = c.max
		}
	}
}

// Publish sends body to the primary exchange with messageID as the AMQP
// message id and waits for the broker confirmation or ctx expiry. The wait
// holds no lock, so Ping and reconnects are not blocked by a slow broker.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, messageID string) error {
	c.mu.Lock()
	ch, closed := c.ch, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ch == nil {
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  c.contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Type:         c.messageType,
		Body:         body,
	}
	dc, err := ch.PublishDeferred(ctx, c.topology.Exchange, routingKey, msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.topology.Exchange, err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

// Consume subscribes to the primary queue with manual acknowledgements. The
// returned channel closes when the connection drops.
func (c *Client) Consume(ctx context.Context, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	ch, closed := c.ch, c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if ch == nil {
		return nil, ErrNotConnected
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	deliveries, err := ch.Consume(c.topology.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}
	return deliveries, nil
}

// Ping reports whether a live connection is available.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil || c.ch == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

// Close stops reconnecting and closes the channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, ch := c.conn, c.ch
	c.conn, c.ch = nil, nil
	close(c.done)
	c.mu.Unlock()

	var err error
	if ch != nil {
		err = multierr.Append(err, ch.Close())
	}
	if conn != nil && !conn.IsClosed() {
		err = multierr.Append(err, conn.Close())
	}
	c.wg.Wait()
	return err
}

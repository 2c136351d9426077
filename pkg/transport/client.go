// Package transport implements the pub/sub broker client used to exchange
// messages and lift data with the pilot unit. The broker speaks a small JSON
// frame protocol over a websocket: a client sends {"type":"sub","topic":...}
// to register interest and {"type":"pub","topic":...,"payload":...} to
// publish; the broker fans published frames out to subscribers of the topic.
//
// Delivery is at-most-once from the adapter's perspective. The adapter does
// no deduplication; message and lift ids are the consumers' natural dedup
// keys.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Dumbogiflen/Manifest-system/internal/errors"
	"github.com/Dumbogiflen/Manifest-system/internal/metrics"
	"github.com/Dumbogiflen/Manifest-system/internal/retry"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	frameTypeSub = "sub"
	frameTypePub = "pub"

	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

type frame struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Handler consumes one inbound payload for a subscribed topic. Handlers run
// on the receive goroutine, so request handling is never blocked by them and
// they must not block for long.
type Handler func(ctx context.Context, payload []byte)

// Config describes the broker connection.
type Config struct {
	URL      string
	Username string
	Password string
}

// Client is the Transport Adapter: topic-scoped publish, subscription with
// callback, and an indefinite reconnect loop owned by Start.
type Client struct {
	cfg     Config
	logger  *logrus.Logger
	backoff *retry.Backoff

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string]Handler
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg Config, backoffCfg retry.BackoffConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		backoff:  retry.NewBackoff(backoffCfg),
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers the handler for a topic. Must be called before Start;
// exactly one handler serves a topic and a later registration replaces an
// earlier one.
func (c *Client) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

// Start establishes the connection and begins delivering inbound events on a
// dedicated goroutine. Connection loss triggers reconnect attempts forever,
// with exponential backoff between failures.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("transport client is already running")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	c.wg.Add(1)
	go c.connectLoop()

	c.logger.WithField("url", c.cfg.URL).Info("Transport client started")
	return nil
}

// Stop closes the connection and waits for the receive loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	c.wg.Wait()
	c.logger.Info("Transport client stopped")
}

// IsConnected reports whether a broker connection is currently established.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Publish sends a payload to a topic. Fire-and-forget: a successful return
// means the frame was handed to the broker connection, not that the remote
// side received it. Returns a retryable transport error when disconnected.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return apperrors.WrapRetryable(nil, apperrors.ErrCodeTransport, fmt.Sprintf("not connected, cannot publish to %s", topic))
	}

	data, err := json.Marshal(frame{Type: frameTypePub, Topic: topic, Payload: string(payload)})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "failed to encode frame")
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeTransport, fmt.Sprintf("failed to publish to %s", topic))
	}

	metrics.IncrementCounter("transport_published", map[string]string{"topic": topic}, "Frames published per topic")
	return nil
}

// connectLoop dials the broker and runs the receive loop, reconnecting
// forever until the client is stopped.
func (c *Client) connectLoop() {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			attempt++
			delay := c.backoff.NextDelay(attempt)
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": delay,
				"error":   err,
			}).Warn("Broker connection failed, retrying")

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		metrics.IncrementCounter("transport_reconnects", nil, "Broker connections established")
		metrics.SetGauge("transport_connected", 1, nil, "Broker connection state")
		c.logger.Info("Broker connected")

		if err := c.subscribeAll(conn); err != nil {
			c.logger.WithError(err).Warn("Failed to subscribe after connect")
		}

		err = c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		metrics.SetGauge("transport_connected", 0, nil, "Broker connection state")

		select {
		case <-c.ctx.Done():
			return
		default:
			c.logger.WithError(err).Warn("Broker connection lost, reconnecting")
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if c.cfg.Username != "" {
		header := http.Header{}
		header.Set("Authorization", basicAuth(c.cfg.Username, c.cfg.Password))
		opts.HTTPHeader = header
	}

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) subscribeAll(conn *websocket.Conn) error {
	c.mu.RLock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()

	for _, topic := range topics {
		data, err := json.Marshal(frame{Type: frameTypeSub, Topic: topic})
		if err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed broker frame")
			continue
		}
		if f.Type != frameTypePub {
			continue
		}

		c.mu.RLock()
		handler, ok := c.handlers[f.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.WithField("topic", f.Topic).Debug("Dropping message for unregistered topic")
			metrics.IncrementCounter("transport_dropped", map[string]string{"topic": f.Topic}, "Frames dropped for unregistered topics")
			continue
		}

		metrics.IncrementCounter("transport_received", map[string]string{"topic": f.Topic}, "Frames received per topic")
		handler(c.ctx, []byte(f.Payload))
	}
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

// DefaultExchange is the durable topic exchange shared with the orchestrator.
const DefaultExchange = "govconnect.events"

const (
	defaultReconnectBase = time.Second
	defaultReconnectMax  = 30 * time.Second
	defaultJitter        = 0.3
)

// Options tune the exchange name and the reconnect backoff. Zero values
// fall back to the defaults above.
type Options struct {
	Exchange     string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Jitter       float64
}

type consumerSpec struct {
	queue      string
	routingKey string
	handler    domainBus.HandlerFunc
}

// Client owns one connection with a producer channel plus one channel per
// consumer. On connection loss it reconnects with jittered exponential
// backoff and re-establishes every registered consumer.
type Client struct {
	url           string
	exchange      string
	reconnectBase time.Duration
	reconnectMax  time.Duration
	jitter        float64

	mu        sync.Mutex
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	consumers []consumerSpec

	connected int32
	closing   int32
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewClient(url string, opts Options) *Client {
	if opts.Exchange == "" {
		opts.Exchange = DefaultExchange
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectBase
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = defaultReconnectMax
	}
	if opts.Jitter <= 0 {
		opts.Jitter = defaultJitter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:           url,
		exchange:      opts.Exchange,
		reconnectBase: opts.ReconnectMin,
		reconnectMax:  opts.ReconnectMax,
		jitter:        opts.Jitter,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Connect dials the broker and declares the exchange. On failure the caller
// may still Start consumers; the reconnect loop will bring everything up.
func (c *Client) Connect() error {
	if err := c.connect(); err != nil {
		logrus.WithError(err).Warn("[BUS] Initial connection failed, reconnect loop will retry")
		go c.reconnectLoop()
		return err
	}
	return nil
}

func (c *Client) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.pubCh = ch
	specs := append([]consumerSpec(nil), c.consumers...)
	c.mu.Unlock()
	atomic.StoreInt32(&c.connected, 1)

	for _, spec := range specs {
		if err := c.startConsumer(spec); err != nil {
			logrus.WithError(err).Errorf("[BUS] Failed to re-establish consumer for %s", spec.queue)
		}
	}

	go c.watch(conn)
	logrus.Infof("[BUS] Connected, exchange %q declared", c.exchange)
	return nil
}

func (c *Client) watch(conn *amqp.Connection) {
	errCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	err := <-errCh
	atomic.StoreInt32(&c.connected, 0)
	if atomic.LoadInt32(&c.closing) == 1 {
		return
	}
	logrus.WithField("reason", fmt.Sprintf("%v", err)).Warn("[BUS] Connection lost, reconnecting...")
	c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	for n := 0; ; n++ {
		if atomic.LoadInt32(&c.closing) == 1 {
			return
		}
		delay := c.reconnectBase * (1 << uint(n))
		if delay > c.reconnectMax {
			delay = c.reconnectMax
		}
		delay = time.Duration(float64(delay) * (1 + rand.Float64()*c.jitter))

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}

		if err := c.connect(); err != nil {
			logrus.WithError(err).Warnf("[BUS] Reconnect attempt %d failed", n+1)
			continue
		}
		logrus.Infof("[BUS] Reconnected after %d attempt(s)", n+1)
		return
	}
}

// IsConnected reports whether the producer channel is usable right now.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Publish sends a persistent JSON message to the topic exchange. During an
// outage it fails immediately with BUS_UNAVAILABLE; the caller owns the
// retry.
func (c *Client) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	if !c.IsConnected() {
		return pkgError.BusUnavailableError("bus disconnected, publish rejected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgError.InternalServerError(fmt.Sprintf("encode event: %v", err))
	}

	c.mu.Lock()
	ch := c.pubCh
	c.mu.Unlock()
	if ch == nil {
		return pkgError.BusUnavailableError("bus channel not open")
	}

	err = ch.PublishWithContext(ctx, c.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		return pkgError.BusUnavailableError(fmt.Sprintf("publish %s: %v", routingKey, err))
	}

	logrus.Debugf("[BUS] Published %s (%d bytes)", routingKey, len(body))
	return nil
}

// Subscribe registers a durable queue bound to routingKey and consumes it
// with handler. Registration survives reconnects.
func (c *Client) Subscribe(queue, routingKey string, handler domainBus.HandlerFunc) error {
	spec := consumerSpec{queue: queue, routingKey: routingKey, handler: handler}

	c.mu.Lock()
	c.consumers = append(c.consumers, spec)
	c.mu.Unlock()

	if !c.IsConnected() {
		// The reconnect loop starts it once the broker is back.
		return nil
	}
	return c.startConsumer(spec)
}

func (c *Client) startConsumer(spec consumerSpec) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return pkgError.BusUnavailableError("bus not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if _, err := ch.QueueDeclare(spec.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", spec.queue, err)
	}
	if err := ch.QueueBind(spec.queue, spec.routingKey, c.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind %s to %s: %w", spec.queue, spec.routingKey, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(spec.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", spec.queue, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()
		logrus.Infof("[BUS] Consuming %s (key %s)", spec.queue, spec.routingKey)
		for d := range deliveries {
			c.handleDelivery(spec, d)
		}
		logrus.Debugf("[BUS] Consumer for %s stopped", spec.queue)
	}()
	return nil
}

func (c *Client) handleDelivery(spec consumerSpec, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[BUS] Handler panic on %s: %v", spec.queue, r)
			_ = d.Nack(false, false)
		}
	}()

	if err := spec.handler(c.ctx, d.Body); err != nil {
		// No requeue: a poison message must not loop.
		logrus.WithError(err).Errorf("[BUS] Handler failed on %s, dropping delivery", spec.queue)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close drains consumers and tears the connection down.
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closing, 1)
	atomic.StoreInt32(&c.connected, 0)
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logrus.Warn("[BUS] Consumer drain timed out")
	}
	logrus.Info("[BUS] Closed")
	return nil
}

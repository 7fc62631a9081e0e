package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConnectionClosed — Close уже вызван.
var ErrConnectionClosed = errors.New("connection closed")

const (
	defaultConnectionName = "switchover"
	heartbeat             = 10 * time.Second
	minBackoff            = time.Second
	maxBackoff            = 30 * time.Second
	dialTimeout           = 30 * time.Second
)

// Connection — соединение с RabbitMQ и один общий канал.
//
// При разрыве соединение восстанавливается в фоне; consumer узнаёт об этом
// через ReconnectNotify и подписывается заново.
type Connection struct {
	url    string
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	closedCh    chan struct{}
	reconnectCh chan struct{}
}

// NewConnection подключается к RabbitMQ.
//
// name попадает в свойство connection_name и видно в management UI.
// ctx ограничивает только первое подключение.
func NewConnection(ctx context.Context, url, name string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = defaultConnectionName
	}

	c := &Connection{
		url:         url,
		name:        name,
		logger:      logger.With("connection", name),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

// connect открывает соединение и канал и подменяет текущие.
func (c *Connection) connect(ctx context.Context) error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
		Dial:       dialContext(ctx),
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		conn.Close()
		return ErrConnectionClosed
	}
	if old := c.conn; old != nil && !old.IsClosed() {
		old.Close()
	}
	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watch ждёт разрыва соединения или канала и восстанавливает их.
// Канал закрывается брокером отдельно при channel exception.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		var restored bool
		select {
		case <-c.closedCh:
			return
		case err := <-connClosed:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
			restored = c.redial()
		case err := <-chanClosed:
			if err != nil {
				c.logger.Warn("channel closed by broker", "error", err)
			}
			restored = c.reopenChannel() || c.redial()
		}
		if !restored {
			return
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
	}
}

// reopenChannel открывает новый канал на живом соединении.
func (c *Connection) reopenChannel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn.IsClosed() {
		return false
	}
	ch, err := c.conn.Channel()
	if err != nil {
		c.logger.Warn("failed to reopen channel", "error", err)
		return false
	}
	c.channel = ch
	c.logger.Info("channel reopened")
	return true
}

// redial переподключается с экспоненциальной задержкой.
// false — соединение закрыто через Close.
func (c *Connection) redial() bool {
	delay := minBackoff

	for {
		c.logger.Info("reconnecting", "delay", delay)

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		err := c.connect(context.Background())
		if err == nil {
			return true
		}
		if errors.Is(err, ErrConnectionClosed) {
			return false
		}

		c.logger.Warn("reconnect failed", "error", err)
		delay = nextBackoff(delay)
	}
}

// dialContext — TCP dial с отменой через ctx. Дедлайн покрывает AMQP
// handshake; после handshake amqp091 его снимает.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	return func(network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxBackoff)
}

// Channel возвращает текущий канал. nil — соединение закрыто.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.channel
}

// ReconnectNotify сигналит после каждого восстановления соединения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// WithChannel вызывает fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

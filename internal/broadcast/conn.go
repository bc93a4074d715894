package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrConnClosed - соединение уже закрыто
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer - очередь соединения переполнена
	ErrSlowConsumer = errors.New("subscriber queue is full")
)

// Sender - транспортная отправка одному соединению
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc позволяет использовать функцию как Sender
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Conn - подписчик хаба. Сообщения попадают в собственную очередь соединения
// и отправляются отдельной горутиной, поэтому медленный клиент не тормозит остальных.
type Conn struct {
	id     string
	userID string
	hub    *Hub
	sender Sender

	queue   chan Message
	done    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	closed   bool
	channels map[ChannelName]struct{}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) UserID() string {
	return c.userID
}

// Done закрывается при закрытии соединения
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Wait блокируется до завершения горутины отправки
func (c *Conn) Wait() {
	<-c.stopped
}

// Channels возвращает текущие подписки соединения
func (c *Conn) Channels() []ChannelName {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]ChannelName, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	return names
}

// Deliver ставит сообщение в очередь только этого соединения (служебные события)
func (c *Conn) Deliver(msg Message) error {
	return c.enqueue(msg)
}

// Close снимает все подписки и останавливает отправку. Повторный вызов безопасен.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	names := make([]ChannelName, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	c.channels = map[ChannelName]struct{}{}
	c.mu.Unlock()

	for _, name := range names {
		c.hub.removeMember(name, c)
	}
	c.hub.forget(c)
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) enqueue(msg Message) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *Conn) writeLoop(sendTimeout time.Duration, logger *logrus.Logger) {
	defer close(c.stopped)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			// Не отправляем в соединение, которое уже разбирается
			if c.isClosed() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := c.sender.Send(ctx, msg)
			cancel()
			if err != nil {
				logger.WithFields(logrus.Fields{
					"component": "broadcast",
					"conn_id":   c.id,
					"user_id":   c.userID,
					"channel":   msg.Channel,
				}).WithError(err).Warn("Delivery failed, pruning connection")
				c.Close()
				return
			}
		}
	}
}

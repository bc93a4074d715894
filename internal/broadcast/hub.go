package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 5 * time.Second
)

// Publisher - контракт для продюсеров сообщений (локальный хаб или relay через Redis)
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// channel хранит множество подписчиков одного канала.
// Изменение множества и перебор при рассылке взаимно исключены через mu.
type channel struct {
	name    ChannelName
	mu      sync.RWMutex
	members map[string]*Conn
	// removed выставляется, когда пустой канал user:{id} удален из реестра
	removed bool
}

// Hub - реестр каналов и рассылка по подписчикам
type Hub struct {
	logger      *logrus.Logger
	queueSize   int
	sendTimeout time.Duration

	mu       sync.RWMutex
	channels map[ChannelName]*channel
	conns    map[string]*Conn
}

// Option настраивает Hub
type Option func(*Hub)

// WithQueueSize задает размер очереди каждого соединения
func WithQueueSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.queueSize = size
		}
	}
}

// WithSendTimeout ограничивает время одной отправки в транспорт
func WithSendTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout > 0 {
			h.sendTimeout = timeout
		}
	}
}

func NewHub(logger *logrus.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger:      logger,
		queueSize:   DefaultQueueSize,
		sendTimeout: DefaultSendTimeout,
		channels:    make(map[ChannelName]*channel),
		conns:       make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect регистрирует новое соединение и запускает его горутину отправки
func (h *Hub) Connect(userID string, sender Sender) *Conn {
	conn := &Conn{
		id:       uuid.New().String(),
		userID:   userID,
		hub:      h,
		sender:   sender,
		queue:    make(chan Message, h.queueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		channels: make(map[ChannelName]struct{}),
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	go conn.writeLoop(h.sendTimeout, h.logger)

	h.logger.WithFields(logrus.Fields{
		"component": "broadcast",
		"conn_id":   conn.id,
		"user_id":   userID,
	}).Debug("Connection registered")
	return conn
}

// Lookup находит живое соединение по id
func (h *Hub) Lookup(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[id]
	return conn, ok
}

// Subscribe идемпотентно добавляет соединение в канал, создавая канал при первом обращении
func (h *Hub) Subscribe(conn *Conn, name ChannelName) error {
	name, err := ParseChannel(string(name))
	if err != nil {
		return err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return ErrConnClosed
	}

	for {
		ch := h.channel(name)
		ch.mu.Lock()
		if ch.removed {
			// Канал удалили между поиском и блокировкой, берем новый
			ch.mu.Unlock()
			continue
		}
		ch.members[conn.id] = conn
		ch.mu.Unlock()
		break
	}

	conn.channels[name] = struct{}{}
	return nil
}

// Unsubscribe убирает соединение из канала. Безопасно для не-участника.
func (h *Hub) Unsubscribe(conn *Conn, name ChannelName) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	delete(conn.channels, name)
	h.removeMember(name, conn)
}

// Broadcast доставляет сообщение всем, кто подписан на канал в момент вызова.
// Возвращает число соединений, получивших сообщение в очередь.
func (h *Hub) Broadcast(ctx context.Context, msg Message) (int, error) {
	name, err := ParseChannel(string(msg.Channel))
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg.Channel = name

	// Персональные каналы живут только пока есть подписчики
	var ch *channel
	if _, personal := name.UserID(); personal {
		h.mu.RLock()
		existing, ok := h.channels[name]
		h.mu.RUnlock()
		if !ok {
			return 0, nil
		}
		ch = existing
	} else {
		ch = h.channel(name)
	}

	var failed []*Conn
	delivered := 0

	ch.mu.RLock()
	for _, conn := range ch.members {
		if err := conn.enqueue(msg); err != nil {
			failed = append(failed, conn)
			continue
		}
		delivered++
	}
	ch.mu.RUnlock()

	// Чистим отказавших уже после снятия блокировки канала
	for _, conn := range failed {
		h.logger.WithFields(logrus.Fields{
			"component": "broadcast",
			"conn_id":   conn.id,
			"user_id":   conn.userID,
			"channel":   msg.Channel,
		}).Warn("Subscriber unavailable, pruning connection")
		conn.Close()
	}

	return delivered, nil
}

// Publish реализует Publisher для локальной рассылки
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	_, err := h.Broadcast(ctx, msg)
	return err
}

// Stats возвращает число подписчиков по каналам
func (h *Hub) Stats() map[ChannelName]int {
	h.mu.RLock()
	channels := make([]*channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	stats := make(map[ChannelName]int, len(channels))
	for _, ch := range channels {
		ch.mu.RLock()
		stats[ch.name] = len(ch.members)
		ch.mu.RUnlock()
	}
	return stats
}

// Close закрывает все соединения
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) channel(name ChannelName) *channel {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if ok {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.channels[name]; ok {
		return ch
	}
	ch = &channel{name: name, members: make(map[string]*Conn)}
	h.channels[name] = ch
	return ch
}

// removeMember удаляет участника; опустевший канал user:{id} уходит из реестра.
// Порядок блокировок: h.mu, затем ch.mu.
func (h *Hub) removeMember(name ChannelName, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[name]
	if !ok {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.members, conn.id)
	if _, personal := name.UserID(); personal && len(ch.members) == 0 {
		ch.removed = true
		delete(h.channels, name)
	}
}

func (h *Hub) forget(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()
}

package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender запоминает все доставленные сообщения
type recordingSender struct {
	mu       sync.Mutex
	messages []Message
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *recordingSender) count() int {
	return len(s.received())
}

func newTestHub(opts ...Option) *Hub {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewHub(logger, opts...)
}

func mustMessage(t *testing.T, channel ChannelName, payload any) Message {
	t.Helper()
	msg, err := NewMessage(channel, "TEST", payload, time.Now())
	require.NoError(t, err)
	return msg
}

func TestHub_BroadcastReachesOnlyChannelMembers(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	securitySender := &recordingSender{}
	messSender := &recordingSender{}
	securityConn := hub.Connect("guard-1", securitySender)
	messConn := hub.Connect("student-1", messSender)

	require.NoError(t, hub.Subscribe(securityConn, ChannelSecurity))
	require.NoError(t, hub.Subscribe(messConn, ChannelMessCrowd))

	delivered, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelSecurity, map[string]string{"incidentId": "1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	require.Eventually(t, func() bool { return securitySender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return messSender.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	got := securitySender.received()[0]
	assert.Equal(t, ChannelSecurity, got.Channel)
	assert.JSONEq(t, `{"incidentId":"1"}`, string(got.Payload))
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	sender := &recordingSender{}
	conn := hub.Connect("u1", sender)

	require.NoError(t, hub.Subscribe(conn, ChannelAcademicSchedule))
	require.NoError(t, hub.Subscribe(conn, ChannelAcademicSchedule))
	assert.Equal(t, 1, hub.Stats()[ChannelAcademicSchedule])

	delivered, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelAcademicSchedule, "room change"))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_UnsubscribeNonMemberIsSafe(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	conn := hub.Connect("u1", &recordingSender{})

	assert.NotPanics(t, func() {
		hub.Unsubscribe(conn, ChannelSecurity)
		hub.Unsubscribe(conn, UserChannel("nobody"))
	})

	require.NoError(t, hub.Subscribe(conn, ChannelSecurity))
	hub.Unsubscribe(conn, ChannelSecurity)
	assert.Equal(t, 0, hub.Stats()[ChannelSecurity])
	assert.Empty(t, conn.Channels())
}

func TestHub_BroadcastCreatesChannelLazily(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	delivered, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelSecurity, "hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	stats := hub.Stats()
	count, ok := stats[ChannelSecurity]
	assert.True(t, ok)
	assert.Equal(t, 0, count)
}

func TestHub_EmptyUserChannelsAreRemoved(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	// Рассылка в канал без подписчиков не создает запись
	delivered, err := hub.Broadcast(context.Background(), mustMessage(t, UserChannel("7"), "hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.NotContains(t, hub.Stats(), UserChannel("7"))

	first := hub.Connect("u1", &recordingSender{})
	second := hub.Connect("u1", &recordingSender{})
	require.NoError(t, hub.Subscribe(first, UserChannel("u1")))
	require.NoError(t, hub.Subscribe(second, UserChannel("u1")))
	assert.Equal(t, 2, hub.Stats()[UserChannel("u1")])

	hub.Unsubscribe(first, UserChannel("u1"))
	assert.Equal(t, 1, hub.Stats()[UserChannel("u1")])

	second.Close()
	second.Wait()
	assert.NotContains(t, hub.Stats(), UserChannel("u1"))

	delivered, err = hub.Broadcast(context.Background(), mustMessage(t, UserChannel("u1"), "late"))
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.NotContains(t, hub.Stats(), UserChannel("u1"))

	// Повторная подписка заново создает канал
	sender := &recordingSender{}
	again := hub.Connect("u1", sender)
	require.NoError(t, hub.Subscribe(again, UserChannel("u1")))
	delivered, err = hub.Broadcast(context.Background(), mustMessage(t, UserChannel("u1"), "back"))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	// Общие каналы остаются в реестре и пустыми
	require.NoError(t, hub.Subscribe(again, ChannelSecurity))
	hub.Unsubscribe(again, ChannelSecurity)
	assert.Contains(t, hub.Stats(), ChannelSecurity)
}

func TestHub_ConcurrentUserChannelChurn(t *testing.T) {
	hub := newTestHub(WithQueueSize(1024))
	defer hub.Close()

	var wg sync.WaitGroup
	conns := make([]*Conn, 10)
	for i := range conns {
		conns[i] = hub.Connect("shared", &recordingSender{})
	}

	for _, conn := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Subscribe(c, UserChannel("shared"))
				hub.Unsubscribe(c, UserChannel("shared"))
			}
			_ = hub.Subscribe(c, UserChannel("shared"))
		}(conn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			_, _ = hub.Broadcast(context.Background(), Message{Channel: UserChannel("shared"), Event: "X"})
		}
	}()

	wg.Wait()
	assert.Equal(t, len(conns), hub.Stats()[UserChannel("shared")])
}

func TestHub_RejectsUnknownChannel(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	conn := hub.Connect("u1", &recordingSender{})
	assert.ErrorIs(t, hub.Subscribe(conn, "library"), ErrUnknownChannel)

	_, err := hub.Broadcast(context.Background(), Message{Channel: "library", Event: "X"})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestHub_CloseRemovesAllMemberships(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	conn := hub.Connect("u1", &recordingSender{})
	require.NoError(t, hub.Subscribe(conn, ChannelSecurity))
	require.NoError(t, hub.Subscribe(conn, UserChannel("u1")))

	conn.Close()
	conn.Close()
	conn.Wait()

	stats := hub.Stats()
	assert.Equal(t, 0, stats[ChannelSecurity])
	assert.Equal(t, 0, stats[UserChannel("u1")])

	_, ok := hub.Lookup(conn.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, hub.Subscribe(conn, ChannelSecurity), ErrConnClosed)
}

func TestHub_FailedSubscriberIsPrunedWithoutAffectingOthers(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	broken := hub.Connect("broken", SenderFunc(func(context.Context, Message) error {
		return errors.New("broken pipe")
	}))
	healthy := &recordingSender{}
	healthyConn := hub.Connect("healthy", healthy)

	require.NoError(t, hub.Subscribe(broken, ChannelSecurity))
	require.NoError(t, hub.Subscribe(healthyConn, ChannelSecurity))

	_, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelSecurity, 1))
	require.NoError(t, err)

	select {
	case <-broken.Done():
	case <-time.After(time.Second):
		t.Fatal("broken connection was not pruned")
	}
	assert.Equal(t, 1, hub.Stats()[ChannelSecurity])

	_, err = hub.Broadcast(context.Background(), mustMessage(t, ChannelSecurity, 2))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return healthy.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_SlowSubscriberDoesNotBlockFanOut(t *testing.T) {
	hub := newTestHub(WithQueueSize(1), WithSendTimeout(100*time.Millisecond))
	defer hub.Close()

	slow := hub.Connect("slow", SenderFunc(func(ctx context.Context, _ Message) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	fast := &recordingSender{}
	fastConn := hub.Connect("fast", fast)

	require.NoError(t, hub.Subscribe(slow, ChannelMessCrowd))
	require.NoError(t, hub.Subscribe(fastConn, ChannelMessCrowd))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelMessCrowd, i))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return fast.count() == i+1 }, time.Second, time.Millisecond)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow connection was not pruned")
	}
	assert.Equal(t, 1, hub.Stats()[ChannelMessCrowd])
}

func TestHub_PreservesPerConnectionOrder(t *testing.T) {
	hub := newTestHub(WithQueueSize(128))
	defer hub.Close()

	sender := &recordingSender{}
	conn := hub.Connect("u1", sender)
	require.NoError(t, hub.Subscribe(conn, ChannelMessCrowd))

	const total = 100
	for i := 0; i < total; i++ {
		_, err := hub.Broadcast(context.Background(), mustMessage(t, ChannelMessCrowd, i))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return sender.count() == total }, time.Second, 5*time.Millisecond)
	for i, msg := range sender.received() {
		assert.Equal(t, fmt.Sprint(i), string(msg.Payload))
	}
}

func TestHub_ConcurrentSubscribeUnsubscribeBroadcast(t *testing.T) {
	hub := newTestHub(WithQueueSize(1024))
	defer hub.Close()

	var wg sync.WaitGroup
	conns := make([]*Conn, 20)
	for i := range conns {
		conns[i] = hub.Connect(fmt.Sprintf("u%d", i), &recordingSender{})
	}

	for _, conn := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Subscribe(c, ChannelSecurity)
				hub.Unsubscribe(c, ChannelSecurity)
			}
			_ = hub.Subscribe(c, ChannelSecurity)
		}(conn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			_, _ = hub.Broadcast(context.Background(), Message{Channel: ChannelSecurity, Event: "X"})
		}
	}()

	wg.Wait()
	assert.Equal(t, len(conns), hub.Stats()[ChannelSecurity])
}

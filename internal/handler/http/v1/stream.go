package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
)

const (
	EventConnected = "connected"
	EventPing      = "ping"

	defaultHeartbeat = 25 * time.Second
)

var errChannelForbidden = errors.New("channel is not available for this user")

// sseSender пишет сообщения хаба в открытый SSE-ответ.
// Вызывается только из горутины отправки соединения.
type sseSender struct {
	w http.ResponseWriter
}

func (s *sseSender) Send(ctx context.Context, msg broadcast.Message) error {
	rc := http.NewResponseController(s.w)
	if deadline, ok := ctx.Deadline(); ok {
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if err := sse.Encode(s.w, sse.Event{Event: msg.Event, Data: msg}); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// authorizeChannel: user:{id} только владельцу, security только охране
func authorizeChannel(identity Identity, name broadcast.ChannelName) error {
	if owner, ok := name.UserID(); ok {
		if owner != identity.UserID {
			return errChannelForbidden
		}
		return nil
	}
	if name == broadcast.ChannelSecurity && !identity.hasRole(RoleSecurity) {
		return errChannelForbidden
	}
	return nil
}

// resolveChannel разбирает имя канала и проверяет доступ. Возвращает HTTP-статус ошибки.
func resolveChannel(identity Identity, raw string) (broadcast.ChannelName, int, error) {
	name, err := broadcast.ParseChannel(raw)
	if err != nil {
		return "", http.StatusBadRequest, err
	}
	if err := authorizeChannel(identity, name); err != nil {
		return "", http.StatusForbidden, err
	}
	return name, 0, nil
}

// @Summary Open an event stream
// @Description Server-Sent Events stream. The user's private channel is always subscribed. Requires JWT.
// @Tags Stream
// @Produce text/event-stream
// @Security BearerAuth
// @Param channel query []string false "Channels to subscribe" collectionFormat(multi)
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string "Unknown channel"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Channel not allowed"
// @Router /stream [get]
func (h *Handler) stream(c *gin.Context) {
	identity := currentIdentity(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":  "stream",
		"user_id": identity.UserID,
	})

	names := []broadcast.ChannelName{broadcast.UserChannel(identity.UserID)}
	for _, raw := range c.QueryArray("channel") {
		name, status, err := resolveChannel(identity, raw)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		names = append(names, name)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	conn := h.hub.Connect(identity.UserID, &sseSender{w: c.Writer})
	// После выхода из обработчика писать в ответ нельзя
	defer func() {
		conn.Close()
		conn.Wait()
	}()
	log = log.WithField("conn_id", conn.ID())

	for _, name := range names {
		if err := h.hub.Subscribe(conn, name); err != nil {
			log.WithError(err).WithField("channel", name).Warn("Failed to subscribe stream")
			return
		}
	}

	hello, err := broadcast.NewMessage("", EventConnected, SubscriptionResponse{
		ConnectionID: conn.ID(),
		Channels:     channelNames(conn.Channels()),
	}, h.clock.Now().UTC())
	if err != nil {
		log.WithError(err).Error("Failed to build connected event")
		return
	}
	if err := conn.Deliver(hello); err != nil {
		return
	}
	log.Info("Stream opened")

	heartbeat := h.cfg.StreamHeartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := h.clock.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			log.Info("Stream closed by client")
			return
		case <-conn.Done():
			log.Info("Stream closed by hub")
			return
		case now := <-ticker.Chan():
			ping := broadcast.Message{Event: EventPing, Payload: []byte("{}"), Timestamp: now.UTC()}
			if err := conn.Deliver(ping); err != nil {
				log.WithError(err).Warn("Heartbeat failed, closing stream")
				return
			}
		}
	}
}

// @Summary Subscribe a stream to a channel
// @Tags Stream
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param connID path string true "Connection ID from the connected event"
// @Param subscription body SubscriptionRequest true "Channel"
// @Success 200 {object} SubscriptionResponse
// @Failure 400 {object} map[string]string "Unknown channel"
// @Failure 403 {object} map[string]string "Channel not allowed"
// @Failure 404 {object} map[string]string "Connection not found"
// @Router /stream/{connID}/subscriptions [post]
func (h *Handler) subscribe(c *gin.Context) {
	identity := currentIdentity(c)
	conn, ok := h.ownConn(c, identity)
	if !ok {
		return
	}

	var input SubscriptionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name, status, err := resolveChannel(identity, input.Channel)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if err := h.hub.Subscribe(conn, name); err != nil {
		if errors.Is(err, broadcast.ErrConnClosed) {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"method":  "subscribe",
		"conn_id": conn.ID(),
		"channel": name,
	}).Debug("Stream subscribed")
	c.JSON(http.StatusOK, SubscriptionResponse{ConnectionID: conn.ID(), Channels: channelNames(conn.Channels())})
}

// @Summary Unsubscribe a stream from a channel
// @Tags Stream
// @Produce json
// @Security BearerAuth
// @Param connID path string true "Connection ID"
// @Param channel path string true "Channel name"
// @Success 200 {object} SubscriptionResponse
// @Failure 404 {object} map[string]string "Connection not found"
// @Router /stream/{connID}/subscriptions/{channel} [delete]
func (h *Handler) unsubscribe(c *gin.Context) {
	conn, ok := h.ownConn(c, currentIdentity(c))
	if !ok {
		return
	}

	name, err := broadcast.ParseChannel(c.Param("channel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.hub.Unsubscribe(conn, name)
	c.JSON(http.StatusOK, SubscriptionResponse{ConnectionID: conn.ID(), Channels: channelNames(conn.Channels())})
}

// ownConn находит соединение текущего пользователя. Чужие соединения не видны.
func (h *Handler) ownConn(c *gin.Context, identity Identity) (*broadcast.Conn, bool) {
	conn, ok := h.hub.Lookup(c.Param("connID"))
	if !ok || conn.UserID() != identity.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return nil, false
	}
	return conn, true
}

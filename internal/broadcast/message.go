package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message - единица рассылки в канал
type Message struct {
	Channel   ChannelName     `json:"channel"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage сериализует payload и собирает сообщение
func NewMessage(channel ChannelName, event string, payload any, ts time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Message{
		Channel:   channel,
		Event:     event,
		Payload:   raw,
		Timestamp: ts,
	}, nil
}

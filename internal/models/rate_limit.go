package models

import "time"

// RateLimitRecord - счетчик действий по ключу в пределах окна
type RateLimitRecord struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// Expired сообщает, что окно уже закончилось
func (r RateLimitRecord) Expired(now time.Time) bool {
	return now.After(r.WindowResetAt)
}

package broadcast

import (
	"errors"
	"fmt"
	"strings"
)

// ChannelName - имя канала рассылки
type ChannelName string

const (
	ChannelSecurity         ChannelName = "security"
	ChannelMessCrowd        ChannelName = "mess-crowd"
	ChannelAcademicSchedule ChannelName = "academic-schedule"

	userChannelPrefix = "user:"
)

// ErrUnknownChannel возвращается для имен вне допустимого набора
var ErrUnknownChannel = errors.New("unknown channel")

// UserChannel возвращает приватный канал пользователя
func UserChannel(userID string) ChannelName {
	return ChannelName(userChannelPrefix + userID)
}

// ParseChannel проверяет имя канала: фиксированный набор плюс семейство user:{id}
func ParseChannel(raw string) (ChannelName, error) {
	name := ChannelName(strings.TrimSpace(raw))
	switch name {
	case ChannelSecurity, ChannelMessCrowd, ChannelAcademicSchedule:
		return name, nil
	}
	if id, ok := name.UserID(); ok && id != "" {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, raw)
}

// UserID возвращает id пользователя для канала user:{id}
func (c ChannelName) UserID() (string, bool) {
	s := string(c)
	if !strings.HasPrefix(s, userChannelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, userChannelPrefix), true
}

func (c ChannelName) String() string {
	return string(c)
}

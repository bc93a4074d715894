package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shenikar/sos_broadcasting_system/internal/location"
)

const (
	// DefaultSettingsFilename - файл настроек клиента по умолчанию
	DefaultSettingsFilename = "sos-client.yaml"

	DefaultRequestTimeout = 10 * time.Second
)

var (
	errSettingsNotSet    = errors.New("settings are not set")
	errServerURLRequired = errors.New("server_url must be provided")
	errTokenRequired     = errors.New("token must be provided")
)

// Settings - параметры клиента тревоги
type Settings struct {
	ServerURL string `yaml:"server_url"`
	// Token - JWT, выданный сервисом авторизации кампуса
	Token           string        `yaml:"token"`
	UserID          string        `yaml:"user_id"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	HoldDuration    time.Duration `yaml:"hold_duration"`
	LocationTimeout time.Duration `yaml:"location_timeout"`
	// Latitude и Longitude задают фиксированную точку вместо GPS
	Latitude  *float64 `yaml:"latitude,omitempty"`
	Longitude *float64 `yaml:"longitude,omitempty"`
	// LocationError имитирует отказ в определении координат (permission-denied и т.п.)
	LocationError string `yaml:"location_error,omitempty"`
	LogLevel      string `yaml:"log_level"`
}

// LoadSettings читает и проверяет настройки. Отсутствующий файл не ошибка:
// значения могут прийти из флагов.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsFilename
	}

	var settings Settings
	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &settings, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &settings, nil
}

// Validate проверяет обязательные поля и проставляет значения по умолчанию
func Validate(settings *Settings) error {
	if settings == nil {
		return errSettingsNotSet
	}

	if settings.ServerURL == "" {
		return errServerURLRequired
	}
	if _, err := url.ParseRequestURI(settings.ServerURL); err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	if settings.Token == "" {
		return errTokenRequired
	}

	if (settings.Latitude == nil) != (settings.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	if settings.Latitude != nil && (*settings.Latitude < -90 || *settings.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range", *settings.Latitude)
	}
	if settings.Longitude != nil && (*settings.Longitude < -180 || *settings.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range", *settings.Longitude)
	}

	if settings.LocationError != "" {
		if _, err := location.ParseFailure(settings.LocationError); err != nil {
			return err
		}
	}

	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = DefaultRequestTimeout
	}
	if settings.LocationTimeout <= 0 {
		settings.LocationTimeout = location.DefaultTimeout
	}
	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}
	return nil
}

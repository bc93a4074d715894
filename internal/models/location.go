package models

// Coordinates - пара широта/долгота
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SentinelCoordinates обозначает неудачное определение местоположения.
// Отличить его от реальной точки (0,0) можно только по LocationFailure.
var SentinelCoordinates = Coordinates{}

// LocationFailure - причина, по которой не удалось получить координаты
type LocationFailure string

const (
	LocationFailureNone                LocationFailure = ""
	LocationFailurePermissionDenied    LocationFailure = "PERMISSION_DENIED"
	LocationFailurePositionUnavailable LocationFailure = "POSITION_UNAVAILABLE"
	LocationFailureTimeout             LocationFailure = "TIMEOUT"
	LocationFailureUnsupported         LocationFailure = "UNSUPPORTED"
)

// Valid сообщает, известна ли причина (пустая строка тоже допустима)
func (f LocationFailure) Valid() bool {
	switch f {
	case LocationFailureNone,
		LocationFailurePermissionDenied,
		LocationFailurePositionUnavailable,
		LocationFailureTimeout,
		LocationFailureUnsupported:
		return true
	}
	return false
}

// Failed возвращает true, если координаты являются заглушкой
func (f LocationFailure) Failed() bool {
	return f != LocationFailureNone
}

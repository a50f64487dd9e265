package protocol

import "fmt"

// Type is the one-byte metric tag of a request.
type Type byte

const (
	TypeNone        Type = 0x00 // Sentinel returned on failure
	TypeTemperature Type = 't'
	TypeHumidity    Type = 'h'
	TypeWind        Type = 'w'
	TypePressure    Type = 'p'
)

// Types lists the supported request types.
var Types = []Type{TypeTemperature, TypeHumidity, TypeWind, TypePressure}

// Valid reports whether t is one of the four supported metric tags.
func (t Type) Valid() bool {
	switch t {
	case TypeTemperature, TypeHumidity, TypeWind, TypePressure:
		return true
	}
	return false
}

// String returns the metric name. Unsupported tags collapse to "unknown"
// so the result is safe as a metrics label.
func (t Type) String() string {
	switch t {
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeWind:
		return "wind"
	case TypePressure:
		return "pressure"
	case TypeNone:
		return "none"
	}
	return "unknown"
}

// Code returns the tag as it appears on the wire, or "" for TypeNone.
func (t Type) Code() string {
	if t == TypeNone {
		return ""
	}
	return string([]byte{byte(t)})
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.Code()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	switch len(b) {
	case 0:
		*t = TypeNone
	case 1:
		*t = Type(b[0])
	default:
		return fmt.Errorf("protocol: invalid type %q", b)
	}
	return nil
}

// Status is the result code carried in a response.
type Status uint32

const (
	StatusOK             Status = 0
	StatusCityNotFound   Status = 1
	StatusInvalidRequest Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCityNotFound:
		return "CITY_NOT_FOUND"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	}
	return fmt.Sprintf("STATUS(%d)", uint32(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*s = StatusOK
	case "CITY_NOT_FOUND":
		*s = StatusCityNotFound
	case "INVALID_REQUEST":
		*s = StatusInvalidRequest
	default:
		var n uint32
		if _, err := fmt.Sscanf(string(b), "STATUS(%d)", &n); err != nil {
			return fmt.Errorf("protocol: unknown status %q", b)
		}
		*s = Status(n)
	}
	return nil
}

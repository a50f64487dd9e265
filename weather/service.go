// Package weather validates requests and dispatches them to the metric generators.
//
// Checks run in a fixed order and the first failure wins:
//
//	type not t/h/w/p        → INVALID_REQUEST
//	city has \t or @#$%&^*  → INVALID_REQUEST
//	city not in the table   → CITY_NOT_FOUND
//	otherwise               → OK with a generated value
//
// A bad type and a malformed city are deliberately reported with the same
// status; clients cannot tell them apart.
package weather

import (
	"context"

	"weather-udp/message"
	"weather-udp/protocol"
)

// Validate runs the ordered checks and returns the resulting status.
func Validate(req *message.WeatherRequest) protocol.Status {
	if !req.Type.Valid() {
		return protocol.StatusInvalidRequest
	}
	if HasForbiddenChars(req.City) {
		return protocol.StatusInvalidRequest
	}
	if !IsSupportedCity(req.City) {
		return protocol.StatusCityNotFound
	}
	return protocol.StatusOK
}

// Service answers weather requests. It holds no per-request state.
type Service struct {
	source Source
}

func NewService(src Source) *Service {
	return &Service{source: src}
}

// Handle turns a request into a response. It never fails: every rejection
// is a response with a non-OK status. The signature matches middleware.HandlerFunc.
func (s *Service) Handle(_ context.Context, req *message.WeatherRequest) *message.WeatherResponse {
	if status := Validate(req); status != protocol.StatusOK {
		return message.Failure(status)
	}
	return &message.WeatherResponse{
		Status: protocol.StatusOK,
		Type:   req.Type,
		Value:  Generate(s.source, req.Type),
	}
}

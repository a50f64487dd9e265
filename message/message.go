// Package message defines the request and response values exchanged over the wire.
//
// Both are created fresh for one datagram and never shared between requests.
// The codec layer turns them into bytes; the weather service turns a request
// into a response.
package message

import "weather-udp/protocol"

// WeatherRequest is a decoded client datagram.
//
// City never exceeds protocol.MaxCityLen-1 bytes and never contains a NUL.
type WeatherRequest struct {
	Type protocol.Type `json:"type"`
	City string        `json:"city"`
}

// WeatherResponse is the reply to one request.
//
//   - On success: Status is StatusOK, Type echoes the request, Value holds the metric.
//   - On failure: Type is TypeNone and Value is zero.
type WeatherResponse struct {
	Status protocol.Status `json:"status"`
	Type   protocol.Type   `json:"type"`
	Value  float32         `json:"value"`
}

// Failure builds the response for a rejected request.
func Failure(status protocol.Status) *WeatherResponse {
	return &WeatherResponse{Status: status, Type: protocol.TypeNone}
}

// OK reports whether the response carries a metric.
func (r *WeatherResponse) OK() bool {
	return r.Status == protocol.StatusOK
}

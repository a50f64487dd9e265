package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"weather-udp/message"
	"weather-udp/protocol"
)

var (
	// ErrShortRequest is returned for datagrams too short to carry a request.
	ErrShortRequest = errors.New("codec: request shorter than 3 bytes")
	// ErrCityTooLong is returned when a city does not fit the request buffer.
	ErrCityTooLong = errors.New("codec: city name too long")
	// ErrResponseSize is returned when a response is not exactly 9 bytes.
	ErrResponseSize = errors.New("codec: response must be 9 bytes")
)

// DecodeRequest parses a request datagram.
//
// Byte 0 is the type. The remaining bytes are the city, truncated to the
// capacity of the city buffer and cut at the first NUL. Bytes past the
// datagram length are never read.
func DecodeRequest(data []byte) (*message.WeatherRequest, error) {
	if len(data) < protocol.MinRequestSize {
		return nil, ErrShortRequest
	}

	city := data[protocol.RequestCity.Offset:]
	if len(city) > protocol.RequestCity.Size {
		city = city[:protocol.RequestCity.Size]
	}
	if i := bytes.IndexByte(city, 0); i >= 0 {
		city = city[:i]
	}

	return &message.WeatherRequest{
		Type: protocol.Type(data[protocol.RequestType.Offset]),
		City: string(city),
	}, nil
}

// EncodeRequest builds a request datagram. The city is sent without a terminator.
func EncodeRequest(req *message.WeatherRequest) ([]byte, error) {
	if len(req.City) > protocol.RequestCity.Size {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrCityTooLong, len(req.City), protocol.RequestCity.Size)
	}
	buf := make([]byte, protocol.RequestCity.Offset+len(req.City))
	if len(buf) < protocol.MinRequestSize {
		return nil, ErrShortRequest
	}

	buf[protocol.RequestType.Offset] = byte(req.Type)
	copy(buf[protocol.RequestCity.Offset:], req.City)
	return buf, nil
}

// EncodeResponse serializes a response into exactly protocol.ResponseSize bytes.
//
// The value is not converted to any canonical float encoding: its IEEE-754
// bit pattern is reinterpreted as a uint32 and written big-endian.
func EncodeResponse(resp *message.WeatherResponse) []byte {
	buf := make([]byte, protocol.ResponseSize)

	// Status -- 4 bytes, network order
	protocol.ResponseStatus.PutUint32(buf, uint32(resp.Status))
	// Type -- 1 byte, verbatim
	buf[protocol.ResponseType.Offset] = byte(resp.Type)
	// Value -- float32 bits, network order
	protocol.ResponseValue.PutUint32(buf, math.Float32bits(resp.Value))

	return buf
}

// DecodeResponse reverses EncodeResponse. The value is bit-identical to the one sent.
func DecodeResponse(data []byte) (*message.WeatherResponse, error) {
	if len(data) != protocol.ResponseSize {
		return nil, fmt.Errorf("%w: got %d", ErrResponseSize, len(data))
	}
	return &message.WeatherResponse{
		Status: protocol.Status(protocol.ResponseStatus.Uint32(data)),
		Type:   protocol.Type(data[protocol.ResponseType.Offset]),
		Value:  math.Float32frombits(protocol.ResponseValue.Uint32(data)),
	}, nil
}

// BinaryCodec exposes the wire format through the Codec interface.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.WeatherRequest:
		return EncodeRequest(msg)
	case *message.WeatherResponse:
		return EncodeResponse(msg), nil
	}
	return nil, errors.New("BinaryCodec: v must be *WeatherRequest or *WeatherResponse")
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch msg := v.(type) {
	case *message.WeatherRequest:
		req, err := DecodeRequest(data)
		if err != nil {
			return err
		}
		*msg = *req
	case *message.WeatherResponse:
		resp, err := DecodeResponse(data)
		if err != nil {
			return err
		}
		*msg = *resp
	default:
		return errors.New("BinaryCodec: v must be *WeatherRequest or *WeatherResponse")
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// Package protocol defines the fixed binary layout of the weather datagram protocol.
//
// Every exchange is one request datagram and at most one response datagram.
// There is no header, no sequence number and no length prefix: the datagram
// boundary is the frame boundary.
//
// Request (client → server), 3 to 1+MaxCityLen bytes:
//
//	0    1                                   1+MaxCityLen
//	┌────┬───────────────────────────────────┐
//	│type│ city (ASCII, NUL optional)        │
//	└────┴───────────────────────────────────┘
//
// Response (server → client), always 9 bytes:
//
//	0         4    5         9
//	┌─────────┬────┬─────────┐
//	│ status  │type│  value  │
//	│ uint32  │    │ f32 bits│
//	└─────────┴────┴─────────┘
//
// Multi-byte fields are big-endian (network byte order). The value field carries
// the raw IEEE-754 bit pattern of a float32, byte-swapped like any uint32.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	ServerPort     = 56700             // Default UDP port
	MaxCityLen     = 64                // City buffer capacity, terminator included
	RequestSize    = 1 + MaxCityLen    // Largest request the server reads
	ResponseSize   = 4 + 1 + 4         // status + type + value
	MinRequestSize = 3                 // Shorter datagrams are dropped
	ServiceName    = "weather"         // Name used for service registration
	Version        = "1"               // Advertised protocol version
	DefaultAddr    = "127.0.0.1:56700" // Client default target
)

// ByteOrder tells the codec how a field is laid out on the wire.
type ByteOrder int

const (
	Raw     ByteOrder = iota // Copied verbatim (single bytes, text)
	Network                  // Big-endian
)

// Field is one entry of a wire schema.
type Field struct {
	Name   string
	Offset int
	Size   int
	Order  ByteOrder
}

// End returns the offset one past the last byte of the field.
func (f Field) End() int {
	return f.Offset + f.Size
}

// PutUint32 writes v into the field. The field must be a 4-byte network-order field.
func (f Field) PutUint32(buf []byte, v uint32) {
	f.mustUint32()
	binary.BigEndian.PutUint32(buf[f.Offset:f.End()], v)
}

// Uint32 reads the field as a 4-byte network-order integer.
func (f Field) Uint32(buf []byte) uint32 {
	f.mustUint32()
	return binary.BigEndian.Uint32(buf[f.Offset:f.End()])
}

func (f Field) mustUint32() {
	if f.Size != 4 || f.Order != Network {
		panic(fmt.Sprintf("protocol: field %q is not a network-order uint32", f.Name))
	}
}

// Request schema. The city field is the capacity available for text; one byte
// of MaxCityLen is reserved for the terminator.
var (
	RequestType = Field{Name: "type", Offset: 0, Size: 1, Order: Raw}
	RequestCity = Field{Name: "city", Offset: 1, Size: MaxCityLen - 1, Order: Raw}
)

// Response schema.
var (
	ResponseStatus = Field{Name: "status", Offset: 0, Size: 4, Order: Network}
	ResponseType   = Field{Name: "type", Offset: 4, Size: 1, Order: Raw}
	ResponseValue  = Field{Name: "value", Offset: 5, Size: 4, Order: Network}
)

// RequestLayout and ResponseLayout list the schema fields in wire order.
var (
	RequestLayout  = []Field{RequestType, RequestCity}
	ResponseLayout = []Field{ResponseStatus, ResponseType, ResponseValue}
)

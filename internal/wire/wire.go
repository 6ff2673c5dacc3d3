// Package wire implements the Wayland wire protocol codec: the binary
// framing and argument encoding shared by every object interface the
// proxy understands. It has no notion of objects, endpoints, or
// dispatch — it only turns a byte+fd stream into typed argument values
// and back.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the size in bytes of the fixed message header:
// receiver id (4 bytes) followed by the packed size/opcode word (4 bytes).
const HeaderSize = 8

// byteOrder is host order for the Wayland wire protocol: the spec
// defines the protocol over a local Unix domain socket between
// processes on the same machine, so native endianness applies on both
// sides. We pin LittleEndian since every platform this proxy targets
// is little-endian; a mixed-endian deployment is out of scope.
var byteOrder = binary.LittleEndian

// Frame is one fully-decoded message: a receiver object id, opcode, and
// raw payload bytes (the bytes following the 8-byte header). Fds
// associated with the frame's arguments are consumed separately from
// the endpoint's fd queue during argument decoding, not carried here.
type Frame struct {
	Receiver uint32
	Opcode   uint16
	Payload  []byte
}

// ParseHeader decodes the 8-byte message header at the front of buf.
// It returns ok=false if buf is shorter than HeaderSize.
func ParseHeader(buf []byte) (receiver uint32, size uint16, opcode uint16, ok bool) {
	if len(buf) < HeaderSize {
		return 0, 0, 0, false
	}
	receiver = byteOrder.Uint32(buf[0:4])
	sizeOpcode := byteOrder.Uint32(buf[4:8])
	opcode = uint16(sizeOpcode & 0xffff)
	size = uint16(sizeOpcode >> 16)
	return receiver, size, opcode, true
}

// PutHeader writes the 8-byte message header to the front of buf, which
// must be at least HeaderSize long.
func PutHeader(buf []byte, receiver uint32, size uint16, opcode uint16) {
	byteOrder.PutUint32(buf[0:4], receiver)
	byteOrder.PutUint32(buf[4:8], uint32(size)<<16|uint32(opcode))
}

// ExtractFrames splits buf into as many complete frames as it contains,
// returning the frames found and the unconsumed remainder (a partial
// frame, or nil). It never blocks and never looks at fds; the fd queue
// is a property of the endpoint and is drained during argument decoding.
//
// A message whose declared size is smaller than HeaderSize is malformed
// and yields ErrWrongMessageSize; this only covers the on-wire size
// field sanity, not the per-opcode minimum (that is checked once the
// registry knows which opcode it is decoding).
func ExtractFrames(buf []byte) (frames []Frame, rest []byte, err error) {
	for {
		receiver, size, opcode, ok := ParseHeader(buf)
		if !ok {
			return frames, buf, nil
		}
		if size < HeaderSize {
			return frames, buf, &FrameError{
				Receiver: receiver,
				Err:      fmt.Errorf("%w: declared size %d below header size", ErrWrongMessageSize, size),
			}
		}
		if len(buf) < int(size) {
			// Incomplete frame; wait for more bytes.
			return frames, buf, nil
		}
		frames = append(frames, Frame{
			Receiver: receiver,
			Opcode:   opcode,
			Payload:  buf[HeaderSize:size],
		})
		buf = buf[size:]
	}
}

// Fixed is a Wayland wl_fixed_t: a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat64 converts a float64 to the nearest Fixed.
func FixedFromFloat64(f float64) Fixed {
	return Fixed(int32(math.Round(f * 256)))
}

// Float64 converts a Fixed back to a float64.
func (f Fixed) Float64() float64 {
	return float64(f) / 256
}

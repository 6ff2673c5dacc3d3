package wire

import (
	"fmt"
)

// FdSource is the FIFO the Parser pulls file descriptors from when it
// decodes an `fd` argument. An Endpoint's inbound fd queue implements
// this; tests can supply a simple slice-backed stub.
type FdSource interface {
	PopFd() (int, bool)
}

// Parser decodes the argument stream of a single message payload. It is
// not safe for concurrent use and is meant to be constructed fresh per
// frame.
type Parser struct {
	payload []byte
	pos     int
	fds     FdSource
}

// NewParser returns a Parser over payload, pulling fd arguments from
// fds (which may be nil if the message is statically known to carry
// none).
func NewParser(payload []byte, fds FdSource) *Parser {
	return &Parser{payload: payload, fds: fds}
}

// Remaining reports the number of unconsumed payload bytes.
func (p *Parser) Remaining() int {
	return len(p.payload) - p.pos
}

// Finish verifies every payload byte was consumed by argument decoding.
func (p *Parser) Finish() error {
	if p.pos != len(p.payload) {
		return fmt.Errorf("%w: %d unconsumed byte(s)", ErrTrailingBytes, len(p.payload)-p.pos)
	}
	return nil
}

func (p *Parser) word() (uint32, error) {
	if p.Remaining() < 4 {
		return 0, fmt.Errorf("%w: expected a 32-bit word, %d byte(s) remain", ErrMissingArgument, p.Remaining())
	}
	v := byteOrder.Uint32(p.payload[p.pos : p.pos+4])
	p.pos += 4
	return v, nil
}

// Uint decodes a `uint` argument.
func (p *Parser) Uint() (uint32, error) {
	return p.word()
}

// Int decodes an `int` or enum argument.
func (p *Parser) Int() (int32, error) {
	v, err := p.word()
	return int32(v), err
}

// Fixed decodes a `fixed` argument.
func (p *Parser) Fixed() (Fixed, error) {
	v, err := p.word()
	return Fixed(v), err
}

// Object decodes an `object` argument: a peer id, or 0 for null.
func (p *Parser) Object() (uint32, error) {
	return p.word()
}

// NewID decodes a `new_id` argument whose interface is statically known
// by the message signature: just the id word.
func (p *Parser) NewID() (uint32, error) {
	return p.word()
}

// NewIDDynamic decodes a `new_id` argument whose interface is named
// inline (the wl_registry.bind shape): an interface-name string, a
// version word, then the id word.
func (p *Parser) NewIDDynamic() (iface string, version uint32, id uint32, err error) {
	iface, _, err = p.stringArg(false)
	if err != nil {
		return "", 0, 0, err
	}
	version, err = p.word()
	if err != nil {
		return "", 0, 0, err
	}
	id, err = p.word()
	if err != nil {
		return "", 0, 0, err
	}
	return iface, version, id, nil
}

// String decodes a non-nullable `string` argument.
func (p *Parser) String() (string, error) {
	s, present, err := p.stringArg(true)
	if err != nil {
		return "", err
	}
	if !present {
		return "", fmt.Errorf("%w: got absent string in non-nullable position", ErrMissingArgument)
	}
	return s, nil
}

// NullableString decodes a `string` argument that may be absent
// (length word 0 encodes absence in nullable positions).
func (p *Parser) NullableString() (s string, present bool, err error) {
	return p.stringArg(true)
}

// allowAbsent controls whether a length of 0 is interpreted as an
// absent nullable string (true) or rejected with ErrMissingArgument
// (false). An empty, NUL-terminated string has a length of 1, so this
// only matters for length 0; NewIDDynamic's interface name is never
// nullable.
func (p *Parser) stringArg(allowAbsent bool) (s string, present bool, err error) {
	length, err := p.word()
	if err != nil {
		return "", false, err
	}
	if length == 0 {
		if allowAbsent {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: interface name string must not be absent", ErrMissingArgument)
	}

	padded := pad4(int(length))
	if p.Remaining() < padded {
		return "", false, fmt.Errorf("%w: string declared %d byte(s), %d remain", ErrMissingArgument, length, p.Remaining())
	}

	raw := p.payload[p.pos : p.pos+int(length)]
	if raw[len(raw)-1] != 0 {
		return "", false, ErrStringNotTerminated
	}
	for _, b := range p.payload[p.pos+int(length) : p.pos+padded] {
		if b != 0 {
			return "", false, ErrBadPadding
		}
	}
	p.pos += padded

	return string(raw[:len(raw)-1]), true, nil
}

// Array decodes an `array` argument: a length word followed by that
// many bytes, padded to a 4-byte boundary.
func (p *Parser) Array() ([]byte, error) {
	length, err := p.word()
	if err != nil {
		return nil, err
	}
	padded := pad4(int(length))
	if p.Remaining() < padded {
		return nil, fmt.Errorf("%w: array declared %d byte(s), %d remain", ErrMissingArgument, length, p.Remaining())
	}
	raw := p.payload[p.pos : p.pos+int(length)]
	for _, b := range p.payload[p.pos+int(length) : p.pos+padded] {
		if b != 0 {
			return nil, ErrBadPadding
		}
	}
	p.pos += padded

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// FD dequeues the next file descriptor for an `fd` argument, in the
// order the message's signature declares them.
func (p *Parser) FD() (int, error) {
	if p.fds == nil {
		return -1, fmt.Errorf("%w: no fd source attached to this frame", ErrMissingFd)
	}
	fd, ok := p.fds.PopFd()
	if !ok {
		return -1, ErrMissingFd
	}
	return fd, nil
}

// pad4 rounds n up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

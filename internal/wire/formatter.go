package wire

// Formatter builds the argument payload of one outgoing message. It is
// append-only: arguments are written in signature order and Finish
// prepends the header once the final size is known.
type Formatter struct {
	payload []byte
	fds     []int
}

// NewFormatter returns an empty Formatter, optionally pre-sizing its
// backing buffer to hint (a capacity hint, not a hard limit).
func NewFormatter(hint int) *Formatter {
	return &Formatter{payload: make([]byte, 0, hint)}
}

func (f *Formatter) putWord(v uint32) {
	var buf [4]byte
	byteOrder.PutUint32(buf[:], v)
	f.payload = append(f.payload, buf[:]...)
}

// PutUint appends a `uint` argument.
func (f *Formatter) PutUint(v uint32) { f.putWord(v) }

// PutInt appends an `int` or enum argument.
func (f *Formatter) PutInt(v int32) { f.putWord(uint32(v)) }

// PutFixed appends a `fixed` argument.
func (f *Formatter) PutFixed(v Fixed) { f.putWord(uint32(v)) }

// PutObject appends an `object` argument (0 for null).
func (f *Formatter) PutObject(id uint32) { f.putWord(id) }

// PutNewID appends a `new_id` argument whose interface is statically
// known by the message signature.
func (f *Formatter) PutNewID(id uint32) { f.putWord(id) }

// PutNewIDDynamic appends a `new_id` argument with an inline interface
// name, as used by wl_registry.bind.
func (f *Formatter) PutNewIDDynamic(iface string, version, id uint32) {
	f.putStringBytes(iface)
	f.putWord(version)
	f.putWord(id)
}

// PutString appends a non-nullable `string` argument.
func (f *Formatter) PutString(s string) {
	f.putStringBytes(s)
}

// PutNullableString appends a `string` argument that may be absent. An
// absent string is encoded as a bare zero length word and no bytes.
func (f *Formatter) PutNullableString(s string, present bool) {
	if !present {
		f.putWord(0)
		return
	}
	f.putStringBytes(s)
}

func (f *Formatter) putStringBytes(s string) {
	// Length includes the trailing NUL.
	length := len(s) + 1
	f.putWord(uint32(length))
	f.payload = append(f.payload, s...)
	f.payload = append(f.payload, 0)
	f.padBytes(pad4(length) - length)
}

// PutArray appends an `array` argument.
func (f *Formatter) PutArray(b []byte) {
	f.putWord(uint32(len(b)))
	f.payload = append(f.payload, b...)
	f.padBytes(pad4(len(b)) - len(b))
}

// padBytes appends n zero bytes.
func (f *Formatter) padBytes(n int) {
	for ; n > 0; n-- {
		f.payload = append(f.payload, 0)
	}
}

// PutFD queues a file descriptor to be sent as SCM_RIGHTS ancillary
// data alongside the message. Fds are not embedded in the word stream.
func (f *Formatter) PutFD(fd int) {
	f.fds = append(f.fds, fd)
}

// Finish renders the complete message: an 8-byte header followed by
// the accumulated payload. The returned payload is the argument bytes
// only (without the header), matching a Frame's Payload as returned by
// ExtractFrames, so callers that re-format a previously
// parsed Frame get a byte-identical round trip.
func (f *Formatter) Finish(receiver uint32, opcode uint16) (header [HeaderSize]byte, payload []byte, fds []int) {
	size := HeaderSize + len(f.payload)
	PutHeader(header[:], receiver, uint16(size), opcode)
	return header, f.payload, f.fds
}

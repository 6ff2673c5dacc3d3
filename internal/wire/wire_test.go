package wire

import (
	"bytes"
	"errors"
	"testing"
)

// fdStub is a tiny FIFO FdSource for tests.
type fdStub struct {
	fds []int
}

func (s *fdStub) PopFd() (int, bool) {
	if len(s.fds) == 0 {
		return 0, false
	}
	fd := s.fds[0]
	s.fds = s.fds[1:]
	return fd, true
}

func wordsToBytes(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		byteOrder.PutUint32(buf[i*4:i*4+4], w)
	}
	return buf
}

// TestExtractFrames_DisplayGetRegistry exercises scenario S1:
// display.get_registry(new_id = 2): words [1, (12<<16)|1, 2].
func TestExtractFrames_DisplayGetRegistry(t *testing.T) {
	buf := wordsToBytes(1, (12<<16)|1, 2)

	frames, rest, err := ExtractFrames(buf)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	f := frames[0]
	if f.Receiver != 1 {
		t.Errorf("Receiver = %d, want 1", f.Receiver)
	}
	if f.Opcode != 1 {
		t.Errorf("Opcode = %d, want 1", f.Opcode)
	}

	p := NewParser(f.Payload, nil)
	newID, err := p.NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if newID != 2 {
		t.Errorf("new_id = %d, want 2", newID)
	}
	if err := p.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

// TestExtractFrames_PartialFrame verifies that an incomplete frame is
// left in the remainder rather than returned or erroring.
func TestExtractFrames_PartialFrame(t *testing.T) {
	full := wordsToBytes(7, (16<<16)|3, 1, 2)
	partial := full[:10] // header complete, payload short by 6 bytes

	frames, rest, err := ExtractFrames(partial)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected 0 complete frames, got %d", len(frames))
	}
	if !bytes.Equal(rest, partial) {
		t.Error("expected the partial frame to be returned untouched as remainder")
	}
}

// TestExtractFrames_MalformedSize exercises scenario S6: a frame whose
// declared size is smaller than the header itself.
func TestExtractFrames_MalformedSize(t *testing.T) {
	buf := wordsToBytes(7, (4<<16)|0)

	_, _, err := ExtractFrames(buf)
	if !errors.Is(err, ErrWrongMessageSize) {
		t.Fatalf("expected ErrWrongMessageSize, got %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected a *FrameError in the chain, got %v", err)
	}
	if frameErr.Receiver != 7 {
		t.Errorf("FrameError.Receiver = %d, want 7", frameErr.Receiver)
	}
}

// TestExtractFrames_MultipleFrames verifies that several back-to-back
// frames in one buffer are all extracted, in order.
func TestExtractFrames_MultipleFrames(t *testing.T) {
	first := wordsToBytes(1, (12<<16)|1, 2)
	second := wordsToBytes(7, (8<<16)|0)
	buf := append(append([]byte{}, first...), second...)

	frames, rest, err := ExtractFrames(buf)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Receiver != 1 || frames[1].Receiver != 7 {
		t.Errorf("unexpected receivers: %+v", frames)
	}
}

func TestParser_StringRoundTrip(t *testing.T) {
	f := NewFormatter(32)
	f.PutString("wl_shm")
	_, payload, _ := f.Finish(1, 0)

	p := NewParser(payload, nil)
	s, err := p.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if s != "wl_shm" {
		t.Errorf("String = %q, want wl_shm", s)
	}
	if err := p.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestParser_NullableStringAbsent(t *testing.T) {
	f := NewFormatter(8)
	f.PutNullableString("", false)
	_, payload, _ := f.Finish(1, 0)

	p := NewParser(payload, nil)
	s, present, err := p.NullableString()
	if err != nil {
		t.Fatalf("NullableString: %v", err)
	}
	if present {
		t.Error("expected present=false for an absent nullable string")
	}
	if s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
}

func TestParser_NewIDDynamic(t *testing.T) {
	f := NewFormatter(32)
	f.PutNewIDDynamic("wl_shm", 1, 7)
	_, payload, _ := f.Finish(2, 0)

	p := NewParser(payload, nil)
	iface, version, id, err := p.NewIDDynamic()
	if err != nil {
		t.Fatalf("NewIDDynamic: %v", err)
	}
	if iface != "wl_shm" || version != 1 || id != 7 {
		t.Errorf("got (%q, %d, %d), want (wl_shm, 1, 7)", iface, version, id)
	}
}

func TestParser_ArrayRoundTrip(t *testing.T) {
	f := NewFormatter(32)
	data := []byte{1, 2, 3, 4, 5}
	f.PutArray(data)
	_, payload, _ := f.Finish(1, 0)

	p := NewParser(payload, nil)
	got, err := p.Array()
	if err != nil {
		t.Fatalf("Array: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Array = %v, want %v", got, data)
	}
}

func TestParser_FDConsumedInOrder(t *testing.T) {
	fds := &fdStub{fds: []int{11, 12}}
	p := NewParser(nil, fds)

	first, err := p.FD()
	if err != nil || first != 11 {
		t.Fatalf("first FD() = (%d, %v), want (11, nil)", first, err)
	}
	second, err := p.FD()
	if err != nil || second != 12 {
		t.Fatalf("second FD() = (%d, %v), want (12, nil)", second, err)
	}
}

func TestParser_MissingFD(t *testing.T) {
	p := NewParser(nil, &fdStub{})
	if _, err := p.FD(); !errors.Is(err, ErrMissingFd) {
		t.Fatalf("expected ErrMissingFd, got %v", err)
	}
}

func TestParser_TrailingBytes(t *testing.T) {
	p := NewParser(wordsToBytes(1, 2), nil)
	if _, err := p.Uint(); err != nil {
		t.Fatalf("Uint: %v", err)
	}
	if err := p.Finish(); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestParser_MissingArgument(t *testing.T) {
	p := NewParser(nil, nil)
	if _, err := p.Uint(); !errors.Is(err, ErrMissingArgument) {
		t.Fatalf("expected ErrMissingArgument, got %v", err)
	}
}

func TestFormatter_ParseRoundTripByteExact(t *testing.T) {
	f := NewFormatter(64)
	f.PutUint(5)
	f.PutString("wl_shm")
	f.PutInt(-1)
	header, payload, _ := f.Finish(1, 3)

	full := append(append([]byte{}, header[:]...), payload...)

	frames, rest, err := ExtractFrames(full)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d", len(rest))
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	// Re-format the parsed contents and confirm it reproduces the
	// original bytes exactly, as the round-trip law requires.
	p := NewParser(frames[0].Payload, nil)
	u, _ := p.Uint()
	s, _ := p.String()
	i, _ := p.Int()
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f2 := NewFormatter(64)
	f2.PutUint(u)
	f2.PutString(s)
	f2.PutInt(i)
	header2, payload2, _ := f2.Finish(frames[0].Receiver, frames[0].Opcode)
	full2 := append(append([]byte{}, header2[:]...), payload2...)

	if !bytes.Equal(full, full2) {
		t.Errorf("round trip mismatch:\n  original = % x\n  reformatted = % x", full, full2)
	}
}

func TestFixed_RoundTrip(t *testing.T) {
	v := FixedFromFloat64(3.5)
	if got := v.Float64(); got != 3.5 {
		t.Errorf("Float64() = %v, want 3.5", got)
	}
}

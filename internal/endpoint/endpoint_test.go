package endpoint

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/wlproxy/wlproxy/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConn is an in-memory Conn for tests: reads come from a
// preloaded queue of (bytes, fds) chunks, writes are recorded.
type fakeConn struct {
	reads   [][]byte
	readFds [][]int

	written    []byte
	writtenFds []int
}

func (c *fakeConn) ReadMessage(buf []byte) (int, []int, error) {
	if len(c.reads) == 0 {
		return 0, nil, io.EOF
	}
	chunk := c.reads[0]
	fds := c.readFds[0]
	c.reads = c.reads[1:]
	c.readFds = c.readFds[1:]
	n := copy(buf, chunk)
	return n, fds, nil
}

func (c *fakeConn) WriteMessage(buf []byte, fds []int) (int, error) {
	c.written = append(c.written, buf...)
	c.writtenFds = append(c.writtenFds, fds...)
	return len(buf), nil
}

func (c *fakeConn) Close() error { return nil }

func wordsToBytes(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		buf[i*4] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}
	return buf
}

func TestEndpoint_ReceiveExtractsFrame(t *testing.T) {
	conn := &fakeConn{
		reads:   [][]byte{wordsToBytes(1, (12<<16)|1, 2)},
		readFds: [][]int{nil},
	}
	e := New("client:1", RoleClient, conn, 0, testLogger())

	frames, err := e.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Receiver != 1 || frames[0].Opcode != 1 {
		t.Errorf("unexpected frame: %+v", frames[0])
	}
}

func TestEndpoint_ReceivePartialThenComplete(t *testing.T) {
	full := wordsToBytes(7, (12<<16)|0, 9)
	conn := &fakeConn{
		reads:   [][]byte{full[:6], full[6:]},
		readFds: [][]int{nil, nil},
	}
	e := New("server", RoleServer, conn, 0, testLogger())

	frames, err := e.Receive()
	if err != nil {
		t.Fatalf("Receive (1): %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected 0 frames from a partial header, got %d", len(frames))
	}

	frames, err = e.Receive()
	if err != nil {
		t.Fatalf("Receive (2): %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame once complete, got %d", len(frames))
	}
}

func TestEndpoint_ServerRoleAllocatesLocalRange(t *testing.T) {
	e := New("server", RoleServer, &fakeConn{}, 0, testLogger())
	id, err := e.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != 1 {
		t.Errorf("first server-endpoint id = %d, want 1", id)
	}
	if id > LocalRangeMax {
		t.Errorf("server endpoint allocated outside local range: %d", id)
	}
}

func TestEndpoint_ClientRoleAllocatesReservedRange(t *testing.T) {
	e := New("client:1", RoleClient, &fakeConn{}, 0, testLogger())
	id, err := e.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id < ReservedRangeMin {
		t.Errorf("client endpoint allocated outside reserved range: %d", id)
	}
}

func TestEndpoint_BindThenLookup(t *testing.T) {
	e := New("server", RoleServer, &fakeConn{}, 0, testLogger())
	obj := "an object"
	if err := e.Bind(1, obj); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got, ok := e.Lookup(1)
	if !ok || got != obj {
		t.Errorf("Lookup = (%v, %v), want (%v, true)", got, ok, obj)
	}
}

func TestEndpoint_BindDuplicateFails(t *testing.T) {
	e := New("server", RoleServer, &fakeConn{}, 0, testLogger())
	if err := e.Bind(1, "a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := e.Bind(1, "b"); err == nil {
		t.Error("expected duplicate Bind to fail")
	}
}

func TestEndpoint_ReleaseIsIdempotent(t *testing.T) {
	e := New("server", RoleServer, &fakeConn{}, 0, testLogger())
	e.Release(42) // no prior bind
	if err := e.Bind(42, "a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	e.Release(42)
	e.Release(42)
	if _, ok := e.Lookup(42); ok {
		t.Error("expected id to be released")
	}
}

func TestEndpoint_EnqueueFlushRoundTrip(t *testing.T) {
	conn := &fakeConn{}
	e := New("server", RoleServer, conn, 0, testLogger())

	f := wire.NewFormatter(16)
	f.PutUint(42)
	header, payload, _ := f.Finish(1, 0)

	e.Enqueue(header, payload, nil)
	if !e.FlushScheduled() {
		t.Fatal("expected a scheduled flush after Enqueue")
	}
	if e.FlushScheduled() {
		t.Error("FlushScheduled should be single-shot")
	}

	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if e.OutboundLen() != 0 {
		t.Errorf("expected outbound buffer to be drained, has %d bytes", e.OutboundLen())
	}
	if len(conn.written) != wire.HeaderSize+4 {
		t.Errorf("written %d bytes, want %d", len(conn.written), wire.HeaderSize+4)
	}
}

func TestEndpoint_EnqueueSignalsHighWaterMark(t *testing.T) {
	conn := &fakeConn{}
	e := New("server", RoleServer, conn, 8, testLogger())

	f := wire.NewFormatter(16)
	f.PutUint(42)
	header, payload, _ := f.Finish(1, 0)

	over := e.Enqueue(header, payload, nil)
	if !over {
		t.Error("expected Enqueue to signal over high-water mark")
	}
}

func TestEndpoint_FdQueueFIFO(t *testing.T) {
	conn := &fakeConn{
		reads:   [][]byte{{}},
		readFds: [][]int{{11, 12}},
	}
	e := New("client:1", RoleClient, conn, 0, testLogger())
	if _, err := e.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	first, ok := e.PopFd()
	if !ok || first != 11 {
		t.Fatalf("first PopFd = (%d, %v), want (11, true)", first, ok)
	}
	second, ok := e.PopFd()
	if !ok || second != 12 {
		t.Fatalf("second PopFd = (%d, %v), want (12, true)", second, ok)
	}
}

package registry

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeConn struct{}

func (fakeConn) ReadMessage(buf []byte) (int, []int, error) { return 0, nil, io.EOF }
func (fakeConn) WriteMessage(buf []byte, fds []int) (int, error) { return len(buf), nil }
func (fakeConn) Close() error { return nil }

// fakeObject is a minimal registry.Object used to exercise dispatch
// without depending on a concrete interface from pkg/wlproto.
type fakeObject struct {
	core       *object.Core
	onRequest  func(d *Dispatcher, opcode uint16, p *wire.Parser) error
	onEvent    func(d *Dispatcher, opcode uint16, p *wire.Parser) error
	deleted    bool
}

func newFakeObject(iface string) *fakeObject {
	o := &fakeObject{}
	o.core = object.NewCore(o, iface, 1)
	return o
}

func (o *fakeObject) Core() *object.Core { return o.core }
func (o *fakeObject) HandleRequest(d *Dispatcher, opcode uint16, p *wire.Parser) error {
	if o.onRequest != nil {
		return o.onRequest(d, opcode, p)
	}
	return nil
}
func (o *fakeObject) HandleEvent(d *Dispatcher, opcode uint16, p *wire.Parser) error {
	if o.onEvent != nil {
		return o.onEvent(d, opcode, p)
	}
	return nil
}
func (o *fakeObject) DeleteID()                         { o.deleted = true }
func (o *fakeObject) RequestName(opcode uint16) string  { return "request" }
func (o *fakeObject) EventName(opcode uint16) string    { return "event" }

func newDispatcher(t *testing.T) (*Dispatcher, *fakeObject) {
	t.Helper()
	local := endpoint.New("client:1", endpoint.RoleClient, fakeConn{}, 0, testLogger())
	peer := endpoint.New("server", endpoint.RoleServer, fakeConn{}, 0, testLogger())

	obj := newFakeObject("wl_display")
	if err := local.Bind(1, obj); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	return &Dispatcher{Local: local, Peer: peer, Table: NewTable()}, obj
}

func TestDispatcher_Dispatch_InvokesHandleRequest(t *testing.T) {
	d, obj := newDispatcher(t)
	invoked := false
	obj.onRequest = func(_ *Dispatcher, opcode uint16, p *wire.Parser) error {
		invoked = true
		if opcode != 3 {
			t.Errorf("opcode = %d, want 3", opcode)
		}
		return nil
	}

	frame := wire.Frame{Receiver: 1, Opcode: 3, Payload: nil}
	if err := d.Dispatch(DirectionRequest, frame); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !invoked {
		t.Error("expected HandleRequest to be invoked")
	}
}

func TestDispatcher_Dispatch_UnknownReceiverIsFatal(t *testing.T) {
	d, _ := newDispatcher(t)
	frame := wire.Frame{Receiver: 99, Opcode: 0}

	err := d.Dispatch(DirectionRequest, frame)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected a fatal error for an unknown receiver, got %v", err)
	}
}

func TestDispatcher_Dispatch_ReentrantHandlerIsNonFatal(t *testing.T) {
	d, obj := newDispatcher(t)

	obj.onRequest = func(inner *Dispatcher, opcode uint16, p *wire.Parser) error {
		frame := wire.Frame{Receiver: 1, Opcode: opcode}
		return inner.Dispatch(DirectionRequest, frame)
	}

	frame := wire.Frame{Receiver: 1, Opcode: 0}
	err := d.Dispatch(DirectionRequest, frame)
	if err == nil {
		t.Fatal("expected an error from the re-entrant dispatch")
	}
	if IsFatal(err) {
		t.Error("HandlerBorrowed must not be treated as a fatal, connection-tearing error")
	}
	if !errors.Is(err, object.ErrHandlerBorrowed) {
		t.Errorf("expected ErrHandlerBorrowed in the chain, got %v", err)
	}
}

func TestDispatcher_Dispatch_CodecErrorIsFatal(t *testing.T) {
	d, obj := newDispatcher(t)
	obj.onRequest = func(*Dispatcher, uint16, *wire.Parser) error {
		return wire.ErrMissingArgument
	}

	frame := wire.Frame{Receiver: 1, Opcode: 0}
	err := d.Dispatch(DirectionRequest, frame)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected a codec decode failure to be fatal, got %v", err)
	}
	if !errors.Is(err, wire.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument in the chain, got %v", err)
	}
}

func TestDispatcher_Dispatch_TrailingBytesIsFatal(t *testing.T) {
	d, obj := newDispatcher(t)
	obj.onRequest = func(*Dispatcher, uint16, *wire.Parser) error { return nil }

	frame := wire.Frame{Receiver: 1, Opcode: 0, Payload: []byte{0, 0, 0, 0}}
	err := d.Dispatch(DirectionRequest, frame)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected unconsumed trailing bytes to be fatal, got %v", err)
	}
	if !errors.Is(err, wire.ErrTrailingBytes) {
		t.Errorf("expected ErrTrailingBytes in the chain, got %v", err)
	}
}

func TestTable_LookupByInterfaceName(t *testing.T) {
	table := NewTable(&Descriptor{
		Interface: "wl_shm",
		Version:   1,
		New:       func(version uint32) Object { return newFakeObject("wl_shm") },
	})

	d, ok := table.Lookup("wl_shm")
	if !ok {
		t.Fatal("expected to find wl_shm in the table")
	}
	if d.Interface != "wl_shm" {
		t.Errorf("Interface = %q, want wl_shm", d.Interface)
	}

	if _, ok := table.Lookup("wl_surface"); ok {
		t.Error("expected wl_surface to be absent from the table")
	}
}

func TestDispatcher_PeerIDAndLocalID(t *testing.T) {
	d, obj := newDispatcher(t)
	obj.core.SetClientID(7, d.Local)
	obj.core.SetServerID(9, d.Peer)

	if got := d.LocalID(obj); got != 7 {
		t.Errorf("LocalID = %d, want 7", got)
	}
	if got := d.PeerID(obj); got != 9 {
		t.Errorf("PeerID = %d, want 9", got)
	}
}

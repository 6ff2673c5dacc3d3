// Package registry holds the interface descriptor table and the
// dispatch algorithm that every inbound frame goes through: resolve
// the receiver, borrow its handler, decode arguments against the
// interface's declared signature, and invoke either a user handler or
// the default forwarding behavior.
package registry

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// Direction distinguishes a client->server request from a
// server->client event; both go through the same dispatch shape but
// consult different sides of an object's forwarding flags.
type Direction int

const (
	DirectionRequest Direction = iota
	DirectionEvent
)

// Object is the capability set every concrete interface type
// (wl_display, wl_shm, zwlr_data_control_device_v1, ...) implements so
// the registry can dispatch into it without a type switch per
// interface.
type Object interface {
	// Core returns the shared identity/handler-slot state.
	Core() *object.Core
	// HandleRequest decodes and dispatches one client->server message.
	HandleRequest(dispatch *Dispatcher, opcode uint16, p *wire.Parser) error
	// HandleEvent decodes and dispatches one server->client message.
	HandleEvent(dispatch *Dispatcher, opcode uint16, p *wire.Parser) error
	// DeleteID is invoked once the id backing this object has been
	// released, as a destructor hook.
	DeleteID()
	// RequestName returns a human-readable name for the given request
	// opcode, used in logging and error messages.
	RequestName(opcode uint16) string
	// EventName is the event-side equivalent of RequestName.
	EventName(opcode uint16) string
}

// Descriptor is the static metadata for one interface, used for
// lookup and reflective naming. The descriptor table is keyed by an
// xxhash of the interface name rather than the string itself, since
// dispatch resolves an already-bound object by id, not by interface
// name — the descriptor table exists for bind-time construction
// (wl_registry.bind, and any request whose new_id names an interface
// inline) and logging.
type Descriptor struct {
	Interface string
	Version   uint32
	// New constructs a fresh, empty instance of this interface. The
	// caller is responsible for installing the id.
	New func(version uint32) Object
}

// Table is the xxhash-indexed interface descriptor table, built once
// at startup from every interface the proxy understands.
type Table struct {
	byHash map[uint64]*Descriptor
}

// NewTable builds a Table from the given descriptors.
func NewTable(descriptors ...*Descriptor) *Table {
	t := &Table{byHash: make(map[uint64]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		t.byHash[hashInterfaceName(d.Interface)] = d
	}
	return t
}

// Lookup resolves an interface name to its descriptor.
func (t *Table) Lookup(iface string) (*Descriptor, bool) {
	d, ok := t.byHash[hashInterfaceName(iface)]
	return d, ok
}

func hashInterfaceName(iface string) uint64 {
	return xxhash.Sum64String(iface)
}

// Dispatcher runs the five-step dispatch algorithm against one
// endpoint, with a pointer to the opposite endpoint for default
// forwarding. It is constructed per client session (one Dispatcher per
// direction: client->server and server->client share the same type
// with Local/Peer swapped).
type Dispatcher struct {
	Local *endpoint.Endpoint
	Peer  *endpoint.Endpoint
	Table *Table
}

// ErrFatal wraps a connection-level failure (NoClientObject,
// NoServerObject) that must tear down the endpoint rather than merely
// drop the offending message.
type ErrFatal struct {
	Err error
}

func (e *ErrFatal) Error() string { return e.Err.Error() }
func (e *ErrFatal) Unwrap() error { return e.Err }

// codecErrorSentinels are the wire package's decode-failure sentinels.
// Any of these reaching Dispatch means the frame's argument payload
// didn't match the shape its opcode declares - the connection's byte
// stream is no longer trustworthy, so these are always fatal rather
// than the default "log and drop" treatment for other handler errors.
var codecErrorSentinels = [...]error{
	wire.ErrWrongMessageSize,
	wire.ErrTrailingBytes,
	wire.ErrMissingArgument,
	wire.ErrMissingFd,
	wire.ErrStringNotTerminated,
	wire.ErrBadPadding,
}

func isCodecError(err error) bool {
	for _, sentinel := range codecErrorSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Dispatch runs steps 1-2 of the algorithm (resolve receiver, borrow
// handler) and hands off to the object's HandleRequest/HandleEvent for
// steps 3-5. A HandlerBorrowed failure is non-fatal: it is returned as
// a plain error for the caller to log and continue. A missing receiver
// id, and any wire codec error raised while decoding an inbound
// frame's arguments or finishing its parse (WrongMessageSize,
// TrailingBytes, MissingArgument, MissingFd, ...), are fatal and
// returned wrapped in *ErrFatal: the connection's byte stream can no
// longer be trusted to be frame-aligned past that point.
func (d *Dispatcher) Dispatch(dir Direction, frame wire.Frame) error {
	obj, ok := d.Local.Lookup(frame.Receiver)
	if !ok {
		notFound := endpoint.ErrNoClientObject
		if d.Local.Role == endpoint.RoleServer {
			notFound = endpoint.ErrNoServerObject
		}
		return &ErrFatal{Err: fmt.Errorf("%w: id %d", notFound, frame.Receiver)}
	}

	ro, ok := obj.(Object)
	if !ok {
		return &ErrFatal{Err: fmt.Errorf("id %d is not a registered interface object", frame.Receiver)}
	}

	guard, _, err := ro.Core().Handler.Borrow()
	if err != nil {
		return fmt.Errorf("dispatch on %s id %d: %w", ro.Core().Interface, frame.Receiver, err)
	}
	defer guard.Release()

	p := wire.NewParser(frame.Payload, d.Local)

	var dispatchErr error
	if dir == DirectionRequest {
		dispatchErr = ro.HandleRequest(d, frame.Opcode, p)
	} else {
		dispatchErr = ro.HandleEvent(d, frame.Opcode, p)
	}
	if dispatchErr != nil {
		wrapped := fmt.Errorf("dispatch on %s id %d: %w", ro.Core().Interface, frame.Receiver, dispatchErr)
		if isCodecError(dispatchErr) {
			return &ErrFatal{Err: wrapped}
		}
		return wrapped
	}
	if err := p.Finish(); err != nil {
		wrapped := fmt.Errorf("dispatch on %s id %d: %w", ro.Core().Interface, frame.Receiver, err)
		if isCodecError(err) {
			return &ErrFatal{Err: wrapped}
		}
		return wrapped
	}
	return nil
}

// IsFatal reports whether err (or one of its wrapped causes) is a
// connection-terminating dispatch failure.
func IsFatal(err error) bool {
	var fatal *ErrFatal
	return errors.As(err, &fatal)
}

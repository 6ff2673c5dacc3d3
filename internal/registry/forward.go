package registry

import (
	"errors"
	"fmt"

	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// ErrUnresolvedObject is returned when an object/new_id argument names
// an id not bound on the resolving endpoint's table.
var ErrUnresolvedObject = errors.New("registry: unresolved object argument")

// LocalID returns obj's id on this Dispatcher's Local endpoint: the
// server id when Local is the server endpoint, the client id when
// Local is the client endpoint.
func (d *Dispatcher) LocalID(obj Object) uint32 {
	return sideID(obj.Core(), d.Local.Role)
}

// PeerID returns obj's id on this Dispatcher's Peer endpoint, the
// opposite of LocalID.
func (d *Dispatcher) PeerID(obj Object) uint32 {
	return sideID(obj.Core(), peerRole(d.Local.Role))
}

func peerRole(r endpoint.Role) endpoint.Role {
	if r == endpoint.RoleServer {
		return endpoint.RoleClient
	}
	return endpoint.RoleServer
}

// sideID returns the id an object carries on the endpoint playing
// role: the server endpoint always holds the "server id", the client
// endpoint always holds the "client id", regardless of which endpoint
// is Local vs Peer for a given Dispatcher.
func sideID(c *object.Core, role endpoint.Role) uint32 {
	if role == endpoint.RoleServer {
		return c.ServerID()
	}
	return c.ClientID()
}

// ResolveObjectArg looks up a wire-level object id on the Local
// endpoint's table and verifies it is bound to the expected interface,
// returning the typed Object for the caller to operate on. A zero id
// denotes a null object reference and is returned as (nil, true, nil).
func (d *Dispatcher) ResolveObjectArg(id uint32, wantInterface string) (Object, bool, error) {
	if id == 0 {
		return nil, true, nil
	}
	raw, ok := d.Local.Lookup(id)
	if !ok {
		return nil, false, fmt.Errorf("%w: id %d not bound", ErrUnresolvedObject, id)
	}
	obj, ok := raw.(Object)
	if !ok {
		return nil, false, fmt.Errorf("%w: id %d is not a registry object", ErrUnresolvedObject, id)
	}
	if wantInterface != "" && obj.Core().Interface != wantInterface {
		return nil, false, fmt.Errorf("%w: id %d is %s, want %s", object.ErrWrongObjectType, id, obj.Core().Interface, wantInterface)
	}
	return obj, true, nil
}

// EnqueueOnPeer finishes a Formatter for receiverID/opcode and enqueues
// it on the Peer endpoint, returning whether the peer's outbound
// buffer is now over its configured high-water mark.
func (d *Dispatcher) EnqueueOnPeer(f *wire.Formatter, receiverID uint32, opcode uint16) bool {
	header, payload, fds := f.Finish(receiverID, opcode)
	return d.Peer.Enqueue(header, payload, fds)
}

// EnqueueOnLocal is the Local-endpoint equivalent of EnqueueOnPeer,
// used when a handler originates a message back to the side it was
// dispatched from (e.g. an immediate error event).
func (d *Dispatcher) EnqueueOnLocal(f *wire.Formatter, receiverID uint32, opcode uint16) bool {
	header, payload, fds := f.Finish(receiverID, opcode)
	return d.Local.Enqueue(header, payload, fds)
}

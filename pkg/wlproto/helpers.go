package wlproto

import (
	"fmt"

	"github.com/wlproxy/wlproxy/internal/domain/lifecycle"
	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// unknownOpcode builds the uniform error every HandleRequest/HandleEvent
// switch falls through to on an opcode its interface doesn't declare.
func unknownOpcode(iface string, opcode uint16) error {
	return fmt.Errorf("%s: unknown opcode %d", iface, opcode)
}

// forwardRequest re-encodes a client request onto the server endpoint
// at the receiving object's server id, honoring ForwardToServer. args
// writes the argument payload in wire order.
func forwardRequest(d *registry.Dispatcher, obj registry.Object, opcode uint16, args func(*wire.Formatter)) error {
	core := obj.Core()
	if !core.ForwardToServer {
		return nil
	}
	if core.ServerID() == 0 {
		return object.New(object.KindReceiverNoServerID, core.Interface, "", nil)
	}
	f := wire.NewFormatter(16)
	if args != nil {
		args(f)
	}
	d.EnqueueOnPeer(f, core.ServerID(), opcode)
	return nil
}

// forwardEvent is forwardRequest's event-direction counterpart: it
// re-encodes a server event onto the client endpoint at the object's
// client id, honoring ForwardToClient.
func forwardEvent(d *registry.Dispatcher, obj registry.Object, opcode uint16, args func(*wire.Formatter)) error {
	core := obj.Core()
	if !core.ForwardToClient {
		return nil
	}
	if core.ClientID() == 0 {
		return object.New(object.KindReceiverNoClientID, core.Interface, "", nil)
	}
	f := wire.NewFormatter(16)
	if args != nil {
		args(f)
	}
	d.EnqueueOnPeer(f, core.ClientID(), opcode)
	return nil
}

// peerIDOrZero returns obj's id on the Dispatcher's peer endpoint, or 0
// (the wire encoding of a null object reference) when obj is nil.
func peerIDOrZero(d *registry.Dispatcher, obj registry.Object) uint32 {
	if obj == nil {
		return 0
	}
	return d.PeerID(obj)
}

// crossClientBlocked implements the dispatch algorithm's cross-client
// leakage protection: an event argument object that has no client id
// in this session's table cannot be described to this session's
// client, and must be silently dropped rather than sent with a
// dangling or zero id. In the per-client-session endpoint pairing this
// proxy uses, that arises from an object released (delete_id'd)
// between the server emitting it and this event referencing it, not
// from a second, distinct client sharing the connection — the same
// shape the source implementation's multi-client mode guards against.
func crossClientBlocked(self *object.Core, arg registry.Object) bool {
	if arg == nil {
		return false
	}
	blocked := self.ClientID() != 0 && arg.Core().ClientID() == 0
	if blocked && CrossClientDropHook != nil {
		CrossClientDropHook()
	}
	return blocked
}

// CrossClientDropHook, when set, is invoked once per event argument
// crossClientBlocked drops. The owning session wires this to a counter;
// left nil, dropping stays silent. A package-level hook keeps every
// interface type in this package free of a telemetry dependency.
var CrossClientDropHook func()

// objectReleaser adapts one object's Core and its two owning endpoints
// to lifecycle.Releaser. ForwardDeleteIDToClient is a no-op here
// because wl_display.HandleDeleteID already forwards the delete_id
// event itself, generically, for every object; this releaser only
// needs to perform the table bookkeeping half of DeleteIDReceived.
type objectReleaser struct {
	core   *object.Core
	server *endpoint.Endpoint
	client *endpoint.Endpoint
}

func (r objectReleaser) ReleaseServerTableEntry() {
	if r.server == nil {
		return
	}
	if id := r.core.ServerID(); id != 0 {
		r.server.Release(id)
		r.core.ReleaseServerID()
	}
}

func (r objectReleaser) ReleaseClientTableEntry() {
	if r.client == nil {
		return
	}
	if id := r.core.ClientID(); id != 0 {
		r.client.Release(id)
		r.core.ReleaseClientID()
	}
}

func (r objectReleaser) ForwardDeleteIDToClient() error { return nil }

// lifecycleObject is embedded by every concrete object type except
// wl_display itself (which is never destroyed mid-session). It bundles
// the object.Core every registry.Object needs with the
// lifecycle.Controller driving its destroy/delete_id state machine, so
// each concrete type only has to write its own HandleRequest/HandleEvent
// switch rather than re-deriving id bookkeeping and releaseOnDeleteID.
type lifecycleObject struct {
	core *object.Core
	lc   *lifecycle.Controller
}

// init constructs the embedded Core and Controller. owner is the
// concrete type embedding this lifecycleObject, passed through so id
// generation binds the right value into the endpoint tables.
func (o *lifecycleObject) init(owner any, iface string, version uint32) {
	o.core = object.NewCore(owner, iface, version)
	o.lc = lifecycle.NewController()
}

// Core implements registry.Object.
func (o *lifecycleObject) Core() *object.Core { return o.core }

// DeleteID implements registry.Object's destructor hook. It is a no-op
// here: release happens through releaseOnDeleteID, invoked by
// wl_display once the peer's delete_id notification arrives, not
// through this reflective hook (kept for interface conformance and for
// user handlers that want to observe final teardown).
func (o *lifecycleObject) DeleteID() {}

// releaseOnDeleteID implements the releaseTarget interface wl_display
// dispatches to once it has looked up the object named in a delete_id
// event on its own (server-side) table.
func (o *lifecycleObject) releaseOnDeleteID(server, client *endpoint.Endpoint) {
	if err := o.lc.DeleteIDReceived(objectReleaser{core: o.core, server: server, client: client}); err != nil {
		// Already released, or delete_id arrived outside
		// PendingDeleteId (e.g. the object was never explicitly
		// destroyed). Table state is left untouched either way.
		_ = err
	}
}

// handleDestroyRequest runs the common client->server destroy
// handshake: transition the lifecycle state, mark the Core destroyed,
// forward the destroy request to the server, and - once that forward
// actually goes out - advance to PendingDeleteId so the later
// delete_id the server sends back is accepted by releaseOnDeleteID
// instead of being rejected and silently leaking the table entries.
// obj is the concrete type (for forwardRequest's ForwardToServer/
// ServerID checks).
func handleDestroyRequest(dispatch *registry.Dispatcher, obj registry.Object, core *object.Core, lc *lifecycle.Controller, opcode uint16) error {
	if err := lc.ClientDestroy(); err != nil {
		return fmt.Errorf("%s: destroy: %w", core.Interface, err)
	}
	core.HandleClientDestroy()
	if err := forwardRequest(dispatch, obj, opcode, nil); err != nil {
		return err
	}
	if core.ForwardToServer {
		if err := lc.ServerDestroyEmitted(); err != nil {
			return fmt.Errorf("%s: destroy: %w", core.Interface, err)
		}
		core.HandleServerDestroy()
	}
	return nil
}

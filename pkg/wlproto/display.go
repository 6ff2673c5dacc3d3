package wlproto

import (
	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_display request opcodes.
const (
	displayOpSync        uint16 = 0
	displayOpGetRegistry uint16 = 1
)

// wl_display event opcodes.
const (
	displayEvError    uint16 = 0
	displayEvDeleteID uint16 = 1
)

// DisplayHandler customizes Display's default behavior. Handlers that
// don't care about a given message embed DefaultDisplayHandler and
// override only what they need.
type DisplayHandler interface {
	HandleSync(d *registry.Dispatcher, disp *Display, callback *Callback) error
	HandleGetRegistry(d *registry.Dispatcher, disp *Display, reg *Registry) error
	HandleDeleteID(d *registry.Dispatcher, disp *Display, id uint32) error
}

// DefaultDisplayHandler forwards everything unchanged; embed it to
// override a single message.
type DefaultDisplayHandler struct{}

func (DefaultDisplayHandler) HandleSync(d *registry.Dispatcher, disp *Display, callback *Callback) error {
	if err := callback.core.GenerateServerID(d.Peer); err != nil {
		return err
	}
	return forwardRequest(d, disp, displayOpSync, func(f *wire.Formatter) {
		f.PutNewID(callback.core.ServerID())
	})
}

func (DefaultDisplayHandler) HandleGetRegistry(d *registry.Dispatcher, disp *Display, reg *Registry) error {
	if err := reg.core.GenerateServerID(d.Peer); err != nil {
		return err
	}
	return forwardRequest(d, disp, displayOpGetRegistry, func(f *wire.Formatter) {
		f.PutNewID(reg.core.ServerID())
	})
}

func (DefaultDisplayHandler) HandleDeleteID(d *registry.Dispatcher, disp *Display, id uint32) error {
	if obj, ok := d.Local.Lookup(id); ok {
		if o, ok := obj.(releaseTarget); ok {
			o.releaseOnDeleteID(d.Local, d.Peer)
		}
	}
	return forwardEvent(d, disp, displayEvDeleteID, func(f *wire.Formatter) { f.PutUint(id) })
}

// SendError writes a wl_display.error event directly onto ep, bypassing
// any Display instance. This is the one message the core originates on
// its own authority rather than relaying (§6, §7): dispatch failures
// that are fatal to a connection are reported this way before the
// endpoint is torn down, since by that point the object graph may be in
// no state to route through a live Display/Dispatcher pair.
func SendError(ep *endpoint.Endpoint, objectID uint32, code uint32, message string) error {
	f := wire.NewFormatter(32)
	f.PutUint(objectID)
	f.PutUint(code)
	f.PutString(message)
	header, payload, fds := f.Finish(1, displayEvError)
	ep.Enqueue(header, payload, fds)
	return ep.Flush()
}

// releaseTarget is implemented by objects whose lifecycle.Controller
// needs to run its DeleteIDReceived transition once wl_display reports
// their id freed. server/client are this event dispatch's Local/Peer
// endpoints (delete_id always arrives server->client, so Local is
// always the server endpoint here and Peer the client endpoint).
type releaseTarget interface {
	releaseOnDeleteID(server, client *endpoint.Endpoint)
}

// Display is the well-known id-1 object every endpoint pair starts
// with: the root of the sync/get_registry handshake and the source of
// delete_id notifications.
type Display struct {
	core        *object.Core
	newRegistry func() *Registry
	Handler     DisplayHandler
}

// NewDisplay constructs a Display. newRegistry is called once per
// get_registry request to produce a Registry already wired for this
// session: its bind descriptor table, its globalmap.Mapper (via
// AttachMapper) and any synthetic globals the session configures. A
// Registry can't be built correctly without that session context, so
// Display only holds a factory rather than constructing one itself.
//
// The caller is responsible for installing the returned Display at id
// 1 on both endpoint tables before any other message can be exchanged.
func NewDisplay(newRegistry func() *Registry) *Display {
	d := &Display{newRegistry: newRegistry}
	d.core = object.NewCore(d, "wl_display", 1)
	return d
}

// Core implements registry.Object.
func (d *Display) Core() *object.Core { return d.core }

func (d *Display) handler() DisplayHandler {
	if d.Handler != nil {
		return d.Handler
	}
	return DefaultDisplayHandler{}
}

// HandleRequest implements registry.Object.
func (d *Display) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case displayOpSync:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		cb := NewCallback()
		if err := cb.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		return d.handler().HandleSync(dispatch, d, cb)
	case displayOpGetRegistry:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		reg := d.newRegistry()
		if err := reg.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		return d.handler().HandleGetRegistry(dispatch, d, reg)
	default:
		return unknownOpcode(d.core.Interface, opcode)
	}
}

// HandleEvent implements registry.Object.
func (d *Display) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case displayEvError:
		objID, err := p.Uint()
		if err != nil {
			return err
		}
		code, err := p.Uint()
		if err != nil {
			return err
		}
		message, err := p.String()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, d, displayEvError, func(f *wire.Formatter) {
			f.PutUint(objID)
			f.PutUint(code)
			f.PutString(message)
		})
	case displayEvDeleteID:
		id, err := p.Uint()
		if err != nil {
			return err
		}
		return d.handler().HandleDeleteID(dispatch, d, id)
	default:
		return unknownOpcode(d.core.Interface, opcode)
	}
}

// DeleteID implements registry.Object; wl_display itself is never
// deleted mid-session, so this is unreachable in normal operation.
func (d *Display) DeleteID() {}

func (d *Display) RequestName(opcode uint16) string {
	switch opcode {
	case displayOpSync:
		return "sync"
	case displayOpGetRegistry:
		return "get_registry"
	default:
		return "unknown"
	}
}

func (d *Display) EventName(opcode uint16) string {
	switch opcode {
	case displayEvError:
		return "error"
	case displayEvDeleteID:
		return "delete_id"
	default:
		return "unknown"
	}
}

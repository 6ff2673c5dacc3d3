package wlproto

import (
	"log/slog"

	"github.com/wlproxy/wlproxy/internal/domain/globalmap"
	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/object"
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_registry request opcodes.
const (
	registryOpBind uint16 = 0
)

// wl_registry event opcodes.
const (
	registryEvGlobal       uint16 = 0
	registryEvGlobalRemove uint16 = 1
)

// RegistryHandler lets a host program observe a client's bind after
// the proxy (via globalmap.Mapper) has already resolved whether it
// forwards upstream or is served locally.
type RegistryHandler interface {
	HandleBind(d *registry.Dispatcher, reg *Registry, clientName uint32, bound registry.Object) error
}

// DefaultRegistryHandler accepts the bind as the Mapper already
// resolved it, taking no further action.
type DefaultRegistryHandler struct{}

func (DefaultRegistryHandler) HandleBind(*registry.Dispatcher, *Registry, uint32, registry.Object) error {
	return nil
}

// Registry is the per-client wl_registry instance: one is created by
// every wl_display.get_registry request, and it owns the
// globalmap.Mapper mediating that client's view of the server's
// globals (§4.5).
type Registry struct {
	core    *object.Core
	table   *registry.Table
	Mapper  *globalmap.Mapper
	Handler RegistryHandler

	// Filter, when set, is consulted for every server-advertised
	// global before Mapper decides to forward or ignore it (§4.5,
	// scenario S2). Left nil, every global is forwarded: declarative
	// filtering is an opt-in layer on top of the programmatic Mapper
	// API, never a requirement for it.
	Filter *globalmap.Filter

	serverEndpoint *endpoint.Endpoint
	clientEndpoint *endpoint.Endpoint
}

// NewRegistry constructs a Registry against the shared interface
// descriptor table used to resolve bind requests by name. Mapper is
// nil until the owning session calls AttachMapper immediately after
// construction; the Mapper needs a RegistryEvents implementation that
// can only be built once this Registry exists, so it can't be passed
// into this constructor.
func NewRegistry(table *registry.Table) *Registry {
	r := &Registry{table: table}
	r.core = object.NewCore(r, "wl_registry", 1)
	return r
}

// AttachMapper builds this Registry's globalmap.Mapper, wiring it to
// emit through this object, and records the two endpoints the session
// pairs it with. Called once by the session right after NewRegistry,
// before any frame referencing this registry is dispatched.
func (r *Registry) AttachMapper(server, client *endpoint.Endpoint, logger *slog.Logger) {
	r.serverEndpoint = server
	r.clientEndpoint = client
	r.Mapper = globalmap.NewMapper(registryEventsAdapter{r}, logger)
}

// Core implements registry.Object.
func (r *Registry) Core() *object.Core { return r.core }

// DeleteID implements registry.Object; wl_registry is torn down with
// its owning client endpoint, never independently destroyed.
func (r *Registry) DeleteID() {}

func (r *Registry) handler() RegistryHandler {
	if r.Handler != nil {
		return r.Handler
	}
	return DefaultRegistryHandler{}
}

// HandleRequest implements registry.Object.
func (r *Registry) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case registryOpBind:
		name, err := p.Uint()
		if err != nil {
			return err
		}
		iface, version, newID, err := p.NewIDDynamic()
		if err != nil {
			return err
		}
		return r.handleBind(dispatch, name, iface, version, newID)
	default:
		return unknownOpcode(r.core.Interface, opcode)
	}
}

// handleBind constructs the bound object, installs its client id, and
// either forwards the bind upstream (generating a fresh server id
// first) or, for a synthetic global, suppresses upstream forwarding
// entirely so the object is served locally.
func (r *Registry) handleBind(dispatch *registry.Dispatcher, name uint32, iface string, version uint32, newID uint32) error {
	desc, ok := r.table.Lookup(iface)
	if !ok {
		return object.New(object.KindWrongObjectType, r.core.Interface, "bind", nil)
	}
	bound := desc.New(version)
	if err := bound.Core().SetClientID(newID, dispatch.Local); err != nil {
		return err
	}

	if r.Mapper.IsSynthetic(name) {
		bound.Core().ForwardToServer = false
	} else {
		if err := bound.Core().GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		if _, _, err := r.Mapper.ForwardBind(name, iface, version, bound.Core().ServerID()); err != nil {
			return err
		}
	}

	return r.handler().HandleBind(dispatch, r, name, bound)
}

// handleGlobal decides, via Filter if one is attached, whether a
// server-advertised global is forwarded to the client or hidden, then
// applies that decision to the Mapper. With no Filter attached every
// global is forwarded, matching the Mapper's own un-opinionated
// default.
func (r *Registry) handleGlobal(name uint32, iface string, version uint32) error {
	if r.Filter != nil {
		action, _, err := r.Filter.Evaluate(name, iface, version)
		if err != nil {
			return err
		}
		if action == globalmap.ActionHide {
			r.Mapper.IgnoreGlobal(name)
			return nil
		}
	}
	_, err := r.Mapper.ForwardGlobal(name, iface, version)
	return err
}

// HandleEvent implements registry.Object.
func (r *Registry) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case registryEvGlobal:
		name, err := p.Uint()
		if err != nil {
			return err
		}
		iface, err := p.String()
		if err != nil {
			return err
		}
		version, err := p.Uint()
		if err != nil {
			return err
		}
		return r.handleGlobal(name, iface, version)
	case registryEvGlobalRemove:
		name, err := p.Uint()
		if err != nil {
			return err
		}
		return r.Mapper.ForwardGlobalRemove(name)
	default:
		return unknownOpcode(r.core.Interface, opcode)
	}
}

func (r *Registry) RequestName(opcode uint16) string {
	if opcode == registryOpBind {
		return "bind"
	}
	return "unknown"
}

func (r *Registry) EventName(opcode uint16) string {
	switch opcode {
	case registryEvGlobal:
		return "global"
	case registryEvGlobalRemove:
		return "global_remove"
	default:
		return "unknown"
	}
}

// registryEventsAdapter implements globalmap.RegistryEvents against
// the real wire encoding, so Mapper never needs to know about
// wire.Formatter or endpoint.Endpoint.
type registryEventsAdapter struct {
	reg *Registry
}

func (a registryEventsAdapter) EmitGlobal(name uint32, iface string, version uint32) error {
	return a.send(registryEvGlobal, func(f *wire.Formatter) {
		f.PutUint(name)
		f.PutString(iface)
		f.PutUint(version)
	})
}

func (a registryEventsAdapter) EmitGlobalRemove(name uint32) error {
	return a.send(registryEvGlobalRemove, func(f *wire.Formatter) { f.PutUint(name) })
}

// SendBind forwards a bind request to the server. newID is always the
// proxy-generated server-side id: object ids are never shared verbatim
// between the client and server namespaces (§3).
func (a registryEventsAdapter) SendBind(serverName uint32, iface string, version uint32, newID uint32) error {
	core := a.reg.core
	if core.ServerID() == 0 {
		return object.New(object.KindReceiverNoServerID, core.Interface, "bind", nil)
	}
	ep := a.reg.serverEndpoint
	if ep == nil {
		return object.New(object.KindReceiverNoServerID, core.Interface, "bind", nil)
	}
	f := wire.NewFormatter(32)
	f.PutUint(serverName)
	f.PutNewIDDynamic(iface, version, newID)
	header, payload, fds := f.Finish(core.ServerID(), registryOpBind)
	ep.Enqueue(header, payload, fds)
	return nil
}

func (a registryEventsAdapter) send(opcode uint16, args func(*wire.Formatter)) error {
	core := a.reg.core
	if core.ClientID() == 0 {
		return object.New(object.KindReceiverNoClientID, core.Interface, "", nil)
	}
	ep := a.reg.clientEndpoint
	if ep == nil {
		return object.New(object.KindReceiverNoClientID, core.Interface, "", nil)
	}
	f := wire.NewFormatter(32)
	args(f)
	header, payload, fds := f.Finish(core.ClientID(), opcode)
	ep.Enqueue(header, payload, fds)
	return nil
}

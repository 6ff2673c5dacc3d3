// Package globalmap mediates the wl_registry global namespace between
// one client endpoint and the single upstream server endpoint. It
// tracks which server-advertised globals are forwarded, hidden, or
// shadowed by a synthetic (proxy-fabricated) global, and keeps the two
// directions' bookkeeping consistent.
//
// Behavior is ported from original_source/wl-proxy's global_mapper.rs:
// the same two-map shape (server_to_client / client_to_server), the
// same try_*/log-and-swallow dual API split, reimplemented without a
// Rc<dyn Object> object graph since Go expresses the registry-object
// reference as a plain interface value instead.
package globalmap

import (
	"fmt"
	"log/slog"
)

// RegistryEvents is the subset of wl_registry behavior the mapper
// needs in order to emit global/global_remove events to the client and
// bind requests to the server. A concrete wl_registry object in
// pkg/wlproto implements this against the real wire encoding.
type RegistryEvents interface {
	// EmitGlobal sends a wl_registry.global event for (name, interface,
	// version) to the client.
	EmitGlobal(name uint32, iface string, version uint32) error
	// EmitGlobalRemove sends a wl_registry.global_remove event for name
	// to the client.
	EmitGlobalRemove(name uint32) error
	// SendBind forwards a wl_registry.bind request to the server for
	// serverName, binding newID to the given interface/version.
	SendBind(serverName uint32, iface string, version uint32, newID uint32) error
}

// clientEntry records, for one client-global-name, which server-global
// it corresponds to. A nil value marks a synthetic global (no server
// counterpart); a non-nil value holds the server name.
type clientEntry struct {
	serverName *uint32
}

// Metrics receives counts for the protocol-leniency paths a host
// program may want to alert on. A Mapper with no Metrics attached
// (the default) treats these as no-ops.
type Metrics interface {
	// GlobalRemoveUnknown is called once per global_remove naming a
	// server global this Mapper never saw added.
	GlobalRemoveUnknown()
}

// Mapper is one client's view of the registry, bridging its
// client-global-name space to the server's global-name space.
type Mapper struct {
	registry RegistryEvents
	logger   *slog.Logger
	metrics  Metrics

	// serverToClient maps a server global name to the client name it
	// was forwarded as, or to "ignored" (present with a nil pointer).
	serverToClient map[uint32]*uint32
	// clientToServer is indexed by client-global-name (dense,
	// allocated in order starting at 1, matching wl_registry's name
	// numbering).
	clientToServer []clientEntry

	nextClientName uint32
}

// NewMapper constructs an empty Mapper bound to one client's registry.
func NewMapper(registry RegistryEvents, logger *slog.Logger) *Mapper {
	return &Mapper{
		registry:       registry,
		logger:         logger,
		serverToClient: make(map[uint32]*uint32),
		nextClientName: 1,
	}
}

// SetMetrics attaches a Metrics sink, called once by the owning session
// after construction (the Mapper is built before the session's
// telemetry.Metrics instance is necessarily in scope).
func (m *Mapper) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

func (m *Mapper) allocateClientName() uint32 {
	name := m.nextClientName
	m.nextClientName++
	return name
}

// AddSyntheticGlobal fabricates a global with no server counterpart,
// emits it to the client, and returns the allocated client-global-name.
func (m *Mapper) AddSyntheticGlobal(iface string, version uint32) (uint32, error) {
	name := m.allocateClientName()
	m.clientToServer = append(m.clientToServer, clientEntry{serverName: nil})
	if err := m.registry.EmitGlobal(name, iface, version); err != nil {
		return name, fmt.Errorf("globalmap: emit synthetic global %s: %w", iface, err)
	}
	return name, nil
}

// RemoveSyntheticGlobal emits global_remove for a previously-added
// synthetic global.
func (m *Mapper) RemoveSyntheticGlobal(name uint32) error {
	return m.registry.EmitGlobalRemove(name)
}

// IgnoreGlobal records that a server-advertised global is suppressed
// for this client, so a later forward_global_remove recognizes it as
// "known but hidden" rather than "unknown".
func (m *Mapper) IgnoreGlobal(serverName uint32) {
	m.serverToClient[serverName] = nil
}

// ForwardGlobal allocates a fresh client-global-name for a
// server-advertised global, records the bidirectional mapping, and
// emits it to the client.
func (m *Mapper) ForwardGlobal(serverName uint32, iface string, version uint32) (uint32, error) {
	clientName := m.allocateClientName()
	m.clientToServer = append(m.clientToServer, clientEntry{serverName: &serverName})
	m.serverToClient[serverName] = &clientName

	if err := m.registry.EmitGlobal(clientName, iface, version); err != nil {
		return clientName, fmt.Errorf("globalmap: emit forwarded global %s: %w", iface, err)
	}
	return clientName, nil
}

// ForwardGlobalRemove drops a server-side entry and, if it had been
// forwarded, emits global_remove with the matching client name. An
// ignored entry is a silent no-op; an entirely unknown server name is
// logged and swallowed rather than treated as an error, matching the
// source implementation's protocol leniency for a compositor that
// removes a global twice or removes one the proxy never saw added.
func (m *Mapper) ForwardGlobalRemove(serverName uint32) error {
	clientName, known := m.serverToClient[serverName]
	if !known {
		m.logger.Warn("global_remove for unknown server global", "server_name", serverName)
		if m.metrics != nil {
			m.metrics.GlobalRemoveUnknown()
		}
		return nil
	}
	delete(m.serverToClient, serverName)

	if clientName == nil {
		// Was ignored; nothing visible to the client to retract.
		return nil
	}
	if err := m.registry.EmitGlobalRemove(*clientName); err != nil {
		return fmt.Errorf("globalmap: emit global_remove for server name %d: %w", serverName, err)
	}
	return nil
}

// ForwardBind resolves a client-global-name to its server name and
// forwards the bind request. If the name denotes a synthetic global,
// the bind is swallowed: the proxy serves that interface locally and
// the caller is expected to construct the local object itself.
//
// Returns (serverName, forwarded, err): forwarded is false exactly
// when the bind was swallowed because the global is synthetic.
func (m *Mapper) ForwardBind(clientName uint32, iface string, version uint32, newID uint32) (serverName uint32, forwarded bool, err error) {
	idx := int(clientName) - 1
	if idx < 0 || idx >= len(m.clientToServer) {
		return 0, false, fmt.Errorf("globalmap: bind for unknown client global name %d", clientName)
	}
	entry := m.clientToServer[idx]
	if entry.serverName == nil {
		return 0, false, nil
	}
	serverName = *entry.serverName
	if err := m.registry.SendBind(serverName, iface, version, newID); err != nil {
		return serverName, true, fmt.Errorf("globalmap: forward bind for %s: %w", iface, err)
	}
	return serverName, true, nil
}

// IsSynthetic reports whether clientName corresponds to a
// proxy-fabricated global rather than a forwarded server global.
func (m *Mapper) IsSynthetic(clientName uint32) bool {
	idx := int(clientName) - 1
	if idx < 0 || idx >= len(m.clientToServer) {
		return false
	}
	return m.clientToServer[idx].serverName == nil
}

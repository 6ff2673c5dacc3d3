package object

// DestroyState tracks where an object sits in the destroy/delete_id
// handshake. The full four-state machine (Active, LocalDestroyRequested,
// PendingDeleteId, Released) is owned by the lifecycle package; these
// two booleans are set by the destroy handlers in pkg/wlproto. Core
// only stores them: neither id generation nor dispatch reads them, so
// they do not stop a request that arrives for an object after its
// destroy from being dispatched.
type DestroyState struct {
	// Destroyed is set once a client destroy request has been
	// observed (handle_client_destroy) or the proxy itself has
	// requested destruction server-side (handle_server_destroy).
	Destroyed bool
	// ServerDeletePending is set once the proxy has forwarded a
	// destroy to the server and is waiting for wl_display.delete_id.
	ServerDeletePending bool
}

// IDAllocator hands out the next free id in an endpoint's allocation
// range and installs an object at that id. Endpoint implements this;
// Core depends only on the interface so object construction doesn't
// need to import the endpoint package.
type IDAllocator interface {
	NextID() (uint32, error)
	Bind(id uint32, obj any) error
}

// IDBinder installs an object at a peer-chosen id, used when the id
// value comes from the wire instead of being allocated locally.
type IDBinder interface {
	BindAt(id uint32, obj any) error
}

// Core is embedded by every concrete object type (wl_display,
// wl_registry, zwlr_data_control_device_v1, ...) to provide the
// identity and lifecycle bookkeeping common to all of them.
type Core struct {
	owner     any
	Interface string
	Version   uint32

	clientID uint32 // 0 means unset
	serverID uint32 // 0 means unset

	Destroy DestroyState
	Handler HandlerHolder

	// ForwardToServer gates default forwarding of client->server
	// requests; a handler clears it to take over request handling
	// itself instead of passing messages through unchanged.
	ForwardToServer bool
	// ForwardToClient is the event-side equivalent of ForwardToServer.
	ForwardToClient bool
}

// NewCore constructs a Core for owner (the concrete object embedding
// this Core, passed so id generation can bind the right value into the
// allocator's table). Both forwarding flags default to true: an object
// with no handler installed forwards transparently in both directions.
func NewCore(owner any, iface string, version uint32) *Core {
	return &Core{owner: owner, Interface: iface, Version: version, ForwardToServer: true, ForwardToClient: true}
}

// ClientID returns the object's client-side id, or 0 if unset.
func (c *Core) ClientID() uint32 { return c.clientID }

// ServerID returns the object's server-side id, or 0 if unset.
func (c *Core) ServerID() uint32 { return c.serverID }

// GenerateServerID allocates the next free id on the server endpoint,
// binds owner into its table at that id, and records the id on this
// Core. Fails with ErrGenerateServerID if a server id is already set
// or the allocator reports a collision.
func (c *Core) GenerateServerID(alloc IDAllocator) error {
	if c.serverID != 0 {
		return New(KindGenerateServerID, c.Interface, "", nil)
	}
	id, err := alloc.NextID()
	if err != nil {
		return New(KindGenerateServerID, c.Interface, "", err)
	}
	if err := alloc.Bind(id, c.owner); err != nil {
		return New(KindGenerateServerID, c.Interface, "", err)
	}
	c.serverID = id
	return nil
}

// GenerateClientID is the symmetric operation for an object the proxy
// is offering to a client (e.g. a data offer created in response to a
// server selection event).
func (c *Core) GenerateClientID(alloc IDAllocator) error {
	if c.clientID != 0 {
		return New(KindGenerateClientID, c.Interface, "", nil)
	}
	id, err := alloc.NextID()
	if err != nil {
		return New(KindGenerateClientID, c.Interface, "", err)
	}
	if err := alloc.Bind(id, c.owner); err != nil {
		return New(KindGenerateClientID, c.Interface, "", err)
	}
	c.clientID = id
	return nil
}

// SetClientID records a client id chosen by the peer (decoded from a
// new_id argument in a client request), rejecting a duplicate.
func (c *Core) SetClientID(id uint32, binder IDBinder) error {
	if c.clientID != 0 {
		return New(KindGenerateClientID, c.Interface, "", nil)
	}
	if err := binder.BindAt(id, c.owner); err != nil {
		return New(KindGenerateClientID, c.Interface, "", err)
	}
	c.clientID = id
	return nil
}

// SetServerID records a server id chosen by the peer.
func (c *Core) SetServerID(id uint32, binder IDBinder) error {
	if c.serverID != 0 {
		return New(KindGenerateServerID, c.Interface, "", nil)
	}
	if err := binder.BindAt(id, c.owner); err != nil {
		return New(KindGenerateServerID, c.Interface, "", err)
	}
	c.serverID = id
	return nil
}

// ReleaseClientID clears the recorded client id, called once the
// client endpoint's table entry has been released.
func (c *Core) ReleaseClientID() { c.clientID = 0 }

// ReleaseServerID clears the recorded server id.
func (c *Core) ReleaseServerID() { c.serverID = 0 }

// HandleClientDestroy runs when the client side sends a `destroy`
// request: the object is marked destroyed but keeps its client id
// until the server confirms deletion via delete_id.
func (c *Core) HandleClientDestroy() {
	c.Destroy.Destroyed = true
}

// HandleServerDestroy runs when the proxy re-emits the destroy to the
// server: it starts waiting for wl_display.delete_id.
func (c *Core) HandleServerDestroy() {
	c.Destroy.Destroyed = true
	c.Destroy.ServerDeletePending = true
}

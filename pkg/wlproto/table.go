package wlproto

import "github.com/wlproxy/wlproxy/internal/registry"

// NewDescriptorTable builds the registry.Table covering every
// interface this proxy can bind a client to: the representative
// pass-through globals (wl_compositor, wl_shm) plus the one family it
// actively mediates (zwlr_data_control_manager_v1) and the minimal
// wl_seat stub get_data_device needs an object argument for. A bind
// request naming any other interface fails with KindWrongObjectType
// rather than being silently half-forwarded. The requested version is
// not checked against Version, and synthetic-global configuration is
// not checked against this table.
func NewDescriptorTable() *registry.Table {
	return registry.NewTable(
		&registry.Descriptor{Interface: "wl_compositor", Version: 6, New: func(uint32) registry.Object { return NewCompositor() }},
		&registry.Descriptor{Interface: "wl_shm", Version: 2, New: func(uint32) registry.Object { return NewShm() }},
		&registry.Descriptor{Interface: "wl_seat", Version: 9, New: func(uint32) registry.Object { return NewSeat() }},
		&registry.Descriptor{Interface: "zwlr_data_control_manager_v1", Version: 2, New: func(uint32) registry.Object { return NewDataControlManager() }},
	)
}

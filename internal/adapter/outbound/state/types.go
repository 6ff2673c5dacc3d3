// Package state provides file-based persistence for wlproxy runtime state.
//
// The state.json file stores the synthetic-global bindings that wlproxy
// hands out to clients (wl_shm, zwlr_data_control_manager_v1, and any
// other globals fabricated locally rather than forwarded from the
// compositor). The file is a record of the names handed out; no Mapper
// reads it back, so every session still numbers its globals from 1. This
// package provides atomic writes, file locking, and backup functionality.
package state

import "time"

// AppState is the top-level structure persisted in state.json.
type AppState struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// SyntheticGlobals are the locally-fabricated globals and the name
	// each was last assigned, keyed by interface string.
	SyntheticGlobals []SyntheticGlobalEntry `json:"synthetic_globals"`

	// CreatedAt is when this state file was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this state file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// SyntheticGlobalEntry records the global name last handed out for a
// synthetic (proxy-fabricated) interface, so it survives a restart.
type SyntheticGlobalEntry struct {
	// Interface is the protocol interface name, e.g. "wl_shm".
	Interface string `json:"interface"`

	// Version is the interface version advertised to clients.
	Version uint32 `json:"version"`

	// Name is the global name last assigned in wl_registry.global.
	Name uint32 `json:"name"`

	// UpdatedAt is when this entry was last touched.
	UpdatedAt time.Time `json:"updated_at"`
}

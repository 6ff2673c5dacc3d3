// Package wlproto implements the concrete object types the proxy
// understands well enough to intercept: wl_display, wl_callback and
// wl_registry (required for any session at all), wl_compositor and
// wl_shm as representative pass-through interfaces, and the
// zwlr_data_control_unstable_v1 family as the one interface set the
// proxy actively mediates rather than merely forwards.
//
// Every type here embeds *object.Core and implements registry.Object,
// so internal/registry's Dispatcher can drive them without a type
// switch. Request/event argument decoding follows the generated-code
// shape of the original wl-proxy sources: a flat switch on opcode,
// one case per message, each case resolving its own arguments off the
// wire.Parser and either invoking a handler or falling back to default
// forwarding.
package wlproto

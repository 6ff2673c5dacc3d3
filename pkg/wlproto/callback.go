package wlproto

import (
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_callback event opcodes. wl_callback has no requests: it is only
// ever created as the new_id argument of another request (sync,
// frame, ...) and fires exactly once.
const (
	callbackEvDone uint16 = 0
)

// Callback is the one-shot completion notification object created by
// wl_display.sync and by wl_surface.frame.
// The compositor destroys it implicitly after sending done, so unlike
// most objects it never receives a client-initiated destroy request.
type Callback struct {
	lifecycleObject
}

// NewCallback constructs an unbound Callback; the caller installs its
// client id immediately via Core().SetClientID.
func NewCallback() *Callback {
	c := &Callback{}
	c.init(c, "wl_callback", 1)
	return c
}

// HandleRequest implements registry.Object. wl_callback declares no
// requests, so any opcode here is a protocol violation by the client.
func (c *Callback) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	return unknownOpcode(c.core.Interface, opcode)
}

// HandleEvent implements registry.Object.
func (c *Callback) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case callbackEvDone:
		data, err := p.Uint()
		if err != nil {
			return err
		}
		// wl_callback has no destroy request: the compositor retires it
		// implicitly right after done, so done is this object's only
		// signal that a delete_id is coming.
		if err := c.lc.ServerDestroyEmitted(); err != nil {
			return err
		}
		return forwardEvent(dispatch, c, callbackEvDone, func(f *wire.Formatter) { f.PutUint(data) })
	default:
		return unknownOpcode(c.core.Interface, opcode)
	}
}

func (c *Callback) RequestName(uint16) string { return "unknown" }

func (c *Callback) EventName(opcode uint16) string {
	if opcode == callbackEvDone {
		return "done"
	}
	return "unknown"
}

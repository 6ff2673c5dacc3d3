package wlproto

import (
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_seat request/event opcodes this proxy understands. get_pointer,
// get_keyboard and get_touch are deliberately unhandled: the proxy
// never drives input devices, so a request for one of those objects is
// dropped with a logged warning: nothing is forwarded and no error is
// sent to the client.
const (
	seatOpRelease      uint16 = 3
	seatEvCapabilities uint16 = 0
	seatEvName         uint16 = 1
)

// Seat exists only so zwlr_data_control_manager_v1.get_data_device has
// something to resolve its seat argument against; the proxy forwards
// capabilities/name and release unchanged and refuses everything else.
type Seat struct {
	lifecycleObject
}

func NewSeat() *Seat {
	s := &Seat{}
	s.init(s, "wl_seat", 9)
	return s
}

func (s *Seat) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case seatOpRelease:
		return handleDestroyRequest(dispatch, s, s.core, s.lc, seatOpRelease)
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Seat) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case seatEvCapabilities:
		caps, err := p.Uint()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, s, seatEvCapabilities, func(f *wire.Formatter) { f.PutUint(caps) })
	case seatEvName:
		name, err := p.String()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, s, seatEvName, func(f *wire.Formatter) { f.PutString(name) })
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Seat) RequestName(opcode uint16) string {
	if opcode == seatOpRelease {
		return "release"
	}
	return "unknown"
}

func (s *Seat) EventName(opcode uint16) string {
	switch opcode {
	case seatEvCapabilities:
		return "capabilities"
	case seatEvName:
		return "name"
	default:
		return "unknown"
	}
}

package wlproto

import (
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_compositor request opcodes.
const (
	compositorOpCreateSurface uint16 = 0
	compositorOpCreateRegion  uint16 = 1
)

// Compositor is a representative pass-through global: the proxy never
// inspects surface contents, it only needs create_surface/create_region
// to mint the right object types on both endpoint tables so later
// requests against them dispatch correctly.
type Compositor struct {
	lifecycleObject
}

func NewCompositor() *Compositor {
	c := &Compositor{}
	c.init(c, "wl_compositor", 6)
	return c
}

func (c *Compositor) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case compositorOpCreateSurface:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		surf := NewSurface()
		if err := surf.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := surf.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, c, compositorOpCreateSurface, func(f *wire.Formatter) {
			f.PutNewID(surf.core.ServerID())
		})
	case compositorOpCreateRegion:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		reg := NewRegion()
		if err := reg.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := reg.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, c, compositorOpCreateRegion, func(f *wire.Formatter) {
			f.PutNewID(reg.core.ServerID())
		})
	default:
		return unknownOpcode(c.core.Interface, opcode)
	}
}

func (c *Compositor) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	return unknownOpcode(c.core.Interface, opcode)
}

func (c *Compositor) RequestName(opcode uint16) string {
	switch opcode {
	case compositorOpCreateSurface:
		return "create_surface"
	case compositorOpCreateRegion:
		return "create_region"
	default:
		return "unknown"
	}
}

func (c *Compositor) EventName(uint16) string { return "unknown" }

// wl_surface request opcodes.
const (
	surfaceOpDestroy            uint16 = 0
	surfaceOpAttach             uint16 = 1
	surfaceOpDamage             uint16 = 2
	surfaceOpFrame              uint16 = 3
	surfaceOpSetOpaqueRegion    uint16 = 4
	surfaceOpSetInputRegion     uint16 = 5
	surfaceOpCommit             uint16 = 6
	surfaceOpSetBufferTransform uint16 = 7
	surfaceOpSetBufferScale     uint16 = 8
	surfaceOpDamageBuffer       uint16 = 9
)

// wl_surface event opcodes.
const (
	surfaceEvEnter uint16 = 0
	surfaceEvLeave uint16 = 1
)

// Surface stands in for wl_surface and wl_buffer/wl_region targets: the
// proxy forwards every request and event unchanged, resolving the
// object arguments it carries (buffer, region) against its own table so
// the re-emitted message names the peer's id rather than the client's.
type Surface struct {
	lifecycleObject
}

func NewSurface() *Surface {
	s := &Surface{}
	s.init(s, "wl_surface", 6)
	return s
}

func (s *Surface) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case surfaceOpDestroy:
		return handleDestroyRequest(dispatch, s, s.core, s.lc, surfaceOpDestroy)
	case surfaceOpAttach:
		bufID, err := p.Object()
		if err != nil {
			return err
		}
		x, err := p.Int()
		if err != nil {
			return err
		}
		y, err := p.Int()
		if err != nil {
			return err
		}
		buf, _, err := dispatch.ResolveObjectArg(bufID, "")
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, s, surfaceOpAttach, func(f *wire.Formatter) {
			f.PutObject(peerIDOrZero(dispatch, buf))
			f.PutInt(x)
			f.PutInt(y)
		})
	case surfaceOpDamage, surfaceOpDamageBuffer:
		x, err := p.Int()
		if err != nil {
			return err
		}
		y, err := p.Int()
		if err != nil {
			return err
		}
		w, err := p.Int()
		if err != nil {
			return err
		}
		h, err := p.Int()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, s, opcode, func(f *wire.Formatter) {
			f.PutInt(x)
			f.PutInt(y)
			f.PutInt(w)
			f.PutInt(h)
		})
	case surfaceOpFrame:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		cb := NewCallback()
		if err := cb.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := cb.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, s, surfaceOpFrame, func(f *wire.Formatter) {
			f.PutNewID(cb.core.ServerID())
		})
	case surfaceOpSetOpaqueRegion, surfaceOpSetInputRegion:
		regionID, err := p.Object()
		if err != nil {
			return err
		}
		region, _, err := dispatch.ResolveObjectArg(regionID, "")
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, s, opcode, func(f *wire.Formatter) {
			f.PutObject(peerIDOrZero(dispatch, region))
		})
	case surfaceOpCommit:
		return forwardRequest(dispatch, s, surfaceOpCommit, nil)
	case surfaceOpSetBufferTransform, surfaceOpSetBufferScale:
		v, err := p.Int()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, s, opcode, func(f *wire.Formatter) { f.PutInt(v) })
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Surface) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case surfaceEvEnter, surfaceEvLeave:
		outputID, err := p.Object()
		if err != nil {
			return err
		}
		output, ok, err := dispatch.ResolveObjectArg(outputID, "")
		if err != nil {
			return err
		}
		if !ok || crossClientBlocked(s.core, output) {
			return nil
		}
		return forwardEvent(dispatch, s, opcode, func(f *wire.Formatter) {
			f.PutObject(peerIDOrZero(dispatch, output))
		})
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Surface) RequestName(opcode uint16) string {
	switch opcode {
	case surfaceOpDestroy:
		return "destroy"
	case surfaceOpAttach:
		return "attach"
	case surfaceOpDamage:
		return "damage"
	case surfaceOpFrame:
		return "frame"
	case surfaceOpSetOpaqueRegion:
		return "set_opaque_region"
	case surfaceOpSetInputRegion:
		return "set_input_region"
	case surfaceOpCommit:
		return "commit"
	case surfaceOpSetBufferTransform:
		return "set_buffer_transform"
	case surfaceOpSetBufferScale:
		return "set_buffer_scale"
	case surfaceOpDamageBuffer:
		return "damage_buffer"
	default:
		return "unknown"
	}
}

func (s *Surface) EventName(opcode uint16) string {
	switch opcode {
	case surfaceEvEnter:
		return "enter"
	case surfaceEvLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// wl_region request opcodes.
const (
	regionOpDestroy  uint16 = 0
	regionOpAdd      uint16 = 1
	regionOpSubtract uint16 = 2
)

// Region stands in for wl_region: rectangle accumulation happens
// entirely on the real compositor, so the proxy only forwards.
type Region struct {
	lifecycleObject
}

func NewRegion() *Region {
	r := &Region{}
	r.init(r, "wl_region", 1)
	return r
}

func (r *Region) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case regionOpDestroy:
		return handleDestroyRequest(dispatch, r, r.core, r.lc, regionOpDestroy)
	case regionOpAdd, regionOpSubtract:
		x, err := p.Int()
		if err != nil {
			return err
		}
		y, err := p.Int()
		if err != nil {
			return err
		}
		w, err := p.Int()
		if err != nil {
			return err
		}
		h, err := p.Int()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, r, opcode, func(f *wire.Formatter) {
			f.PutInt(x)
			f.PutInt(y)
			f.PutInt(w)
			f.PutInt(h)
		})
	default:
		return unknownOpcode(r.core.Interface, opcode)
	}
}

func (r *Region) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	return unknownOpcode(r.core.Interface, opcode)
}

func (r *Region) RequestName(opcode uint16) string {
	switch opcode {
	case regionOpDestroy:
		return "destroy"
	case regionOpAdd:
		return "add"
	case regionOpSubtract:
		return "subtract"
	default:
		return "unknown"
	}
}

func (r *Region) EventName(uint16) string { return "unknown" }

package wlproto

import (
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// wl_shm request/event opcodes.
const (
	shmOpCreatePool uint16 = 0
	shmEvFormat     uint16 = 0
)

// Shm is the other representative pass-through global: create_pool
// carries an fd argument, which exercises the endpoint's SCM_RIGHTS
// path the same way zwlr_data_control_source_v1.send does.
type Shm struct {
	lifecycleObject
}

func NewShm() *Shm {
	s := &Shm{}
	s.init(s, "wl_shm", 2)
	return s
}

func (s *Shm) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case shmOpCreatePool:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		fd, err := p.FD()
		if err != nil {
			return err
		}
		size, err := p.Int()
		if err != nil {
			return err
		}
		pool := NewShmPool()
		if err := pool.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := pool.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, s, shmOpCreatePool, func(f *wire.Formatter) {
			f.PutNewID(pool.core.ServerID())
			f.PutFD(fd)
			f.PutInt(size)
		})
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Shm) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case shmEvFormat:
		format, err := p.Uint()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, s, shmEvFormat, func(f *wire.Formatter) { f.PutUint(format) })
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *Shm) RequestName(opcode uint16) string {
	if opcode == shmOpCreatePool {
		return "create_pool"
	}
	return "unknown"
}

func (s *Shm) EventName(opcode uint16) string {
	if opcode == shmEvFormat {
		return "format"
	}
	return "unknown"
}

// wl_shm_pool request opcodes.
const (
	shmPoolOpCreateBuffer uint16 = 0
	shmPoolOpDestroy      uint16 = 1
	shmPoolOpResize       uint16 = 2
)

// ShmPool is wl_shm_pool: the proxy never maps the backing fd, it only
// needs to mint wl_buffer objects and forward resize/destroy.
type ShmPool struct {
	lifecycleObject
}

func NewShmPool() *ShmPool {
	p := &ShmPool{}
	p.init(p, "wl_shm_pool", 2)
	return p
}

func (sp *ShmPool) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case shmPoolOpCreateBuffer:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		offset, err := p.Int()
		if err != nil {
			return err
		}
		width, err := p.Int()
		if err != nil {
			return err
		}
		height, err := p.Int()
		if err != nil {
			return err
		}
		stride, err := p.Int()
		if err != nil {
			return err
		}
		format, err := p.Uint()
		if err != nil {
			return err
		}
		buf := NewBuffer()
		if err := buf.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := buf.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, sp, shmPoolOpCreateBuffer, func(f *wire.Formatter) {
			f.PutNewID(buf.core.ServerID())
			f.PutInt(offset)
			f.PutInt(width)
			f.PutInt(height)
			f.PutInt(stride)
			f.PutUint(format)
		})
	case shmPoolOpDestroy:
		return handleDestroyRequest(dispatch, sp, sp.core, sp.lc, shmPoolOpDestroy)
	case shmPoolOpResize:
		size, err := p.Int()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, sp, shmPoolOpResize, func(f *wire.Formatter) { f.PutInt(size) })
	default:
		return unknownOpcode(sp.core.Interface, opcode)
	}
}

func (sp *ShmPool) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	return unknownOpcode(sp.core.Interface, opcode)
}

func (sp *ShmPool) RequestName(opcode uint16) string {
	switch opcode {
	case shmPoolOpCreateBuffer:
		return "create_buffer"
	case shmPoolOpDestroy:
		return "destroy"
	case shmPoolOpResize:
		return "resize"
	default:
		return "unknown"
	}
}

func (sp *ShmPool) EventName(uint16) string { return "unknown" }

// wl_buffer request/event opcodes.
const (
	bufferOpDestroy uint16 = 0
	bufferEvRelease uint16 = 0
)

// Buffer stands in for wl_buffer.
type Buffer struct {
	lifecycleObject
}

func NewBuffer() *Buffer {
	b := &Buffer{}
	b.init(b, "wl_buffer", 1)
	return b
}

func (b *Buffer) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case bufferOpDestroy:
		return handleDestroyRequest(dispatch, b, b.core, b.lc, bufferOpDestroy)
	default:
		return unknownOpcode(b.core.Interface, opcode)
	}
}

func (b *Buffer) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case bufferEvRelease:
		return forwardEvent(dispatch, b, bufferEvRelease, nil)
	default:
		return unknownOpcode(b.core.Interface, opcode)
	}
}

func (b *Buffer) RequestName(opcode uint16) string {
	if opcode == bufferOpDestroy {
		return "destroy"
	}
	return "unknown"
}

func (b *Buffer) EventName(opcode uint16) string {
	if opcode == bufferEvRelease {
		return "release"
	}
	return "unknown"
}

package wlproto

import (
	"fmt"

	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// zwlr_data_control_manager_v1 request opcodes.
const (
	dataControlManagerOpCreateDataSource uint16 = 0
	dataControlManagerOpGetDataDevice    uint16 = 1
	dataControlManagerOpDestroy          uint16 = 2
)

// DataControlManager is zwlr_data_control_manager_v1, the entry point
// of the one interface family this proxy actively mediates rather than
// merely forwards (§4.6): every selection offer it hands a client
// passes through DataControlDevice.HandleEvent first.
type DataControlManager struct {
	lifecycleObject
}

func NewDataControlManager() *DataControlManager {
	m := &DataControlManager{}
	m.init(m, "zwlr_data_control_manager_v1", 2)
	return m
}

func (m *DataControlManager) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlManagerOpCreateDataSource:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		src := NewDataControlSource()
		if err := src.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := src.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, m, dataControlManagerOpCreateDataSource, func(f *wire.Formatter) {
			f.PutNewID(src.core.ServerID())
		})
	case dataControlManagerOpGetDataDevice:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		seatID, err := p.Object()
		if err != nil {
			return err
		}
		seat, _, err := dispatch.ResolveObjectArg(seatID, "wl_seat")
		if err != nil {
			return err
		}
		dev := NewDataControlDevice()
		if err := dev.core.SetClientID(id, dispatch.Local); err != nil {
			return err
		}
		if err := dev.core.GenerateServerID(dispatch.Peer); err != nil {
			return err
		}
		return forwardRequest(dispatch, m, dataControlManagerOpGetDataDevice, func(f *wire.Formatter) {
			f.PutNewID(dev.core.ServerID())
			f.PutObject(peerIDOrZero(dispatch, seat))
		})
	case dataControlManagerOpDestroy:
		return handleDestroyRequest(dispatch, m, m.core, m.lc, dataControlManagerOpDestroy)
	default:
		return unknownOpcode(m.core.Interface, opcode)
	}
}

func (m *DataControlManager) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	return unknownOpcode(m.core.Interface, opcode)
}

func (m *DataControlManager) RequestName(opcode uint16) string {
	switch opcode {
	case dataControlManagerOpCreateDataSource:
		return "create_data_source"
	case dataControlManagerOpGetDataDevice:
		return "get_data_device"
	case dataControlManagerOpDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

func (m *DataControlManager) EventName(uint16) string { return "unknown" }

// zwlr_data_control_device_v1 request opcodes.
const (
	dataControlDeviceOpSetSelection        uint16 = 0
	dataControlDeviceOpDestroy             uint16 = 1
	dataControlDeviceOpSetPrimarySelection uint16 = 2
)

// zwlr_data_control_device_v1 event opcodes.
const (
	dataControlDeviceEvDataOffer         uint16 = 0
	dataControlDeviceEvSelection          uint16 = 1
	dataControlDeviceEvFinished           uint16 = 2
	dataControlDeviceEvPrimarySelection   uint16 = 3
)

// DataControlDeviceHandler lets a host program observe and transform
// selection traffic after this proxy has resolved ids but before it
// forwards the message, matching the Dispatch algorithm's "invoke
// either a user-installed handler or the default handler" step (§4.4).
type DataControlDeviceHandler interface {
	HandleSetSelection(d *registry.Dispatcher, dev *DataControlDevice, source *DataControlSource) error
	HandleSelection(d *registry.Dispatcher, dev *DataControlDevice, offer *DataControlOffer) error
}

// DefaultDataControlDeviceHandler forwards selection traffic unchanged.
type DefaultDataControlDeviceHandler struct{}

func (DefaultDataControlDeviceHandler) HandleSetSelection(d *registry.Dispatcher, dev *DataControlDevice, source *DataControlSource) error {
	return forwardRequest(d, dev, dataControlDeviceOpSetSelection, func(f *wire.Formatter) {
		f.PutObject(peerIDOrZero(d, sourceAsObject(source)))
	})
}

func (DefaultDataControlDeviceHandler) HandleSelection(d *registry.Dispatcher, dev *DataControlDevice, offer *DataControlOffer) error {
	return forwardEvent(d, dev, dataControlDeviceEvSelection, func(f *wire.Formatter) {
		f.PutObject(peerIDOrZero(d, offerAsObject(offer)))
	})
}

// sourceAsObject/offerAsObject convert a possibly-nil concrete pointer
// to the registry.Object interface without the result being a non-nil
// interface wrapping a nil pointer, which peerIDOrZero's nil check
// would otherwise miss.
func sourceAsObject(s *DataControlSource) registry.Object {
	if s == nil {
		return nil
	}
	return s
}

func offerAsObject(o *DataControlOffer) registry.Object {
	if o == nil {
		return nil
	}
	return o
}

// DataControlDevice is zwlr_data_control_device_v1.
type DataControlDevice struct {
	lifecycleObject
	Handler DataControlDeviceHandler
}

func NewDataControlDevice() *DataControlDevice {
	d := &DataControlDevice{}
	d.init(d, "zwlr_data_control_device_v1", 2)
	return d
}

func (dev *DataControlDevice) handler() DataControlDeviceHandler {
	if dev.Handler != nil {
		return dev.Handler
	}
	return DefaultDataControlDeviceHandler{}
}

func (dev *DataControlDevice) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlDeviceOpSetSelection, dataControlDeviceOpSetPrimarySelection:
		sourceID, err := p.Object()
		if err != nil {
			return err
		}
		raw, ok, err := dispatch.ResolveObjectArg(sourceID, "zwlr_data_control_source_v1")
		if err != nil {
			return err
		}
		var source *DataControlSource
		if ok && raw != nil {
			source = raw.(*DataControlSource)
			if source.MarkUsed() {
				return fmt.Errorf("%s: %s: source already used", dev.core.Interface, dev.RequestName(opcode))
			}
		}
		if opcode == dataControlDeviceOpSetPrimarySelection {
			return forwardRequest(dispatch, dev, opcode, func(f *wire.Formatter) {
				f.PutObject(peerIDOrZero(dispatch, sourceAsObject(source)))
			})
		}
		return dev.handler().HandleSetSelection(dispatch, dev, source)
	case dataControlDeviceOpDestroy:
		return handleDestroyRequest(dispatch, dev, dev.core, dev.lc, dataControlDeviceOpDestroy)
	default:
		return unknownOpcode(dev.core.Interface, opcode)
	}
}

func (dev *DataControlDevice) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlDeviceEvDataOffer:
		id, err := p.NewID()
		if err != nil {
			return err
		}
		offer := NewDataControlOffer()
		if err := offer.core.SetServerID(id, dispatch.Local); err != nil {
			return err
		}
		if err := offer.core.GenerateClientID(dispatch.Peer); err != nil {
			return err
		}
		return forwardEvent(dispatch, dev, dataControlDeviceEvDataOffer, func(f *wire.Formatter) {
			f.PutNewID(offer.core.ClientID())
		})
	case dataControlDeviceEvSelection, dataControlDeviceEvPrimarySelection:
		offerID, err := p.Object()
		if err != nil {
			return err
		}
		raw, ok, err := dispatch.ResolveObjectArg(offerID, "zwlr_data_control_offer_v1")
		if err != nil {
			return err
		}
		var offer *DataControlOffer
		if ok && raw != nil {
			offer = raw.(*DataControlOffer)
		}
		if opcode == dataControlDeviceEvPrimarySelection {
			return forwardEvent(dispatch, dev, opcode, func(f *wire.Formatter) {
				f.PutObject(peerIDOrZero(dispatch, offerAsObject(offer)))
			})
		}
		return dev.handler().HandleSelection(dispatch, dev, offer)
	case dataControlDeviceEvFinished:
		return forwardEvent(dispatch, dev, dataControlDeviceEvFinished, nil)
	default:
		return unknownOpcode(dev.core.Interface, opcode)
	}
}

func (dev *DataControlDevice) RequestName(opcode uint16) string {
	switch opcode {
	case dataControlDeviceOpSetSelection:
		return "set_selection"
	case dataControlDeviceOpDestroy:
		return "destroy"
	case dataControlDeviceOpSetPrimarySelection:
		return "set_primary_selection"
	default:
		return "unknown"
	}
}

func (dev *DataControlDevice) EventName(opcode uint16) string {
	switch opcode {
	case dataControlDeviceEvDataOffer:
		return "data_offer"
	case dataControlDeviceEvSelection:
		return "selection"
	case dataControlDeviceEvFinished:
		return "finished"
	case dataControlDeviceEvPrimarySelection:
		return "primary_selection"
	default:
		return "unknown"
	}
}

// zwlr_data_control_source_v1 request opcodes.
const (
	dataControlSourceOpOffer   uint16 = 0
	dataControlSourceOpDestroy uint16 = 1
)

// zwlr_data_control_source_v1 event opcodes.
const (
	dataControlSourceEvSend      uint16 = 0
	dataControlSourceEvCancelled uint16 = 1
)

// DataControlSource is zwlr_data_control_source_v1: a client-offered
// clipboard source. Used is tracked so a later set_selection/
// set_primary_selection reusing an already-used source can be rejected
// the way the real compositor rejects it (§9, per the original
// implementation's ArgNoServerId-style guard), rather than forwarded
// and left for the compositor to catch.
type DataControlSource struct {
	lifecycleObject
	used bool
}

func NewDataControlSource() *DataControlSource {
	s := &DataControlSource{}
	s.init(s, "zwlr_data_control_source_v1", 2)
	return s
}

// MarkUsed records that this source has been passed to a set_selection
// or set_primary_selection request. Reports whether it was already
// used, so the caller can reject the request.
func (s *DataControlSource) MarkUsed() (alreadyUsed bool) {
	alreadyUsed = s.used
	s.used = true
	return alreadyUsed
}

func (s *DataControlSource) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlSourceOpOffer:
		mimeType, err := p.String()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, s, dataControlSourceOpOffer, func(f *wire.Formatter) {
			f.PutString(mimeType)
		})
	case dataControlSourceOpDestroy:
		return handleDestroyRequest(dispatch, s, s.core, s.lc, dataControlSourceOpDestroy)
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *DataControlSource) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlSourceEvSend:
		mimeType, err := p.String()
		if err != nil {
			return err
		}
		fd, err := p.FD()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, s, dataControlSourceEvSend, func(f *wire.Formatter) {
			f.PutString(mimeType)
			f.PutFD(fd)
		})
	case dataControlSourceEvCancelled:
		return forwardEvent(dispatch, s, dataControlSourceEvCancelled, nil)
	default:
		return unknownOpcode(s.core.Interface, opcode)
	}
}

func (s *DataControlSource) RequestName(opcode uint16) string {
	switch opcode {
	case dataControlSourceOpOffer:
		return "offer"
	case dataControlSourceOpDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

func (s *DataControlSource) EventName(opcode uint16) string {
	switch opcode {
	case dataControlSourceEvSend:
		return "send"
	case dataControlSourceEvCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// zwlr_data_control_offer_v1 request opcodes.
const (
	dataControlOfferOpReceive uint16 = 0
	dataControlOfferOpDestroy uint16 = 1
)

// zwlr_data_control_offer_v1 event opcodes.
const (
	dataControlOfferEvOffer uint16 = 0
)

// DataControlOffer is zwlr_data_control_offer_v1: the server-initiated
// counterpart of DataControlSource, created by DataControlDevice's
// data_offer event rather than by a client request, so it is installed
// with SetServerID first and GenerateClientID second (the reverse of
// every client-initiated new_id in this package).
type DataControlOffer struct {
	lifecycleObject
}

func NewDataControlOffer() *DataControlOffer {
	o := &DataControlOffer{}
	o.init(o, "zwlr_data_control_offer_v1", 2)
	return o
}

func (o *DataControlOffer) HandleRequest(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlOfferOpReceive:
		mimeType, err := p.String()
		if err != nil {
			return err
		}
		fd, err := p.FD()
		if err != nil {
			return err
		}
		return forwardRequest(dispatch, o, dataControlOfferOpReceive, func(f *wire.Formatter) {
			f.PutString(mimeType)
			f.PutFD(fd)
		})
	case dataControlOfferOpDestroy:
		return handleDestroyRequest(dispatch, o, o.core, o.lc, dataControlOfferOpDestroy)
	default:
		return unknownOpcode(o.core.Interface, opcode)
	}
}

func (o *DataControlOffer) HandleEvent(dispatch *registry.Dispatcher, opcode uint16, p *wire.Parser) error {
	switch opcode {
	case dataControlOfferEvOffer:
		mimeType, err := p.String()
		if err != nil {
			return err
		}
		return forwardEvent(dispatch, o, dataControlOfferEvOffer, func(f *wire.Formatter) {
			f.PutString(mimeType)
		})
	default:
		return unknownOpcode(o.core.Interface, opcode)
	}
}

func (o *DataControlOffer) RequestName(opcode uint16) string {
	switch opcode {
	case dataControlOfferOpReceive:
		return "receive"
	case dataControlOfferOpDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

func (o *DataControlOffer) EventName(opcode uint16) string {
	if opcode == dataControlOfferEvOffer {
		return "offer"
	}
	return "unknown"
}

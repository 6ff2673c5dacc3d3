// Package endpoint owns the socket and the object table for one side
// of the proxy: either the connection to a single real client, or the
// single connection upstream to the compositor. It knows nothing about
// interface semantics; it only frames bytes, queues fds, and tracks
// which local id maps to which object.
package endpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wlproxy/wlproxy/internal/wire"
)

// LocalRangeMax is the top of the id range allocated by the side that
// creates objects on an endpoint (the "client" of that endpoint, in
// the protocol's own terminology for id ownership).
const LocalRangeMax = 0xfeff_ffff

// ReservedRangeMin is the bottom of the range reserved for the peer's
// server-initiated allocations (events that carry a new_id).
const ReservedRangeMin = 0xff00_0000

// ErrNoClientObject is a fatal, connection-level error: a request
// named a receiver id absent from the endpoint's table.
var ErrNoClientObject = errors.New("endpoint: no client object for id")

// ErrNoServerObject is the server-side equivalent of ErrNoClientObject.
var ErrNoServerObject = errors.New("endpoint: no server object for id")

// ErrIDAlreadyBound is returned by Bind/BindAt when the id is already
// present in the table.
var ErrIDAlreadyBound = errors.New("endpoint: id already bound")

// ErrIDRangeExhausted is returned by NextID if the endpoint's
// allocation range has been exhausted. NextID only moves forward and
// never reuses released ids; the range is large enough that this is
// practically unreachable, but it is guarded against regardless.
var ErrIDRangeExhausted = errors.New("endpoint: id range exhausted")

// Role distinguishes which side of the protocol an Endpoint plays,
// which determines which id range it allocates from when it needs to
// mint a fresh id for an object it is itself creating.
type Role int

const (
	// RoleServer is the proxy's single upstream connection to the
	// real compositor. The proxy acts as the client of this endpoint:
	// it allocates from [1, LocalRangeMax].
	RoleServer Role = iota
	// RoleClient is the proxy's connection to one real client. The
	// proxy acts as the server of this endpoint (the real client
	// allocates its own ids off the wire): the proxy allocates from
	// [ReservedRangeMin, 0xffffffff] for objects it originates, such
	// as forwarded data offers.
	RoleClient
)

// Endpoint owns one socket direction: its inbound/outbound byte and fd
// buffers, and the local_id -> object table. A session runs one
// goroutine per direction, and dispatching a frame on one direction
// routinely touches the *other* direction's Endpoint (forwarding reads
// and writes to its table and outbound buffer), so the table and
// outbound methods take mu. The inbound side (Receive, PopFd) and Close
// take no lock; the inbound state is used only by the goroutine that
// reads this endpoint.
type Endpoint struct {
	Name string
	Role Role
	conn Conn

	mu    sync.Mutex
	table map[uint32]any

	nextID     uint32
	allocStart uint32
	allocEnd   uint32

	inbound    []byte
	inboundFds fdQueue

	outbound       []byte
	outboundFds    []int
	flushScheduled bool
	highWaterMark  int

	logger *slog.Logger
}

// New constructs an Endpoint around an already-connected Conn.
func New(name string, role Role, conn Conn, highWaterMark int, logger *slog.Logger) *Endpoint {
	e := &Endpoint{
		Name:          name,
		Role:          role,
		conn:          conn,
		table:         make(map[uint32]any),
		highWaterMark: highWaterMark,
		logger:        logger,
	}
	if role == RoleServer {
		e.allocStart, e.allocEnd = 1, LocalRangeMax
	} else {
		e.allocStart, e.allocEnd = ReservedRangeMin, 0xffffffff
	}
	e.nextID = e.allocStart
	return e
}

// NextID implements object.IDAllocator: it returns the next unused id
// in this endpoint's self-allocation range.
func (e *Endpoint) NextID() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if e.nextID > e.allocEnd || e.nextID == 0 {
			return 0, ErrIDRangeExhausted
		}
		id := e.nextID
		e.nextID++
		if _, exists := e.table[id]; !exists {
			return id, nil
		}
	}
}

// Bind implements object.IDAllocator: it installs obj at id, failing
// if the id is already present.
func (e *Endpoint) Bind(id uint32, obj any) error {
	return e.BindAt(id, obj)
}

// BindAt implements object.IDBinder: install obj at id, which may have
// been chosen by the peer rather than generated by NextID.
func (e *Endpoint) BindAt(id uint32, obj any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.table[id]; exists {
		return fmt.Errorf("%w: %d", ErrIDAlreadyBound, id)
	}
	e.table[id] = obj
	return nil
}

// Lookup returns the object bound at id, if any.
func (e *Endpoint) Lookup(id uint32) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.table[id]
	return obj, ok
}

// Release removes id from the table. Idempotent: releasing an id not
// present is a no-op.
func (e *Endpoint) Release(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.table, id)
}

// PopFd implements wire.FdSource, dequeuing the oldest buffered fd.
func (e *Endpoint) PopFd() (int, bool) {
	return e.inboundFds.pop()
}

// Receive performs one read into the inbound buffer and ancillary fd
// queue, then extracts as many complete frames as the buffer now
// contains. Partial frames remain buffered for the next call.
func (e *Endpoint) Receive() ([]wire.Frame, error) {
	var readBuf [65536]byte
	n, fds, err := e.conn.ReadMessage(readBuf[:])
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.inbound = append(e.inbound, readBuf[:n]...)
	}
	for _, fd := range fds {
		e.inboundFds.push(fd)
	}

	frames, rest, err := wire.ExtractFrames(e.inbound)
	if err != nil {
		return nil, err
	}
	e.inbound = append([]byte{}, rest...)
	return frames, nil
}

// Enqueue appends a fully-framed message (header+payload) and its fds
// to the outbound buffer, and schedules a flush. Returns whether the
// outbound buffer is now over its configured high-water mark, which
// callers use to apply backpressure to the peer.
//
// Enqueue, Flush, FlushScheduled and OutboundLen all take mu: a
// session runs one goroutine per direction, and a handler invoked
// while dispatching an inbound frame on one direction commonly
// enqueues onto the *other* direction's endpoint (the default
// forwarder's whole job), so the outbound buffer is touched from both
// goroutines even though the table already needed the lock for the
// same reason.
func (e *Endpoint) Enqueue(header [wire.HeaderSize]byte, payload []byte, fds []int) (overHighWaterMark bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outbound = append(e.outbound, header[:]...)
	e.outbound = append(e.outbound, payload...)
	e.outboundFds = append(e.outboundFds, fds...)
	e.flushScheduled = true
	return e.highWaterMark > 0 && len(e.outbound) >= e.highWaterMark
}

// FlushScheduled reports and clears the single-shot flush flag, so the
// event loop enqueues at most one pending flush per endpoint per
// iteration regardless of how many messages were appended.
func (e *Endpoint) FlushScheduled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.flushScheduled {
		return false
	}
	e.flushScheduled = false
	return true
}

// Flush writes the entire outbound buffer (and queued fds) to the
// socket and clears it.
func (e *Endpoint) Flush() error {
	e.mu.Lock()
	if len(e.outbound) == 0 {
		e.mu.Unlock()
		return nil
	}
	out := e.outbound
	outFds := e.outboundFds
	e.outbound = nil
	e.outboundFds = nil
	e.mu.Unlock()

	_, err := e.conn.WriteMessage(out, outFds)
	if err != nil {
		return fmt.Errorf("%s: flush: %w", e.Name, err)
	}
	return nil
}

// OutboundLen reports the current outbound buffer size in bytes, used
// by tests asserting the bounded-growth property and by the session's
// backpressure check.
func (e *Endpoint) OutboundLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outbound)
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// fdQueue is a simple FIFO of pending inbound fds.
type fdQueue struct {
	fds []int
}

func (q *fdQueue) push(fd int) {
	q.fds = append(q.fds, fd)
}

func (q *fdQueue) pop() (int, bool) {
	if len(q.fds) == 0 {
		return 0, false
	}
	fd := q.fds[0]
	q.fds = q.fds[1:]
	return fd, true
}

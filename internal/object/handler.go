package object

// HandlerHolder is the single-writer re-entrancy guard around an
// object's current handler. The proxy's event loop is single-threaded
// and cooperative, so this is not a mutex guarding concurrent access —
// it is a borrow flag guarding against an object's own handler
// re-entering itself mid-dispatch (e.g. a handler that sends a request
// whose default forwarding triggers an event back onto the same
// object before the first call returns).
type HandlerHolder struct {
	handler  any
	borrowed bool
}

// Guard releases a borrow when done. Callers must call Release exactly
// once, normally via defer, immediately after a successful Borrow.
type Guard struct {
	holder *HandlerHolder
}

// Release ends the borrow, allowing a subsequent Borrow to succeed.
func (g Guard) Release() {
	if g.holder != nil {
		g.holder.borrowed = false
	}
}

// Set installs a handler, replacing any previous one. Set does not
// itself borrow; it is only valid to call between dispatches, never
// while a Guard is outstanding.
func (h *HandlerHolder) Set(handler any) {
	h.handler = handler
}

// Unset clears the current handler, reverting to the default handler
// for subsequent dispatch.
func (h *HandlerHolder) Unset() {
	h.handler = nil
}

// Borrow attempts to take the handler slot for the duration of one
// dispatch. It fails with ErrHandlerBorrowed if the slot is already
// borrowed, which happens only on re-entrant dispatch into the same
// object.
func (h *HandlerHolder) Borrow() (Guard, any, error) {
	if h.borrowed {
		return Guard{}, nil, ErrHandlerBorrowed
	}
	h.borrowed = true
	return Guard{holder: h}, h.handler, nil
}

// GetHandlerAnyRef borrows the slot and returns the installed handler
// as an opaque reference, for callers that only need to identify which
// handler is installed (e.g. tests asserting set_handler/unset_handler
// round trips) without dispatching through it.
func (h *HandlerHolder) GetHandlerAnyRef() (Guard, any, error) {
	return h.Borrow()
}

// IsBorrowed reports whether the slot is currently borrowed. Exposed
// for tests; dispatch code should prefer Borrow's error return.
func (h *HandlerHolder) IsBorrowed() bool {
	return h.borrowed
}

// Current returns the installed handler without taking a borrow. Valid
// to call once the caller already holds a Guard from Borrow, which is
// how a concrete object's HandleRequest/HandleEvent reaches its own
// typed handler after the registry dispatcher has already borrowed the
// slot on its behalf.
func (h *HandlerHolder) Current() any {
	return h.handler
}

// Package object implements the cross-endpoint object identity shared
// by every concrete Wayland interface the proxy understands: id
// allocation, destruction sequencing, and the single-writer handler
// slot that every dispatch goes through.
package object

import "errors"

// ErrorKind classifies the recoverable errors raised while decoding or
// dispatching a single message. Fatal connection-level failures
// (NoClientObject, NoServerObject) are reported as plain errors by the
// registry package instead, since they terminate the endpoint rather
// than the message.
type ErrorKind int

const (
	// KindHandlerBorrowed means the object's handler slot was already
	// borrowed when dispatch tried to invoke it (re-entrant call). The
	// message is dropped; the connection survives.
	KindHandlerBorrowed ErrorKind = iota
	// KindWrongMessageSize means a declared argument ran past the end
	// of the payload, or bytes remained once all arguments were read.
	KindWrongMessageSize
	// KindWrongObjectType means an object/new_id argument resolved to
	// an id bound to a different interface than the signature expects.
	KindWrongObjectType
	// KindGenerateServerID means id allocation on the server endpoint
	// collided with an already-bound id.
	KindGenerateServerID
	// KindGenerateClientID is the client-side equivalent of
	// KindGenerateServerID.
	KindGenerateClientID
	// KindReceiverNoServerID means a message to be forwarded to the
	// server names an object that has no server-side id (one never
	// generated, or one already released).
	KindReceiverNoServerID
	// KindReceiverNoClientID is the client-side equivalent of
	// KindReceiverNoServerID.
	KindReceiverNoClientID
)

func (k ErrorKind) String() string {
	switch k {
	case KindHandlerBorrowed:
		return "HandlerBorrowed"
	case KindWrongMessageSize:
		return "WrongMessageSize"
	case KindWrongObjectType:
		return "WrongObjectType"
	case KindGenerateServerID:
		return "GenerateServerId"
	case KindGenerateClientID:
		return "GenerateClientId"
	case KindReceiverNoServerID:
		return "ReceiverNoServerId"
	case KindReceiverNoClientID:
		return "ReceiverNoClientId"
	default:
		return "Unknown"
	}
}

// Error wraps an ErrorKind with the context of which interface and
// message produced it.
type Error struct {
	Kind      ErrorKind
	Interface string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + " on " + e.Interface + "." + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + " on " + e.Interface + "." + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, object.ErrHandlerBorrowed) style matching
// against a bare ErrorKind sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error for the given kind and context.
func New(kind ErrorKind, iface, message string, cause error) *Error {
	return &Error{Kind: kind, Interface: iface, Message: message, Err: cause}
}

// Sentinel errors for errors.Is comparisons against a bare kind,
// independent of interface/message context.
var (
	ErrHandlerBorrowed     = &Error{Kind: KindHandlerBorrowed}
	ErrWrongMessageSize    = &Error{Kind: KindWrongMessageSize}
	ErrWrongObjectType     = &Error{Kind: KindWrongObjectType}
	ErrGenerateServerID    = &Error{Kind: KindGenerateServerID}
	ErrGenerateClientID    = &Error{Kind: KindGenerateClientID}
	ErrReceiverNoServerID  = &Error{Kind: KindReceiverNoServerID}
	ErrReceiverNoClientID  = &Error{Kind: KindReceiverNoClientID}
)

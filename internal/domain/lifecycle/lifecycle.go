// Package lifecycle implements the four-state destroy/delete_id
// handshake every object goes through: Active -> LocalDestroyRequested
// -> PendingDeleteId -> Released, or straight to Released on endpoint
// teardown. It is the authoritative state machine; object.Core holds
// two destroy booleans of its own, which the callers of this package
// set (this package does not touch Core).
package lifecycle

import "fmt"

// State is one of the four lifecycle states an object can occupy.
type State int

const (
	// Active is the initial and steady state.
	Active State = iota
	// LocalDestroyRequested is entered when the client side has sent
	// a destroy request, before the proxy's matching destroy to the
	// server has been acknowledged.
	LocalDestroyRequested
	// PendingDeleteId is entered once the proxy has forwarded a
	// destroy that targets the server and is waiting for
	// wl_display.delete_id.
	PendingDeleteId
	// Released is terminal: the object has been dropped from both
	// tables.
	Released
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case LocalDestroyRequested:
		return "LocalDestroyRequested"
	case PendingDeleteId:
		return "PendingDeleteId"
	case Released:
		return "Released"
	default:
		return "Unknown"
	}
}

// ErrInvalidTransition is returned when an event is applied to a
// Controller in a state that event cannot legally occur in.
type ErrInvalidTransition struct {
	From  State
	Event string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("lifecycle: %s is not valid from state %s", e.Event, e.From)
}

// Releaser performs the side effects of reaching Released: dropping
// the id from both endpoint tables and forwarding delete_id to the
// client. A concrete object in pkg/wlproto supplies this.
type Releaser interface {
	ReleaseServerTableEntry()
	ReleaseClientTableEntry()
	ForwardDeleteIDToClient() error
}

// Controller drives one object's lifecycle state.
type Controller struct {
	state State
}

// NewController starts a Controller in the Active state.
func NewController() *Controller {
	return &Controller{state: Active}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// ClientDestroy applies the "client sends destroy" event: Active ->
// LocalDestroyRequested. The caller is responsible for forwarding the
// destroy request to the server and marking the object's Core
// destroyed; this only tracks the state transition.
func (c *Controller) ClientDestroy() error {
	if c.state != Active {
		return &ErrInvalidTransition{From: c.state, Event: "client destroy"}
	}
	c.state = LocalDestroyRequested
	return nil
}

// ServerDestroyEmitted applies the "proxy emits a destroy targeting
// the server" event: Active or LocalDestroyRequested -> PendingDeleteId.
// From Active this covers the case where the proxy itself originates the
// destroy (e.g. releasing an object it created) without an intervening
// client destroy; from LocalDestroyRequested it is the forward of a
// client's destroy.
func (c *Controller) ServerDestroyEmitted() error {
	switch c.state {
	case Active, LocalDestroyRequested:
		c.state = PendingDeleteId
		return nil
	default:
		return &ErrInvalidTransition{From: c.state, Event: "server destroy emitted"}
	}
}

// DeleteIDReceived applies "server emits delete_id(id)":
// PendingDeleteId -> Released, performing the table cleanup and
// forwarding through releaser.
func (c *Controller) DeleteIDReceived(releaser Releaser) error {
	if c.state != PendingDeleteId {
		return &ErrInvalidTransition{From: c.state, Event: "delete_id received"}
	}
	releaser.ReleaseServerTableEntry()
	if err := releaser.ForwardDeleteIDToClient(); err != nil {
		return fmt.Errorf("lifecycle: forward delete_id: %w", err)
	}
	releaser.ReleaseClientTableEntry()
	c.state = Released
	return nil
}

// EndpointTornDown applies "endpoint torn down": any state -> Released,
// dropping the object without further traffic. Safe to call from any
// state, including Released itself (idempotent).
func (c *Controller) EndpointTornDown(releaser Releaser) {
	if c.state == Released {
		return
	}
	releaser.ReleaseServerTableEntry()
	releaser.ReleaseClientTableEntry()
	c.state = Released
}

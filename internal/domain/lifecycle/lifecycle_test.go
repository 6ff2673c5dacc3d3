package lifecycle

import "testing"

type recordingReleaser struct {
	releasedServer bool
	releasedClient bool
	forwardCalled  bool
	forwardErr     error
}

func (r *recordingReleaser) ReleaseServerTableEntry() { r.releasedServer = true }
func (r *recordingReleaser) ReleaseClientTableEntry() { r.releasedClient = true }
func (r *recordingReleaser) ForwardDeleteIDToClient() error {
	r.forwardCalled = true
	return r.forwardErr
}

// TestController_DeleteIDRoundTrip exercises scenario S4: client
// destroy -> proxy forwards -> server delete_id -> release both
// sides and forward delete_id to the client.
func TestController_DeleteIDRoundTrip(t *testing.T) {
	c := NewController()

	if err := c.ClientDestroy(); err != nil {
		t.Fatalf("ClientDestroy: %v", err)
	}
	if c.State() != LocalDestroyRequested {
		t.Fatalf("state = %v, want LocalDestroyRequested", c.State())
	}

	if err := c.ServerDestroyEmitted(); err != nil {
		t.Fatalf("ServerDestroyEmitted: %v", err)
	}
	if c.State() != PendingDeleteId {
		t.Fatalf("state = %v, want PendingDeleteId", c.State())
	}

	r := &recordingReleaser{}
	if err := c.DeleteIDReceived(r); err != nil {
		t.Fatalf("DeleteIDReceived: %v", err)
	}
	if c.State() != Released {
		t.Fatalf("state = %v, want Released", c.State())
	}
	if !r.releasedServer || !r.releasedClient || !r.forwardCalled {
		t.Errorf("expected full release + forward, got %+v", r)
	}
}

func TestController_DeleteIDReceived_WrongStateFails(t *testing.T) {
	c := NewController()
	r := &recordingReleaser{}
	if err := c.DeleteIDReceived(r); err == nil {
		t.Fatal("expected an error applying delete_id from Active")
	}
}

func TestController_EndpointTornDown_FromAnyState(t *testing.T) {
	for _, start := range []State{Active, LocalDestroyRequested, PendingDeleteId} {
		c := &Controller{state: start}
		r := &recordingReleaser{}
		c.EndpointTornDown(r)
		if c.State() != Released {
			t.Errorf("from %v: state = %v, want Released", start, c.State())
		}
		if !r.releasedServer || !r.releasedClient {
			t.Errorf("from %v: expected both table entries released", start)
		}
	}
}

func TestController_EndpointTornDown_IdempotentWhenAlreadyReleased(t *testing.T) {
	c := &Controller{state: Released}
	r := &recordingReleaser{}
	c.EndpointTornDown(r)
	if r.releasedServer || r.releasedClient || r.forwardCalled {
		t.Error("expected no side effects when already Released")
	}
}

func TestController_ServerDestroyEmitted_DirectFromActive(t *testing.T) {
	// Covers the proxy originating a destroy without a prior client
	// destroy request (e.g. releasing a proxy-created object).
	c := NewController()
	if err := c.ServerDestroyEmitted(); err != nil {
		t.Fatalf("ServerDestroyEmitted: %v", err)
	}
	if c.State() != PendingDeleteId {
		t.Fatalf("state = %v, want PendingDeleteId", c.State())
	}
}

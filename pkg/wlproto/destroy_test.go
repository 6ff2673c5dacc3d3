package wlproto

import (
	"testing"

	"github.com/wlproxy/wlproxy/internal/domain/lifecycle"
	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/wire"
)

// TestHandleDestroyRequest_FullRoundTripReleasesBothTableEntries
// exercises scenario S4 end to end through a real object: a client
// destroy request must leave the lifecycle controller in
// PendingDeleteId (not stuck in LocalDestroyRequested) so the server's
// eventual delete_id is accepted and both table entries are released.
func TestHandleDestroyRequest_FullRoundTripReleasesBothTableEntries(t *testing.T) {
	serverConn := &fakeRegistryConn{}
	clientConn := &fakeRegistryConn{}
	server := endpoint.New("server", endpoint.RoleServer, serverConn, 0, testLogger())
	client := endpoint.New("client", endpoint.RoleClient, clientConn, 0, testLogger())

	seat := NewSeat()
	if err := seat.Core().SetClientID(5, client); err != nil {
		t.Fatalf("SetClientID: %v", err)
	}
	if err := seat.Core().GenerateServerID(server); err != nil {
		t.Fatalf("GenerateServerID: %v", err)
	}
	serverID := seat.Core().ServerID()

	dispatch := &registry.Dispatcher{Local: client, Peer: server, Table: NewDescriptorTable()}
	if err := seat.HandleRequest(dispatch, seatOpRelease, wire.NewParser(nil, client)); err != nil {
		t.Fatalf("HandleRequest(release): %v", err)
	}

	if got := seat.lc.State(); got != lifecycle.PendingDeleteId {
		t.Fatalf("lifecycle state after client destroy = %s, want %s", got, lifecycle.PendingDeleteId)
	}

	seat.releaseOnDeleteID(server, client)

	if got := seat.lc.State(); got != lifecycle.Released {
		t.Errorf("lifecycle state after delete_id = %s, want %s", got, lifecycle.Released)
	}
	if _, ok := server.Lookup(serverID); ok {
		t.Error("expected the server table entry to be released")
	}
	if _, ok := client.Lookup(5); ok {
		t.Error("expected the client table entry to be released")
	}
}

// TestHandleDestroyRequest_NotForwardedStaysLocalDestroyRequested
// covers the synthetic-object case: when ForwardToServer is false, no
// destroy actually reaches the server, so there is no delete_id ever
// coming back - the controller correctly stays in
// LocalDestroyRequested rather than advancing to a state that expects
// a round trip that will never happen.
func TestHandleDestroyRequest_NotForwardedStaysLocalDestroyRequested(t *testing.T) {
	clientConn := &fakeRegistryConn{}
	client := endpoint.New("client", endpoint.RoleClient, clientConn, 0, testLogger())

	seat := NewSeat()
	if err := seat.Core().SetClientID(5, client); err != nil {
		t.Fatalf("SetClientID: %v", err)
	}
	seat.Core().ForwardToServer = false

	dispatch := &registry.Dispatcher{Local: client, Peer: nil, Table: NewDescriptorTable()}
	if err := seat.HandleRequest(dispatch, seatOpRelease, wire.NewParser(nil, client)); err != nil {
		t.Fatalf("HandleRequest(release): %v", err)
	}

	if got := seat.lc.State(); got != lifecycle.LocalDestroyRequested {
		t.Errorf("lifecycle state = %s, want %s", got, lifecycle.LocalDestroyRequested)
	}
}

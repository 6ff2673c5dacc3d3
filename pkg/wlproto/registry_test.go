package wlproto

import (
	"log/slog"
	"os"
	"testing"

	"github.com/wlproxy/wlproxy/internal/domain/globalmap"
	"github.com/wlproxy/wlproxy/internal/endpoint"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRegistryConn is a minimal endpoint.Conn that only needs to
// support writes, since these tests only drive server->client events.
type fakeRegistryConn struct {
	written []byte
}

func (c *fakeRegistryConn) ReadMessage(buf []byte) (int, []int, error) { return 0, nil, nil }

func (c *fakeRegistryConn) WriteMessage(buf []byte, fds []int) (int, error) {
	c.written = append(c.written, buf...)
	return len(buf), nil
}

func (c *fakeRegistryConn) Close() error { return nil }

// newTestRegistry builds a Registry wired to fake server/client
// endpoints, with its core bound to a client id so registryEventsAdapter
// can actually emit events during the test.
func newTestRegistry(t *testing.T) (*Registry, *fakeRegistryConn) {
	table := NewDescriptorTable()
	reg := NewRegistry(table)

	serverConn := &fakeRegistryConn{}
	clientConn := &fakeRegistryConn{}
	server := endpoint.New("server", endpoint.RoleServer, serverConn, 0, testLogger())
	client := endpoint.New("client", endpoint.RoleClient, clientConn, 0, testLogger())

	reg.AttachMapper(server, client, testLogger())
	if err := reg.Core().SetClientID(1, client); err != nil {
		t.Fatalf("SetClientID: %v", err)
	}
	return reg, clientConn
}

func TestRegistry_HandleGlobal_NoFilterForwards(t *testing.T) {
	reg, clientConn := newTestRegistry(t)

	if err := reg.handleGlobal(7, "wl_shm", 2); err != nil {
		t.Fatalf("handleGlobal: %v", err)
	}
	if err := reg.clientEndpoint.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(clientConn.written) == 0 {
		t.Fatal("expected a wl_registry.global event to be forwarded to the client")
	}
}

func TestRegistry_HandleGlobal_FilterHidesMatchingGlobal(t *testing.T) {
	reg, clientConn := newTestRegistry(t)

	filter, err := globalmap.NewFilter([]globalmap.ConfiguredRule{
		{Name: "hide-shm", Condition: `interface == "wl_shm"`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	reg.Filter = filter

	if err := reg.handleGlobal(7, "wl_shm", 2); err != nil {
		t.Fatalf("handleGlobal: %v", err)
	}
	if err := reg.clientEndpoint.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(clientConn.written) != 0 {
		t.Errorf("expected the hidden global to produce no client event, got %d bytes", len(clientConn.written))
	}
}

func TestRegistry_HandleGlobal_FilterForwardsNonMatching(t *testing.T) {
	reg, clientConn := newTestRegistry(t)

	filter, err := globalmap.NewFilter([]globalmap.ConfiguredRule{
		{Name: "hide-shm", Condition: `interface == "wl_shm"`, Action: "hide"},
	})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	reg.Filter = filter

	if err := reg.handleGlobal(9, "wl_seat", 9); err != nil {
		t.Fatalf("handleGlobal: %v", err)
	}
	if err := reg.clientEndpoint.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(clientConn.written) == 0 {
		t.Fatal("expected a non-matching global to still be forwarded")
	}
}

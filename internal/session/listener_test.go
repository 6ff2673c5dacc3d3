package session

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/wlproxy/wlproxy/pkg/wlproto"
)

// startFakeCompositor accepts exactly one connection on path and reads
// (discarding) whatever it's sent, standing in for a real compositor
// long enough to let a Listener dial and pair a session with it.
func startFakeCompositor(t *testing.T, path string) net.Listener {
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("fake compositor listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return ln
}

func TestListener_ServeAcceptsAndPairsSession(t *testing.T) {
	dir := t.TempDir()
	upstreamPath := filepath.Join(dir, "upstream.sock")
	listenPath := filepath.Join(dir, "proxy.sock")

	upstream := startFakeCompositor(t, upstreamPath)
	defer upstream.Close()

	cfg := Config{Table: wlproto.NewDescriptorTable(), Logger: testLogger()}
	ln := NewListener(listenPath, upstreamPath, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- ln.Serve(ctx) }()

	// Give Serve a moment to bind before dialing.
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", listenPath)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial proxy listen socket: %v", err)
	}
	defer conn.Close()

	cancel()
	ln.Shutdown()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestListener_RemoveStaleSocketRejectsLiveListener(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if err := removeStaleSocket(path); err == nil {
		t.Error("expected removeStaleSocket to refuse to unlink a live listener's socket")
	}
}

func TestListener_RemoveStaleSocketNoopWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never-existed.sock")

	if err := removeStaleSocket(path); err != nil {
		t.Errorf("removeStaleSocket on a path with nothing listening: %v", err)
	}
}

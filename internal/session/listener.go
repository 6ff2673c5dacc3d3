package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/wlproxy/wlproxy/internal/endpoint"
)

// Listener accepts client connections on a unix-domain socket and, for
// each one, dials a fresh upstream connection to the real compositor
// and runs a Session pairing the two. Grounded on the accept-loop shape
// of other retrieved intercepting proxies (one goroutine per accepted
// connection, a shared WaitGroup for graceful drain on shutdown) rather
// than the teacher's stdio-pipe single-process model, since wlproxy is
// socket-to-socket rather than pipe-to-subprocess.
type Listener struct {
	SocketPath   string
	UpstreamPath string
	Config       Config

	logger *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	wg       sync.WaitGroup
	sessions uint64
}

// NewListener constructs a Listener. logger defaults to slog.Default()
// if nil.
func NewListener(socketPath, upstreamPath string, cfg Config, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{SocketPath: socketPath, UpstreamPath: upstreamPath, Config: cfg, logger: logger}
}

// Serve binds the listening socket and accepts connections until ctx
// is cancelled or Accept fails for a reason other than the listener
// having been closed by Shutdown/ctx cancellation. It blocks.
func (l *Listener) Serve(ctx context.Context) error {
	if err := removeStaleSocket(l.SocketPath); err != nil {
		return fmt.Errorf("listener: %w", err)
	}

	ln, err := net.Listen("unix", l.SocketPath)
	if err != nil {
		return fmt.Errorf("listener: listen on %s: %w", l.SocketPath, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	l.logger.Info("listening", "socket_path", l.SocketPath, "upstream_socket_path", l.UpstreamPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wg.Wait()
				return nil
			}
			return fmt.Errorf("listener: accept: %w", err)
		}
		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			l.logger.Error("accepted connection is not a unix socket, closing")
			_ = conn.Close()
			continue
		}
		l.wg.Add(1)
		go l.handle(ctx, unixConn)
	}
}

// Shutdown closes the listening socket, causing Serve's Accept loop to
// return, then waits for every in-flight session to finish (each
// session's Run observes ctx cancellation and tears itself down; the
// caller is expected to have cancelled the context passed to Serve
// before or shortly after calling Shutdown).
func (l *Listener) Shutdown() {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	l.wg.Wait()
}

func (l *Listener) handle(ctx context.Context, clientConn *net.UnixConn) {
	defer l.wg.Done()
	defer clientConn.Close()

	serverConn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: l.UpstreamPath, Net: "unix"})
	if err != nil {
		l.logger.Error("failed to dial upstream compositor", "upstream_socket_path", l.UpstreamPath, "error", err)
		return
	}
	defer serverConn.Close()

	id := fmt.Sprintf("session-%d", atomic.AddUint64(&l.sessions, 1))
	logger := l.logger.With("session_id", id)

	cfg := l.Config
	cfg.Logger = l.logger

	sess, err := New(id, endpoint.NewUnixConn(serverConn), endpoint.NewUnixConn(clientConn), cfg)
	if err != nil {
		logger.Error("failed to construct session", "error", err)
		return
	}

	if cfg.Metrics != nil {
		cfg.Metrics.ActiveSessions.Inc()
		defer cfg.Metrics.ActiveSessions.Dec()
	}

	logger.Info("session started")
	if err := sess.Run(ctx); err != nil {
		logger.Warn("session ended with error", "error", err)
	} else {
		logger.Info("session ended")
	}
}

// removeStaleSocket unlinks a pre-existing socket file at path, the
// conventional handling for a proxy that may be restarted against the
// same $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY path its previous instance
// used. It is not an error for the path to be absent.
func removeStaleSocket(path string) error {
	if path == "" {
		return errors.New("empty socket path")
	}
	if _, err := net.Dial("unix", path); err == nil {
		return fmt.Errorf("a proxy (or compositor) is already listening on %s", path)
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

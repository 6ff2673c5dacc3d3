// Package session owns the one piece the protocol engine's leaf
// packages deliberately don't: the per-client wiring that turns a pair
// of endpoints into a running proxy. It installs the display object at
// id 1 on both sides, configures the registry's synthetic globals and
// declarative filter, and runs the two-goroutine event loop (§5) that
// reads frames off one socket, dispatches them, and enqueues the
// forwarded result onto the other.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wlproxy/wlproxy/internal/adapter/outbound/audit"
	"github.com/wlproxy/wlproxy/internal/adapter/outbound/state"
	"github.com/wlproxy/wlproxy/internal/domain/globalmap"
	"github.com/wlproxy/wlproxy/internal/endpoint"
	"github.com/wlproxy/wlproxy/internal/registry"
	"github.com/wlproxy/wlproxy/internal/telemetry"
	"github.com/wlproxy/wlproxy/internal/wire"
	"github.com/wlproxy/wlproxy/pkg/wlproto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SyntheticGlobal is one global the proxy advertises to every client
// itself, served locally per §4.5. Config-layer types are translated
// into this plain shape by the caller so this package never imports
// internal/config (which would invert the dependency direction the
// CLI layer already establishes).
type SyntheticGlobal struct {
	Interface string
	Version   uint32
}

// Config bundles everything a Session needs beyond the two live
// connections: the shared, read-only parts every session in the
// listener's pool is constructed with.
type Config struct {
	// Table is the interface descriptor table wl_registry.bind
	// resolves names against.
	Table *registry.Table
	// SyntheticGlobals are advertised to the client immediately after
	// it sends get_registry, on top of whatever the real compositor
	// advertises.
	SyntheticGlobals []SyntheticGlobal
	// Filter, optionally, supplements the programmatic global mapper
	// API with a declarative hide/forward policy (§4.5).
	Filter *globalmap.Filter
	// HighWaterMarkBytes bounds each endpoint's outbound buffer (§5).
	// Zero disables backpressure.
	HighWaterMarkBytes int
	// Metrics, optionally, receives per-session Prometheus
	// observations. A nil Metrics disables all recording.
	Metrics *telemetry.Metrics
	// OtelMetrics, optionally, mirrors DispatchTotal through the
	// OpenTelemetry metrics SDK (stdout exporter) alongside Metrics'
	// Prometheus collectors.
	OtelMetrics *telemetry.OtelMetrics
	// Audit, optionally, receives a DispatchRecord per frame. A nil
	// Audit disables audit records.
	Audit audit.Store
	// Tracer, optionally, receives one span per dispatched frame.
	// Defaults to telemetry.NoopTracer() so dispatchOne never needs a
	// nil check.
	Tracer trace.Tracer
	// State, optionally, persists the interface/version/name of every
	// synthetic global this proxy has ever handed out, across restarts
	// (§9's state.json). Client-global-names are inherently
	// per-connection in the wire protocol, so this is a historical
	// record for introspection/audit rather than a cache Mapper
	// replays verbatim on the next connection.
	State *state.FileStateStore
	// Logger is the base logger every session derives its own
	// session_id-scoped logger from. Defaults to slog.Default().
	Logger *slog.Logger
	// BackpressurePollInterval controls how often a suspended read
	// loop rechecks whether the peer's outbound buffer has drained
	// below HighWaterMarkBytes. Defaults to 2ms.
	BackpressurePollInterval time.Duration
}

func (c Config) pollInterval() time.Duration {
	if c.BackpressurePollInterval > 0 {
		return c.BackpressurePollInterval
	}
	return 2 * time.Millisecond
}

// Session is one accepted client paired with its own dedicated
// upstream connection: one client Endpoint, one server Endpoint, and
// the display/registry object graph rooted at id 1 on both.
//
// This proxy dials a fresh upstream connection per accepted client
// rather than sharing a single server endpoint across every session
// (§3's "a proxy process hosts exactly one server endpoint" is read,
// per DESIGN.md, as "exactly one per session" — the only reading
// consistent with §1's "opens a paired upstream connection ... for
// each client"). A server-endpoint disconnect is therefore fatal to
// this Session alone, not to sibling sessions.
type Session struct {
	ID string

	server *endpoint.Endpoint
	client *endpoint.Endpoint

	display *wlproto.Display
	reg     *wlproto.Registry

	cfg    Config
	logger *slog.Logger
}

// New constructs a Session around two already-connected sockets and
// installs the well-known display object at id 1 on both endpoint
// tables. The Session does not start reading until Run is called.
func New(id string, serverConn, clientConn endpoint.Conn, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NoopTracer()
	}

	s := &Session{ID: id, cfg: cfg, logger: logger}
	s.server = endpoint.New("server", endpoint.RoleServer, serverConn, cfg.HighWaterMarkBytes, logger)
	s.client = endpoint.New("client", endpoint.RoleClient, clientConn, cfg.HighWaterMarkBytes, logger)

	newRegistry := func() *wlproto.Registry {
		r := wlproto.NewRegistry(cfg.Table)
		r.Filter = cfg.Filter
		r.AttachMapper(s.server, s.client, logger)
		if cfg.Metrics != nil {
			r.Mapper.SetMetrics(cfg.Metrics)
		}
		s.reg = r
		return r
	}
	s.display = wlproto.NewDisplay(newRegistry)
	s.display.Handler = syntheticGlobalsHandler{session: s}

	if err := s.display.Core().SetServerID(1, s.server); err != nil {
		return nil, fmt.Errorf("session %s: install display on server endpoint: %w", id, err)
	}
	if err := s.display.Core().SetClientID(1, s.client); err != nil {
		return nil, fmt.Errorf("session %s: install display on client endpoint: %w", id, err)
	}
	return s, nil
}

// syntheticGlobalsHandler wraps the default get_registry handling to
// advertise the session's configured synthetic globals right after the
// real get_registry request is forwarded upstream and the new
// Registry's client id is live. It cannot do this inside Config's
// newRegistry closure: that runs before wl_display.HandleRequest has
// assigned the Registry its client id, and EmitGlobal requires one.
type syntheticGlobalsHandler struct {
	wlproto.DefaultDisplayHandler
	session *Session
}

func (h syntheticGlobalsHandler) HandleGetRegistry(d *registry.Dispatcher, disp *wlproto.Display, reg *wlproto.Registry) error {
	if err := h.DefaultDisplayHandler.HandleGetRegistry(d, disp, reg); err != nil {
		return err
	}
	for _, g := range h.session.cfg.SyntheticGlobals {
		name, err := reg.Mapper.AddSyntheticGlobal(g.Interface, g.Version)
		if err != nil {
			h.session.logger.Warn("failed to advertise synthetic global", "interface", g.Interface, "version", g.Version, "error", err)
			continue
		}
		h.session.recordSyntheticGlobal(g.Interface, g.Version, name)
	}
	return nil
}

// recordSyntheticGlobal best-effort persists that interface/version was
// handed out as name, for operators inspecting state.json; a failure
// to load or save is logged, never fatal to the session.
func (s *Session) recordSyntheticGlobal(iface string, version, name uint32) {
	if s.cfg.State == nil {
		return
	}
	st, err := s.cfg.State.Load()
	if err != nil {
		s.logger.Warn("failed to load state for synthetic global record", "error", err)
		return
	}
	st.SetGlobalName(iface, version, name)
	if err := s.cfg.State.Save(st); err != nil {
		s.logger.Warn("failed to save synthetic global record", "error", err)
	}
}

// Run drives the session's two directions until either side's
// connection fails or ctx is cancelled. It always returns once both
// directions have stopped; a clean shutdown (context cancellation, or
// a peer closing its write side) returns nil.
//
// Both directions block in their own Endpoint.Receive call, a real
// socket read with no context awareness, so cancellation alone can't
// unblock them: the moment either direction exits for any reason,
// closeBoth forces both sockets closed, which is what actually wakes
// the sibling goroutine's pending read.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closeBoth := sync.OnceFunc(func() {
		_ = s.client.Close()
		_ = s.server.Close()
	})
	go func() {
		<-ctx.Done()
		closeBoth()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- s.pump(ctx, registry.DirectionRequest, s.client, s.server) }()
	go func() { errCh <- s.pump(ctx, registry.DirectionEvent, s.server, s.client) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil && !isShutdownErr(err) {
			firstErr = err
		}
		cancel()
		closeBoth()
	}
	return firstErr
}

func isShutdownErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// pump is one direction's half of the event loop: block for readable
// frames on src, dispatch each against src's table, flush whatever the
// dispatch enqueued on dst, and apply backpressure before the next
// read if dst's outbound buffer is over its high-water mark.
//
// dir, src and dst are threaded through explicitly (rather than
// re-derived from a Role check) because the two goroutines are
// otherwise identical code running with Local/Peer swapped — exactly
// the shape the registry.Dispatcher itself is built around.
func (s *Session) pump(ctx context.Context, dir registry.Direction, src, dst *endpoint.Endpoint) error {
	dispatch := &registry.Dispatcher{Local: src, Peer: dst, Table: s.cfg.Table}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.awaitDrain(ctx, dst); err != nil {
			return err
		}

		frames, err := src.Receive()
		if err != nil {
			if errors.Is(err, wire.ErrWrongMessageSize) {
				s.logger.Error("malformed frame, tearing down connection", "direction", dirLabel(dir), "error", err)
				var frameErr *wire.FrameError
				var receiver uint32
				if errors.As(err, &frameErr) {
					receiver = frameErr.Receiver
				}
				if sendErr := wlproto.SendError(src, receiver, 0, err.Error()); sendErr != nil {
					s.logger.Warn("failed to send display.error before teardown", "error", sendErr)
				}
			}
			return err
		}

		for _, frame := range frames {
			if err := s.dispatchOne(dispatch, dir, src, frame); err != nil {
				return err
			}
		}

		if dst.FlushScheduled() {
			if err := dst.Flush(); err != nil {
				return err
			}
		}
	}
}

// awaitDrain blocks, polling at cfg.pollInterval, while dst's outbound
// buffer sits at or above the configured high-water mark — the
// backpressure mechanism of §5: a slow peer suspends the inbound side
// that's filling its buffer, rather than letting it grow unbounded.
func (s *Session) awaitDrain(ctx context.Context, dst *endpoint.Endpoint) error {
	mark := s.cfg.HighWaterMarkBytes
	if mark <= 0 {
		return nil
	}
	for dst.OutboundLen() >= mark {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.pollInterval()):
		}
	}
	return nil
}

// dispatchOne runs one frame through the dispatcher, handling the two
// outcomes the registry package distinguishes: a *registry.ErrFatal
// reports a display.error to src and returns the error so pump tears
// this direction down (and, by extension, the whole session, since
// Run cancels the sibling goroutine on any direction's exit); anything
// else is logged, audited, and the message is dropped while the
// connection survives.
func (s *Session) dispatchOne(dispatch *registry.Dispatcher, dir registry.Direction, src *endpoint.Endpoint, frame wire.Frame) error {
	_, span := s.cfg.Tracer.Start(context.Background(), "wlproxy.dispatch",
		trace.WithAttributes(
			attribute.String("wlproxy.direction", dirLabel(dir)),
			attribute.Int64("wlproxy.receiver_id", int64(frame.Receiver)),
			attribute.Int64("wlproxy.opcode", int64(frame.Opcode)),
		))
	defer span.End()

	start := time.Now()
	err := dispatch.Dispatch(dir, frame)
	s.record(dir, src, frame, err, time.Since(start))

	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if registry.IsFatal(err) {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("fatal dispatch error, tearing down connection", "direction", dirLabel(dir), "receiver", frame.Receiver, "error", err)
		if sendErr := wlproto.SendError(src, frame.Receiver, 0, err.Error()); sendErr != nil {
			s.logger.Warn("failed to send display.error before teardown", "error", sendErr)
		}
		return err
	}
	span.SetStatus(codes.Error, err.Error())
	s.logger.Warn("dispatch error, dropping frame", "direction", dirLabel(dir), "receiver", frame.Receiver, "error", err)
	return nil
}

// record emits one audit.DispatchRecord and one set of metric
// observations for a dispatched frame. Both sinks are optional; a
// Config with neither set pays only the cost of the outcome
// classification.
func (s *Session) record(dir registry.Direction, src *endpoint.Endpoint, frame wire.Frame, dispatchErr error, elapsed time.Duration) {
	if s.cfg.Metrics == nil && s.cfg.Audit == nil && s.cfg.OtelMetrics == nil {
		return
	}

	direction := audit.DirectionRequest
	metricDir := "request"
	if dir == registry.DirectionEvent {
		direction = audit.DirectionEvent
		metricDir = "event"
	}

	iface, msgName := "", ""
	if obj, ok := src.Lookup(frame.Receiver); ok {
		if ro, ok := obj.(registry.Object); ok {
			iface = ro.Core().Interface
			if dir == registry.DirectionRequest {
				msgName = ro.RequestName(frame.Opcode)
			} else {
				msgName = ro.EventName(frame.Opcode)
			}
		}
	}

	outcome := audit.OutcomeForwarded
	switch {
	case dispatchErr != nil && registry.IsFatal(dispatchErr):
		outcome = audit.OutcomeError
	case dispatchErr != nil:
		outcome = audit.OutcomeDropped
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.DispatchTotal.WithLabelValues(metricDir, string(outcome)).Inc()
		s.cfg.Metrics.DispatchDuration.WithLabelValues(metricDir).Observe(elapsed.Seconds())
	}
	if s.cfg.OtelMetrics != nil {
		s.cfg.OtelMetrics.DispatchTotal.Add(context.Background(), 1,
			otelmetric.WithAttributes(
				attribute.String("direction", metricDir),
				attribute.String("outcome", string(outcome)),
			))
	}

	if s.cfg.Audit != nil {
		detail := ""
		if dispatchErr != nil {
			detail = dispatchErr.Error()
		}
		rec := audit.DispatchRecord{
			Timestamp:   time.Now(),
			SessionID:   s.ID,
			Interface:   iface,
			Opcode:      frame.Opcode,
			MessageName: msgName,
			Direction:   direction,
			ReceiverID:  frame.Receiver,
			Outcome:     outcome,
			Detail:      detail,
		}
		if err := s.cfg.Audit.Append(context.Background(), rec); err != nil {
			s.logger.Warn("audit append failed", "error", err)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.AuditAppendFailuresTotal.Inc()
			}
		}
	}
}

func dirLabel(dir registry.Direction) string {
	if dir == registry.DirectionRequest {
		return "request"
	}
	return "event"
}

package bridge

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quic-go/quic-go"

	"github.com/wku/fpy3/apphandler"
	"github.com/wku/fpy3/buffer"
	"github.com/wku/fpy3/executor"
	"github.com/wku/fpy3/metrics"
)

// EventKind tags a PendingEvent's variant.
type EventKind int

const (
	EventHeaders EventKind = iota
	EventData
	EventFin
)

// PendingEvent is one inbound observation queued from a transport thread
// for cooperative dispatch on the executor.
type PendingEvent struct {
	Kind    EventKind
	Stream  *StreamState
	Headers []buffer.Header
	Data    []byte

	next *PendingEvent
}

// ServerState is the pending-event queue and application wiring described
// once enqueued from a codec callback.
type ServerState struct {
	mu         sync.Mutex
	head, tail *PendingEvent

	Executor executor.Executor
	Handler  apphandler.Handler
	Debug    bool
	Logger   zerolog.Logger
	Metrics  *metrics.Registry
}

// NewServerState constructs a ServerState bound to one executor and one
// application handler. reg may be nil, in which case metrics are a no-op.
func NewServerState(exec executor.Executor, handler apphandler.Handler, debug bool, logger zerolog.Logger, reg *metrics.Registry) *ServerState {
	return &ServerState{Executor: exec, Handler: handler, Debug: debug, Logger: logger, Metrics: reg}
}

// Enqueue appends ev under the queue mutex, then requests exactly one
// executor wake. The wake may find the queue already
// drained by an earlier wake; Drain is a no-op on an empty queue, so this
// never double-dispatches.
func (s *ServerState) Enqueue(ev PendingEvent) {
	node := &ev
	s.mu.Lock()
	if s.tail != nil {
		s.tail.next = node
		s.tail = node
	} else {
		s.head, s.tail = node, node
	}
	s.mu.Unlock()
	s.Executor.ScheduleFromAnyThread(s.Drain)
}

// Drain atomically detaches the whole pending list, releases the mutex,
// then dispatches each event to the application handler.
// It must only ever run on the executor goroutine.
func (s *ServerState) Drain() {
	s.mu.Lock()
	head := s.head
	s.head, s.tail = nil, nil
	s.mu.Unlock()

	for ev := head; ev != nil; {
		next := ev.next
		s.dispatch(ev)
		ev = next
	}
}

// dispatch invokes one application callback for ev. A panicking handler
// is reported and swallowed so
// it cannot stall every other connection's events draining on the same
// executor.
func (s *ServerState) dispatch(ev *PendingEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.Metrics.IncHandlerPanics()
			s.Logger.Error().
				Interface("panic", r).
				Int64("streamID", ev.Stream.ID).
				Msg("application handler panicked; event dropped")
		}
	}()

	handle := ev.Stream.Handle()
	switch ev.Kind {
	case EventHeaders:
		hs := make([]apphandler.Header, len(ev.Headers))
		for i, h := range ev.Headers {
			hs[i] = apphandler.Header{Name: h.Name, Value: h.Value}
		}
		s.Handler.OnHeaders(handle, hs)
	case EventData:
		s.Handler.OnData(handle, ev.Data)
	case EventFin:
		s.Handler.OnFin(handle)
	}
}

// Server is the top-level object the embedding process constructs: it
// bundles a ServerState with the QUIC listener configuration the embedding
// process needs to supply.
type Server struct {
	*ServerState

	Host           string
	Port           int
	TLSConfig      *tls.Config
	IdleTimeout    time.Duration
	MaxBidiStreams int64
	MaxUniStreams  int64

	listener *quic.Listener

	mu       sync.Mutex
	conns    map[*ConnectionState]struct{}
	shutdown bool
}

// NewServer constructs a Server. tlsConfig must already have its
// certificate loaded and its NextProtos set to the ALPN offers this server
// advertises ("h3", "h3-29"); package config builds one such config from a
// cert/key file pair.
func NewServer(state *ServerState, tlsConfig *tls.Config, host string, port int, idleTimeout time.Duration, maxBidi, maxUni int64) *Server {
	return &Server{
		ServerState:    state,
		Host:           host,
		Port:           port,
		TLSConfig:      tlsConfig,
		IdleTimeout:    idleTimeout,
		MaxBidiStreams: maxBidi,
		MaxUniStreams:  maxUni,
		conns:          make(map[*ConnectionState]struct{}),
	}
}

// ProcessPending is the application-facing name for ServerState.Drain. The
// default executor.Loop calls Drain directly from its own scheduled
// callable, so this exists for API parity and for tests that want to drive
// dispatch without a running Loop goroutine.
func (srv *Server) ProcessPending() { srv.Drain() }

// Start binds the QUIC listener and begins accepting connections. It
// returns synchronously once the listener is up (or failed to start);
// Serve, run in its own goroutine by the caller, performs the accept loop.
func (srv *Server) Start(ctx context.Context) error {
	qc := &quic.Config{
		MaxIdleTimeout:        srv.IdleTimeout,
		MaxIncomingStreams:    srv.MaxBidiStreams,
		MaxIncomingUniStreams: srv.MaxUniStreams,
	}
	addr := netAddr(srv.Host, srv.Port)
	l, err := quic.ListenAddr(addr, srv.TLSConfig, qc)
	if err != nil {
		return errors.Wrap(ErrListenerStart, err.Error())
	}
	srv.listener = l
	srv.Logger.Info().Str("addr", addr).Msg("quic listener started")
	return nil
}

// Close stops accepting new connections and waits (bounded by ctx) for
// every in-flight connection to finish shutting down. It is safe to call
// more than once.
func (srv *Server) Close(ctx context.Context) error {
	srv.mu.Lock()
	if srv.shutdown {
		srv.mu.Unlock()
		return nil
	}
	srv.shutdown = true
	l := srv.listener
	srv.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}

	for {
		srv.mu.Lock()
		n := len(srv.conns)
		srv.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (srv *Server) trackConnection(cs *ConnectionState) {
	srv.mu.Lock()
	srv.conns[cs] = struct{}{}
	srv.mu.Unlock()
	srv.Metrics.IncConnections()
}

func (srv *Server) untrackConnection(cs *ConnectionState) {
	srv.mu.Lock()
	delete(srv.conns, cs)
	srv.mu.Unlock()
	srv.Metrics.DecConnections()
}

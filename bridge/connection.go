package bridge

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wku/fpy3/h3"
)

// quicConnection is the subset of quic.Connection the bridge needs from the
// transport. Narrowed to an interface so ConnectionState can be driven by
// an in-package fake in tests, the same way cloudflared's connection tests
// wrap quic.Connection.
type quicConnection interface {
	CloseWithError(code uint64, reason string) error
}

// ConnectionState is the per-connection HTTP/3 bootstrap and stream
// registry.
type ConnectionState struct {
	mu sync.Mutex

	Server *ServerState
	Quic   quicConnection
	Codec  *h3.Conn

	ID     string // uuid, for log correlation (cloudflared's connection/quic.go pattern)
	Logger zerolog.Logger

	controlID, qpackEncID, qpackDecID int64
	localControlStreams               map[int64]bool
	startedCount                      int

	ready    bool
	readyCh  chan struct{}
	closed   bool
	streams  map[int64]*StreamState
}

// NewConnectionState constructs a ConnectionState for a newly accepted QUIC
// connection. No codec exists yet; it is created in OnConnected.
func NewConnectionState(server *ServerState, quicConn quicConnection, logger zerolog.Logger) *ConnectionState {
	id := uuid.NewString()
	return &ConnectionState{
		Server:               server,
		Quic:                 quicConn,
		ID:                   id,
		Logger:               logger.With().Str("connID", id).Logger(),
		localControlStreams:  make(map[int64]bool),
		readyCh:              make(chan struct{}),
		streams:              make(map[int64]*StreamState),
	}
}

// Lock/Unlock expose the connection mutex to the transport and flush-engine
// code in this package; codec access and registry mutation always happen
// under it.
func (c *ConnectionState) Lock()   { c.mu.Lock() }
func (c *ConnectionState) Unlock() { c.mu.Unlock() }

// ReadyCh is closed exactly once, when the connection reaches READY.
// Stream-reader goroutines wait on it before feeding any bytes to the
// codec.
func (c *ConnectionState) ReadyCh() <-chan struct{} { return c.readyCh }

// IsReady reports the current readiness flag. Must be called under the
// connection lock to observe a consistent snapshot with other fields.
func (c *ConnectionState) IsReady() bool { return c.ready }

// OnConnected creates the codec instance in server mode. Must be called
// under the connection lock. Opening the three local unidirectional
// streams themselves is a transport operation (see transport.go); this
// only wires the codec's callbacks.
func (c *ConnectionState) OnConnected() {
	c.Codec = h3.NewServerConn(c.codecCallbacks())
}

// RegisterLocalControlStream records one of the server's own three
// unidirectional streams (control, QPACK-encoder, QPACK-decoder) and its
// StreamState. Callers then report the stream's start with
// OnLocalStreamStartComplete.
func (c *ConnectionState) RegisterLocalControlStream(id int64, t transportStream) *StreamState {
	ss := NewStreamState(id, c, t, true, true)
	c.streams[id] = ss
	c.localControlStreams[id] = true
	return ss
}

// localStreamKind identifies which of the three bootstrap streams id is.
type localStreamKind int

const (
	localControl localStreamKind = iota
	localQPACKEncoder
	localQPACKDecoder
)

// OnLocalStreamStartComplete advances the bootstrap state machine.
// Once all three local streams have started, it binds the codec's
// control/QPACK streams, flushes once, marks the connection READY, and
// releases every stream-reader goroutine blocked on ReadyCh. Must be
// called under the connection lock.
func (c *ConnectionState) OnLocalStreamStartComplete(id int64, kind localStreamKind) {
	switch kind {
	case localControl:
		c.controlID = id
	case localQPACKEncoder:
		c.qpackEncID = id
	case localQPACKDecoder:
		c.qpackDecID = id
	}
	c.startedCount++
	if c.startedCount != 3 {
		return
	}

	c.Codec.BindControlStream(c.controlID)
	c.Codec.BindQPACKStreams(c.qpackEncID, c.qpackDecID)
	flushConnection(c)

	c.ready = true
	close(c.readyCh)
}

// RegisterPeerStream inserts a freshly observed peer-initiated
// bidirectional (request) stream into the registry. The registry is a
// plain growable map keyed by stream id rather than the fixed-size array
// some HTTP/3 bridge implementations use — see DESIGN.md for why that
// fixed cap is treated as a bug, not a target, here. There is accordingly
// no artificial capacity error: the QUIC transport's own peer-bidi stream
// limit (configured in package config) is the only cap.
func (c *ConnectionState) RegisterPeerStream(id int64, t transportStream) *StreamState {
	ss := NewStreamState(id, c, t, false, false)
	c.streams[id] = ss
	c.Codec.SetStreamUserData(id, ss)
	c.Server.Metrics.IncStreams()
	return ss
}

// Stream looks up a StreamState by id. Codec callbacks identify streams by
// id, not handle, so this is on the hot path of every inbound event.
func (c *ConnectionState) Stream(id int64) *StreamState {
	return c.streams[id]
}

// RemoveStream drops a stream from the registry once its transport
// shutdown-complete has fired.
func (c *ConnectionState) RemoveStream(id int64) {
	if _, ok := c.streams[id]; ok {
		c.Server.Metrics.DecStreams()
	}
	delete(c.streams, id)
	delete(c.localControlStreams, id)
}

// IsLocalControlFamily reports whether id is one of this connection's own
// three bootstrap streams, used by the flush engine's FIN gate:
// control/QPACK streams never carry an application-visible FIN.
func (c *ConnectionState) IsLocalControlFamily(id int64) bool {
	return c.localControlStreams[id]
}

// Shutdown tears the connection down. Idempotent: a second call is a no-op.
func (c *ConnectionState) Shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	for id, ss := range c.streams {
		if !ss.IsControlFamily {
			c.Server.Metrics.DecStreams()
		}
		delete(c.streams, id)
	}
}

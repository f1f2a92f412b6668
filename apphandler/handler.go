// Package apphandler defines the interface between the bridge core and the
// application-level request handler. Routing, body processing, and
// response construction are all out of scope for the core and live behind
// this boundary, the way cloudflared keeps its tunnel-origin proxying
// behind the connectionHandler interface in connection/connection.go.
package apphandler

// Header is a single request or response header field.
type Header struct {
	Name  []byte
	Value []byte
}

// Stream is the opaque handle the core passes to application callbacks.
// Handlers call back through it to submit a response; they must not retain
// it past the connection's lifetime, and the core owns tearing it down.
type Stream interface {
	// SendHeaders submits the response header block. fin indicates the
	// response has no body (the peer's stream FIN rides with these
	// headers).
	SendHeaders(headers []Header, fin bool) error
	// SendData appends a response body chunk. fin indicates this is the
	// last chunk; a zero-length chunk with fin=true is a valid pure-FIN
	// signal.
	SendData(data []byte, fin bool) error
	// StreamID returns the underlying QUIC stream id, mostly useful for
	// logging and correlating events across callbacks.
	StreamID() int64
}

// Handler is the external collaborator the core invokes as request events
// are decoded. Implementations must not block: they run on the
// application's single cooperative executor goroutine, so a
// slow OnHeaders/OnData/OnFin stalls every other connection's callbacks
// too.
type Handler interface {
	// OnHeaders is called exactly once per stream, before any OnData.
	OnHeaders(s Stream, headers []Header)
	// OnData is called zero or more times, in request-body byte order.
	OnData(s Stream, data []byte)
	// OnFin is called exactly once per stream, after every OnData.
	OnFin(s Stream)
}

// Package bridge is the transport-to-application bridge: it owns QUIC
// connections and streams, drives an HTTP/3 state machine on top of them
// (package h3), and exposes an asynchronous request/response interface to
// an apphandler.Handler through a cooperative executor.Executor.
package bridge

import "github.com/pkg/errors"

// ErrListenerStart is a transport-fatal error: the server could not bind
// its listener. Server.Start returns it synchronously; the server is
// unusable. TLS credentials are loaded earlier, by config.BuildTLSConfig,
// which reports its own error.
var ErrListenerStart = errors.New("bridge: listener failed to start")

// ErrStreamFailed marks a stream-local codec error: the
// stream is abandoned but the connection continues.
var ErrStreamFailed = errors.New("bridge: stream failed")

// ErrConnectionClosed is returned by StreamHandle operations once the
// owning connection has reached shutdown-complete.
var ErrConnectionClosed = errors.New("bridge: connection closed")

// ErrStreamClosed is returned by StreamHandle operations once the stream
// has been marked failed (a codec error or a failed QUIC write).
var ErrStreamClosed = errors.New("bridge: stream closed")

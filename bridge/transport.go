package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/quic-go/quic-go"
)

// sendStreamAdapter narrows a quic.SendStream (the server's own
// unidirectional control/QPACK streams) to transportStream, converting
// quic-go's distinct error-code type at the boundary. This mirrors the way
// quic/safe_stream.go wraps quic.Stream in SafeStreamCloser rather than
// passing the concrete type around.
type sendStreamAdapter struct{ s quic.SendStream }

func (a sendStreamAdapter) Write(p []byte) (int, error) { return a.s.Write(p) }
func (a sendStreamAdapter) Close() error                { return a.s.Close() }
func (a sendStreamAdapter) CancelWrite(code uint64)      { a.s.CancelWrite(quic.StreamErrorCode(code)) }

// bidiStreamAdapter narrows a quic.Stream (a peer-initiated request stream)
// to transportStream for the write side; the stream-reader goroutine below
// keeps the concrete quic.Stream for reading and cancellation.
type bidiStreamAdapter struct{ s quic.Stream }

func (a bidiStreamAdapter) Write(p []byte) (int, error) { return a.s.Write(p) }
func (a bidiStreamAdapter) Close() error                { return a.s.Close() }
func (a bidiStreamAdapter) CancelWrite(code uint64)      { a.s.CancelWrite(quic.StreamErrorCode(code)) }

func netAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Serve runs the listener's accept loop until ctx is cancelled or the
// listener is closed by Close. Start must have been called first.
func (srv *Server) Serve(ctx context.Context) error {
	for {
		qc, err := srv.listener.Accept(ctx)
		if err != nil {
			srv.mu.Lock()
			shuttingDown := srv.shutdown
			srv.mu.Unlock()
			if shuttingDown || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return pkgerrors.Wrap(err, "accept quic connection")
		}
		go srv.handleConnection(ctx, qc)
	}
}

// handleConnection drives one QUIC connection through the bootstrap state
// machine (HANDSHAKING -> BOOTSTRAPPING -> READY) and then its stream accept
// loops, until the connection is torn down.
func (srv *Server) handleConnection(ctx context.Context, qc quic.Connection) {
	cs := NewConnectionState(srv.ServerState, qc, srv.Logger)
	srv.trackConnection(cs)
	defer srv.untrackConnection(cs)

	cs.Lock()
	cs.OnConnected()
	cs.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := srv.bootstrapLocalStreams(connCtx, qc, cs); err != nil {
		cs.Logger.Error().Err(err).Msg("failed to open bootstrap unidirectional streams")
		_ = qc.CloseWithError(0, "bootstrap failed")
		return
	}
	cs.Lock()
	ready := cs.IsReady()
	cs.Unlock()
	cs.Logger.Debug().Bool("ready", ready).Msg("connection ready")

	var streamWG sync.WaitGroup
	eg, egCtx := errgroup.WithContext(connCtx)

	eg.Go(func() error {
		for {
			stream, err := qc.AcceptStream(egCtx)
			if err != nil {
				return nil
			}
			streamWG.Add(1)
			go func() {
				defer streamWG.Done()
				srv.serveRequestStream(egCtx, cs, stream)
			}()
		}
	})
	eg.Go(func() error {
		for {
			rs, err := qc.AcceptUniStream(egCtx)
			if err != nil {
				return nil
			}
			streamWG.Add(1)
			go func() {
				defer streamWG.Done()
				srv.servePeerUniStream(egCtx, cs, rs)
			}()
		}
	})

	_ = eg.Wait()
	cancel()
	streamWG.Wait()

	cs.Lock()
	cs.Shutdown()
	cs.Unlock()
	cs.Logger.Debug().Msg("connection shutdown complete")
}

// bootstrapLocalStreams opens the three server-initiated unidirectional
// streams in order (control, QPACK-encoder, QPACK-decoder) and drives each
// through OnLocalStreamStartComplete as soon as it opens. quic-go's
// OpenUniStreamSync blocks until the stream can be created, which is the
// synchronous equivalent of MsQuic's stream_start(immediate) completing.
func (srv *Server) bootstrapLocalStreams(ctx context.Context, qc quic.Connection, cs *ConnectionState) error {
	order := []localStreamKind{localControl, localQPACKEncoder, localQPACKDecoder}
	for _, kind := range order {
		s, err := qc.OpenUniStreamSync(ctx)
		if err != nil {
			return pkgerrors.Wrap(err, "open unidirectional stream")
		}
		id := int64(s.StreamID())
		cs.Lock()
		cs.RegisterLocalControlStream(id, sendStreamAdapter{s})
		cs.OnLocalStreamStartComplete(id, kind)
		cs.Unlock()
	}
	return nil
}

// serveRequestStream feeds one peer-initiated bidirectional (request)
// stream's bytes into the codec in order, deferring any delivery until the
// connection reaches READY. It runs for the lifetime of the stream's read
// side.
func (srv *Server) serveRequestStream(ctx context.Context, cs *ConnectionState, stream quic.Stream) {
	id := int64(stream.StreamID())

	cs.Lock()
	ss := cs.RegisterPeerStream(id, bidiStreamAdapter{stream})
	cs.Unlock()

	select {
	case <-cs.ReadyCh():
	case <-ctx.Done():
		return
	}

	buf := make([]byte, 16*1024)
	for {
		n, err := stream.Read(buf)
		fin := errors.Is(err, io.EOF)
		if n > 0 || fin {
			cs.Lock()
			if !ss.HasError {
				if _, rerr := cs.Codec.ReadStream(id, buf[:n], fin); rerr != nil {
					ss.HasError = true
					cs.Server.Metrics.IncCodecErrors()
					stream.CancelRead(0)
					cs.Logger.Debug().Int64("streamID", id).Err(pkgerrors.Wrap(ErrStreamFailed, rerr.Error())).Msg("malformed frame; stream failed")
				} else {
					flushConnection(cs)
				}
			}
			cs.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// servePeerUniStream feeds bytes from one of the peer's own unidirectional
// streams (its control stream or QPACK encoder/decoder streams) into the
// codec. These never produce application events; the codec classifies and,
// for the two QPACK streams, discards their contents outright (see h3's
// drainInbound).
func (srv *Server) servePeerUniStream(ctx context.Context, cs *ConnectionState, rs quic.ReceiveStream) {
	select {
	case <-cs.ReadyCh():
	case <-ctx.Done():
		return
	}

	id := int64(rs.StreamID())
	buf := make([]byte, 4096)
	for {
		n, err := rs.Read(buf)
		fin := errors.Is(err, io.EOF)
		if n > 0 || fin {
			cs.Lock()
			if _, rerr := cs.Codec.ReadStream(id, buf[:n], fin); rerr != nil {
				cs.Logger.Debug().Int64("streamID", id).Err(rerr).Msg("peer control/QPACK stream error, ignoring")
			}
			cs.Unlock()
		}
		if err != nil {
			return
		}
	}
}

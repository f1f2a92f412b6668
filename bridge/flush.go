package bridge

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/wku/fpy3/buffer"
	"github.com/wku/fpy3/h3"
)

// maxFlushBatches bounds one flush call to this many codec batches, so a
// misbehaving codec (or a reader that never reports EOF or would-block)
// cannot livelock the connection goroutine.
const maxFlushBatches = 100

// flushConnection drains the codec's write side into QUIC sends for
// whichever streams are ready, up to maxFlushBatches batches. Must be
// called with cs locked.
func flushConnection(cs *ConnectionState) {
	for i := 0; i < maxFlushBatches; i++ {
		id, fin, vecs, err := cs.Codec.WritevStream(8)
		if err != nil {
			if errors.Is(err, h3.ErrWouldBlock) {
				// The blocked stream has already been dropped from the
				// codec's ready queue; nothing more to flush right now.
				return
			}
			cs.Server.Metrics.IncCodecErrors()
			if ss := cs.Stream(id); ss != nil {
				ss.HasError = true
				cs.Logger.Debug().Int64("streamID", id).Err(pkgerrors.Wrap(ErrStreamFailed, err.Error())).Msg("codec write error; stream failed")
			}
			continue
		}
		if len(vecs) == 0 && !fin {
			return
		}

		ss := cs.Stream(id)
		if ss == nil {
			// The codec has bytes for a stream we no longer track (already
			// torn down); acknowledge and drop them.
			cs.Codec.AddWriteOffset(id, 0)
			continue
		}

		sc := buffer.NewSendContext(vecs)
		total := sc.TotalLength()
		cs.Codec.AddWriteOffset(id, total)

		sendFin := fin && !cs.IsLocalControlFamily(id)
		if total > 0 {
			if _, werr := ss.Transport.Write(sc.Flatten()); werr != nil {
				ss.HasError = true
				cs.Logger.Debug().Int64("streamID", id).Err(pkgerrors.Wrap(ErrStreamFailed, werr.Error())).Msg("quic write failed; stream failed")
				ss.ReapFinished()
				continue
			}
			cs.Server.Metrics.AddBytesFlushed(total)
		}
		if sendFin {
			ss.ResponseFin = true
			_ = ss.Transport.Close()
		}
		// Reap only after the vector copy (inside NewSendContext) has
		// already happened, so chunks are never freed while the codec
		// might still hold a borrowed pointer into them.
		ss.ReapFinished()
	}
}

// flushStream is the entry point StreamHandle uses after submitting
// response headers or data for one stream. The codec's write-readiness
// queue (package h3) already orders batches fairly across every ready
// stream, so a dedicated per-stream-only drain would only save a little
// work in the common case where few streams are ready at once; this keeps
// a separate flush_connection/flush_stream entry point but delegates to
// the same connection-wide drain.
func flushStream(cs *ConnectionState, _ int64) {
	flushConnection(cs)
}

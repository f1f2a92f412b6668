package bridge

import "github.com/wku/fpy3/h3"

// streamFromUserData resolves the StreamState behind streamID through the
// codec's per-stream user-data slot rather than the id->state map, so the
// common inbound-event path costs one type assertion instead of a lookup.
// Falls back to the map for streams the codec doesn't carry user data for
// (the three local control/QPACK streams never call SetStreamUserData).
func (c *ConnectionState) streamFromUserData(streamID int64) *StreamState {
	if ss, ok := c.Codec.StreamUserData(streamID).(*StreamState); ok {
		return ss
	}
	return c.Stream(streamID)
}

// codecCallbacks wires package h3's four inbound callbacks to pending-event
// enqueueing. All four run synchronously inside Codec.ReadStream,
// which this connection's stream-reader goroutines call under c.mu — so these
// closures must never block and must not call into the application.
func (c *ConnectionState) codecCallbacks() h3.Callbacks {
	return h3.Callbacks{
		RecvHeader: func(streamID int64, name, value []byte) {
			ss := c.streamFromUserData(streamID)
			if ss == nil || ss.HasError {
				return
			}
			ss.AppendHeader(name, value)
		},
		EndHeaders: func(streamID int64, _ bool) {
			ss := c.streamFromUserData(streamID)
			if ss == nil || ss.HasError {
				return
			}
			headers := ss.TakeHeaders()
			c.Server.Enqueue(PendingEvent{Kind: EventHeaders, Stream: ss, Headers: headers})
		},
		RecvData: func(streamID int64, data []byte) {
			ss := c.streamFromUserData(streamID)
			if ss == nil || ss.HasError {
				return
			}
			// The codec's buffer may be reused after this call returns, so
			// the copy has to happen here, not deferred to the queue drain.
			owned := append([]byte(nil), data...)
			c.Server.Enqueue(PendingEvent{Kind: EventData, Stream: ss, Data: owned})
		},
		EndStream: func(streamID int64) {
			ss := c.streamFromUserData(streamID)
			if ss == nil || ss.HasError || ss.RemoteFin {
				return
			}
			ss.RemoteFin = true
			c.Server.Enqueue(PendingEvent{Kind: EventFin, Stream: ss})
		},
	}
}

// dataReader returns the h3.DataReader the codec polls once a response has
// been submitted for ss, backed by
// StreamState.PullResponse).
func dataReader(ss *StreamState) h3.DataReader {
	return func(maxVecs int) ([][]byte, bool, bool, error) {
		vecs, fin, wouldBlock := ss.PullResponse(maxVecs)
		return vecs, fin, wouldBlock, nil
	}
}

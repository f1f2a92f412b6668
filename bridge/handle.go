package bridge

import (
	"github.com/wku/fpy3/apphandler"
	"github.com/wku/fpy3/h3"
)

// Handle returns the opaque apphandler.Stream handle for s, creating it on
// first use. The core retains authoritative ownership of the underlying
// StreamState: the application can call
// back through the handle, but a transport-initiated shutdown can free the
// StreamState out from under it without any cooperation required.
func (s *StreamState) Handle() *StreamHandle {
	if s.userHandle == nil {
		s.userHandle = &StreamHandle{ss: s}
	}
	return s.userHandle
}

// StreamHandle implements apphandler.Stream. SendHeaders and SendData take
// the owning connection's mutex, matching the rule that codec access (SubmitResponse,
// ResumeStream, the flush it triggers) always runs under the connection
// lock. Neither method ever invokes an application callback itself, so
// there is no deadlock hazard even though the application is the one
// calling in.
type StreamHandle struct {
	ss *StreamState
}

// StreamID implements apphandler.Stream.
func (h *StreamHandle) StreamID() int64 { return h.ss.ID }

// SendHeaders implements apphandler.Stream. A second call after the
// response has already finned is a best-effort no-op, mirroring SendData.
func (h *StreamHandle) SendHeaders(headers []apphandler.Header, fin bool) error {
	cs := h.ss.Conn
	cs.Lock()
	defer cs.Unlock()

	if cs.closed {
		return ErrConnectionClosed
	}
	if h.ss.HasError {
		return ErrStreamClosed
	}
	if h.ss.ResponseFin {
		return nil
	}

	fields := make([]h3.HeaderField, len(headers))
	for i, hd := range headers {
		fields[i] = h3.HeaderField{Name: string(hd.Name), Value: string(hd.Value)}
	}
	if fin {
		h.ss.SetResponseFin()
	}
	if err := cs.Codec.SubmitResponse(h.ss.ID, fields, dataReader(h.ss)); err != nil {
		return err
	}
	flushStream(cs, h.ss.ID)
	return nil
}

// SendData implements apphandler.Stream. A zero-length chunk with
// fin=true is accepted as a pure-FIN signal.
func (h *StreamHandle) SendData(data []byte, fin bool) error {
	cs := h.ss.Conn
	cs.Lock()
	defer cs.Unlock()

	if cs.closed {
		return ErrConnectionClosed
	}
	if h.ss.HasError {
		return ErrStreamClosed
	}
	if h.ss.ResponseFin {
		// Sending headers or data after the response already finned is
		// treated as a best-effort no-op.
		return nil
	}

	h.ss.EnqueueResponseChunk(data)
	if fin {
		h.ss.SetResponseFin()
	}
	cs.Codec.ResumeStream(h.ss.ID)
	flushStream(cs, h.ss.ID)
	return nil
}

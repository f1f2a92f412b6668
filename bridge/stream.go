package bridge

import "github.com/wku/fpy3/buffer"

// transportStream is the write-side subset of quic.Stream / quic.SendStream
// the bridge needs to flush a stream. Narrowing to an interface here (as
// opposed to depending on *quic.Stream directly everywhere) keeps
// StreamState testable with an in-package fake, the way
// quic/safe_stream_test.go fakes its quic.Stream collaborator. Read-side
// operations (Read, CancelRead) are only ever needed by the stream-reader
// goroutine in transport.go, which holds the concrete quic.Stream itself.
type transportStream interface {
	Write(p []byte) (int, error)
	Close() error
	CancelWrite(code uint64)
}

// StreamState is the per-stream request-accumulation and response-emission
// state for one request/response exchange. All of its fields are only ever touched
// under its ConnectionState's mutex.
type StreamState struct {
	ID   int64
	Conn *ConnectionState

	Transport transportStream

	IsUnidirectional bool
	IsControlFamily  bool

	HasError bool

	headers  buffer.HeaderList
	pending  buffer.ChunkFIFO
	finished buffer.FinishedList

	ResponseFin bool

	// RemoteFin is set once the peer's half of the stream has reached
	// end-of-stream.
	RemoteFin bool

	userHandle *StreamHandle
}

// NewStreamState constructs a StreamState for a freshly observed stream.
func NewStreamState(id int64, conn *ConnectionState, t transportStream, unidirectional, controlFamily bool) *StreamState {
	return &StreamState{
		ID:               id,
		Conn:             conn,
		Transport:        t,
		IsUnidirectional: unidirectional,
		IsControlFamily:  controlFamily,
	}
}

// AppendHeader copies name/value into the stream's accumulating header
// list.
func (s *StreamState) AppendHeader(name, value []byte) {
	s.headers.Append(name, value)
}

// TakeHeaders detaches and returns the accumulated header list.
func (s *StreamState) TakeHeaders() []buffer.Header {
	return s.headers.Take()
}

// EnqueueResponseChunk copies bytes into a new chunk and appends it to the
// pending response FIFO. It is a
// protocol violation to enqueue more bytes once ResponseFin is set; callers
// (StreamHandle.SendData) must check that first.
func (s *StreamState) EnqueueResponseChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	s.pending.Push(data)
}

// SetResponseFin marks the response as complete. Monotone: false -> true
// only.
func (s *StreamState) SetResponseFin() {
	s.ResponseFin = true
}

// PullResponse returns up to maxVecs unsent slices from the pending chunk
// FIFO. fin is true when the FIFO is exhausted
// and ResponseFin has been set; wouldBlock is true when the FIFO is
// exhausted but ResponseFin has not been set yet. Advancing a chunk's Sent
// cursor to its full length moves it from the pending FIFO to the finished
// list, per the two-phase-freeing design.
func (s *StreamState) PullResponse(maxVecs int) (vecs [][]byte, fin bool, wouldBlock bool) {
	for len(vecs) < maxVecs {
		c := s.pending.Front()
		if c == nil {
			break
		}
		if c.Done() {
			s.pending.PopFront()
			s.finished.Add(c)
			continue
		}
		vecs = append(vecs, c.Remaining())
		c.Sent = len(c.Data)
	}
	if len(vecs) > 0 {
		return vecs, false, false
	}
	if s.pending.Empty() && s.ResponseFin {
		return nil, true, false
	}
	return nil, false, true
}

// ReapFinished frees every chunk the flush engine has already copied into a
// stable send buffer.
func (s *StreamState) ReapFinished() {
	s.finished.Reap()
}

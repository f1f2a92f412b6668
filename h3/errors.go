package h3

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrWouldBlock is returned by WritevStream when a stream has no outbound
// bytes ready yet but is not at EOF; the caller must wait for ResumeStream.
var ErrWouldBlock = errors.New("h3: would block")

// ErrCallbackFailure is returned when a read or write operation on a stream
// cannot continue because the peer (or the application data reader) violated
// the protocol. The stream that produced it must be treated as failed by the
// caller; other streams on the same connection are unaffected.
var ErrCallbackFailure = errors.New("h3: callback failure")

// ErrUnboundStream is returned by operations that require BindControlStream
// or BindQPACKStreams to have run first.
var ErrUnboundStream = errors.New("h3: control/qpack streams not bound")

// FrameError wraps a framing-layer violation (oversized frame, frame type
// not legal on a given stream, FIN with a partial frame buffered) with the
// stream id it occurred on.
type FrameError struct {
	StreamID int64
	Reason   string
}

func (e *FrameError) Error() string {
	return "h3: stream " + strconv.FormatInt(e.StreamID, 10) + ": " + e.Reason
}

func (e *FrameError) Unwrap() error { return ErrCallbackFailure }

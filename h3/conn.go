// Package h3 is a minimal RFC 9114 HTTP/3 framing layer over QPACK header
// compression. It stands in for "the HTTP/3 codec" external collaborator
// the bridge package depends on, exposing the same small surface an
// nghttp3_conn would: stream-id-addressed reads, a pull-style writev, and a
// data-reader callback for response bodies.
//
// The codec never configures a QPACK dynamic table, so header blocks are
// always self-contained (see headers.go) and the two QPACK streams carry no
// real traffic beyond their one-byte stream-type preface.
package h3

// streamKind classifies a stream id the first time the codec sees it.
type streamKind int

const (
	kindUnknown streamKind = iota
	kindRequest
	kindLocalControl
	kindLocalQPACKEnc
	kindLocalQPACKDec
	kindPeerControl
	kindPeerQPACKEnc
	kindPeerQPACKDec
	kindIgnore // unrecognized unidirectional stream type; bytes are discarded
)

// DataReader pulls the next batch of response-body vectors for a stream.
// Returning zero vectors with fin=true signals EOF; zero vectors with
// fin=false and wouldBlock=true signals would-block (the codec parks the
// stream until ResumeStream is called).
type DataReader func(maxVecs int) (vecs [][]byte, fin bool, wouldBlock bool, err error)

// Callbacks are invoked synchronously from ReadStream as frames are
// decoded. None of them may block; the bridge's adapter implementations
// only enqueue pending events.
type Callbacks struct {
	RecvHeader func(streamID int64, name, value []byte)
	EndHeaders func(streamID int64, fin bool)
	RecvData   func(streamID int64, data []byte)
	EndStream  func(streamID int64)
}

type streamState struct {
	id   int64
	kind streamKind

	inBuf      []byte
	sawHeaders bool
	remoteDone bool
	userData   interface{}

	pendingRaw  [][]byte
	reader      DataReader
	finSignaled bool
	blocked     bool
	inFlight    int
}

// Conn is a single HTTP/3 connection's codec state. It is not safe for
// concurrent use; the bridge always calls it under the owning connection's
// mutex.
type Conn struct {
	cb Callbacks

	controlID, qpackEncID, qpackDecID int64
	controlBound, qpackBound          bool

	streams map[int64]*streamState
	ready   []int64
	inReady map[int64]bool
}

// NewServerConn constructs a server-mode codec instance with default
// settings (no QPACK dynamic table, no HTTP/3 extensions).
func NewServerConn(cb Callbacks) *Conn {
	return &Conn{
		cb:      cb,
		streams: make(map[int64]*streamState),
		inReady: make(map[int64]bool),
	}
}

func (c *Conn) getOrCreate(id int64, kind streamKind) *streamState {
	s, ok := c.streams[id]
	if !ok {
		s = &streamState{id: id, kind: kind}
		c.streams[id] = s
	} else if s.kind == kindUnknown {
		s.kind = kind
	}
	return s
}

func (c *Conn) markReady(id int64) {
	if c.inReady[id] {
		return
	}
	c.inReady[id] = true
	c.ready = append(c.ready, id)
}

// BindControlStream attaches the codec's own outbound control stream to id
// and queues the initial SETTINGS frame for it.
func (c *Conn) BindControlStream(id int64) {
	c.controlID = id
	s := c.getOrCreate(id, kindLocalControl)
	buf := appendVarint(nil, streamTypeControl)
	buf = append(buf, settingsFrame()...)
	s.pendingRaw = append(s.pendingRaw, buf)
	c.markReady(id)
	c.controlBound = true
}

// BindQPACKStreams attaches the codec's outbound QPACK encoder/decoder
// streams. Since no dynamic table is used, each stream only ever carries
// its one-byte stream-type preface.
func (c *Conn) BindQPACKStreams(encID, decID int64) {
	c.qpackEncID, c.qpackDecID = encID, decID

	se := c.getOrCreate(encID, kindLocalQPACKEnc)
	se.pendingRaw = append(se.pendingRaw, appendVarint(nil, streamTypeQPACKEnc))
	c.markReady(encID)

	sd := c.getOrCreate(decID, kindLocalQPACKDec)
	sd.pendingRaw = append(sd.pendingRaw, appendVarint(nil, streamTypeQPACKDec))
	c.markReady(decID)

	c.qpackBound = true
}

// Bound reports whether both BindControlStream and BindQPACKStreams have
// run, i.e. whether the connection is ready to flush its bootstrap frames.
func (c *Conn) Bound() bool {
	return c.controlBound && c.qpackBound
}

// SetStreamUserData stores an opaque pointer the bridge can retrieve with
// StreamUserData, matching nghttp3's per-stream user-data slot.
func (c *Conn) SetStreamUserData(streamID int64, ud interface{}) {
	c.getOrCreate(streamID, kindRequest).userData = ud
}

// StreamUserData retrieves the pointer set by SetStreamUserData, or nil.
func (c *Conn) StreamUserData(streamID int64) interface{} {
	if s, ok := c.streams[streamID]; ok {
		return s.userData
	}
	return nil
}

// ReadStream feeds inbound bytes for streamID through the codec. On success
// it returns len(data) (the codec buffers everything it cannot parse yet).
// If the peer violated framing it returns 0 and a non-nil error, in which
// case the caller must mark the stream failed and stop feeding it.
func (c *Conn) ReadStream(streamID int64, data []byte, fin bool) (int, error) {
	s, ok := c.streams[streamID]
	if !ok {
		kind := kindUnknown
		if isBidi(streamID) {
			kind = kindRequest
		}
		s = c.getOrCreate(streamID, kind)
	}
	if len(data) > 0 {
		s.inBuf = append(s.inBuf, data...)
	}

	if err := c.drainInbound(s); err != nil {
		return 0, err
	}

	if fin {
		if len(s.inBuf) != 0 {
			return 0, &FrameError{StreamID: streamID, Reason: "fin with an incomplete frame buffered"}
		}
		if !s.remoteDone && s.kind == kindRequest {
			s.remoteDone = true
			c.cb.EndStream(streamID)
		}
	}
	return len(data), nil
}

// drainInbound parses as many complete units (stream-type preface, HTTP/3
// frames) as are currently buffered for s.
func (c *Conn) drainInbound(s *streamState) error {
	for {
		if s.kind == kindUnknown {
			v, n, ok := consumeVarint(s.inBuf)
			if !ok {
				return nil
			}
			s.inBuf = s.inBuf[n:]
			switch v {
			case streamTypeControl:
				s.kind = kindPeerControl
			case streamTypeQPACKEnc:
				s.kind = kindPeerQPACKEnc
			case streamTypeQPACKDec:
				s.kind = kindPeerQPACKDec
			case streamTypePush:
				return &FrameError{StreamID: s.id, Reason: "push streams are not supported"}
			default:
				s.kind = kindIgnore
			}
			continue
		}

		switch s.kind {
		case kindIgnore, kindPeerQPACKEnc, kindPeerQPACKDec:
			// No dynamic table support: discard whatever the peer sends on
			// its own QPACK streams or on any extension stream.
			s.inBuf = s.inBuf[:0]
			return nil

		case kindPeerControl:
			typ, length, hdrLen, ok := parseFrameHeader(s.inBuf)
			if !ok {
				return nil
			}
			if length > maxFrameLength {
				return &FrameError{StreamID: s.id, Reason: "control frame too large"}
			}
			total := hdrLen + int(length)
			if len(s.inBuf) < total {
				return nil
			}
			_ = typ // settings values beyond defaults are not consulted
			s.inBuf = s.inBuf[total:]

		case kindRequest:
			typ, length, hdrLen, ok := parseFrameHeader(s.inBuf)
			if !ok {
				return nil
			}
			if length > maxFrameLength {
				return &FrameError{StreamID: s.id, Reason: "frame too large"}
			}
			total := hdrLen + int(length)
			if len(s.inBuf) < total {
				return nil
			}
			payload := s.inBuf[hdrLen:total]

			switch typ {
			case frameTypeHeaders:
				if err := decodeHeaders(payload, func(name, value []byte) {
					c.cb.RecvHeader(s.id, name, value)
				}); err != nil {
					return &FrameError{StreamID: s.id, Reason: err.Error()}
				}
				s.sawHeaders = true
				c.cb.EndHeaders(s.id, false)
			case frameTypeData:
				if !s.sawHeaders {
					return &FrameError{StreamID: s.id, Reason: "DATA frame before HEADERS"}
				}
				c.cb.RecvData(s.id, payload)
			default:
				return &FrameError{StreamID: s.id, Reason: "frame type not legal on a request stream"}
			}
			s.inBuf = s.inBuf[total:]

		default:
			return nil
		}
	}
}

// SubmitResponse queues a HEADERS frame for the given headers and attaches
// reader as the source of the response body. The reader is polled from
// WritevStream as the flush engine asks for more outbound bytes. The
// connection's own control and QPACK streams must already be bound (see
// BindControlStream, BindQPACKStreams) before a response can be submitted.
func (c *Conn) SubmitResponse(streamID int64, headers []HeaderField, reader DataReader) error {
	if !c.Bound() {
		return ErrUnboundStream
	}
	block, err := encodeHeaders(headers)
	if err != nil {
		return err
	}
	s := c.getOrCreate(streamID, kindRequest)
	s.pendingRaw = append(s.pendingRaw, appendFrame(nil, frameTypeHeaders, block))
	s.reader = reader
	c.markReady(streamID)
	return nil
}

// ResumeStream re-arms a stream that previously returned would-block from
// its data reader, so the next WritevStream call considers it again.
func (c *Conn) ResumeStream(streamID int64) {
	s, ok := c.streams[streamID]
	if !ok || !s.blocked {
		return
	}
	s.blocked = false
	c.markReady(streamID)
}

// WritevStream returns the next batch of outbound vectors for whichever
// ready stream has something to send, or (0, false, nil, nil) if nothing is
// ready right now. If the only reason nothing was returned is that a
// stream's data reader reported would-block, it returns ErrWouldBlock along
// with that stream's id; the caller must wait for ResumeStream before
// trying again. The caller must acknowledge any returned batch with
// AddWriteOffset before the stream will be considered again.
func (c *Conn) WritevStream(maxVecs int) (streamID int64, fin bool, vecs [][]byte, err error) {
	blockedID := int64(-1)
	for len(c.ready) > 0 {
		id := c.ready[0]
		c.ready = c.ready[1:]
		c.inReady[id] = false

		s := c.streams[id]
		if s == nil {
			continue
		}

		var out [][]byte
		for len(out) < maxVecs && len(s.pendingRaw) > 0 {
			out = append(out, s.pendingRaw[0])
			s.pendingRaw = s.pendingRaw[1:]
		}

		eof := false
		// Body vectors go out inside one DATA frame, so one slot is kept for
		// its frame header.
		if len(out)+1 < maxVecs && s.reader != nil {
			rvecs, reof, wouldBlock, rerr := s.reader(maxVecs - len(out) - 1)
			if rerr != nil {
				return 0, false, nil, rerr
			}
			if len(rvecs) > 0 {
				n := 0
				for _, v := range rvecs {
					n += len(v)
				}
				out = append(out, appendVarint(appendVarint(nil, frameTypeData), uint64(n)))
				out = append(out, rvecs...)
			}
			eof = reof
			if wouldBlock && len(rvecs) == 0 && !reof {
				s.blocked = true
				blockedID = id
			}
		}

		if len(out) == 0 {
			if eof {
				s.finSignaled = true
				s.inFlight = 0
				return id, true, nil, nil
			}
			// Nothing ready on this stream right now; try the next one.
			continue
		}

		total := 0
		for _, v := range out {
			total += len(v)
		}
		s.inFlight = total
		finOut := eof && s.reader != nil
		if finOut {
			s.finSignaled = true
		}
		return id, finOut, out, nil
	}
	if blockedID != -1 {
		return blockedID, false, nil, ErrWouldBlock
	}
	return 0, false, nil, nil
}

// AddWriteOffset acknowledges that n bytes of the most recent WritevStream
// batch for streamID have been accepted by the transport, and re-arms the
// stream for another batch if it still has more to say.
func (c *Conn) AddWriteOffset(streamID int64, n int) error {
	s, ok := c.streams[streamID]
	if !ok {
		return &FrameError{StreamID: streamID, Reason: "add_write_offset for unknown stream"}
	}
	s.inFlight = 0
	if !s.finSignaled && (len(s.pendingRaw) > 0 || s.reader != nil) {
		c.markReady(streamID)
	}
	return nil
}

func isBidi(streamID int64) bool {
	return streamID%4 < 2
}

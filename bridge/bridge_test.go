package bridge

import (
	"bytes"
	"sync"
	"testing"

	"github.com/quic-go/qpack"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wku/fpy3/apphandler"
)

// fakeWriteStream is an in-memory transportStream, standing in for a
// quic.Stream's write side the way quic/safe_stream_test.go's fakes stand
// in for quic.Stream in cloudflared's tests.
type fakeWriteStream struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (f *fakeWriteStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}
func (f *fakeWriteStream) Close() error           { f.mu.Lock(); f.closed = true; f.mu.Unlock(); return nil }
func (f *fakeWriteStream) CancelWrite(uint64)     {}
func (f *fakeWriteStream) isClosed() bool         { f.mu.Lock(); defer f.mu.Unlock(); return f.closed }
func (f *fakeWriteStream) bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, w := range f.written {
		out = append(out, w...)
	}
	return out
}

type fakeQuicConn struct{}

func (fakeQuicConn) CloseWithError(uint64, string) error { return nil }

// deferredExecutor queues every scheduled callable and runs them only when
// the test calls runAll. Events are enqueued from inside Codec.ReadStream
// under the connection lock, and the handler's SendHeaders/SendData take
// that same lock, so tests call runAll after releasing it.
type deferredExecutor struct{ fns []func() }

func (e *deferredExecutor) ScheduleFromAnyThread(fn func()) { e.fns = append(e.fns, fn) }

func (e *deferredExecutor) runAll() {
	for len(e.fns) > 0 {
		fn := e.fns[0]
		e.fns = e.fns[1:]
		fn()
	}
}

// bootstrap wires a ConnectionState through HANDSHAKING -> BOOTSTRAPPING ->
// READY using three fake local streams, the way handleConnection does with
// real ones, and returns the fakes so tests can inspect bootstrap bytes.
func bootstrap(t *testing.T, cs *ConnectionState) (ctrl, enc, dec *fakeWriteStream) {
	t.Helper()
	ctrl, enc, dec = &fakeWriteStream{}, &fakeWriteStream{}, &fakeWriteStream{}
	cs.Lock()
	cs.OnConnected()
	cs.RegisterLocalControlStream(2, ctrl)
	cs.OnLocalStreamStartComplete(2, localControl)
	cs.RegisterLocalControlStream(6, enc)
	cs.OnLocalStreamStartComplete(6, localQPACKEncoder)
	cs.RegisterLocalControlStream(10, dec)
	cs.OnLocalStreamStartComplete(10, localQPACKDecoder)
	cs.Unlock()

	select {
	case <-cs.ReadyCh():
	default:
		t.Fatal("connection did not reach READY after all three bootstrap streams started")
	}
	return ctrl, enc, dec
}

func TestBootstrapReachesReadyAndFlushesControlFrames(t *testing.T) {
	state := NewServerState(&deferredExecutor{}, apphandler.EchoHandler{}, false, zerolog.Nop(), nil)
	cs := NewConnectionState(state, fakeQuicConn{}, zerolog.Nop())

	ctrl, enc, dec := bootstrap(t, cs)

	require.NotEmpty(t, ctrl.bytes(), "control stream should carry a stream-type preface + SETTINGS frame")
	require.NotEmpty(t, enc.bytes())
	require.NotEmpty(t, dec.bytes())
	require.False(t, ctrl.isClosed(), "control-family streams never carry FIN")
}

// recordingHandler captures every callback invocation for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	headers [][]apphandler.Header
	data    [][]byte
	fins    int
}

func (h *recordingHandler) OnHeaders(s apphandler.Stream, hs []apphandler.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers = append(h.headers, hs)
	_ = s.SendHeaders([]apphandler.Header{{Name: []byte(":status"), Value: []byte("200")}}, false)
}

func (h *recordingHandler) OnData(s apphandler.Stream, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data = append(h.data, append([]byte(nil), data...))
}

func (h *recordingHandler) OnFin(s apphandler.Stream) {
	h.mu.Lock()
	h.fins++
	h.mu.Unlock()
	_ = s.SendData([]byte("hello"), true)
}

func TestGETRoundTrip(t *testing.T) {
	handler := &recordingHandler{}
	exec := &deferredExecutor{}
	state := NewServerState(exec, handler, false, zerolog.Nop(), nil)
	cs := NewConnectionState(state, fakeQuicConn{}, zerolog.Nop())
	bootstrap(t, cs)

	reqStream := &fakeWriteStream{}
	cs.Lock()
	cs.RegisterPeerStream(0, reqStream)
	cs.Unlock()

	block, err := encodeRequestHeaders(t)
	require.NoError(t, err)
	wire := appendTestFrame(frameHeaders, block)

	cs.Lock()
	_, rerr := cs.Codec.ReadStream(0, wire, true)
	require.NoError(t, rerr)
	flushConnection(cs)
	cs.Unlock()
	exec.runAll()

	require.Len(t, handler.headers, 1)
	require.Equal(t, 1, handler.fins)

	out := reqStream.bytes()
	require.Contains(t, string(out), "hello")
	require.True(t, reqStream.isClosed(), "response stream FIN should close the write side")
}

func TestDataBeforeHeadersFailsOnlyThatStream(t *testing.T) {
	handler := &recordingHandler{}
	exec := &deferredExecutor{}
	state := NewServerState(exec, handler, false, zerolog.Nop(), nil)
	cs := NewConnectionState(state, fakeQuicConn{}, zerolog.Nop())
	bootstrap(t, cs)

	bad := &fakeWriteStream{}
	good := &fakeWriteStream{}
	cs.Lock()
	badSS := cs.RegisterPeerStream(0, bad)
	cs.RegisterPeerStream(4, good)
	cs.Unlock()

	cs.Lock()
	_, err := cs.Codec.ReadStream(0, appendTestFrame(frameData, []byte("oops")), false)
	require.Error(t, err)
	badSS.HasError = true
	cs.Unlock()

	block, err := encodeRequestHeaders(t)
	require.NoError(t, err)
	cs.Lock()
	_, err = cs.Codec.ReadStream(4, appendTestFrame(frameHeaders, block), true)
	require.NoError(t, err)
	flushConnection(cs)
	cs.Unlock()
	exec.runAll()

	require.Len(t, handler.headers, 1, "the other stream must still produce its events")
	require.True(t, badSS.HasError)
}

// --- small test-local helpers duplicating just enough of package h3's wire
// format to build well-formed request bytes without importing h3's
// internal frame constants.

const (
	frameHeaders = 0x1
	frameData    = 0x0
)

func appendTestFrame(typ uint64, payload []byte) []byte {
	var out []byte
	out = appendTestVarint(out, typ)
	out = appendTestVarint(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendTestVarint(dst []byte, v uint64) []byte {
	if v <= 63 {
		return append(dst, byte(v))
	}
	return append(dst, byte(v>>8)|0x40, byte(v))
}

// encodeRequestHeaders builds a QPACK header block the same way package h3
// does (no dynamic table), using the real qpack encoder directly rather
// than importing h3's unexported helper.
func encodeRequestHeaders(t *testing.T) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	enc := qpack.NewEncoder(&buf)
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	}
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package h3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) (*Conn, *[]int64, *[][2]string, *[][]byte, *[]int64) {
	var headersSeenOn []int64
	var headers [][2]string
	var dataSeenOn [][]byte
	var finSeenOn []int64

	c := NewServerConn(Callbacks{
		RecvHeader: func(streamID int64, name, value []byte) {
			headers = append(headers, [2]string{string(name), string(value)})
		},
		EndHeaders: func(streamID int64, fin bool) {
			headersSeenOn = append(headersSeenOn, streamID)
		},
		RecvData: func(streamID int64, data []byte) {
			dataSeenOn = append(dataSeenOn, append([]byte(nil), data...))
		},
		EndStream: func(streamID int64) {
			finSeenOn = append(finSeenOn, streamID)
		},
	})
	return c, &headersSeenOn, &headers, &dataSeenOn, &finSeenOn
}

func TestBindQueuesBootstrapFrames(t *testing.T) {
	c, _, _, _, _ := newTestConn(t)
	c.BindControlStream(2)
	c.BindQPACKStreams(6, 10)
	require.True(t, c.Bound())

	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		id, fin, vecs, err := c.WritevStream(16)
		require.NoError(t, err)
		require.NotZero(t, len(vecs), "stream %d produced no bytes", id)
		require.False(t, fin, "control-family streams never carry FIN")
		require.NoError(t, c.AddWriteOffset(id, sumLen(vecs)))
		seen[id] = true
	}
	require.True(t, seen[2] && seen[6] && seen[10])

	// Nothing left to write.
	id, _, vecs, err := c.WritevStream(16)
	require.NoError(t, err)
	require.Zero(t, id)
	require.Nil(t, vecs)
}

func TestRequestHeadersDataFin(t *testing.T) {
	c, headersSeenOn, headers, dataSeenOn, finSeenOn := newTestConn(t)

	block, err := encodeHeaders([]HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	})
	require.NoError(t, err)

	var wire []byte
	wire = appendFrame(wire, frameTypeHeaders, block)
	wire = appendFrame(wire, frameTypeData, []byte("ab"))
	wire = appendFrame(wire, frameTypeData, []byte("cd"))

	n, err := c.ReadStream(0, wire, true)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)

	require.Equal(t, []int64{0}, *headersSeenOn)
	require.Equal(t, [2]string{":method", "GET"}, (*headers)[0])
	require.Equal(t, [][]byte{[]byte("ab"), []byte("cd")}, *dataSeenOn)
	require.Equal(t, []int64{0}, *finSeenOn)
}

func TestDataBeforeHeadersIsMalformed(t *testing.T) {
	c, _, _, _, _ := newTestConn(t)
	wire := appendFrame(nil, frameTypeData, []byte("oops"))

	_, err := c.ReadStream(0, wire, false)
	require.Error(t, err)

	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, int64(0), fe.StreamID)
}

func TestSubmitResponseRoundTrip(t *testing.T) {
	c, _, _, _, _ := newTestConn(t)
	c.BindControlStream(2)
	c.BindQPACKStreams(6, 10)

	body := [][]byte{[]byte("hel"), []byte("lo")}
	idx := 0
	reader := func(maxVecs int) ([][]byte, bool, bool, error) {
		if idx >= len(body) {
			return nil, true, false, nil
		}
		v := body[idx]
		idx++
		return [][]byte{v}, idx >= len(body), false, nil
	}

	err := c.SubmitResponse(0, []HeaderField{{Name: ":status", Value: "200"}}, reader)
	require.NoError(t, err)

	var gotFin bool
	var wire []byte
	for i := 0; i < 10 && !gotFin; i++ {
		id, fin, vecs, err := c.WritevStream(16)
		require.NoError(t, err)
		if len(vecs) == 0 && !fin {
			break
		}
		if id == 0 {
			for _, v := range vecs {
				wire = append(wire, v...)
			}
		}
		require.NoError(t, c.AddWriteOffset(id, sumLen(vecs)))
		gotFin = fin && id == 0
	}
	require.True(t, gotFin)

	// wire now holds a HEADERS frame followed by DATA frames carrying the
	// body; decode the frame layer back out to recover the body, the way a
	// peer would.
	typ, length, hdrLen, ok := parseFrameHeader(wire)
	require.True(t, ok)
	require.EqualValues(t, frameTypeHeaders, typ)
	rest := wire[hdrLen+int(length):]
	var body2 []byte
	for len(rest) > 0 {
		typ, length, hdrLen, ok := parseFrameHeader(rest)
		require.True(t, ok)
		require.EqualValues(t, frameTypeData, typ)
		body2 = append(body2, rest[hdrLen:hdrLen+int(length)]...)
		rest = rest[hdrLen+int(length):]
	}
	require.Equal(t, "hello", string(body2))
}

func sumLen(vecs [][]byte) int {
	n := 0
	for _, v := range vecs {
		n += len(v)
	}
	return n
}

package buffer

// SendContext bundles the buffers of a single outbound transport send. Its
// lifetime is tied to one quic.Stream.Write call (or, conceptually, one
// MsQuic StreamSend): the buffers it owns must stay valid and untouched
// until the transport has finished consuming them. quic-go's Write blocks
// until the data is accepted, so a SendContext is released by its caller
// immediately after Write returns rather than in an async send-complete
// callback — see bridge.flushConnection for where that happens.
type SendContext struct {
	Vectors [][]byte
}

// TotalLength sums the length of every vector in the context.
func (s *SendContext) TotalLength() int {
	n := 0
	for _, v := range s.Vectors {
		n += len(v)
	}
	return n
}

// NewSendContext copies each vector into a freshly allocated, stable
// buffer. The copy is required because the codec's internal vectors may
// be invalidated as soon as we acknowledge write progress (AddWriteOffset
// in package h3).
func NewSendContext(vecs [][]byte) *SendContext {
	sc := &SendContext{Vectors: make([][]byte, len(vecs))}
	for i, v := range vecs {
		sc.Vectors[i] = append([]byte(nil), v...)
	}
	return sc
}

// Flatten concatenates every vector into one contiguous buffer, suitable
// for a single quic.Stream.Write call.
func (s *SendContext) Flatten() []byte {
	out := make([]byte, 0, s.TotalLength())
	for _, v := range s.Vectors {
		out = append(out, v...)
	}
	return out
}

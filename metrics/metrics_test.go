package metrics

import (
	"testing"
)

func TestNilRegistryHelpersDoNotPanic(t *testing.T) {
	var r *Registry
	r.IncConnections()
	r.DecConnections()
	r.IncStreams()
	r.DecStreams()
	r.AddBytesFlushed(128)
	r.IncCodecErrors()
	r.IncHandlerPanics()
}

func TestAddBytesFlushedIgnoresNonPositive(t *testing.T) {
	r := NewRegistry()
	r.AddBytesFlushed(0)
	r.AddBytesFlushed(-1)
}

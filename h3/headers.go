package h3

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/quic-go/qpack"
)

// HeaderField is one name/value pair as submitted to or decoded from a
// QPACK header block. It has the same shape as qpack.HeaderField and is
// converted to it in encodeHeaders, so callers need not import qpack.
type HeaderField struct {
	Name  string
	Value string
}

// encodeHeaders renders a header list as a QPACK header block. This codec
// never configures a QPACK dynamic table (the SETTINGS frame it advertises
// in settingsFrame carries no dynamic-table-size instruction), so every
// field is encoded against the static table or as a literal, and the
// Required Insert Count prefix qpack.Encoder writes is always zero. That
// keeps decoding independent of QPACK encoder/decoder stream traffic, which
// is why ReadStream discards bytes on those two streams outright.
func encodeHeaders(fields []HeaderField) ([]byte, error) {
	var buf bytes.Buffer
	enc := qpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(qpack.HeaderField{Name: f.Name, Value: f.Value}); err != nil {
			return nil, errors.Wrap(err, "h3: qpack encode")
		}
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "h3: qpack encoder close")
	}
	return buf.Bytes(), nil
}

// decodeHeaders parses one complete QPACK header block and invokes cb for
// each field in encode order.
func decodeHeaders(block []byte, cb func(name, value []byte)) error {
	dec := qpack.NewDecoder(func(f qpack.HeaderField) {
		cb([]byte(f.Name), []byte(f.Value))
	})
	if _, err := dec.Write(block); err != nil {
		return errors.Wrap(err, "h3: qpack decode")
	}
	return nil
}

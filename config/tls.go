package config

import (
	"crypto/tls"

	"github.com/pkg/errors"
)

// h3ALPN lists the ALPN protocol identifiers an HTTP/3 server advertises:
// the final RFC 9114 token plus the draft-29 identifier some clients still
// send during interop.
var h3ALPN = []string{"h3", "h3-29"}

// BuildTLSConfig loads the certificate/key pair named by cfg and returns a
// tls.Config with NextProtos set for HTTP/3 ALPN negotiation.
func BuildTLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "loading TLS certificate %s / key %s", cfg.CertFile, cfg.KeyFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   h3ALPN,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

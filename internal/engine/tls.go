package engine

import "crypto/tls"

// InsecureTLSPolicy builds the client TLS configuration the engine uses
// against battle targets. Targets under test routinely present
// self-signed certificates, so verification is disabled by explicit,
// named policy rather than a hidden default (spec.md §9).
func InsecureTLSPolicy(serverName string) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         serverName,
	}
}

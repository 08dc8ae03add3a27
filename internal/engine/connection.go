package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/meridian/hive/pkg/types"
)

var (
	errInvalidResponse = errors.New("invalid response")
)

// runConnection opens one socket (optionally TLS-wrapped) to tmpl's target
// and drives the keep-alive request/response loop until deadline elapses
// or ctx is cancelled, accumulating results into local. It never writes
// request N+1 before response N is fully received (spec.md §5 ordering
// invariant) because the loop is strictly sequential within the goroutine.
// ctx is checked between requests, not mid-request: a ceasefire stops the
// connection at its next tick rather than aborting an in-flight read.
func runConnection(ctx context.Context, tmpl *RequestTemplate, timeout time.Duration, deadline time.Time, local *localStats) {
	dialer := net.Dialer{Timeout: timeout}
	rawConn, err := dialer.Dial("tcp", net.JoinHostPort(tmpl.Host, tmpl.Port))
	if err != nil {
		local.recordError(types.ErrConnectionFailed)
		return
	}
	defer rawConn.Close()

	if tc, ok := rawConn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	var conn net.Conn = rawConn

	if tmpl.TLS {
		tlsConn := tls.Client(rawConn, InsecureTLSPolicy(tmpl.Host))
		tlsConn.SetDeadline(time.Now().Add(timeout))
		if err := tlsConn.Handshake(); err != nil {
			local.recordError(types.ErrTLSHandshakeFailed)
			return
		}
		conn = tlsConn
	}

	for ctx.Err() == nil && time.Now().Before(deadline) {
		start := time.Now()

		if err := conn.SetWriteDeadline(start.Add(timeout)); err != nil {
			local.recordError(types.ErrWriteFailed)
			return
		}
		if _, err := conn.Write(tmpl.Body); err != nil {
			local.recordError(types.ErrWriteFailed)
			return
		}

		resp, err := readResponse(conn, timeout)
		if err != nil {
			local.recordError(classifyReadError(err))
			return
		}

		latency := time.Since(start).Microseconds()
		local.record(resp.statusCode, resp.bytesRead, latency)
	}
}

func classifyReadError(err error) int32 {
	if errors.Is(err, errInvalidResponse) {
		return types.ErrInvalidResponse
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ErrTimeout
	}
	return types.ErrUnknown
}

package engine

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"
)

var headerTerminator = []byte("\r\n\r\n")

// parsedResponse is the subset of an HTTP/1.1 response the engine cares
// about: the numeric status code and the total bytes consumed (headers +
// body), used only to feed byte-count aggregation.
type parsedResponse struct {
	statusCode int32
	bytesRead  uint64
}

// readResponse incrementally reads one HTTP/1.1 response off conn: it
// accumulates bytes until it finds the header terminator CRLFCRLF, parses
// the status line and a Content-Length header (case-insensitive prefix
// match), then reads exactly that many additional body bytes — or, when
// Content-Length is absent, reads until EOF or the deadline elapses
// (spec.md §4.1, §6 "on-wire framing").
func readResponse(conn net.Conn, timeout time.Duration) (parsedResponse, error) {
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return parsedResponse{}, err
	}

	var headerBuf bytes.Buffer
	chunk := make([]byte, 4096)
	headerEnd := -1

	for headerEnd < 0 {
		n, err := conn.Read(chunk)
		if n > 0 {
			headerBuf.Write(chunk[:n])
			if idx := bytes.Index(headerBuf.Bytes(), headerTerminator); idx >= 0 {
				headerEnd = idx + len(headerTerminator)
			}
		}
		if err != nil {
			if headerEnd >= 0 {
				break
			}
			return parsedResponse{}, err
		}
	}

	raw := headerBuf.Bytes()
	statusCode, err := parseStatusLine(raw)
	if err != nil {
		return parsedResponse{}, errInvalidResponse
	}
	contentLength, hasContentLength := parseContentLength(raw[:headerEnd])

	bodySoFar := len(raw) - headerEnd
	total := uint64(headerEnd + bodySoFar)

	if hasContentLength {
		remaining := contentLength - bodySoFar
		for remaining > 0 {
			n, err := conn.Read(chunk)
			total += uint64(n)
			remaining -= n
			if err != nil {
				break
			}
		}
	} else {
		for {
			n, err := conn.Read(chunk)
			total += uint64(n)
			if err != nil {
				break
			}
		}
	}

	return parsedResponse{statusCode: statusCode, bytesRead: total}, nil
}

func parseStatusLine(buf []byte) (int32, error) {
	lineEnd := bytes.IndexByte(buf, '\n')
	if lineEnd < 0 {
		return 0, errInvalidResponse
	}
	line := string(bytes.TrimRight(buf[:lineEnd], "\r\n"))
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, errInvalidResponse
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errInvalidResponse
	}
	return int32(code), nil
}

func parseContentLength(headerBlock []byte) (int, bool) {
	lines := strings.Split(string(headerBlock), "\r\n")
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			name := strings.TrimSpace(line[:idx])
			if strings.EqualFold(name, "Content-Length") {
				n, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
				if err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

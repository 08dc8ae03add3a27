package engine

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/meridian/hive/pkg/types"
)

// RequestTemplate is the raw HTTP/1.1 wire bytes for one battle, built once
// per connection and replayed for every request on that connection
// (spec.md §4.1: "Build the raw wire bytes once per connection").
type RequestTemplate struct {
	Host string
	Port string
	TLS  bool
	Body []byte
}

// BuildRequestTemplate parses a battle's target URL and assembles the
// request line and headers. Default headers (Host, Connection, User-Agent)
// are added only when the caller did not already supply them.
func BuildRequestTemplate(p types.BattleParams) (*RequestTemplate, error) {
	u, err := url.Parse(p.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q: must be http or https", u.Scheme)
	}

	host := u.Hostname()
	port := u.Port()
	isTLS := u.Scheme == "https"
	if port == "" {
		if isTLS {
			port = "443"
		} else {
			port = "80"
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	method := p.Method
	if method == "" {
		method = "GET"
	}

	hasHeader := func(name string) bool {
		for _, h := range p.Headers {
			if strings.EqualFold(h.Name, name) {
				return true
			}
		}
		return false
	}

	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte(' ')
	buf.WriteString(path)
	buf.WriteString(" HTTP/1.1\r\n")

	for _, h := range p.Headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	if !hasHeader("Host") {
		buf.WriteString("Host: ")
		buf.WriteString(u.Host)
		buf.WriteString("\r\n")
	}
	if !hasHeader("Connection") {
		buf.WriteString("Connection: keep-alive\r\n")
	}
	if !hasHeader("User-Agent") {
		buf.WriteString("User-Agent: Hive/1.0\r\n")
	}
	if p.Body != "" && !hasHeader("Content-Length") {
		buf.WriteString("Content-Length: ")
		buf.WriteString(strconv.Itoa(len(p.Body)))
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	if p.Body != "" {
		buf.WriteString(p.Body)
	}

	return &RequestTemplate{
		Host: host,
		Port: port,
		TLS:  isTLS,
		Body: buf.Bytes(),
	}, nil
}

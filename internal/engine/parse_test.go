package engine

import (
	"net"
	"testing"
	"time"
)

func TestParseContentLength(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   int
		wantOK bool
	}{
		{"present", "HTTP/1.1 200 OK\r\nContent-Length: 42\r\n", 42, true},
		{"case insensitive", "HTTP/1.1 200 OK\r\ncontent-length: 7\r\n", 7, true},
		{"absent", "HTTP/1.1 200 OK\r\nConnection: close\r\n", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := parseContentLength([]byte(tc.header))
			if ok != tc.wantOK || n != tc.want {
				t.Errorf("parseContentLength(%q) = (%d, %v), want (%d, %v)", tc.header, n, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestParseStatusLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		want    int32
		wantErr bool
	}{
		{"ok", "HTTP/1.1 200 OK\r\n", 200, false},
		{"not found", "HTTP/1.1 404 Not Found\r\n", 404, false},
		{"malformed", "garbage\r\n", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := parseStatusLine([]byte(tc.line))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tc.want {
				t.Errorf("status = %d, want %d", code, tc.want)
			}
		})
	}
}

func TestReadResponseWithContentLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	resp, err := readResponse(client, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.statusCode != 200 {
		t.Errorf("status = %d, want 200", resp.statusCode)
	}
	if resp.bytesRead == 0 {
		t.Errorf("expected bytesRead > 0")
	}
}

func TestReadResponseWithoutContentLengthReadsUntilClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		server.Write([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nbody-without-length"))
		server.Close()
	}()

	resp, err := readResponse(client, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.statusCode != 200 {
		t.Errorf("status = %d, want 200", resp.statusCode)
	}
}

func TestReadResponseMalformedStatusLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("not an http response\r\n\r\n"))
	}()

	_, err := readResponse(client, 2*time.Second)
	if err == nil {
		t.Fatal("expected error for malformed status line")
	}
}

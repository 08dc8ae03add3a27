package engine

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/meridian/hive/pkg/types"
)

// startEchoServer runs a minimal raw TCP server that answers every HTTP/1.1
// request on a connection with a fixed 200 OK response, keeping the
// connection alive for further requests — enough to drive the engine's
// keep-alive request loop without a real target.
func startEchoServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					select {
					case <-done:
						return
					default:
					}
					if _, err := r.ReadString('\n'); err != nil {
						return
					}
					// Drain header lines until the blank line.
					for {
						line, err := r.ReadString('\n')
						if err != nil {
							return
						}
						if line == "\r\n" {
							break
						}
					}
					if _, err := c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() {
		close(done)
		ln.Close()
	}
}

func TestRunAgainstEchoServer(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	params := types.BattleParams{
		TargetURL:    "http://" + addr + "/",
		Method:       "GET",
		Threads:      2,
		Connections:  4,
		DurationSecs: 1,
		TimeoutSecs:  2,
	}

	result, err := engineRunForTest(params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.RequestsCompleted == 0 {
		t.Errorf("expected at least one completed request against the echo server")
	}
	if result.StatusCounts[200] == 0 {
		t.Errorf("expected some 200 responses, got status counts: %+v", result.StatusCounts)
	}
	if result.Connections != params.Connections {
		t.Errorf("result.Connections = %d, want %d", result.Connections, params.Connections)
	}
}

func TestRunRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, types.BattleParams{TargetURL: "http://example.com"})
	if err == nil {
		t.Fatal("expected error for already-cancelled context")
	}
}

func TestRunRejectsBadTargetURL(t *testing.T) {
	_, err := Run(context.Background(), types.BattleParams{TargetURL: "://not-a-url"})
	if err == nil {
		t.Fatal("expected error for malformed target URL")
	}
}

func TestRunUnevenConnectionSplitPreservesTotal(t *testing.T) {
	addr, stop := startEchoServer(t)
	defer stop()

	params := types.BattleParams{
		TargetURL:    "http://" + addr + "/",
		Threads:      3,
		Connections:  10, // does not divide evenly by 3
		DurationSecs: 1,
		TimeoutSecs:  2,
	}

	result, err := engineRunForTest(params)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Connections != 10 {
		t.Errorf("result.Connections = %d, want 10 (the remainder must be absorbed, not dropped)", result.Connections)
	}
}

func engineRunForTest(params types.BattleParams) (*types.BattleResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Run(ctx, params)
}

package types

import (
	"testing"
	"time"
)

func TestAgentRecordOnline(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just heard from", 0, true},
		{"inside window", OnlineWindow - time.Second, true},
		{"exactly at window", OnlineWindow, true},
		{"past window", OnlineWindow + time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := AgentRecord{LastHeartbeat: now.Add(-tc.age)}
			if got := a.Online(now); got != tc.want {
				t.Errorf("Online() with age %s = %v, want %v", tc.age, got, tc.want)
			}
		})
	}
}

func TestAgentRecordAddr(t *testing.T) {
	a := AgentRecord{Host: "10.0.0.5", Port: 3000}
	if got, want := a.Addr(), "10.0.0.5:3000"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestConnectionsPerWorker(t *testing.T) {
	cases := []struct {
		name        string
		threads     uint
		connections uint
		want        uint
	}{
		{"even split", 10, 50, 5},
		{"uneven split truncates", 3, 10, 3},
		{"zero threads clamps to one", 0, 10, 10},
		{"zero connections", 5, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := BattleParams{Threads: tc.threads, Connections: tc.connections}
			if got := p.ConnectionsPerWorker(); got != tc.want {
				t.Errorf("ConnectionsPerWorker() = %d, want %d", got, tc.want)
			}
		})
	}
}

// Package agent implements the battle engine's host process: a
// long-running daemon that holds at most one battle at a time, exposes a
// small HTTP control surface, and maintains a check-in/heartbeat link to
// a configured coordinator.
package agent

import (
	"context"
	"sync"

	"github.com/meridian/hive/pkg/types"
)

// State is the agent's in-memory record: its coordinator-assigned id
// (empty until check-in succeeds), and the single most recent battle's
// running flag and result. Every field is guarded by the same mutex since
// they are always read and written together at the boundaries spec.md
// §4.2 describes (fire, ceasefire, battlereport). cancel tears down the
// context handed out by TryStart, which the engine observes cooperatively
// at its next reactor tick.
type State struct {
	mu sync.Mutex

	hiveID  string
	running bool
	ceased  bool
	result  *types.BattleResult
	cancel  context.CancelFunc
}

// NewState creates an empty agent state.
func NewState() *State {
	return &State{}
}

// HiveID returns the coordinator-assigned id, or "" before check-in.
func (s *State) HiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hiveID
}

// SetHiveID records the id returned by a successful check-in.
func (s *State) SetHiveID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hiveID = id
}

// IsRunning reports whether a battle is currently in flight.
func (s *State) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TryStart flips running to true, returning false if a battle was already
// in flight (spec.md §4.2: "fire rejects... when running = true"). On
// success it returns the context the engine should run under: cancelling
// it (via Ceasefire or Finish) is how a running battle is told to stop.
func (s *State) TryStart() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, false
	}
	s.running = true
	s.ceased = false
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return ctx, true
}

// Ceasefire requests cooperative termination of the current battle by
// cancelling its context. The engine observes this at its next reactor
// tick (between requests on each connection), per spec.md §4.2 and §5.
func (s *State) Ceasefire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ceased = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Ceased reports whether ceasefire was requested for the in-flight battle.
func (s *State) Ceased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ceased
}

// Finish stores the completed battle's result, clears running, and
// releases the battle's context. A nil result (a battle that never
// produced one) leaves the previously stored result in place.
func (s *State) Finish(result *types.BattleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if result != nil {
		s.result = result
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// LastResult returns the most recently completed battle's result, or nil
// if none has finished yet.
func (s *State) LastResult() *types.BattleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Package api defines the JSON wire types exchanged between operators,
// the coordinator, and agents.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/meridian/hive/pkg/types"
)

var validate = validator.New()

// FlexUint decodes either a JSON number or a numeric JSON string into a
// uint, matching spec.md §6's "numeric fields accept either JSON number or
// numeric string" requirement on the fire-request body.
type FlexUint struct {
	Value uint
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexUint) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" || len(b) == 0 {
		return nil
	}
	var v uint
	if _, err := fmt.Sscanf(string(b), "%d", &v); err != nil {
		return fmt.Errorf("invalid numeric field %q: %w", string(b), err)
	}
	f.Value = v
	f.Set = true
	return nil
}

// FireRequest is the body of PUT /hive/poke and PUT /fire.
type FireRequest struct {
	Target  string            `json:"target" validate:"required,url"`
	T       FlexUint          `json:"t,omitempty"`
	C       FlexUint          `json:"c,omitempty"`
	D       FlexUint          `json:"d,omitempty"`
	Timeout FlexUint          `json:"timeout,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Default fire-request field values per spec.md §6.
const (
	DefaultThreads     = 10
	DefaultConnections = 50
	DefaultDuration    = 30
	DefaultTimeout     = 2
	DefaultMethod      = "GET"
)

// Validate checks the request is well-formed: a valid http(s) URL and
// T ≤ C once defaults are applied.
func (r *FireRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid fire request: %w", err)
	}
	u, err := url.Parse(r.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid fire request: target scheme must be http or https, got %q", r.Target)
	}
	params := r.ToBattleParams()
	if params.Threads > params.Connections {
		return fmt.Errorf("invalid fire request: threads (%d) must not exceed connections (%d)",
			params.Threads, params.Connections)
	}
	return nil
}

// ToBattleParams converts the wire request into BattleParams, applying
// defaults for every absent field and sorting headers by name for a
// deterministic wire order.
func (r *FireRequest) ToBattleParams() types.BattleParams {
	p := types.BattleParams{
		TargetURL:    r.Target,
		Method:       r.Method,
		Body:         r.Body,
		Threads:      DefaultThreads,
		Connections:  DefaultConnections,
		DurationSecs: DefaultDuration,
		TimeoutSecs:  DefaultTimeout,
	}
	if p.Method == "" {
		p.Method = DefaultMethod
	}
	if r.T.Set {
		p.Threads = r.T.Value
	}
	if r.C.Set {
		p.Connections = r.C.Value
	}
	if r.D.Set {
		p.DurationSecs = r.D.Value
	}
	if r.Timeout.Set {
		p.TimeoutSecs = r.Timeout.Value
	}

	if len(r.Headers) > 0 {
		names := make([]string, 0, len(r.Headers))
		for name := range r.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		p.Headers = make([]types.Header, 0, len(names))
		for _, name := range names {
			p.Headers = append(p.Headers, types.Header{Name: name, Value: r.Headers[name]})
		}
	}

	return p
}

// CheckinResponse is returned by GET /wasp/checkin/{port}.
type CheckinResponse struct {
	ID string `json:"id"`
}

// ErrorCounts breaks non-2xx failure counts down by transport-error class
// for the per-agent report JSON shipped to the coordinator.
type ErrorCounts struct {
	Connect int64 `json:"connect"`
	Read    int64 `json:"read"`
	Write   int64 `json:"write"`
	Timeout int64 `json:"timeout"`
}

// LatencyStats is the avg/max pair used in both the latency and rps
// sub-objects of the per-agent report.
type LatencyStats struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// AgentReportJSON is the body of PUT /wasp/reportin/{id} — the condensed
// report an agent ships upstream on battle completion (spec.md §6).
type AgentReportJSON struct {
	TotalRPS           float64          `json:"total_rps"`
	Read               uint64           `json:"read"`
	TotalRequests      uint64           `json:"total_requests"`
	TBS                uint64           `json:"tbs"`
	NonSuccessRequests uint64           `json:"non_success_requests"`
	Errors             ErrorCounts      `json:"errors"`
	Latency            LatencyStats     `json:"latency"`
	RPS                LatencyStats     `json:"rps"`
	StatusCounts       map[string]int64 `json:"status_counts"`
	LatencyP50         *int64           `json:"latency_p50,omitempty"`
	LatencyP90         *int64           `json:"latency_p90,omitempty"`
	LatencyP99         *int64           `json:"latency_p99,omitempty"`
	DurationSecs       uint             `json:"duration_secs"`
	Connections        uint             `json:"connections"`
	Threads            uint             `json:"threads"`
	Method             string           `json:"method"`
	URL                string           `json:"url"`
	AgentCPUPercent    float64          `json:"agent_cpu_percent,omitempty"`
	AgentMemoryMB      int64            `json:"agent_memory_mb,omitempty"`
}

// FromBattleResult condenses a BattleResult into the wire shape an agent
// posts to the coordinator, splitting the merged status_counts keyspace
// back into HTTP codes (>=400 counted as non-success) and the four named
// transport-error classes.
func FromBattleResult(r *types.BattleResult) AgentReportJSON {
	out := AgentReportJSON{
		TotalRPS:      r.RPS,
		Read:          r.BytesRead,
		TotalRequests: r.RequestsCompleted,
		TBS:           r.BytesRead,
		Latency:       LatencyStats{Avg: float64(r.LatencyAvgMicros), Max: float64(r.LatencyMaxMicros)},
		RPS:           LatencyStats{Avg: r.RPS, Max: r.RPS},
		StatusCounts:  make(map[string]int64, len(r.StatusCounts)),
		LatencyP50:    r.LatencyP50,
		LatencyP90:    r.LatencyP90,
		LatencyP99:    r.LatencyP99,
		DurationSecs:  r.DurationSecs,
		Connections:   r.Connections,
		Threads:       r.Threads,
		Method:        r.Method,
		URL:           r.URL,
		AgentCPUPercent: r.AgentCPUPercent,
		AgentMemoryMB:   r.AgentMemoryMB,
	}

	for code, count := range r.StatusCounts {
		out.StatusCounts[itoa(code)] = int64(count)
		switch code {
		case types.ErrConnectionFailed:
			out.Errors.Connect += int64(count)
		case types.ErrTLSHandshakeFailed:
			out.Errors.Connect += int64(count)
		case types.ErrWriteFailed:
			out.Errors.Write += int64(count)
		case types.ErrInvalidResponse:
			out.Errors.Read += int64(count)
		case types.ErrTimeout:
			out.Errors.Timeout += int64(count)
		}
		if code >= 400 {
			out.NonSuccessRequests += count
		}
	}

	return out
}

// ToBattleResult reconstructs the core BattleResult fields the coordinator
// needs from an inbound AgentReportJSON (the reverse of FromBattleResult,
// used on the coordinator's PUT /wasp/reportin/{id} handler).
func (a AgentReportJSON) ToBattleResult() *types.BattleResult {
	statusCounts := make(map[int32]uint64, len(a.StatusCounts))
	for k, v := range a.StatusCounts {
		var code int32
		fmt.Sscanf(k, "%d", &code)
		statusCounts[code] = uint64(v)
	}
	return &types.BattleResult{
		RequestsCompleted: a.TotalRequests,
		BytesRead:         a.Read,
		RPS:               a.TotalRPS,
		StatusCounts:      statusCounts,
		LatencyP50:        a.LatencyP50,
		LatencyP90:        a.LatencyP90,
		LatencyP99:        a.LatencyP99,
		LatencyAvgMicros:  int64(a.Latency.Avg),
		LatencyMaxMicros:  int64(a.Latency.Max),
		DurationSecs:      a.DurationSecs,
		Connections:       a.Connections,
		Threads:           a.Threads,
		Method:            a.Method,
		URL:               a.URL,
		AgentCPUPercent:   a.AgentCPUPercent,
		AgentMemoryMB:     a.AgentMemoryMB,
	}
}

func itoa(n int32) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// StatusResponse is the body of GET /hive/status while a battle is running.
type StatusResponse struct {
	Running types.BattleParams `json:"running"`
	Percent string             `json:"percent"`
	ETA     string             `json:"eta"`
}

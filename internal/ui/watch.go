// Package ui holds hivectl's live terminal views: the watch TUI that
// polls a coordinator's status and renders it with bubbletea/lipgloss,
// in the spirit of this codebase's other interactive prompt screens.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meridian/hive/pkg/api"
	"github.com/meridian/hive/pkg/client"
	"github.com/meridian/hive/pkg/types"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type tickMsg time.Time

type statusMsg struct {
	idle     bool
	running  types.BattleParams
	percent  string
	eta      string
	report   *types.CoordinatorReport
	agents   []*types.AgentRecord
	fetchErr error
}

// WatchModel is the bubbletea model backing `hivectl watch`.
type WatchModel struct {
	c        *client.Client
	spin     spinner.Model
	progress progress.Model
	last     statusMsg
	interval time.Duration
}

// NewWatchModel creates a live watch view against the given coordinator client.
func NewWatchModel(c *client.Client, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return WatchModel{
		c:        c,
		spin:     s,
		progress: progress.New(progress.WithDefaultGradient()),
		interval: interval,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetch())
}

func (m WatchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg := statusMsg{}
		done, err := m.c.Done(ctx)
		if err != nil {
			msg.fetchErr = err
			return msg
		}
		msg.idle = done

		agents, err := m.c.List(ctx)
		if err == nil {
			msg.agents = agents
		}

		if !done {
			body, err := m.c.Status(ctx)
			if err == nil {
				msg.percent, msg.eta = parseStatusBody(body)
			}
		} else {
			report, err := m.c.Report(ctx)
			if err == nil {
				msg.report = report
			}
		}

		return msg
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tea.Batch(tick(m.interval), m.fetch())
	case statusMsg:
		m.last = msg
		return m, tick(m.interval)
	}
	return m, nil
}

func (m WatchModel) View() string {
	var out string
	out += titleStyle.Render("hive watch") + "\n\n"

	if m.last.fetchErr != nil {
		out += warnStyle.Render(fmt.Sprintf("coordinator unreachable: %v", m.last.fetchErr)) + "\n"
		return out
	}

	if m.last.idle {
		out += dimStyle.Render("status: idle") + "\n"
		if m.last.report != nil {
			r := m.last.report
			out += fmt.Sprintf("last battle target: %s\n", r.Params.TargetURL)
			out += fmt.Sprintf("completed=%d failed=%d total_requests=%d rps=%.1f\n",
				r.Completed, r.Failed, r.TotalRequests, r.TotalRPS)
		}
	} else {
		out += fmt.Sprintf("%s firing at target\n", m.spin.View())
		pct := parsePercent(m.last.percent)
		out += m.progress.ViewAs(pct) + "\n"
		out += dimStyle.Render(fmt.Sprintf("eta: %s", m.last.eta)) + "\n"
	}

	out += "\n" + dimStyle.Render(fmt.Sprintf("agents online: %d", countOnline(m.last.agents))) + "\n"
	out += dimStyle.Render("press q to quit") + "\n"
	return out
}

func countOnline(agents []*types.AgentRecord) int {
	now := time.Now()
	n := 0
	for _, a := range agents {
		if a.Online(now) {
			n++
		}
	}
	return n
}

func parsePercent(s string) float64 {
	var pct float64
	fmt.Sscanf(s, "%f%%", &pct)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct / 100
}

func parseStatusBody(body []byte) (percent, eta string) {
	var parsed api.StatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "0%", "unknown"
	}
	return parsed.Percent, parsed.ETA
}

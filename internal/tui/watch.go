package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/realtime"
	"github.com/felixgeelhaar/qrlink/internal/session"
)

const maxEvents = 6

// SnapshotMsg carries a published session snapshot.
type SnapshotMsg session.Snapshot

// LifecycleMsg carries a realtime connection event.
type LifecycleMsg realtime.Event

// streamClosedMsg is sent when the snapshot subscription ends.
type streamClosedMsg struct{}

// Styles contains lipgloss styles for the watch view
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Good    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Border  lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(12),
		Good: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")),
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2),
	}
}

// WatchModel renders the live session: state, user, token and channel
// status, plus the most recent connection events.
type WatchModel struct {
	snapshots <-chan session.Snapshot
	events    <-chan realtime.Event

	spinner   spinner.Model
	snapshot  session.Snapshot
	received  bool
	connected bool
	recent    []realtime.Event
	quitting  bool

	styles Styles
	now    func() time.Time
}

// NewWatchModel creates a model fed by a session subscription and the
// channel lifecycle stream.
func NewWatchModel(snapshots <-chan session.Snapshot, events <-chan realtime.Event) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	return WatchModel{
		snapshots: snapshots,
		events:    events,
		spinner:   s,
		styles:    DefaultStyles(),
		now:       time.Now,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitSnapshot(m.snapshots), waitEvent(m.events))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SnapshotMsg:
		m.snapshot = session.Snapshot(msg)
		m.received = true
		if !m.snapshot.ChannelOpen {
			m.connected = false
		}
		return m, waitSnapshot(m.snapshots)

	case LifecycleMsg:
		ev := realtime.Event(msg)
		m.connected = ev.Kind == realtime.EventOpened
		m.recent = append(m.recent, ev)
		if len(m.recent) > maxEvents {
			m.recent = m.recent[len(m.recent)-maxEvents:]
		}
		return m, waitEvent(m.events)

	case streamClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("qrlink watch"))
	b.WriteString("\n")

	if !m.received {
		b.WriteString(m.spinner.View() + " loading session...\n")
		return b.String()
	}

	s := m.snapshot
	row := func(label, value string) {
		b.WriteString(m.styles.Label.Render(label) + value + "\n")
	}

	if s.IsAuthenticated() {
		row("state", m.styles.Good.Render(s.State.String()))
		row("user", s.User.String())
		row("token", "tok_"+log.Fingerprint(s.Token))
		if exp, ok := session.TokenExpiry(s.Token); ok {
			row("expires", m.expiry(exp))
		}
	} else {
		row("state", m.styles.Warning.Render(s.State.String()))
	}
	row("generation", fmt.Sprintf("%d", s.Generation))
	row("channel", m.channelStatus())
	if !s.At.IsZero() {
		row("updated", s.At.Local().Format("15:04:05"))
	}

	if len(m.recent) > 0 {
		b.WriteString("\n")
		for _, ev := range m.recent {
			b.WriteString(m.styles.Muted.Render(EventLine(ev)) + "\n")
		}
	}

	b.WriteString("\n" + m.styles.Muted.Render("q: quit"))
	return m.styles.Border.Render(b.String())
}

func (m WatchModel) channelStatus() string {
	s := m.snapshot
	switch {
	case !s.ChannelOpen:
		return m.styles.Muted.Render("closed")
	case s.ChannelStale:
		return m.styles.Warning.Render("stale (token rotated)")
	case m.connected:
		return m.styles.Good.Render("connected")
	default:
		return m.spinner.View() + " connecting"
	}
}

func (m WatchModel) expiry(exp time.Time) string {
	left := exp.Sub(m.now())
	if left <= 0 {
		return m.styles.Error.Render("expired " + exp.Local().Format(time.RFC822))
	}
	return fmt.Sprintf("%s (in %s)", exp.Local().Format(time.RFC822), left.Round(time.Second))
}

// SnapshotLine is the single-line form used by `watch --plain`.
func SnapshotLine(s session.Snapshot) string {
	parts := []string{
		s.At.Format(time.RFC3339),
		"state=" + s.State.String(),
		fmt.Sprintf("gen=%d", s.Generation),
	}
	if s.IsAuthenticated() {
		parts = append(parts, "user="+s.User.Username, "token=tok_"+log.Fingerprint(s.Token))
	}
	parts = append(parts, fmt.Sprintf("channel_open=%t", s.ChannelOpen))
	if s.ChannelStale {
		parts = append(parts, "channel_stale=true")
	}
	return strings.Join(parts, " ")
}

// EventLine describes a lifecycle event in one line.
func EventLine(ev realtime.Event) string {
	line := fmt.Sprintf("realtime %s (epoch %d)", ev.Kind, ev.Epoch)
	if ev.Kind == realtime.EventReconnecting {
		line += fmt.Sprintf(" retry in %s", ev.Delay.Round(time.Millisecond))
	}
	if ev.Err != nil {
		line += ": " + ev.Err.Error()
	}
	return line
}

func waitSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return SnapshotMsg(s)
	}
}

func waitEvent(ch <-chan realtime.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return LifecycleMsg(ev)
	}
}

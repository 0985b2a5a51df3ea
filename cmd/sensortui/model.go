package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-sensornet/pkg/client"
	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 2).
			MarginLeft(2)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			MarginLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Elect   key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Elect: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "force election at selected sensor"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Elect, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Elect, k.Refresh, k.Quit},
	}
}

type model struct {
	client   *client.Client
	roster   []cluster.PeerDescriptor
	interval time.Duration

	table      table.Model
	help       help.Model
	keys       keyMap
	results    []client.QueryResult
	lastPoll   time.Time
	message    string
	messageErr bool
	width      int
}

type tickMsg time.Time

type pollMsg struct {
	results []client.QueryResult
	at      time.Time
}

type electionMsg struct {
	id  uint64
	err error
}

func initialModel(c *client.Client, roster []cluster.PeerDescriptor, interval time.Duration) model {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Address", Width: 18},
		{Title: "State", Width: 12},
		{Title: "Coord", Width: 6},
		{Title: "Clock", Width: 8},
		{Title: "Version", Width: 8},
		{Title: "Temp °C", Width: 8},
		{Title: "Hum %", Width: 7},
		{Title: "hPa", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(roster)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		client:   c,
		roster:   roster,
		interval: interval,
		table:    t,
		help:     help.New(),
		keys:     keys,
	}
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		results := m.client.QueryAll(context.Background(), m.roster)
		return pollMsg{results: results, at: time.Now()}
	}
}

func (m model) electCmd(peer cluster.PeerDescriptor) tea.Cmd {
	return func() tea.Msg {
		_, err := m.client.StartElection(context.Background(), peer.Addr)
		return electionMsg{id: peer.ID, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.pollCmd(), m.tickCmd())

	case pollMsg:
		m.results = msg.results
		m.lastPoll = msg.at
		m.table.SetRows(rows(msg.results))

	case electionMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Election at sensor %d failed: %v", msg.id, msg.err)
			m.messageErr = true
		} else {
			m.message = fmt.Sprintf("Election started at sensor %d", msg.id)
			m.messageErr = false
		}
		return m, m.pollCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Refresh):
			return m, m.pollCmd()

		case key.Matches(msg, m.keys.Elect):
			cursor := m.table.Cursor()
			if cursor < 0 || cursor >= len(m.roster) {
				return m, nil
			}
			peer := m.roster[cursor]
			m.message = fmt.Sprintf("Forcing election at sensor %d...", peer.ID)
			m.messageErr = false
			return m, m.electCmd(peer)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("📡 Sensor Fleet Dashboard"))
	s.WriteString("\n\n")
	s.WriteString(summaryStyle.Render(summary(m.results, m.lastPoll)))
	s.WriteString("\n\n")
	s.WriteString(tableStyle.Render(m.table.View()))

	if m.message != "" {
		s.WriteString("\n\n  ")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/rescp17/lanLinker/pkg/cancel"
	"github.com/rescp17/lanLinker/pkg/concurrency"
	"github.com/rescp17/lanLinker/pkg/discovery"
	"github.com/rescp17/lanLinker/pkg/medium"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("241"))
	lostStyle   = lipgloss.NewStyle().Faint(true)
)

// probeTimeout bounds the connect attempt issued from the browser.
const probeTimeout = 3 * time.Second

type foundMsg struct{ info discovery.ServiceInfo }
type lostMsg struct{ info discovery.ServiceInfo }

type probeMsg struct {
	name string
	err  error
}

// BrowseModel is the live service browser behind "lanlinker browse". It
// subscribes to a medium's discovery events and renders the currently
// visible services.
type BrowseModel struct {
	medium   medium.Medium
	sub      medium.Subscription
	events   chan tea.Msg
	spinner  spinner.Model
	services map[string]discovery.ServiceInfo
	guard    *concurrency.Guard
	cursor   int
	status   string
	lastLost string
	err      error
}

// NewBrowseModel creates the browser for m. Discovery starts in Init.
func NewBrowseModel(m medium.Medium) *BrowseModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &BrowseModel{
		medium:   m,
		events:   make(chan tea.Msg, 32),
		spinner:  sp,
		services: make(map[string]discovery.ServiceInfo),
		guard:    concurrency.NewGuard(),
	}
}

func (m *BrowseModel) Init() tea.Cmd {
	sub, err := m.medium.StartDiscovery(medium.Callback{
		OnFound: func(info discovery.ServiceInfo) {
			m.send(foundMsg{info: info})
		},
		OnLost: func(info discovery.ServiceInfo) {
			m.send(lostMsg{info: info})
		},
	})
	if err != nil {
		m.err = err
		return tea.Quit
	}
	m.sub = sub
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// send must never block: StopDiscovery drains in-flight callbacks, and a
// callback parked on a full channel after the program quits would stall it.
func (m *BrowseModel) send(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

func (m *BrowseModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case foundMsg:
		m.services[msg.info.Key()] = msg.info
		return m, m.waitForEvent()
	case lostMsg:
		delete(m.services, msg.info.Key())
		m.lastLost = msg.info.Name
		if m.cursor >= len(m.services) && m.cursor > 0 {
			m.cursor--
		}
		return m, m.waitForEvent()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case probeMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("connect to %s failed: %v", msg.name, msg.err)
		} else {
			m.status = fmt.Sprintf("connected to %s", msg.name)
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.sub != nil {
				_ = m.medium.StopDiscovery(m.sub)
			}
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.services)-1 {
				m.cursor++
			}
		case "enter":
			return m, m.probeSelected()
		}
	}
	return m, nil
}

// probeSelected dials the highlighted service and immediately hangs up,
// confirming it is reachable. The guard rejects a second probe while one
// is still in flight.
func (m *BrowseModel) probeSelected() tea.Cmd {
	list := m.sorted()
	if m.cursor >= len(list) {
		return nil
	}
	target := list[m.cursor]
	return func() tea.Msg {
		err := m.guard.Execute(func() error {
			tok := cancel.NewToken()
			timer := time.AfterFunc(probeTimeout, tok.Cancel)
			defer timer.Stop()
			sock, err := m.medium.ConnectToService(target, tok)
			if err != nil {
				return err
			}
			return sock.Close()
		})
		return probeMsg{name: target.Name, err: err}
	}
}

func (m *BrowseModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Nearby services"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(fmt.Sprintf("discovery failed: %v\n", m.err))
		return b.String()
	}

	if len(m.services) == 0 {
		b.WriteString(fmt.Sprintf("%s searching...\n", m.spinner.View()))
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-26s %-22s %s", "NAME", "ADDRESS", "ATTRS")))
		b.WriteString("\n")
		for i, info := range m.sorted() {
			marker := "  "
			if i == m.cursor {
				marker = "> "
			}
			name := runewidth.Truncate(info.Name, 24, "…")
			b.WriteString(fmt.Sprintf("%s%-26s %-22s %s\n",
				marker, name, info.HostPort(), strings.Join(info.AttrKeys(), ",")))
		}
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	if m.lastLost != "" {
		b.WriteString(lostStyle.Render(fmt.Sprintf("\nlost: %s", m.lastLost)))
		b.WriteString("\n")
	}
	b.WriteString("\nPress enter to probe, q to quit")
	return b.String()
}

func (m *BrowseModel) sorted() []discovery.ServiceInfo {
	out := make([]discovery.ServiceInfo, 0, len(m.services))
	for _, info := range m.services {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

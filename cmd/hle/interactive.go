package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/hle/config"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
	"github.com/wippyai/hle/service"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectService modelState = iota
	stateSelectCommand
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err       error
	h         *host
	sessions  map[string]kernel.Handle
	services  []service.Registration
	commands  []service.Command
	inputs    []textinput.Model
	result    string
	service   int
	selected  int
	focusIdx  int
	state     modelState
	viaBridge bool
}

func newInteractiveModel(h *host, viaBridge bool) *interactiveModel {
	return &interactiveModel{
		h:         h,
		sessions:  make(map[string]kernel.Handle),
		services:  h.reg.Registrations(),
		state:     stateSelectService,
		viaBridge: viaBridge,
	}
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) currentService() service.Registration {
	return m.services[m.service]
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.selecting() && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selecting() && m.selected < m.listLen()-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectService:
				if err := m.enterService(); err != nil {
					m.err = err
					return m, nil
				}
				m.state = stateSelectCommand

			case stateSelectCommand:
				if len(m.commands) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callCommand
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callCommand

			case stateShowResult:
				m.state = stateSelectCommand
				m.result = ""
				m.err = nil
			}
			return m, nil

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectCommand:
				m.state = stateSelectService
				m.selected = m.service
				m.err = nil
			case stateInputArgs:
				m.state = stateSelectCommand
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectCommand
				m.result = ""
				m.err = nil
			}
			return m, nil
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) selecting() bool {
	return m.state == stateSelectService || m.state == stateSelectCommand
}

func (m *interactiveModel) listLen() int {
	if m.state == stateSelectService {
		return len(m.services)
	}
	return len(m.commands)
}

// enterService opens a session on the selected service once and keeps it
// for the rest of the console run.
func (m *interactiveModel) enterService() error {
	m.service = m.selected
	name := m.currentService().Name
	h, ok := m.sessions[name]
	if !ok {
		var err error
		h, err = m.h.open(context.Background(), name)
		if err != nil {
			return err
		}
		m.sessions[name] = h
	}
	svc, err := m.h.reg.Service(h)
	if err != nil {
		return err
	}
	m.commands = svc.Commands().List()
	m.selected = 0
	return nil
}

func (m *interactiveModel) prepareInputs() {
	c := m.commands[m.selected]
	m.inputs = make([]textinput.Model, len(c.In))
	for i, t := range c.In {
		ti := textinput.New()
		ti.Placeholder = ipc.TypeName(t)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callCommand() tea.Msg {
	c := m.commands[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = strings.TrimSpace(input.Value())
	}
	session := m.sessions[m.currentService().Name]

	reply, cmd, known, err := m.h.call(context.Background(), session, uint32(c.Code), args)
	if err != nil {
		return callResultMsg{err: err}
	}
	out := formatReply(reply, cmd, known)
	for _, h := range reply.Handles() {
		out += fmt.Sprintf("\nhandle %d: %s", h, m.describeHandle(h))
	}
	return callResultMsg{result: out}
}

func (m *interactiveModel) describeHandle(h kernel.Handle) string {
	obj, ok := m.h.reg.Handles().Get(h)
	if !ok {
		return "closed"
	}
	if svc, ok := obj.(service.Service); ok {
		return "session " + svc.Commands().Name()
	}
	return obj.Kind().String()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("HLE Console"))
	b.WriteString(" ")
	b.WriteString(m.h.reg.ID().String())
	if m.viaBridge {
		b.WriteString(" (bridge)")
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectService:
		b.WriteString("Select a service:\n\n")
		for i, reg := range m.services {
			line := reg.Name
			if reg.Port {
				line += typeStyle.Render(" port")
			}
			m.writeItem(&b, i, line)
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateSelectCommand:
		b.WriteString(fmt.Sprintf("Commands of %s:\n\n", funcStyle.Render(m.currentService().Name)))
		for i, c := range m.commands {
			m.writeItem(&b, i, formatCommand(c))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		c := m.commands[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(c.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(ipc.TypeName(c.In[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		c := m.commands[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(c.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) writeItem(b *strings.Builder, i int, line string) {
	if i == m.selected {
		b.WriteString(selectedStyle.Render("> " + line))
	} else {
		b.WriteString("  " + line)
	}
	b.WriteString("\n")
}

func runInteractive(cfg *config.Config, viaBridge bool) error {
	ctx := context.Background()
	// the alt screen owns the terminal
	h, err := newHost(ctx, cfg, zap.NewNop(), viaBridge)
	if err != nil {
		return err
	}
	defer h.close(ctx)

	p := tea.NewProgram(newInteractiveModel(h, viaBridge), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

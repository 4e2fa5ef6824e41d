package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/rebind/bridge"
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

type interactiveModel struct {
	err      error
	reg      *bridge.Registry
	result   string
	globals  []globalInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type globalInfo struct {
	name       string
	typeName   string
	signatures []string
	arity      int
}

type modelState int

const (
	stateSelectGlobal modelState = iota
	stateInputArgs
	stateShowResult
)

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(r *bridge.Registry) *interactiveModel {
	m := &interactiveModel{reg: r, state: stateSelectGlobal}
	for _, g := range r.Schema().Globals {
		gi := globalInfo{name: g.Name, typeName: g.Type, signatures: g.Signatures}
		if len(g.Signatures) > 0 {
			gi.arity = arity(g.Signatures[0])
		}
		m.globals = append(m.globals, gi)
	}
	return m
}

// arity counts the parameters of a rendered "func(a: x, b: y) -> z" signature.
func arity(sig string) int {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return 0
	}
	depth, n, empty := 0, 1, true
	for _, c := range sig[open+1:] {
		switch c {
		case '<', '(':
			depth++
		case '>':
			depth--
		case ')':
			if depth == 0 {
				if empty {
					return 0
				}
				return n
			}
			depth--
		case ',':
			if depth == 0 {
				n++
			}
		case ' ':
		default:
			empty = false
		}
	}
	return 0
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectGlobal && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectGlobal && m.selected < len(m.globals)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectGlobal:
				if len(m.globals) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callGlobal
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callGlobal

			case stateShowResult:
				m.state = stateSelectGlobal
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectGlobal
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectGlobal
				m.result = ""
				m.err = nil
			}
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

func (m *interactiveModel) prepareInputs() {
	g := m.globals[m.selected]
	m.inputs = make([]textinput.Model, g.arity)
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = "value"
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callGlobal() tea.Msg {
	g := m.globals[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	result, err := invoke(m.reg, g.name, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: result}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rebind"))
	b.WriteString(" ")
	b.WriteString(m.reg.Name())
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectGlobal:
		if len(m.globals) == 0 {
			b.WriteString("No globals defined.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a global to call:\n\n")
		for i, g := range m.globals {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + g.name))
				b.WriteString(" " + m.formatGlobal(g))
			} else {
				b.WriteString("  " + funcStyle.Render(g.name) + " " + m.formatGlobal(g))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		g := m.globals[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(g.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		g := m.globals[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(g.name)))
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

func (m *interactiveModel) formatGlobal(g globalInfo) string {
	if len(g.signatures) == 0 {
		return typeStyle.Render(g.typeName)
	}
	return typeStyle.Render(strings.Join(g.signatures, " | "))
}

func runInteractive(r *bridge.Registry) error {
	p := tea.NewProgram(newInteractiveModel(r), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

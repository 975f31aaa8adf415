// Interactive chat interface built on bubbletea.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"planforge/internal/agent"
)

type chatStyles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	progress  lipgloss.Style
	errText   lipgloss.Style
	prompt    lipgloss.Style
	status    lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		progress:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		errText:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		prompt:    lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

type chatMessage struct {
	role    string
	content string
	time    time.Time
}

type (
	responseMsg *agent.Response
	errorMsg    error
)

type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    chatStyles
	renderer  *glamour.TermRenderer

	app       *app
	sessionID string

	history   []chatMessage
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool
}

func newChatModel(a *app) chatModel {
	styles := defaultChatStyles()

	ti := textinput.New()
	ti.Placeholder = "Research a company... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.prompt

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.progress

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		app:       a,
		sessionID: a.sessions.Create(""),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		m.textinput.Width = msg.Width - 4
		if !m.ready {
			m.ready = true
		}
		m.viewport.SetContent(m.renderHistory())

	case responseMsg:
		m.isLoading = false
		resp := (*agent.Response)(msg)
		content := resp.Text
		if resp.Plan != nil {
			content += "\n\n" + planMarkdown(resp.Plan)
		}
		m.history = append(m.history, chatMessage{role: "assistant", content: content, time: time.Now()})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case errorMsg:
		m.isLoading = false
		m.err = msg
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	m.history = append(m.history, chatMessage{role: "user", content: input, time: time.Now()})
	m.textinput.Reset()
	m.isLoading = true
	m.err = nil
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	a, sessionID := m.app, m.sessionID
	send := func() tea.Msg {
		resp, err := a.process(input, sessionID)
		if err != nil {
			return errorMsg(err)
		}
		return responseMsg(resp)
	}
	return m, tea.Batch(send, m.spinner.Tick)
}

func (m chatModel) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.history {
		stamp := msg.time.Format("15:04")
		if msg.role == "user" {
			sb.WriteString(m.styles.user.Render(fmt.Sprintf("You (%s)", stamp)))
			sb.WriteString("\n" + msg.content + "\n\n")
			continue
		}
		sb.WriteString(m.styles.assistant.Render(fmt.Sprintf("planforge (%s)", stamp)))
		sb.WriteString("\n")
		if m.renderer != nil {
			if out, err := m.renderer.Render(msg.content); err == nil {
				sb.WriteString(out + "\n")
				continue
			}
		}
		sb.WriteString(msg.content + "\n\n")
	}
	if m.err != nil {
		sb.WriteString(m.styles.errText.Render("Error: "+m.err.Error()) + "\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return "Starting planforge..."
	}

	status := m.styles.status.Render("Enter to send · Ctrl+C to quit")
	if m.isLoading {
		status = m.spinner.View() + m.styles.progress.Render(" researching...")
	}

	return fmt.Sprintf("%s\n%s\n%s",
		m.viewport.View(),
		m.textinput.View(),
		status,
	)
}

// runChat launches the interactive TUI.
func runChat() error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(newChatModel(a), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

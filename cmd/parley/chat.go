package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/westrik/parley/internal/conversation"
	"github.com/westrik/parley/internal/session"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive terminal chat session",
		Long: `Opens a terminal chat against an in-process session engine. Typed
messages are committed to the conversation; the footer shows the idle
countdown. Intended for exercising the reconciler without a browser.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(sessionID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "local", "session identifier")
	return cmd
}

func runChat(sessionID string) error {
	eng, err := session.New(session.Opts{
		SessionID: sessionID,
		Mode:      conversation.ModeChat,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.StartTimer()

	p := tea.NewProgram(newChatModel(eng), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type chatTheme struct {
	transcript lipgloss.Style
	footer     lipgloss.Style
	user       lipgloss.Style
	agent      lipgloss.Style
	timestamp  lipgloss.Style
	warning    lipgloss.Style
}

func newChatTheme() chatTheme {
	return chatTheme{
		transcript: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3b4261")).
			Padding(0, 1),
		footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		agent:     lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
		warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
	}
}

type chatTickMsg time.Time

func chatTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return chatTickMsg(t)
	})
}

type chatModel struct {
	eng        *session.Engine
	input      textinput.Model
	transcript viewport.Model
	theme      chatTheme
	width      int
	height     int
	errLine    string
}

func newChatModel(eng *session.Engine) chatModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Type a message (ctrl+c to quit)"
	input.Focus()

	transcript := viewport.New(0, 0)
	transcript.MouseWheelEnabled = true

	return chatModel{
		eng:        eng,
		input:      input,
		transcript: transcript,
		theme:      newChatTheme(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, chatTick())
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = msg.Width - 4
		m.transcript.Height = msg.Height - 5
		m.refreshTranscript()
		return m, nil

	case chatTickMsg:
		m.refreshTranscript()
		return m, chatTick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			m.refreshTranscript()
			return m, nil
		}
	}

	var inputCmd, vpCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.transcript, vpCmd = m.transcript.Update(msg)
	return m, tea.Batch(inputCmd, vpCmd)
}

func (m *chatModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.eng.AddTextMessage(ctx, text); err != nil {
		m.errLine = err.Error()
		return
	}
	m.errLine = ""
	m.input.Reset()
}

func (m *chatModel) refreshTranscript() {
	atBottom := m.transcript.AtBottom()
	m.transcript.SetContent(m.renderMessages())
	if atBottom {
		m.transcript.GotoBottom()
	}
}

func (m chatModel) renderMessages() string {
	msgs := m.eng.Messages()
	if len(msgs) == 0 {
		return m.theme.footer.Render("No messages yet.")
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		speaker := m.theme.user
		if msg.Sender == conversation.SenderAgent {
			speaker = m.theme.agent
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.theme.timestamp.Render(msg.Timestamp.Format("15:04:05")),
			speaker.Render(string(msg.Sender)+":"),
			msg.Content))
	}
	return strings.Join(lines, "\n")
}

func (m chatModel) footerLine() string {
	st := m.eng.IdleState()
	switch {
	case !st.IsActive:
		return m.theme.footer.Render("idle timer off")
	case st.IsWarning:
		return m.theme.warning.Render(fmt.Sprintf("disconnecting in %ds", st.TimeRemaining))
	default:
		return m.theme.footer.Render(fmt.Sprintf("idle in %ds", st.TimeRemaining))
	}
}

func (m chatModel) View() string {
	if m.width == 0 {
		return "loading..."
	}
	footer := m.footerLine()
	if m.errLine != "" {
		footer = m.theme.warning.Render("send failed: " + m.errLine)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.transcript.Width(m.width-2).Render(m.transcript.View()),
		m.input.View(),
		footer,
	)
}

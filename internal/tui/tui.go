// Package tui is a full-screen front end for a ChatBot session, built on
// bubbletea. It renders the transcript as chat bubbles, keeps the view
// scrolled to the newest message and shows a typing line while a reply is
// pending.
package tui

import (
	"bytes"
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"TherapyBuddy/internal/chatbot"
	"TherapyBuddy/internal/conversation"
	"TherapyBuddy/internal/session"
)

// eventMsg carries one transcript change into the update loop
type eventMsg struct {
	controller *conversation.Controller
	event      session.Event
	ok         bool
}

// Model is the bubbletea model for a chat session
type Model struct {
	ctx context.Context
	bot *chatbot.ChatBot

	controller *conversation.Controller
	events     <-chan session.Event
	stopEvents context.CancelFunc

	messages []session.Message
	pending  bool
	status   string

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	quitting bool
}

// NewModel creates a model observing bot's live session
func NewModel(ctx context.Context, bot *chatbot.ChatBot) Model {
	ti := textinput.New()
	ti.Placeholder = "What's on your mind?"
	ti.CharLimit = 2000
	ti.Prompt = "> "
	ti.Focus()

	m := Model{
		ctx:      ctx,
		bot:      bot,
		input:    ti,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
	m.attach(bot.Controller())
	return m
}

// attach subscribes to controller's transcript, replacing any previous
// subscription
func (m *Model) attach(controller *conversation.Controller) {
	if m.stopEvents != nil {
		m.stopEvents()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.controller = controller
	m.events, _ = controller.Transcript().Subscribe(ctx)
	m.stopEvents = cancel
	m.sync()
}

// sync reloads the transcript state and scrolls to the newest message
func (m *Model) sync() {
	transcript := m.controller.Transcript()
	m.messages = transcript.Messages()
	m.pending = transcript.Pending()
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// listen waits for the next transcript event
func (m Model) listen() tea.Cmd {
	controller, events := m.controller, m.events
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{controller: controller, event: ev, ok: ok}
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-4)
		m.input.Width = max(10, msg.Width-4)
		m.sync()
		return m, nil

	case eventMsg:
		// events from a session that has since been replaced
		if msg.controller != m.controller || !msg.ok {
			return m, nil
		}
		m.sync()
		return m, m.listen()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles Enter: slash commands go to the bot, anything else to the
// conversation. The field is cleared only when the input was taken.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	m.status = ""

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		var out bytes.Buffer
		quit, err := m.bot.HandleCommand(m.ctx, strings.TrimSpace(text), &out)
		m.input.Reset()
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		m.status = strings.TrimSpace(out.String())
		if err != nil {
			m.status = "Error: " + err.Error()
		}
		if current := m.bot.Controller(); current != m.controller {
			m.attach(current)
			return m, m.listen()
		}
		return m, nil
	}

	if turn := m.controller.Submit(text); turn != nil {
		m.input.Reset()
		return m, nil
	}
	if strings.TrimSpace(text) != "" {
		m.status = "Still thinking about your last message…"
	}
	return m, nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	userBubble   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#2B6CB0")).Padding(0, 1)
	buddyBubble  = lipgloss.NewStyle().Foreground(lipgloss.Color("#1A202C")).Background(lipgloss.Color("#E2E8F0")).Padding(0, 1)
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D69E2E")).Italic(true)
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	sendEnabled  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2B6CB0"))
	sendDisabled = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568"))
)

// renderMessages lays the transcript out as bubbles: the user's on the
// right, the assistant's on the left and notices centred
func (m Model) renderMessages() string {
	width := max(20, m.width)
	bubbleWidth := width * 3 / 4

	var b strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case session.RoleUser:
			bubble := renderBubble(userBubble, msg.Text, bubbleWidth)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
		case session.RoleSystem:
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, systemStyle.Render(msg.Text)))
		default:
			b.WriteString(renderBubble(buddyBubble, msg.Text, bubbleWidth))
		}
		b.WriteString("\n\n")
	}
	if m.pending {
		b.WriteString(typingStyle.Render("Typing…"))
	}
	return b.String()
}

// renderBubble wraps long text at maxWidth and leaves short text compact
func renderBubble(style lipgloss.Style, text string, maxWidth int) string {
	if lipgloss.Width(text)+style.GetHorizontalFrameSize() > maxWidth {
		style = style.Width(maxWidth)
	}
	return style.Render(text)
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := headerStyle.Render("Therapy Buddy") +
		statusStyle.Render("  "+m.bot.BackendName()+" · "+string(m.bot.Mode()))

	send := sendDisabled.Render("send")
	if m.controller.Accepts(m.input.Value()) {
		send = sendEnabled.Render("⏎ send")
	}

	status := m.status
	if status == "" {
		status = "Esc to quit · /help for commands"
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		m.input.View() + "  " + send,
		statusStyle.Render(status),
	}, "\n")
}

// Run shows the TUI until the user quits or ctx is cancelled
func Run(ctx context.Context, bot *chatbot.ChatBot, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(NewModel(ctx, bot), opts...)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

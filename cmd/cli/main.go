// Command cli is an interactive terminal chat with Gemini.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"   # or GEMINI_API_TOKEN in .env
//	go run ./cmd/cli
//
// Chat commands:
//
//	/model <name>   - Switch the active model
//	/models         - Pick a model from the available list
//	/context <path> - Attach a file to the next message
//	/write [path]   - Toggle writing tagged replies to a file
//	/menu           - Back to the main menu
//	exit | quit     - End the conversation
//
// Run "cli serve" to expose the same session over HTTP instead of the
// terminal UI.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/mariozechner/coding-agent/chat/pkg/config"
	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/models/gemini"
	"github.com/mariozechner/coding-agent/chat/pkg/session"
	"github.com/mariozechner/coding-agent/chat/pkg/store/jsonl"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

type state int

const (
	stateMenu state = iota
	stateChatting
	stateSelectingModel
	stateInput
)

// inputPurpose says what the single-line prompt is collecting.
type inputPurpose int

const (
	inputModel inputPurpose = iota
	inputContext
	inputSink
)

const (
	menuChat = iota
	menuListModels
	menuSelectModel
	menuContext
	menuToggleSink
	menuExit
)

type lineKind int

const (
	lineUser lineKind = iota
	lineModel
	lineNotice
)

type chatLine struct {
	kind lineKind
	text string
}

type errMsg struct{ err error }
type turnMsg struct{ out session.TurnOutcome }
type modelsMsg struct{ names []string }

type model struct {
	ctx  context.Context
	sess *session.Session

	// State
	state           state
	purpose         inputPurpose
	availableModels []string
	cursor          int
	listOffset      int
	width           int
	height          int
	busy            bool
	err             error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	input    textinput.Model

	// Data
	lines    []chatLine
	renderer *glamour.TermRenderer
}

func initialModel(ctx context.Context, sess *session.Session) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 0

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	ti := textinput.New()
	ti.Prompt = "> "

	vp := viewport.New(80, 20)

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	m := model{
		ctx:      ctx,
		sess:     sess,
		state:    stateMenu,
		viewport: vp,
		textarea: ta,
		input:    ti,
		renderer: r,
	}
	m.notice(fmt.Sprintf("Starting a conversation with Gemini using model: %s.", sess.ActiveModel()))
	return m
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Keys only reach the widget that owns the current state, so the Enter
	// used for menu selection does not leak into the textarea.
	switch msg.(type) {
	case tea.KeyMsg:
		var cmd tea.Cmd
		switch m.state {
		case stateChatting:
			m.textarea, cmd = m.textarea.Update(msg)
		case stateInput:
			m.input, cmd = m.input.Update(msg)
		}
		cmds = append(cmds, cmd)
	default:
		var taCmd, tiCmd tea.Cmd
		m.textarea, taCmd = m.textarea.Update(msg)
		m.input, tiCmd = m.input.Update(msg)
		cmds = append(cmds, taCmd, tiCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.input.Width = msg.Width - 4
		m.viewport.Height = msg.Height - m.textarea.Height() - 4 // Header + status + margins
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}

		// Recreate renderer with new width
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refreshViewport()
		m.clampList()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == stateMenu {
				return m, tea.Quit
			}
			m.toMenu()
			return m, nil
		case tea.KeyEnter:
			switch m.state {
			case stateMenu:
				return m.selectMenu()
			case stateSelectingModel:
				return m.selectModel()
			case stateInput:
				return m.submitInput()
			case stateChatting:
				m.err = nil
				return m.sendMessage()
			}
		case tea.KeyUp:
			if m.state == stateMenu || m.state == stateSelectingModel {
				if m.cursor > 0 {
					m.cursor--
				}
				m.clampList()
			}
		case tea.KeyDown:
			maxCursor := menuExit
			if m.state == stateSelectingModel {
				maxCursor = len(m.availableModels) - 1
			}
			if (m.state == stateMenu || m.state == stateSelectingModel) && m.cursor < maxCursor {
				m.cursor++
				m.clampList()
			}
		}

	case turnMsg:
		m.busy = false
		m.showOutcome(msg.out)

	case modelsMsg:
		m.busy = false
		if len(msg.names) == 0 {
			m.err = errors.New("no models available")
			break
		}
		m.availableModels = msg.names
		m.state = stateSelectingModel
		m.cursor = 0
		m.listOffset = 0

	case errMsg:
		m.busy = false
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		header := titleStyle.Render("Menu")

		sinkState := "OFF"
		if _, ok := m.sess.OutputSink(); ok {
			sinkState = "ON"
		}
		options := []string{
			"Chat with Gemini (type exit or quit to end)",
			"List available models",
			"Select a model",
			"Provide context from a file",
			fmt.Sprintf("Toggle writing response to a file (Current: %s)", sinkState),
			"Exit",
		}
		var optionsView []string
		for i, choice := range options {
			cursor := " "
			if m.cursor == i {
				cursor = ">"
				choice = selectedItemStyle.Render(choice)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %d. %s", cursorStyle.Render(cursor), i+1, choice))
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := fmt.Sprintf("Model: %s. Press Enter to select, Esc to quit.", m.sess.ActiveModel())

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)

	case stateSelectingModel:
		header := titleStyle.Render("Available Models")

		start, end := m.visibleRange(len(m.availableModels))
		var optionsView []string
		for i := start; i < end; i++ {
			choice := m.availableModels[i]
			cursor := " "
			if m.cursor == i {
				cursor = ">"
				choice = selectedItemStyle.Render(choice)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), choice))
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := "Press Enter to use a model, Esc to go back."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)

	case stateInput:
		header := titleStyle.Render(m.inputTitle())
		footer := "Press Enter to confirm, Esc to go back."
		return lipgloss.JoinVertical(lipgloss.Left, header, "", m.input.View(), "", footer, errorView)
	}

	status := fmt.Sprintf("Model: %s", m.sess.ActiveModel())
	if _, ok := m.sess.PendingContext(); ok {
		status += " · context attached"
	}
	if sink, ok := m.sess.OutputSink(); ok {
		status += " · writing to " + sink
	}
	if m.busy {
		status += " · waiting for Gemini..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Gemini Chat"),
		m.viewport.View(),
		noticeStyle.Render(status),
		errorView,
		m.textarea.View(),
	)
}

// Actions

func (m model) selectMenu() (model, tea.Cmd) {
	m.err = nil
	switch m.cursor {
	case menuChat:
		return m.enterChat()
	case menuListModels:
		m.busy = true
		return m, m.listModelsCmd()
	case menuSelectModel:
		return m.prompt(inputModel)
	case menuContext:
		return m.prompt(inputContext)
	case menuToggleSink:
		if _, ok := m.sess.OutputSink(); ok {
			m.apply(session.ToggleSink{})
			return m, nil
		}
		return m.prompt(inputSink)
	case menuExit:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) selectModel() (model, tea.Cmd) {
	if len(m.availableModels) == 0 {
		m.toMenu()
		return m, nil
	}
	m.apply(session.ChangeModel{Name: m.availableModels[m.cursor]})
	m.toMenu()
	return m, nil
}

func (m model) prompt(p inputPurpose) (model, tea.Cmd) {
	m.purpose = p
	m.state = stateInput
	m.input.Reset()
	m.input.Placeholder = m.inputTitle()
	m.textarea.Blur()
	cmd := m.input.Focus()
	return m, cmd
}

func (m model) inputTitle() string {
	switch m.purpose {
	case inputModel:
		return "Enter the new model name"
	case inputContext:
		return "Enter the path to the context file"
	default:
		return "Enter the file path to write responses to"
	}
}

func (m model) submitInput() (model, tea.Cmd) {
	v := strings.TrimSpace(m.input.Value())
	var ok bool
	switch m.purpose {
	case inputModel:
		ok = m.apply(session.ChangeModel{Name: v})
	case inputContext:
		ok = m.apply(session.LoadContext{Path: v})
	case inputSink:
		ok = m.apply(session.ToggleSink{Path: v})
	}
	if !ok {
		// Stay on the prompt so the operator can correct the value.
		return m, nil
	}
	m.input.Blur()
	m.toMenu()
	return m, nil
}

func (m *model) toMenu() {
	m.state = stateMenu
	m.cursor = 0
	m.listOffset = 0
	m.textarea.Blur()
	m.input.Blur()
}

func (m model) enterChat() (model, tea.Cmd) {
	m.state = stateChatting
	m.textarea.Placeholder = "Type a message..."
	m.refreshViewport()
	cmd := m.textarea.Focus()
	return m, cmd
}

func (m model) sendMessage() (model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}
	m.textarea.Reset()

	switch lower := strings.ToLower(v); {
	case lower == "exit" || lower == "quit":
		slog.Info("Ending conversation")
		return m, tea.Quit
	case lower == "/menu":
		m.toMenu()
		return m, nil
	case lower == "/models":
		m.busy = true
		return m, m.listModelsCmd()
	case strings.HasPrefix(v, "/model "):
		m.apply(session.ChangeModel{Name: strings.TrimPrefix(v, "/model ")})
		return m, nil
	case strings.HasPrefix(v, "/context "):
		m.apply(session.LoadContext{Path: strings.TrimPrefix(v, "/context ")})
		return m, nil
	case lower == "/write" || strings.HasPrefix(v, "/write "):
		m.apply(session.ToggleSink{Path: strings.TrimSpace(strings.TrimPrefix(v, "/write"))})
		return m, nil
	}

	m.lines = append(m.lines, chatLine{kind: lineUser, text: v})
	m.refreshViewport()
	m.busy = true

	sess, ctx := m.sess, m.ctx
	return m, func() tea.Msg {
		return turnMsg{out: sess.SubmitUserTurn(ctx, v)}
	}
}

// apply runs a non-turn command and reports the result in the transcript.
// It returns false when the command was rejected.
func (m *model) apply(cmd session.Command) bool {
	if m.busy {
		// The session would hold the command until the reply arrives.
		m.err = errors.New("still waiting for the previous request")
		return false
	}
	out, err := m.sess.Apply(m.ctx, cmd)
	if err != nil {
		slog.Warn("Command rejected", "command", fmt.Sprintf("%T", cmd), "error", err)
		m.err = err
		return false
	}
	m.err = nil

	switch c := cmd.(type) {
	case session.ChangeModel:
		m.notice(fmt.Sprintf("Model changed to: %s", out.Model))
	case session.LoadContext:
		m.notice(fmt.Sprintf("Loaded content from %s as context.", c.Path))
	case session.ToggleSink:
		if out.Sink.Enabled {
			m.notice(fmt.Sprintf("Entering write file mode. Model response will be written to %s if tagged.", out.Sink.Path))
		} else {
			m.notice(fmt.Sprintf("Stopping writing responses to %s.", out.Sink.Path))
		}
	}
	return true
}

func (m *model) showOutcome(out session.TurnOutcome) {
	if !out.Submitted {
		return
	}
	switch out.Result.Kind {
	case models.ResultSuccess:
		m.lines = append(m.lines, chatLine{kind: lineModel, text: out.Result.Text})
	case models.ResultBlocked:
		m.notice(fmt.Sprintf("Your prompt was blocked due to: %s", out.Result.Reason))
	default:
		msg := "Failed to get a response from the API."
		if out.Result.Err == nil {
			msg = "No response received or an unexpected format."
		}
		m.err = fmt.Errorf("%s (%s)", msg, out.Result.Reason)
	}

	if w := out.Sink; w != nil {
		switch {
		case w.Written:
			m.notice(fmt.Sprintf("Successfully wrote content to %s", w.Path))
		case w.Missing:
			m.notice("No <file_content> tags found in the model's response.")
		case w.Err != nil:
			m.err = w.Err
		}
	}
	m.refreshViewport()
}

func (m *model) notice(text string) {
	m.lines = append(m.lines, chatLine{kind: lineNotice, text: text})
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	var sb strings.Builder
	for _, l := range m.lines {
		switch l.kind {
		case lineUser:
			sb.WriteString(userStyle.Render("You: "))
			sb.WriteString("\n")
			sb.WriteString(l.text)
		case lineModel:
			sb.WriteString(senderStyle.Render("Gemini: "))
			sb.WriteString("\n")
			sb.WriteString(m.render(l.text))
		case lineNotice:
			sb.WriteString(noticeStyle.Render(l.text))
		}
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *model) render(text string) string {
	if m.renderer == nil {
		return text
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text // Fallback
	}
	return rendered
}

func (m model) visibleRange(n int) (int, int) {
	start := m.listOffset
	end := start + m.maxViewable()
	if end > n {
		end = n
	}
	return start, end
}

func (m model) maxViewable() int {
	// Header: ~3 lines, Footer: ~3 lines
	v := m.height - 7
	if v < 1 {
		v = 1
	}
	return v
}

func (m *model) clampList() {
	maxViewable := m.maxViewable()
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+maxViewable {
		m.listOffset = m.cursor - maxViewable + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

func (m model) listModelsCmd() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		names, err := sess.ListModels(ctx)
		if err != nil {
			return errMsg{err}
		}
		return modelsMsg{names: names}
	}
}

// --- Main ---

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serve := len(os.Args) > 1 && os.Args[1] == "serve"

	envFile := os.Getenv("CHAT_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	envFound, envErr := config.LoadEnvFile(envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	// 1. Setup Logging
	if serve {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	} else {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel})))
	}
	slog.Info("Logging initialized", "level", cfg.LogLevel, "envFile", envFile, "envFound", envFound)
	if envErr != nil {
		slog.Warn("Failed to load env file", "error", envErr)
	}

	// 2. Credentials
	if !cfg.HasAPIKey() && !serve {
		cfg.APIKey = promptAPIKey()
	}
	if !cfg.HasAPIKey() {
		slog.Warn("No API key configured; requests will likely be rejected")
	}

	// 3. Initialize Model
	client, err := gemini.New(ctx, cfg.APIKey, gemini.WithBaseURL(cfg.BaseURL))
	if err != nil {
		slog.Error("Failed to initialize Gemini client", "error", err)
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer client.Close()

	// 4. Initialize Session
	id := uuid.New().String()
	opts := []session.Option{session.WithID(id), session.WithModel(cfg.Model)}
	if cfg.TranscriptDir != "" {
		rec, err := jsonl.NewRecorder(cfg.TranscriptDir, id, cfg.Model)
		if err != nil {
			slog.Error("Failed to open transcript", "error", err)
		} else {
			defer rec.Close()
			opts = append(opts, session.WithRecorder(rec))
			slog.Info("Recording transcript", "path", rec.Path())
		}
	}
	sess := session.New(client, opts...)

	if serve {
		if err := runServer(ctx, cfg.HTTPAddr, sess); err != nil {
			slog.Error("Server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	// 5. Start Program
	p := tea.NewProgram(initialModel(ctx, sess), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
	fmt.Println("Ending conversation.")
}

func promptAPIKey() string {
	fmt.Print("Enter your Gemini API key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	fmt.Println("API key can be saved to .env file for future use, but you'll need to do it manually.")
	return strings.TrimSpace(line)
}

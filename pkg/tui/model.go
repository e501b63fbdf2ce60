// Package tui is the interactive workspace: upload status, summary,
// conversation with activatable time references, and a prompt line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/otherjamesbrown/documind-cli/pkg/app"
	"github.com/otherjamesbrown/documind-cli/pkg/conversation"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
	"github.com/otherjamesbrown/documind-cli/pkg/upload"
)

// --- Messages ---

type uploadDoneMsg struct {
	session *session.Session
	err     error
}

type answerMsg struct {
	turn conversation.Turn
	err  error
}

// Options configures the model.
type Options struct {
	// SummaryStyle is a glamour style name: "dark", "light" or "notty".
	SummaryStyle string
	// InitialFile is chosen and uploaded on start when set.
	InitialFile string
}

// Model is the bubbletea model of the workspace.
type Model struct {
	app  *app.App
	ctx  context.Context
	opts Options

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	keys     keyMap

	width, height int
	selected      int
	notice        string
	noticeErr     bool

	summary     *summaryCache
	conversated int
}

type summaryCache struct {
	key  string
	text string
}

// New returns a model over a.
func New(ctx context.Context, a *app.App, opts Options) Model {
	if opts.SummaryStyle == "" {
		opts.SummaryStyle = "dark"
	}
	in := textinput.New()
	in.Placeholder = "Ask about the file, or :open <path>"
	in.Prompt = "> "
	in.Focus()

	return Model{
		app:      a,
		ctx:      ctx,
		opts:     opts,
		input:    in,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport: viewport.New(80, 12),
		help:     help.New(),
		keys:     defaultKeys(),
		width:    80,
		height:   24,
		selected: -1,
		summary:  &summaryCache{},
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.opts.InitialFile != "" {
		if err := m.app.Uploads.Choose(m.opts.InitialFile); err == nil {
			cmds = append(cmds, m.uploadCmd())
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) uploadCmd() tea.Cmd {
	uploads, ctx := m.app.Uploads, m.ctx
	return func() tea.Msg {
		sess, err := uploads.Upload(ctx)
		return uploadDoneMsg{session: sess, err: err}
	}
}

func (m Model) askCmd(call func(context.Context) (conversation.Turn, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		turn, err := call(ctx)
		return answerMsg{turn: turn, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height/3, 5)

	case uploadDoneMsg:
		switch {
		case msg.err == nil:
			m.setNotice("", false)
			m.selected = -1
		case dmerrors.IsStale(msg.err):
		default:
			m.setNotice(m.app.Uploads.Status().Message, true)
		}

	case answerMsg:
		if msg.err != nil && !dmerrors.IsStale(msg.err) {
			m.setNotice(dmerrors.UserMessage(msg.err), true)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			m.cycle(1)
			m.syncConversation()
			return m, nil
		case key.Matches(msg, m.keys.Prev):
			m.cycle(-1)
			m.syncConversation()
			return m, nil
		case key.Matches(msg, m.keys.Activate):
			m.activate()
			return m, nil
		case key.Matches(msg, m.keys.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.ScrollDn):
			m.viewport.HalfViewDown()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			cmd := m.submit(line)
			m.syncConversation()
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.syncConversation()
	return m, tea.Batch(cmds...)
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice, m.noticeErr = text, isErr
}

// submit runs a :command or asks a question.
func (m *Model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, ":") {
		return m.command(line)
	}

	call, err := m.app.Conversation.Submit(line)
	switch {
	case dmerrors.IsBusy(err):
		m.setNotice("Still waiting for the previous answer.", true)
		return nil
	case err != nil:
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice("", false)
	return m.askCmd(call)
}

func (m *Model) command(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "open":
		if err := m.app.Uploads.Choose(arg); err != nil {
			m.setNotice(fmt.Sprintf("Cannot open %q: %v", arg, err), true)
			return nil
		}
		m.setNotice("File chosen. :upload to send it, :cancel to discard.", false)
	case "upload":
		if !m.app.Uploads.CanUpload() {
			m.setNotice("Choose a file first with :open <path>.", true)
			return nil
		}
		m.setNotice("", false)
		return m.uploadCmd()
	case "cancel":
		if err := m.app.Uploads.Cancel(); err != nil {
			m.setNotice("Nothing to cancel.", true)
			return nil
		}
		m.setNotice("", false)
	case "q", "quit":
		return tea.Quit
	default:
		m.setNotice(fmt.Sprintf("Unknown command :%s", name), true)
	}
	return nil
}

func (m *Model) cycle(step int) {
	controls := m.app.Conversation.Controls()
	if len(controls) == 0 {
		m.selected = -1
		return
	}
	switch {
	case m.selected < 0 && step < 0:
		m.selected = len(controls) - 1
	case m.selected < 0:
		m.selected = 0
	default:
		m.selected = (m.selected + step + len(controls)) % len(controls)
	}
}

func (m *Model) activate() {
	controls := m.app.Conversation.Controls()
	if m.selected < 0 || m.selected >= len(controls) {
		m.setNotice("Select a time with tab first.", true)
		return
	}
	ctl := controls[m.selected]
	m.app.Conversation.Activate(ctl)
	if m.app.Playback.Mounted() {
		m.setNotice("Jumped to "+ctl.Token.Display(), false)
	} else {
		m.setNotice("No player for this file.", false)
	}
}

func (m Model) View() string {
	sections := []string{m.headerView(), m.uploadView()}
	if s := m.summaryView(); s != "" {
		sections = append(sections, sectionStyle.Render("Summary"), s)
	}
	sections = append(sections, sectionStyle.Render("Conversation"), m.conversationView())
	if m.notice != "" {
		style := statusStyle
		if m.noticeErr {
			style = errorStyle
		}
		sections = append(sections, style.Render(m.notice))
	}
	sections = append(sections, m.input.View(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	title := "DocuMind"
	if sess := m.app.Sessions.Current(); sess != nil {
		title += " · " + sess.FileName + " (" + string(sess.ContentKind) + ")"
		if m.app.Playback.Mounted() {
			title += " · player ready"
		}
	}
	return headerStyle.Render(title)
}

func (m Model) uploadView() string {
	st := m.app.Uploads.Status()
	switch st.State {
	case upload.Idle:
		return statusStyle.Render("No file chosen. :open <path>")
	case upload.FileChosen:
		line := "Chosen: " + st.File + "  (:upload / :cancel)"
		if st.Message != "" {
			return errorStyle.Render(st.Message) + "\n" + statusStyle.Render(line)
		}
		return statusStyle.Render(line)
	case upload.Uploading:
		return statusStyle.Render(m.spinner.View() + " Uploading and summarizing " + st.File + "...")
	case upload.Succeeded:
		return readyStyle.Render(st.Message)
	default:
		return errorStyle.Render(st.Message)
	}
}

func (m Model) summaryView() string {
	sess := m.app.Sessions.Current()
	if sess == nil {
		return ""
	}
	cacheKey := fmt.Sprintf("%s/%d", sess.ID, m.width)
	if m.summary.key != cacheKey {
		m.summary.text = renderMarkdown(sess.SummaryText, m.opts.SummaryStyle, m.width)
		m.summary.key = cacheKey
	}
	return m.summary.text
}

func renderMarkdown(text, style string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) conversationView() string {
	if len(m.app.Conversation.Turns()) == 0 {
		return statusStyle.Render("Ask a question once a file is uploaded.")
	}
	return m.viewport.View()
}

// syncConversation re-renders the dialogue into the viewport. Time
// references are parsed here, on every render. New turns scroll to the bottom.
func (m *Model) syncConversation() {
	rendered := m.app.Conversation.Render()

	var b strings.Builder
	control := 0
	for _, turn := range rendered {
		if turn.Role == conversation.RoleUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(botStyle.Render("AI:  "))
		}
		for _, tok := range turn.Tokens {
			b.WriteString(m.tokenView(tok, control == m.selected))
			if tok.IsTimeRef() {
				control++
			}
		}
		b.WriteString("\n")
	}
	if m.app.Conversation.Pending() {
		b.WriteString(m.spinner.View() + " thinking...\n")
	}

	m.viewport.SetContent(lipgloss.NewStyle().Width(max(m.width-2, 10)).Render(b.String()))
	if len(rendered) != m.conversated {
		m.conversated = len(rendered)
		m.viewport.GotoBottom()
	}
}

func (m Model) tokenView(tok timeref.Token, selected bool) string {
	if !tok.IsTimeRef() {
		return tok.Text
	}
	label := "[" + tok.Display() + "]"
	if selected {
		return selectedStyle.Render(label)
	}
	return timeRefStyle.Render(label)
}

// Selected returns the index of the selected time control, or -1.
func (m Model) Selected() int {
	return m.selected
}

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/overlay/pkg/kernel/completion"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/hostctx"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
)

// frameInterval is how often the model polls the machine and surface.
const frameInterval = 50 * time.Millisecond

const (
	panelWidth    = 44
	defaultWidth  = 120
	defaultHeight = 32
)

// Model is the Bubble Tea model for a tutorial session.
type Model struct {
	nav     *engine.Navigator
	surface *Surface
	reg     *registry.Registry
	title   string

	vp     viewport.Model
	width  int
	height int

	envIdx int
	state  engine.State
	frame  Frame
	shown  string // step key whose instruction is in the viewport
	notice string
	err    error
}

// tickMsg drives polling.
type tickMsg time.Time

// NoticeMsg shows a one-line notice, e.g. after the tutorial file was
// reloaded.
type NoticeMsg string

// NewModel creates a model over a started navigator whose machine draws
// on surface.
func NewModel(nav *engine.Navigator, surface *Surface, reg *registry.Registry, title string) Model {
	m := Model{
		nav:     nav,
		surface: surface,
		reg:     reg,
		title:   title,
		width:   defaultWidth,
		height:  defaultHeight,
		envIdx:  -1,
		vp:      viewport.New(panelWidth-4, 8),
	}
	m.refresh()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		m.handleKey(msg)
		m.refresh()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = panelWidth - 4
		m.vp.Height = max(4, m.canvasHeight()-10)
		m.shown = ""
		m.refresh()

	case NoticeMsg:
		m.err = nil
		m.notice = string(msg)
		m.shown = ""
		m.refresh()

	case tickMsg:
		m.surface.Tick()
		m.refresh()
		return m, tick()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	m.err = nil
	switch {
	case key.Matches(msg, keys.Next):
		m.err = m.nav.Next()
	case key.Matches(msg, keys.Prev):
		m.err = m.nav.Prev()
	case key.Matches(msg, keys.Replay):
		m.nav.Replay()
	case key.Matches(msg, keys.Skip):
		m.err = m.nav.Skip()
	case key.Matches(msg, keys.Accept):
		m.err = m.nav.Accept()
	case key.Matches(msg, keys.Env):
		m.err = m.cycleEnvironment()
	case key.Matches(msg, keys.Complete):
		m.completeFirstOpen()
	}
	if errors.Is(m.err, engine.ErrOutOfRange) {
		m.err = nil
		m.notice = "No more steps in that direction."
	}
	if errors.Is(m.err, engine.ErrNothingPending) {
		m.err = nil
		m.notice = "Nothing to accept or skip."
	}
}

// cycleEnvironment simulates the host switching to the next environment
// of the Design workspace.
func (m *Model) cycleEnvironment() error {
	m.envIdx = (m.envIdx + 1) % len(hostctx.Environments)
	env := hostctx.Environments[m.envIdx]
	c := m.nav.Context()
	if c.Workspace == "" || c.Workspace == hostctx.Unknown {
		c.Workspace = "Design"
	}
	c.Environment = env
	c.HasActiveDocument = true
	c.HasActiveSketch = env == "Sketch"
	m.notice = fmt.Sprintf("Host environment: %s", env)
	return m.nav.UpdateContext(c)
}

// completeFirstOpen simulates the host finishing the command of the
// first item that is not completed yet.
func (m *Model) completeFirstOpen() {
	for _, it := range m.nav.Machine().Snapshot().Checklist {
		if it.State == completion.StateCompleted {
			continue
		}
		if it.RequiredCommandID == "" {
			m.notice = fmt.Sprintf("%q has no command to simulate.", it.Text)
			return
		}
		m.nav.Completion(completion.Event{
			SemanticType: completion.EventCommandTerminated,
			CommandID:    it.RequiredCommandID,
		})
		m.notice = fmt.Sprintf("Simulated %s.", it.RequiredCommandID)
		return
	}
	m.notice = "Checklist already complete."
}

// refresh pulls the latest machine and surface state.
func (m *Model) refresh() {
	m.state = m.nav.Machine().Snapshot()
	m.frame = m.surface.Frame()
	stepKey := fmt.Sprintf("%s/%d/%s/%t", m.state.Mode, m.state.Index, m.state.Step.Title, m.state.Step.Redirect)
	if stepKey != m.shown {
		m.shown = stepKey
		m.vp.SetContent(renderMarkdown(m.state.Step.Instruction, m.vp.Width))
		m.vp.GotoTop()
	}
}

func (m Model) canvasWidth() int {
	return max(20, m.width-panelWidth-4)
}

func (m Model) canvasHeight() int {
	return max(8, m.height-6)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	header := headerStyle.Render(fmt.Sprintf("%s  step %d/%d", m.title, m.state.Index+1, m.state.Total))
	if m.state.Mode == engine.ModeRedirecting {
		header += " " + modeBadgeStyle.Render(fmt.Sprintf("REDIRECT → step %d", m.state.PendingIndex+1))
	}
	if m.frame.Shown {
		header += " " + keyDescStyle.Render(fmt.Sprintf("[%s #%d]", m.frame.Environment, m.frame.Image))
	}
	b.WriteString(header)
	b.WriteString("\n")

	canvas := canvasBorder.Render(Render(m.frame, m.reg, m.canvasWidth(), m.canvasHeight()))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, canvas, m.panelView()))
	b.WriteString("\n")

	_, asking := m.nav.Pending()
	if issue, ok := m.nav.Pending(); ok {
		b.WriteString(warningStyle.Render(fmt.Sprintf(" Step %d needs a different context: %s. Redirect?", issue.TargetIndex+1, issue.Reason)))
		b.WriteString("\n")
	} else if issue, ok := m.nav.Warning(); ok {
		b.WriteString(warningStyle.Render(fmt.Sprintf(" ⚠ %s", issue.Reason)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(" Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(" " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString(" " + keyBarText(m.state.Mode == engine.ModeRedirecting, asking))
	return b.String()
}

func (m Model) panelView() string {
	var b strings.Builder
	b.WriteString(panelTitle.Render(m.state.Step.Title))
	b.WriteString("\n\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")

	if len(m.state.Checklist) > 0 {
		b.WriteString("\n")
		for _, it := range m.state.Checklist {
			b.WriteString(checklistLine(it))
			b.WriteString("\n")
		}
		if completion.Done(m.state.Checklist) {
			b.WriteString(itemCompleted.Render("Step complete."))
			b.WriteString("\n")
		}
	}
	return panelBorder.Width(panelWidth).Render(strings.TrimRight(b.String(), "\n"))
}

func checklistLine(it completion.Item) string {
	switch it.State {
	case completion.StateCompleted:
		return itemCompleted.Render(GlyphCompleted + " " + it.Text)
	case completion.StateChecking:
		return itemChecking.Render(GlyphChecking + " " + it.Text)
	case completion.StateFailed:
		return itemFailed.Render(GlyphFailed + " " + it.Text)
	default:
		return itemPending.Render(GlyphPending + " " + it.Text)
	}
}

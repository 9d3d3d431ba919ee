package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/session"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Guard 界面所需的会话能力
type Guard interface {
	Start(root string) error
	Notifications() <-chan model.KillRecord
	Done() <-chan struct{}
	Stats() session.Stats
}

type phase int

const (
	phasePrompt phase = iota
	phaseGuarding
	phaseDone
)

type (
	killMsg  model.KillRecord
	doneMsg  struct{}
	tickMsg  time.Time
	startMsg struct {
		root string
		err  error
	}
)

type Model struct {
	guard    Guard
	phase    phase
	input    textinput.Model
	root     string
	victims  []string
	stats    session.Stats
	err      error
	aborted  bool
	width    int
	height   int
	quitting bool
}

// NewModel root 非空时跳过目录选择
func NewModel(g Guard, root, cwd string) Model {
	ti := textinput.New()
	ti.Placeholder = "/path/to/protect"
	ti.CharLimit = 4096
	ti.SetValue(cwd)
	ti.CursorEnd()
	ti.Focus()

	return Model{
		guard:  g,
		phase:  phasePrompt,
		input:  ti,
		root:   root,
		width:  100,
		height: 30,
	}
}

func (m Model) Init() tea.Cmd {
	if m.root != "" {
		return startCmd(m.guard, m.root)
	}
	return textinput.Blink
}

// Aborted 没有选择目录就退出
func (m Model) Aborted() bool { return m.aborted }

func (m Model) Victims() []string { return m.victims }

func startCmd(g Guard, root string) tea.Cmd {
	return func() tea.Msg {
		return startMsg{root: root, err: g.Start(root)}
	}
}

func waitForKill(g Guard) tea.Cmd {
	return func() tea.Msg {
		rec, ok := <-g.Notifications()
		if !ok {
			<-g.Done()
			return doneMsg{}
		}
		return killMsg(rec)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case startMsg:
		if msg.err != nil {
			if errors.Is(msg.err, session.ErrSetupAbort) {
				m.aborted = true
				m.quitting = true
				return m, tea.Quit
			}
			// 回到选择界面重试
			m.err = msg.err
			m.root = ""
			m.phase = phasePrompt
			return m, nil
		}
		m.err = nil
		m.root = msg.root
		m.phase = phaseGuarding
		return m, tea.Batch(waitForKill(m.guard), tick())

	case killMsg:
		m.victims = append(m.victims, model.KillRecord(msg).String())
		return m, waitForKill(m.guard)

	case doneMsg:
		m.phase = phaseDone
		m.stats = m.guard.Stats()
		return m, nil

	case tickMsg:
		if m.phase != phaseGuarding {
			return m, nil
		}
		m.stats = m.guard.Stats()
		return m, tick()

	case tea.KeyMsg:
		if m.phase == phasePrompt {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		m.quitting = true
		return m, tea.Quit
	case "enter":
		root := strings.TrimSpace(m.input.Value())
		return m, startCmd(m.guard, root)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("folderSentry"))
	b.WriteString("\n\n")

	switch m.phase {
	case phasePrompt:
		b.WriteString("Folder to protect:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("enter: protect  esc: quit"))
		return b.String()

	case phaseGuarding, phaseDone:
		b.WriteString("Protecting ")
		b.WriteString(rootStyle.Render(m.root))
		b.WriteString("\n\n")
		b.WriteString(m.renderVictims())
		b.WriteString("\n")
		b.WriteString(m.renderStatus())
	}
	return b.String()
}

func (m Model) renderVictims() string {
	if len(m.victims) == 0 {
		return dimStyle.Render("  no processes terminated yet") + "\n"
	}
	// 只显示最近能放下的部分
	visible := m.height - 8
	if visible < 1 {
		visible = 1
	}
	start := 0
	if len(m.victims) > visible {
		start = len(m.victims) - visible
	}
	var b strings.Builder
	for _, v := range m.victims[start:] {
		b.WriteString(victimStyle.Render(v))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderStatus() string {
	state := "guarding"
	if m.phase == phaseDone {
		state = "stopped"
	}
	s := m.stats
	line := fmt.Sprintf("%s | events %d | hits %d | killed %d | allowed %d | failed %d | q: quit",
		state, s.Events, s.Hits, s.Kills, s.Allowed, s.Failures)
	return statusBarStyle.Width(m.width).Render(line)
}

// Run 运行终端界面直到用户退出
func Run(g Guard, root, cwd string) (Model, error) {
	final, err := tea.NewProgram(NewModel(g, root, cwd), tea.WithAltScreen()).Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/hostbridge/instance"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const refreshInterval = 200 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Drive the host lifecycle interactively",
	Long: `Start the host and open a console showing lifecycle state, the current
context, applied batches and bridge idleness.

Commands:
  resume | pause | back | reload | tree | quit
  call Module.method [args]   args are a YAML or JSON list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("monitor needs a terminal; use run instead")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// The TUI owns stdout; only errors reach the log.
		cfg.LogLevel = "error"
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		views, err := cmd.Flags().GetStringSlice("views")
		if err != nil {
			return fmt.Errorf("failed to read 'views' flag: %w", err)
		}
		h, err := newHost(cmd.Context(), cfg, log, views)
		if err != nil {
			return err
		}
		defer h.close()
		if err := h.start(); err != nil {
			return err
		}

		p := tea.NewProgram(newMonitorModel(h), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

type status struct {
	state   instance.LifecycleState
	context string
	batches int64
	idle    bool
	roots   int
}

type monitorModel struct {
	host   *host
	input  textinput.Model
	status status
	result string
	err    error
	width  int
}

type tickMsg time.Time

type commandResultMsg struct {
	result string
	err    error
}

func newMonitorModel(h *host) *monitorModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "resume, pause, back, reload, tree, call Module.method [args], quit"
	ti.Width = 60
	ti.Focus()

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	return &monitorModel{host: h, input: ti, width: width}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "quit" || line == "q" {
				return m, tea.Quit
			}
			if line == "" {
				return m, nil
			}
			return m, m.execute(line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		m.status = m.poll()
		return m, tick()

	case commandResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.status = m.poll()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) poll() status {
	mgr := m.host.manager
	s := status{
		state: mgr.LifecycleState(),
		roots: len(mgr.RootViews()),
	}
	if c := mgr.CurrentContext(); c != nil {
		s.context = c.ID()
		s.batches = c.UIManager.Applier().Applied()
		s.idle = c.Bridge.IsIdle()
	}
	return s
}

// execute runs one console command off the bubbletea goroutine.
func (m *monitorModel) execute(line string) tea.Cmd {
	h := m.host
	return func() tea.Msg {
		verb, rest, _ := strings.Cut(line, " ")
		var (
			result string
			err    error
		)
		switch verb {
		case "resume":
			err = h.onUI(func(mgr *instance.Manager) error {
				mgr.OnHostResume(nil)
				return nil
			})
			result = "resumed"
		case "pause":
			err = h.onUI(func(mgr *instance.Manager) error {
				mgr.OnHostPause()
				return nil
			})
			result = "paused"
		case "back":
			err = h.onUI(func(mgr *instance.Manager) error {
				mgr.OnBackPressed()
				return nil
			})
			result = "back press sent"
		case "reload":
			err = h.onUI(func(mgr *instance.Manager) error {
				return mgr.RecreateDefault()
			})
			result = "reloading"
		case "tree":
			result, err = h.tree()
		case "call":
			result, err = h.call(rest)
		default:
			err = fmt.Errorf("unknown command %q", verb)
		}
		if err != nil {
			h.log.Debug("console command failed", zap.String("command", line), zap.Error(err))
		}
		return commandResultMsg{result: result, err: err}
	}
}

// call parses "Module.method [args]" and calls into the runtime.
func (h *host) call(spec string) (string, error) {
	target, raw, _ := strings.Cut(strings.TrimSpace(spec), " ")
	module, method, ok := strings.Cut(target, ".")
	if !ok || module == "" || method == "" {
		return "", fmt.Errorf("usage: call Module.method [args]")
	}
	var args []any
	if raw = strings.TrimSpace(raw); raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("args must be a list: %w", err)
		}
	}
	c := h.manager.CurrentContext()
	if c == nil {
		return "", fmt.Errorf("no current context")
	}
	c.Bridge.CallFunction(module, method, args...)
	return fmt.Sprintf("called %s.%s with %d args", module, method, len(args)), nil
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bridge Monitor"))
	b.WriteString(" ")
	b.WriteString(m.host.cfg.Bundle)
	b.WriteString("\n\n")

	ctxID := m.status.context
	if ctxID == "" {
		ctxID = "(none)"
	}
	idle := "busy"
	if m.status.idle {
		idle = "idle"
	}
	rows := [][2]string{
		{"state", m.status.state.String()},
		{"context", ctxID},
		{"root views", fmt.Sprint(m.status.roots)},
		{"batches", fmt.Sprint(m.status.batches)},
		{"bridge", idle},
	}
	for _, r := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-11s", r[0])))
		b.WriteString(valueStyle.Render(r[1]))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	out := lipgloss.NewStyle().Width(m.width)
	switch {
	case m.err != nil:
		b.WriteString(out.Render(errorStyle.Render(fmt.Sprintf("Error: %v", m.err))))
		b.WriteString("\n\n")
	case m.result != "":
		b.WriteString(out.Render(resultStyle.Render(m.result)))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("enter run • esc quit"))
	return b.String()
}

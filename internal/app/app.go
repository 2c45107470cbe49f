// Package app renders pipeline progress as an interactive terminal view.
// The pipeline itself runs in a background goroutine and reports through
// tea messages; the model only displays state and handles quit keys.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/extractor"
	"github.com/dohdata/prismzonal/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	gridStyle  = map[string]lipgloss.Style{
		"Complete": lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Skipped":  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"Error":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// recentGrids caps how many per-grid lines the view keeps on screen.
const recentGrids = 10

type Model struct {
	cfg      config.Config
	spinner  spinner.Model
	progress progress.Model

	phase     string
	recent    []GridMsg
	complete  int
	skipped   int
	failed    int
	total     int
	startTime time.Time

	done     bool
	doneErr  error
	quitting bool

	termWidth int
}

func NewModel(cfg config.Config) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		cfg:       cfg,
		spinner:   s,
		progress:  progress.New(progress.WithDefaultGradient()),
		phase:     "Starting",
		startTime: time.Now(),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		if m.done {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.progress.Width = msg.Width - 8
		return m, nil

	case PhaseMsg:
		m.phase = msg.Name
		return m, nil

	case GridMsg:
		if msg.Total > 0 {
			m.total = msg.Total
		}
		switch msg.Status {
		case "Skipped":
			m.skipped++
		case "Error":
			m.failed++
		default:
			m.complete++
		}
		m.recent = append(m.recent, msg)
		if len(m.recent) > recentGrids {
			m.recent = m.recent[len(m.recent)-recentGrids:]
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.doneErr = msg.Err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("prismzonal %s %d", m.cfg.Variable, m.cfg.Year)))
	b.WriteString("\n\n")

	if m.done {
		if m.doneErr != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Pipeline finished with errors: %v", m.doneErr)))
		} else {
			b.WriteString(phaseStyle.Render("Pipeline complete."))
		}
	} else {
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), phaseStyle.Render(m.phase)))
	}
	b.WriteString("\n\n")

	seen := m.complete + m.skipped + m.failed
	if m.total > 0 {
		b.WriteString(m.progress.ViewAs(float64(seen) / float64(m.total)))
		b.WriteString("\n")
	}
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"grids: %d done, %d skipped, %d failed of %d (%s elapsed)",
		m.complete, m.skipped, m.failed, m.total,
		time.Since(m.startTime).Round(time.Second))))
	b.WriteString("\n\n")

	for _, g := range m.recent {
		style, ok := gridStyle[g.Status]
		if !ok {
			style = infoStyle
		}
		line := fmt.Sprintf("  %-45s %s", g.Name, style.Render(g.Status))
		if g.ErrMsg != "" {
			line += " " + errorStyle.Render(g.ErrMsg)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\n" + infoStyle.Render("press any key to exit"))
	} else {
		b.WriteString("\n" + infoStyle.Render("press q to abort"))
	}
	b.WriteString("\n")
	return b.String()
}

// RunPipelineTUI runs the full pipeline behind the progress view. The
// pipeline error is returned after the UI exits; quitting the UI cancels
// the run.
func RunPipelineTUI(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(cfg)
	prog := tea.NewProgram(model, tea.WithContext(ctx))

	errCh := make(chan error, 1)
	go func() {
		start := time.Now()
		prog.Send(PhaseMsg{Name: "Running pipeline"})
		err := orchestrator.RunPipeline(ctx, cfg, dbConn, logger, func(r extractor.Result) {
			msg := GridMsg{Name: r.Name, Status: "Complete", Total: r.Total, Elapsed: r.Elapsed}
			switch {
			case r.Skipped:
				msg.Status = "Skipped"
			case r.Err != nil:
				msg.Status = "Error"
				msg.ErrMsg = r.Err.Error()
			}
			prog.Send(msg)
		})
		errCh <- err
		prog.Send(DoneMsg{Err: err, StartTime: start, EndTime: time.Now()})
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("run progress UI: %w", err)
	}
	cancel()
	return <-errCh
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/nhle/jira-worklog/internal/theme"
)

const progressInterval = 100 * time.Millisecond

type progressTickMsg struct{}

// workDoneMsg is sent once the background operation returns.
type workDoneMsg struct {
	err error
}

type progressModel struct {
	spinner  spinner.Model
	bar      progress.Model
	label    string
	progress func() float64
	results  <-chan error
	err      error
	done     bool
}

func newProgressModel(label string, current func() float64, results <-chan error) progressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.KeyStyle),
	)

	return progressModel{
		spinner:  s,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		label:    label,
		progress: current,
		results:  results,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickProgress(), waitForResult(m.results))
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickProgress()
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s\n%s", m.spinner.View(), m.label, m.bar.ViewAs(m.progress()))
}

func tickProgress() tea.Cmd {
	return tea.Tick(progressInterval, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

// waitForResult blocks on the result channel and hands the outcome back to
// the Bubble Tea runtime.
func waitForResult(results <-chan error) tea.Cmd {
	return func() tea.Msg {
		return workDoneMsg{err: <-results}
	}
}

// runWithProgress runs work in the background and renders a spinner and a
// progress bar fed by current until it returns. Without a terminal the
// work runs in the foreground with no rendering.
func runWithProgress(
	ctx context.Context,
	output io.Writer,
	label string,
	current func() float64,
	work func(context.Context) error,
) error {
	if !isTerminal(output) {
		return work(ctx)
	}

	results := make(chan error, 1)
	go func() {
		results <- work(ctx)
	}()

	p := tea.NewProgram(
		newProgressModel(label, current, results),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(progressModel)
	if !ok {
		return fmt.Errorf("unexpected final progress model type %T", finalModel)
	}

	return result.err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

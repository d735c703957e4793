// Package progress renders a terminal progress bar for an img2img alternative test run. The bar
// can be driven locally through Observer or by polling the WebUI and sending FromAPI messages.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"img2img_alt/entities"
	"img2img_alt/processing"
)

const (
	padding  = 2
	maxWidth = 80
)

// Percent sets the bar, clamped to [0, 1].
type Percent float64

// Status replaces the line shown under the bar.
type Status string

// Done stops the program after rendering the final state.
type Done struct{}

func New() Model {
	return Model{progress: progress.New(
		progress.WithScaledGradient("#FF7CCB", "#FDFF8C"),
		progress.WithoutPercentage(),
	)}
}

type Model struct {
	percent  float64
	status   string
	done     bool
	progress progress.Model
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-padding*2-4, maxWidth)

	case Percent:
		m.percent = min(max(0.0, float64(msg)), 1.0)

	case Status:
		m.status = string(msg)

	case Done:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	pad := strings.Repeat(" ", padding)
	view := "\n" + pad + m.progress.ViewAs(m.percent) + fmt.Sprintf(" %3.0f%%", m.percent*100) + "\n"
	if m.status != "" {
		view += pad + m.status + "\n"
	}
	return view + "\n"
}

func (m Model) Percent() float64 { return m.percent }

// FromAPI converts a WebUI progress snapshot into the messages for the bar.
func FromAPI(p *entities.Progress) []tea.Msg {
	status := fmt.Sprintf("job %d/%d, step %d/%d", p.State.JobNo+1, max(p.State.JobCount, 1), p.State.SamplingStep, p.State.SamplingSteps)
	if p.State.Interrupted {
		status += " (interrupted)"
	}
	return []tea.Msg{Percent(p.Progress), Status(status)}
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards run state changes to a running program.
type Observer struct {
	Program Sender
	State   *processing.State
}

var _ processing.Observer = Observer{}

func (o Observer) OnStep(step, steps int) {
	o.Program.Send(Percent(o.State.Progress()))
	o.Program.Send(Status(fmt.Sprintf("job %d/%d, step %d/%d", o.State.JobNo+1, max(o.State.JobCount, 1), step, steps)))
}

func (o Observer) OnJob(jobNo, jobCount int) {
	o.Program.Send(Percent(o.State.Progress()))
	if jobCount > 0 && jobNo >= jobCount {
		o.Program.Send(Done{})
	}
}

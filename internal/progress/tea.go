package progress

import (
	"context"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg struct{}
type stopMsg struct{}

type senderTeaModel struct {
	viewFn    func() SenderView
	view      SenderView
	interrupt func()
}

func (m senderTeaModel) Init() tea.Cmd {
	return nil
}

func (m senderTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if m.interrupt != nil {
				m.interrupt()
			}
			return m, tea.Quit
		}
	case tickMsg:
		m.view = m.viewFn()
		return m, nil
	case stopMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m senderTeaModel) View() string {
	return renderSenderView(m.view, true) + "\n\npress q or ctrl+c to stop sharing\n"
}

func renderSenderTea(ctx context.Context, w io.Writer, view func() SenderView, interrupt func()) func() {
	model := senderTeaModel{viewFn: view, view: view(), interrupt: interrupt}
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithAltScreen())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_, _ = program.Run()
	}()
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				program.Send(stopMsg{})
				return
			case <-stop:
				return
			case <-exited:
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			program.Send(stopMsg{})
			<-exited
		})
	}
}

package tui

import tea "github.com/charmbracelet/bubbletea"

// Alerts 把录音器等组件的阻塞提示转交给 TUI
// Alerts forwards blocking alerts from collaborators such as the recorder
// into the Bubble Tea loop. It implements audio.Alerter.
type Alerts struct {
	ch chan string
}

func NewAlerts() *Alerts {
	return &Alerts{ch: make(chan string, 4)}
}

// Alert 不阻塞；队列满时丢弃 / Alert never blocks; it drops when the queue is full
func (a *Alerts) Alert(message string) {
	if a == nil {
		return
	}
	select {
	case a.ch <- message:
	default:
	}
}

func (a *Alerts) wait() tea.Cmd {
	if a == nil {
		return nil
	}
	return func() tea.Msg {
		return AlertMsg{Text: <-a.ch}
	}
}

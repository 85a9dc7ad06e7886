package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// syncStepMsg names the leg of an exchange that is in flight.
type syncStepMsg string

type syncFinishedMsg struct {
	report application.SyncReport
	err    error
}

// progressPeer reports each leg of SyncWith to the running program before
// handing it to the real peer.
type progressPeer struct {
	name string
	peer ports.SyncPeer
	send func(tea.Msg)
}

func (p progressPeer) Push(ctx context.Context, records []domain.RemoteTransaction) error {
	p.send(syncStepMsg(fmt.Sprintf("Pushing %d transactions to %s...", len(records), p.name)))
	return p.peer.Push(ctx, records)
}

func (p progressPeer) Pull(ctx context.Context, since time.Time) ([]domain.RemoteTransaction, error) {
	p.send(syncStepMsg(fmt.Sprintf("Pulling from %s...", p.name)))
	records, err := p.peer.Pull(ctx, since)
	if err == nil {
		p.send(syncStepMsg(fmt.Sprintf("Merging %d transactions from %s...", len(records), p.name)))
	}
	return records, err
}

type syncProgressModel struct {
	spinner spinner.Model
	step    string
	work    tea.Cmd
	report  application.SyncReport
	err     error
	done    bool
}

func newSyncProgressModel(peer string, work tea.Cmd) syncProgressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("220"))),
	)

	return syncProgressModel{
		spinner: s,
		step:    fmt.Sprintf("Connecting to %s...", peer),
		work:    work,
	}
}

func (m syncProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.work)
}

func (m syncProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case syncStepMsg:
		m.step = string(msg)
		return m, nil
	case syncFinishedMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m syncProgressModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.step)
}

// runSyncProgress runs exchange against peer while a spinner on output shows
// which leg is in flight.
func runSyncProgress(ctx context.Context, output io.Writer, name string, peer ports.SyncPeer, exchange func(context.Context, ports.SyncPeer) (application.SyncReport, error)) (application.SyncReport, error) {
	var p *tea.Program
	watched := progressPeer{name: name, peer: peer, send: func(msg tea.Msg) { p.Send(msg) }}
	work := func() tea.Msg {
		report, err := exchange(ctx, watched)
		return syncFinishedMsg{report: report, err: err}
	}

	p = tea.NewProgram(
		newSyncProgressModel(name, work),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return application.SyncReport{}, err
	}

	result, ok := finalModel.(syncProgressModel)
	if !ok {
		return application.SyncReport{}, fmt.Errorf("unexpected final sync model type %T", finalModel)
	}
	return result.report, result.err
}

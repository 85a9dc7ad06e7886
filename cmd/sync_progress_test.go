package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeer struct {
	pulled []domain.RemoteTransaction
	pushed []domain.RemoteTransaction
}

func (s *stubPeer) Pull(context.Context, time.Time) ([]domain.RemoteTransaction, error) {
	return s.pulled, nil
}

func (s *stubPeer) Push(_ context.Context, records []domain.RemoteTransaction) error {
	s.pushed = append(s.pushed, records...)
	return nil
}

func TestProgressPeerReportsEachLeg(t *testing.T) {
	t.Parallel()

	var steps []string
	inner := &stubPeer{pulled: []domain.RemoteTransaction{{SyncID: "a"}, {SyncID: "b"}}}
	peer := progressPeer{name: "laptop", peer: inner, send: func(msg tea.Msg) {
		steps = append(steps, string(msg.(syncStepMsg)))
	}}

	require.NoError(t, peer.Push(context.Background(), []domain.RemoteTransaction{{SyncID: "c"}}))
	records, err := peer.Pull(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Len(t, inner.pushed, 1)
	assert.Equal(t, []string{
		"Pushing 1 transactions to laptop...",
		"Pulling from laptop...",
		"Merging 2 transactions from laptop...",
	}, steps)
}

func TestSyncProgressModelKeepsReportOnFinish(t *testing.T) {
	t.Parallel()

	m := newSyncProgressModel("laptop", nil)
	assert.Contains(t, m.View(), "Connecting to laptop...")

	next, _ := m.Update(syncStepMsg("Pulling from laptop..."))
	m = next.(syncProgressModel)
	assert.Contains(t, m.View(), "Pulling from laptop...")

	report := application.SyncReport{Peer: "laptop", Pushed: 3}
	next, cmd := m.Update(syncFinishedMsg{report: report, err: errors.New("cursor save failed")})
	m = next.(syncProgressModel)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.Equal(t, report, m.report)
	assert.EqualError(t, m.err, "cursor save failed")
}

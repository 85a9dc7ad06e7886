package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorObservesEvents(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.Observe(domain.Event{
		Type:        domain.EventWalletUpdated,
		Wallet:      &domain.WalletSnapshot{Balance: 42},
		Transaction: &domain.Transaction{Kind: domain.TransactionAdjust, Amount: -15},
	})
	c.Observe(domain.Event{Type: domain.EventSessionStarted, Session: &domain.Session{Mode: domain.SessionPack}})
	c.Observe(domain.Event{Type: domain.EventSessionEnded, Reason: domain.EndReasonCancelled, Refund: 40})
	c.Observe(domain.Event{Type: domain.EventPaywallRequired})
	c.Observe(domain.Event{Type: domain.EventPaywallRequired})

	out := scrape(t, c)
	assert.Contains(t, out, "focuscoin_wallet_balance 42")
	assert.Contains(t, out, `focuscoin_wallet_coins_total{kind="adjust"} 15`)
	assert.Contains(t, out, `focuscoin_sessions_started_total{mode="pack"} 1`)
	assert.Contains(t, out, `focuscoin_sessions_ended_total{reason="cancelled"} 1`)
	assert.Contains(t, out, "focuscoin_refund_coins_total 40")
	assert.Contains(t, out, "focuscoin_paywall_required_total 2")
}

func TestCollectorRecordsSyncAndSeedBalance(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.SetBalance(7)
	c.RecordSync(3, 1, 0)

	out := scrape(t, c)
	assert.Contains(t, out, "focuscoin_wallet_balance 7")
	assert.Contains(t, out, `focuscoin_sync_records_total{result="applied"} 3`)
	assert.Contains(t, out, `focuscoin_sync_records_total{result="duplicate"} 1`)
}

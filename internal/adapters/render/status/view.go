package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
	// Transactions caps the recent-history section; zero hides it.
	Transactions int
}

func renderView(status application.Status, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Focus Wallet"),
		s.header.Render(fmt.Sprintf("device: %s", fallback(status.DeviceID, "unknown"))),
		lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render("balance: "), s.balance.Render(coins(status.Wallet.Balance))),
	}

	lines = append(lines, s.section.Render(renderSessions(status.Sessions, s)))
	lines = append(lines, s.section.Render(renderEmergency(status.Emergency, s)))

	if opts.Transactions > 0 {
		lines = append(lines, s.section.Render(renderTransactions(status.Transactions, status.DeviceID, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSessions(sessions []domain.Session, s styles) string {
	parts := []string{s.header.Render(fmt.Sprintf("sessions: %d", len(sessions)))}
	if len(sessions) == 0 {
		parts = append(parts, s.empty.Render("No active sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	for _, session := range sessions {
		parts = append(parts, sessionLine(session, s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func sessionLine(session domain.Session, s styles) string {
	segments := []string{
		s.destination.Render(session.Destination),
		s.meta.Render(fmt.Sprintf("(%s)", modeLabel(session))),
	}

	switch session.Mode {
	case domain.SessionMetered:
		segments = append(segments, s.detail.Render(fmt.Sprintf("%.2f coins/min, charged %d", session.RatePerMinute, session.TotalCharged)))
	case domain.SessionStore:
		segments = append(segments, s.detail.Render("pass"))
	case domain.SessionEmergency:
		if session.Justification != "" {
			segments = append(segments, s.detail.Render(fmt.Sprintf("%q", session.Justification)))
		}
		if session.URLLocked() {
			segments = append(segments, s.meta.Render("locked to "+session.AllowedURL))
		}
	}

	if session.Timed {
		total := session.PurchasedSeconds
		if total <= 0 {
			total = session.RemainingSeconds
		}
		segments = append(segments,
			renderProgressBar(session.RemainingSeconds, total, 20, s),
			s.detail.Render(formatRemaining(session.RemainingSeconds)+" left"),
		)
	}

	switch {
	case session.Held:
		segments = append(segments, s.warning.Render("[held]"))
	case session.Paused:
		segments = append(segments, s.warning.Render("[paused]"))
	}

	return strings.Join(segments, " ")
}

func modeLabel(session domain.Session) string {
	if session.Mode == domain.SessionPack && session.PackChainCount > 0 {
		return fmt.Sprintf("pack, chain %d", session.PackChainCount)
	}
	return string(session.Mode)
}

func renderEmergency(status application.EmergencyStatus, s styles) string {
	policy := fallback(string(status.Policy.ID), "unset")
	parts := []string{s.header.Render("emergency: " + policy)}

	if !status.Policy.Allowed {
		parts = append(parts, s.empty.Render("Emergency access is disabled."))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	tokens := "unlimited"
	if status.Policy.DailyTokens != domain.UnlimitedTokens {
		tokens = fmt.Sprintf("%d/%d", status.TokensLeft, status.Policy.DailyTokens)
	}
	parts = append(parts, s.detail.Render(fmt.Sprintf("tokens left: %s", tokens)))

	if status.CoolingDown {
		left := time.Duration(status.CooldownLeftMs) * time.Millisecond
		parts = append(parts, s.warning.Render("cooldown: "+formatRemaining(left.Seconds())))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderTransactions(txs []domain.Transaction, deviceID string, opts RenderOptions, s styles) string {
	parts := []string{s.header.Render("recent transactions")}
	if len(txs) == 0 {
		parts = append(parts, s.empty.Render("No transactions in the last 24 hours."))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	start := 0
	if len(txs) > opts.Transactions {
		start = len(txs) - opts.Transactions
	}
	for _, tx := range txs[start:] {
		amount := fmt.Sprintf("%+d", tx.Delta())
		style := s.credit
		if tx.Delta() < 0 {
			style = s.debit
		}
		line := []string{
			s.meta.Render(formatTimestamp(tx.Timestamp, opts.Now)),
			s.key.Render(fmt.Sprintf("%-6s", tx.Kind)),
			style.Render(fmt.Sprintf("%5s", amount)),
		}
		if reason := tx.Meta[domain.MetaReason]; reason != "" {
			line = append(line, s.detail.Render(reason))
		}
		if dest := tx.Meta[domain.MetaDestination]; dest != "" {
			line = append(line, s.meta.Render(dest))
		}
		if tx.Origin != "" && tx.Origin != deviceID {
			line = append(line, s.meta.Render("@"+tx.Origin))
		}
		parts = append(parts, strings.Join(line, " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderProgressBar(remaining, total float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	fraction := 0.0
	if total > 0 {
		fraction = remaining / total
	}
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func formatRemaining(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(math.Ceil(seconds))
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatTimestamp(at, now time.Time) string {
	local := at.Local()
	if now.IsZero() {
		return local.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Local().Date()
	yearB, monthB, dayB := local.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return local.Format("15:04")
	}
	return local.Format("15:04 02 Jan")
}

func coins(n int64) string {
	if n == 1 {
		return "1 coin"
	}
	return fmt.Sprintf("%d coins", n)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

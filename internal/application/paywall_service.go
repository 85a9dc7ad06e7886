package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/sirupsen/logrus"
)

// chargeEpsilon absorbs float error so exact whole-coin accruals are not lost to floor.
const chargeEpsilon = 1e-9

// PaywallService is the session manager. It is the only owner of live
// sessions; callers receive copies.
type PaywallService struct {
	ledger *LedgerService
	market *MarketService
	repo   ports.SessionRepository
	events ports.EventPublisher
	clock  ports.Clock
	log    logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*domain.Session
	chains   map[string]int
}

func NewPaywallService(ledger *LedgerService, market *MarketService, repo ports.SessionRepository, events ports.EventPublisher, clock ports.Clock, log logrus.FieldLogger) *PaywallService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if events == nil {
		events = ports.NopPublisher{}
	}

	return &PaywallService{
		ledger:   ledger,
		market:   market,
		repo:     repo,
		events:   events,
		clock:    clock,
		log:      loggerOrDiscard(log),
		sessions: map[string]*domain.Session{},
		chains:   map[string]int{},
	}
}

// Restore replaces the in-memory sessions and pack chains with the persisted ones.
func (s *PaywallService) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	chains, err := s.repo.PackChains(ctx)
	if err != nil {
		return fmt.Errorf("load pack chains: %w", err)
	}

	s.sessions = make(map[string]*domain.Session, len(sessions))
	for i := range sessions {
		session := sessions[i]
		s.sessions[session.Destination] = &session
	}
	s.chains = make(map[string]int, len(chains))
	for dest, count := range chains {
		s.chains[dest] = count
	}

	return nil
}

func (s *PaywallService) StartMetered(ctx context.Context, cmd StartMeteredCommand) (domain.Session, error) {
	dest, err := s.prepareStart(ctx, cmd.Destination)
	if err != nil {
		return domain.Session{}, err
	}

	multiplier := cmd.MeteredMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	now := s.clock.Now()
	base := cmd.EffectiveRate
	if mod := s.hourModifier(ctx, dest, now); mod > 0 {
		base = cmd.EffectiveRate / mod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConflictLocked(dest); err != nil {
		return domain.Session{}, err
	}

	session := &domain.Session{
		Destination:       dest,
		Mode:              domain.SessionMetered,
		RatePerMinute:     cmd.EffectiveRate,
		BaseRatePerMinute: base,
		ColorFilter:       colorOrDefault(cmd.ColorFilter),
		MeteredMultiplier: multiplier,
		StartedAt:         now,
	}

	if err := s.openLocked(ctx, session); err != nil {
		return domain.Session{}, err
	}
	if err := s.resetChainLocked(ctx, dest); err != nil {
		s.log.WithError(err).WithField("destination", dest).Warn("reset pack chain failed")
	}

	return *session, nil
}

func (s *PaywallService) BuyPack(ctx context.Context, cmd BuyPackCommand) (domain.Session, error) {
	if cmd.Minutes <= 0 {
		return domain.Session{}, fmt.Errorf("%w: pack minutes %d", domain.ErrInvalidAmount, cmd.Minutes)
	}
	dest, err := s.prepareStart(ctx, cmd.Destination)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConflictLocked(dest); err != nil {
		return domain.Session{}, err
	}

	chain := s.chains[dest]
	if _, err := s.ledger.Spend(ctx, float64(cmd.Price), map[string]string{
		domain.MetaReason:      "pack",
		domain.MetaDestination: dest,
		"minutes":              strconv.Itoa(cmd.Minutes),
		"chain":                strconv.Itoa(chain),
	}); err != nil {
		return domain.Session{}, err
	}

	seconds := float64(cmd.Minutes * 60)
	session := &domain.Session{
		Destination:      dest,
		Mode:             domain.SessionPack,
		RatePerMinute:    cmd.EffectiveRatePerMinute,
		Timed:            true,
		RemainingSeconds: seconds,
		ColorFilter:      colorOrDefault(cmd.ColorFilter),
		PackChainCount:   chain,
		PurchasePrice:    cmd.Price,
		PurchasedSeconds: seconds,
		TotalCharged:     cmd.Price,
		StartedAt:        s.clock.Now(),
	}

	if err := s.openLocked(ctx, session); err != nil {
		return domain.Session{}, s.compensateCharge(ctx, dest, cmd.Price, err)
	}

	s.chains[dest] = chain + 1
	if err := s.repo.SavePackChain(ctx, dest, chain+1); err != nil {
		s.log.WithError(err).WithField("destination", dest).Warn("persist pack chain failed")
	}

	return *session, nil
}

func (s *PaywallService) StartEmergency(ctx context.Context, cmd StartEmergencyCommand) (domain.Session, error) {
	dest, err := s.prepareStart(ctx, cmd.Destination)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConflictLocked(dest); err != nil {
		return domain.Session{}, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		Destination:    dest,
		Mode:           domain.SessionEmergency,
		ColorFilter:    domain.ColorFull,
		Justification:  cmd.Justification,
		AllowedURL:     domain.NormalizeURL(cmd.AllowedURL),
		StartedAt:      now,
		LastReminderAt: now,
	}
	if cmd.DurationSeconds > 0 {
		session.Timed = true
		session.RemainingSeconds = cmd.DurationSeconds
	}

	if err := s.openLocked(ctx, session); err != nil {
		return domain.Session{}, err
	}
	if err := s.resetChainLocked(ctx, dest); err != nil {
		s.log.WithError(err).WithField("destination", dest).Warn("reset pack chain failed")
	}

	return *session, nil
}

// StartStore charges a one-time unlock. Store sessions never expire on their own.
func (s *PaywallService) StartStore(ctx context.Context, cmd StartStoreCommand) (domain.Session, error) {
	if cmd.Price < 0 {
		return domain.Session{}, fmt.Errorf("%w: store price %d", domain.ErrInvalidAmount, cmd.Price)
	}
	dest, err := s.prepareStart(ctx, cmd.Destination)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkConflictLocked(dest); err != nil {
		return domain.Session{}, err
	}

	if cmd.Price > 0 {
		if _, err := s.ledger.Spend(ctx, float64(cmd.Price), map[string]string{
			domain.MetaReason:      "store",
			domain.MetaDestination: dest,
		}); err != nil {
			return domain.Session{}, err
		}
	}

	session := &domain.Session{
		Destination:   dest,
		Mode:          domain.SessionStore,
		ColorFilter:   domain.ColorFull,
		AllowedURL:    domain.NormalizeURL(cmd.URL),
		PurchasePrice: cmd.Price,
		TotalCharged:  cmd.Price,
		StartedAt:     s.clock.Now(),
	}

	if err := s.openLocked(ctx, session); err != nil {
		return domain.Session{}, s.compensateCharge(ctx, dest, cmd.Price, err)
	}
	if err := s.resetChainLocked(ctx, dest); err != nil {
		s.log.WithError(err).WithField("destination", dest).Warn("reset pack chain failed")
	}

	return *session, nil
}

func (s *PaywallService) EndSession(ctx context.Context, destination string, reason domain.EndReason, opts EndSessionOptions) (EndSessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := domain.NormalizeDestination(destination)
	if _, err := s.refreshLocked(ctx, dest); err != nil {
		return EndSessionResult{}, fmt.Errorf("end session %s: %w", dest, err)
	}
	return s.endLocked(ctx, dest, reason, opts.RefundUnused)
}

// CancelPack ends the session and refunds the unused share of a pack.
func (s *PaywallService) CancelPack(ctx context.Context, destination string) (EndSessionResult, error) {
	return s.EndSession(ctx, destination, domain.EndReasonCancelled, EndSessionOptions{RefundUnused: true})
}

// Pause holds the session paused until Resume, whatever the activity reports.
func (s *PaywallService) Pause(ctx context.Context, destination string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.refreshLocked(ctx, domain.NormalizeDestination(destination))
	if err != nil {
		return domain.Session{}, err
	}

	session.Held = true
	if !session.Paused {
		session.Paused = true
		s.publishSession(domain.EventSessionPaused, session)
	}
	if err := s.saveLocked(ctx, session); err != nil {
		return domain.Session{}, err
	}

	return *session, nil
}

// Resume releases a user hold. The next tick decides whether time flows.
func (s *PaywallService) Resume(ctx context.Context, destination string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.refreshLocked(ctx, domain.NormalizeDestination(destination))
	if err != nil {
		return domain.Session{}, err
	}

	session.Held = false
	if err := s.saveLocked(ctx, session); err != nil {
		return domain.Session{}, err
	}

	return *session, nil
}

func (s *PaywallService) GetSession(destination string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[domain.NormalizeDestination(destination)]
	if !ok {
		return domain.Session{}, false
	}
	return *session, true
}

func (s *PaywallService) ListSessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, dest := range s.destinationsLocked() {
		out = append(out, *s.sessions[dest])
	}
	return out
}

func (s *PaywallService) HasValidPass(destination, rawURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[domain.NormalizeDestination(destination)]
	if !ok {
		return false
	}
	if !session.HasTimeLeft() {
		return false
	}
	return session.MatchesURL(rawURL)
}

func (s *PaywallService) PackChainCount(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chains[domain.NormalizeDestination(destination)]
}

// UpdateRate replaces a destination's market rate unless a session is live for it.
func (s *PaywallService) UpdateRate(ctx context.Context, rate domain.MarketRate) (domain.MarketRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := domain.NormalizeDestination(rate.Destination)
	if _, ok := s.sessions[dest]; ok {
		return domain.MarketRate{}, fmt.Errorf("update rate %s: %w", dest, domain.ErrSessionConflict)
	}

	return s.market.UpsertRate(ctx, rate)
}

// Tick advances every live session by one spend interval. A failure on one
// session is logged and counted; the remaining sessions still tick.
func (s *PaywallService) Tick(ctx context.Context, in TickInput) TickSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	summary := TickSummary{}
	for _, dest := range s.destinationsLocked() {
		session, err := s.refreshLocked(ctx, dest)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			summary.Failures++
			s.log.WithError(err).WithField("destination", dest).Error("session reload failed")
			continue
		}
		charged, ended, err := s.tickSessionLocked(ctx, session, in, now)
		summary.Charged += charged
		if ended != nil {
			summary.Ended = append(summary.Ended, *ended)
		}
		if err != nil {
			summary.Failures++
			s.log.WithError(err).WithFields(logrus.Fields{
				"destination": dest,
				"mode":        session.Mode,
			}).Error("session tick failed")
		}
	}

	return summary
}

func (s *PaywallService) tickSessionLocked(ctx context.Context, session *domain.Session, in TickInput, now time.Time) (int64, *EndSessionResult, error) {
	active := !session.Held && session.IsActiveFor(in.ActiveDestination, in.ActiveURL)
	if !active {
		if session.Paused {
			return 0, nil, nil
		}
		session.Paused = true
		s.publishSession(domain.EventSessionPaused, session)
		return 0, nil, s.saveLocked(ctx, session)
	}

	if session.Paused {
		session.Paused = false
		if session.Mode == domain.SessionEmergency {
			session.LastReminderAt = now
		}
		s.publishSession(domain.EventSessionResumed, session)
	}

	var charged int64
	switch session.Mode {
	case domain.SessionEmergency:
		if in.ReminderInterval > 0 && now.Sub(session.LastReminderAt) > in.ReminderInterval {
			session.LastReminderAt = now
			s.events.Publish(domain.Event{
				Type:          domain.EventSessionReminder,
				At:            now,
				Destination:   session.Destination,
				Session:       copySession(session),
				Justification: session.Justification,
			})
		}
	case domain.SessionMetered:
		rate := s.meteredRateLocked(ctx, session, now)
		session.RatePerMinute = rate
		accrued := rate*in.IntervalSeconds/60 + session.SpendRemainder
		charge := int64(math.Floor(accrued + chargeEpsilon))
		remainder := math.Max(accrued-float64(charge), 0)
		if charge > 0 {
			_, err := s.ledger.Spend(ctx, float64(charge), map[string]string{
				domain.MetaReason:      "metered",
				domain.MetaDestination: session.Destination,
			})
			if errors.Is(err, domain.ErrInsufficientFunds) {
				result, endErr := s.endLocked(ctx, session.Destination, domain.EndReasonInsufficientFunds, false)
				if endErr != nil {
					return 0, nil, endErr
				}
				return 0, &result, nil
			}
			if err != nil {
				session.SpendRemainder = accrued
				return 0, nil, errors.Join(err, s.saveLocked(ctx, session))
			}
			charged = charge
			session.TotalCharged += charge
		}
		session.SpendRemainder = remainder
	}

	if session.Timed && session.Mode != domain.SessionMetered {
		session.RemainingSeconds -= in.IntervalSeconds
		if session.RemainingSeconds <= 0 {
			session.RemainingSeconds = 0
			result, err := s.endLocked(ctx, session.Destination, domain.EndReasonCompleted, false)
			if err != nil {
				return charged, nil, err
			}
			return charged, &result, nil
		}
	}

	return charged, nil, s.saveLocked(ctx, session)
}

// meteredRateLocked applies the current hour's market modifier to the rate
// composed when the session started.
func (s *PaywallService) meteredRateLocked(ctx context.Context, session *domain.Session, now time.Time) float64 {
	if session.BaseRatePerMinute <= 0 {
		return session.RatePerMinute
	}
	return session.BaseRatePerMinute * s.hourModifier(ctx, session.Destination, now)
}

// hourModifier is 1 when the destination has no readable market rate.
func (s *PaywallService) hourModifier(ctx context.Context, dest string, at time.Time) float64 {
	rate, err := s.market.GetRate(ctx, dest)
	if err != nil {
		s.log.WithError(err).WithField("destination", dest).Debug("no hourly modifier for destination")
		return 1
	}
	return rate.Modifier(at)
}

func (s *PaywallService) endLocked(ctx context.Context, dest string, reason domain.EndReason, refundUnused bool) (EndSessionResult, error) {
	session, ok := s.sessions[dest]
	if !ok {
		return EndSessionResult{}, fmt.Errorf("end session %s: %w", dest, domain.ErrSessionNotFound)
	}

	var refund int64
	if refundUnused {
		refund = session.PackRefund()
	}

	if err := s.repo.Delete(ctx, dest); err != nil {
		return EndSessionResult{}, fmt.Errorf("delete session %s: %w", dest, err)
	}
	delete(s.sessions, dest)

	result := EndSessionResult{Session: *session, Reason: reason, Refund: refund}
	var refundErr error
	if refund > 0 {
		if _, err := s.ledger.Adjust(ctx, refund, map[string]string{
			domain.MetaReason:      "refund",
			domain.MetaDestination: dest,
		}); err != nil {
			refundErr = fmt.Errorf("refund %d for %s: %w", refund, dest, err)
			result.Refund = 0
		}
	}

	s.events.Publish(domain.Event{
		Type:        domain.EventSessionEnded,
		At:          s.clock.Now(),
		Destination: dest,
		Session:     copySession(session),
		Reason:      reason,
		Refund:      result.Refund,
	})

	return result, refundErr
}

func (s *PaywallService) prepareStart(ctx context.Context, destination string) (string, error) {
	dest := domain.NormalizeDestination(destination)
	if dest == "" {
		return "", domain.ErrInvalidDestination
	}
	if _, err := s.market.EnsureRate(ctx, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *PaywallService) checkConflictLocked(dest string) error {
	if existing, ok := s.sessions[dest]; ok {
		return fmt.Errorf("%w: %s (%s)", domain.ErrSessionConflict, dest, existing.Mode)
	}
	return nil
}

func (s *PaywallService) openLocked(ctx context.Context, session *domain.Session) error {
	session.Revision = 0
	saved, err := s.repo.Save(ctx, *session)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	session.Revision = saved.Revision
	s.sessions[session.Destination] = session
	s.publishSession(domain.EventSessionStarted, session)
	return nil
}

// saveLocked writes the session back unless another process changed it
// since it was read. On conflict the stored copy replaces the local one.
func (s *PaywallService) saveLocked(ctx context.Context, session *domain.Session) error {
	saved, err := s.repo.Save(ctx, *session)
	if errors.Is(err, domain.ErrSessionChanged) {
		if _, refreshErr := s.refreshLocked(ctx, session.Destination); refreshErr != nil && !errors.Is(refreshErr, domain.ErrSessionNotFound) {
			err = errors.Join(err, refreshErr)
		}
		return fmt.Errorf("save session %s: %w", session.Destination, err)
	}
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.Destination, err)
	}
	session.Revision = saved.Revision
	return nil
}

// refreshLocked syncs one destination with the repository, which other
// processes on the device write too. A session deleted there is dropped
// here, and a newer stored revision replaces the local copy.
func (s *PaywallService) refreshLocked(ctx context.Context, dest string) (*domain.Session, error) {
	stored, err := s.repo.Get(ctx, dest)
	if errors.Is(err, domain.ErrSessionNotFound) {
		if _, ok := s.sessions[dest]; ok {
			delete(s.sessions, dest)
			s.log.WithField("destination", dest).Info("session ended by another process")
		}
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", dest, err)
	}

	if current, ok := s.sessions[dest]; ok && current.Revision == stored.Revision {
		return current, nil
	}
	s.sessions[dest] = &stored
	return &stored, nil
}

func (s *PaywallService) resetChainLocked(ctx context.Context, dest string) error {
	if s.chains[dest] == 0 {
		return nil
	}
	s.chains[dest] = 0
	return s.repo.SavePackChain(ctx, dest, 0)
}

func (s *PaywallService) compensateCharge(ctx context.Context, dest string, price int64, cause error) error {
	if price <= 0 {
		return cause
	}
	if _, err := s.ledger.Adjust(ctx, price, map[string]string{
		domain.MetaReason:      "rollback",
		domain.MetaDestination: dest,
	}); err != nil {
		return fmt.Errorf("open session and roll back charge: %w", errors.Join(cause, err))
	}
	return cause
}

func (s *PaywallService) destinationsLocked() []string {
	dests := make([]string, 0, len(s.sessions))
	for dest := range s.sessions {
		dests = append(dests, dest)
	}
	sort.Strings(dests)
	return dests
}

func (s *PaywallService) publishSession(eventType domain.EventType, session *domain.Session) {
	s.events.Publish(domain.Event{
		Type:        eventType,
		At:          s.clock.Now(),
		Destination: session.Destination,
		Session:     copySession(session),
		URL:         session.AllowedURL,
	})
}

func copySession(session *domain.Session) *domain.Session {
	c := *session
	return &c
}

func colorOrDefault(filter domain.ColorFilter) domain.ColorFilter {
	if filter == "" {
		return domain.ColorFull
	}
	return filter
}

package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type EmergencyStatus struct {
	Policy         domain.EmergencyPolicy `json:"policy"`
	Usage          domain.EmergencyUsage  `json:"usage"`
	TokensLeft     int                    `json:"tokensLeft"`
	CoolingDown    bool                   `json:"coolingDown"`
	CooldownLeftMs int64                  `json:"cooldownLeftMs"`
}

// EmergencyService gates emergency overrides behind the selected policy preset.
type EmergencyService struct {
	paywall       *PaywallService
	ledger        *LedgerService
	repo          ports.EmergencyRepository
	consumption   ports.ConsumptionLog
	clock         ports.Clock
	log           logrus.FieldLogger
	defaultPolicy domain.EmergencyPolicyID

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewEmergencyService(paywall *PaywallService, ledger *LedgerService, repo ports.EmergencyRepository, consumption ports.ConsumptionLog, clock ports.Clock, log logrus.FieldLogger, defaultPolicy domain.EmergencyPolicyID) *EmergencyService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if defaultPolicy == "" {
		defaultPolicy = domain.EmergencyPolicyBalanced
	}

	return &EmergencyService{
		paywall:       paywall,
		ledger:        ledger,
		repo:          repo,
		consumption:   consumption,
		clock:         clock,
		log:           loggerOrDiscard(log),
		defaultPolicy: defaultPolicy,
		entropy:       ulid.Monotonic(rand.New(rand.NewSource(clock.Now().UnixNano())), 0),
	}
}

func (s *EmergencyService) Policy(ctx context.Context) (domain.EmergencyPolicy, error) {
	id, err := s.repo.Policy(ctx)
	if err != nil {
		return domain.EmergencyPolicy{}, fmt.Errorf("load emergency policy: %w", err)
	}
	if id == "" {
		id = s.defaultPolicy
	}

	return domain.LookupEmergencyPolicy(string(id))
}

func (s *EmergencyService) SetPolicy(ctx context.Context, id string) (domain.EmergencyPolicy, error) {
	policy, err := domain.LookupEmergencyPolicy(id)
	if err != nil {
		return domain.EmergencyPolicy{}, err
	}
	if err := s.repo.SavePolicy(ctx, policy.ID); err != nil {
		return domain.EmergencyPolicy{}, fmt.Errorf("save emergency policy: %w", err)
	}

	return policy, nil
}

func (s *EmergencyService) Status(ctx context.Context) (EmergencyStatus, error) {
	policy, err := s.Policy(ctx)
	if err != nil {
		return EmergencyStatus{}, err
	}
	usage, err := s.repo.Usage(ctx)
	if err != nil {
		return EmergencyStatus{}, fmt.Errorf("load emergency usage: %w", err)
	}

	now := s.clock.Now()
	usage = usage.Roll(now)
	status := EmergencyStatus{
		Policy:      policy,
		Usage:       usage,
		TokensLeft:  domain.UnlimitedTokens,
		CoolingDown: usage.CoolingDown(now),
	}
	if policy.DailyTokens != domain.UnlimitedTokens {
		status.TokensLeft = max(policy.DailyTokens-usage.TokensUsed, 0)
	}
	if !policy.Allowed {
		status.TokensLeft = 0
	}
	if status.CoolingDown {
		status.CooldownLeftMs = usage.CooldownUntil.Sub(now).Milliseconds()
	}

	return status, nil
}

// Start grants an emergency session. Usage and debt are recorded before the
// session opens; the debt is not returned when opening fails.
func (s *EmergencyService) Start(ctx context.Context, cmd EmergencyStartCommand) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := domain.NormalizeDestination(cmd.Destination)
	if dest == "" {
		return domain.Session{}, domain.ErrInvalidDestination
	}

	policy, err := s.Policy(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !policy.Allowed {
		return domain.Session{}, domain.ErrEmergencyDisabled
	}

	usage, err := s.repo.Usage(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load emergency usage: %w", err)
	}
	now := s.clock.Now()
	usage = usage.Roll(now)

	if usage.CoolingDown(now) {
		return domain.Session{}, &domain.CooldownError{Until: usage.CooldownUntil}
	}
	if policy.TokensExhausted(usage.TokensUsed) {
		return domain.Session{}, domain.ErrDailyLimitReached
	}
	if _, live := s.paywall.GetSession(dest); live {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionConflict, dest)
	}

	usage.TokensUsed++
	usage.CooldownUntil = now.Add(policy.Cooldown)
	if err := s.repo.SaveUsage(ctx, usage); err != nil {
		return domain.Session{}, fmt.Errorf("save emergency usage: %w", err)
	}

	if policy.DebtCoins > 0 {
		if _, err := s.ledger.Adjust(ctx, -policy.DebtCoins, map[string]string{
			domain.MetaReason:      "emergency-debt",
			domain.MetaDestination: dest,
		}); err != nil {
			return domain.Session{}, fmt.Errorf("debit emergency debt: %w", err)
		}
	}

	var allowedURL string
	if policy.LockURL {
		allowedURL = domain.NormalizeURL(cmd.URL)
	}

	session, err := s.paywall.StartEmergency(ctx, StartEmergencyCommand{
		Destination:     dest,
		Justification:   strings.TrimSpace(cmd.Justification),
		DurationSeconds: policy.Duration.Seconds(),
		AllowedURL:      allowedURL,
	})
	if err != nil {
		return domain.Session{}, err
	}

	entry := domain.ConsumptionEntry{
		ID:            ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Timestamp:     now.UTC(),
		Destination:   dest,
		PolicyID:      policy.ID,
		Duration:      policy.Duration,
		DebtCoins:     policy.DebtCoins,
		Justification: session.Justification,
		AllowedURL:    allowedURL,
	}
	if err := s.consumption.Record(ctx, entry); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"destination": dest,
			"policy":      policy.ID,
		}).Warn("record emergency consumption failed")
	}

	return session, nil
}

// IsPolicyRejection reports whether err is a user-facing emergency policy refusal.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, domain.ErrEmergencyDisabled) ||
		errors.Is(err, domain.ErrCooldownActive) ||
		errors.Is(err, domain.ErrDailyLimitReached)
}

package application

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type inMemoryLedgerStore struct {
	mu      sync.Mutex
	balance int64
	txs     []domain.Transaction
	seen    map[string]struct{}
	failing error
}

func newLedgerStore(balance int64) *inMemoryLedgerStore {
	return &inMemoryLedgerStore{balance: balance, seen: map[string]struct{}{}}
}

func (s *inMemoryLedgerStore) Append(_ context.Context, tx domain.Transaction, mode ports.AppendMode) (domain.WalletSnapshot, domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing != nil {
		return domain.WalletSnapshot{}, domain.Transaction{}, s.failing
	}
	if _, ok := s.seen[tx.SyncID]; ok {
		return domain.WalletSnapshot{}, domain.Transaction{}, domain.ErrDuplicateSyncID
	}

	delta := tx.Delta()
	switch mode {
	case ports.AppendStrict:
		if s.balance+delta < 0 {
			return domain.WalletSnapshot{}, domain.Transaction{}, domain.ErrInsufficientFunds
		}
	case ports.AppendClamp:
		if s.balance+delta < 0 {
			tx.Meta = domain.CopyMeta(tx.Meta)
			if tx.Meta == nil {
				tx.Meta = map[string]string{}
			}
			tx.Meta[domain.MetaRequested] = strconv.FormatInt(delta, 10)
			delta = -s.balance
			tx.Amount = delta
		}
	}

	s.balance += delta
	tx.ID = fmt.Sprintf("tx-%04d", len(s.txs)+1)
	s.txs = append(s.txs, tx)
	s.seen[tx.SyncID] = struct{}{}

	return domain.WalletSnapshot{Balance: s.balance}, tx, nil
}

func (s *inMemoryLedgerStore) Snapshot(context.Context) (domain.WalletSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.WalletSnapshot{Balance: s.balance}, nil
}

func (s *inMemoryLedgerStore) ListSince(_ context.Context, since time.Time) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if !tx.Timestamp.Before(since) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *inMemoryLedgerStore) transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transaction(nil), s.txs...)
}

type inMemoryRateRepo struct {
	mu    sync.Mutex
	rates map[string]domain.MarketRate
}

func newRateRepo(rates ...domain.MarketRate) *inMemoryRateRepo {
	repo := &inMemoryRateRepo{rates: map[string]domain.MarketRate{}}
	for _, rate := range rates {
		repo.rates[rate.Destination] = rate
	}
	return repo
}

func (r *inMemoryRateRepo) GetByDestination(_ context.Context, destination string) (domain.MarketRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rate, ok := r.rates[destination]
	if !ok {
		return domain.MarketRate{}, domain.ErrRateNotConfigured
	}
	return rate, nil
}

func (r *inMemoryRateRepo) List(context.Context) ([]domain.MarketRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.MarketRate, 0, len(r.rates))
	for _, rate := range r.rates {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out, nil
}

func (r *inMemoryRateRepo) Save(_ context.Context, rate domain.MarketRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rates[rate.Destination] = rate
	return nil
}

type inMemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	chains   map[string]int
	revision int64
	saveErr  error
}

func newSessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{sessions: map[string]domain.Session{}, chains: map[string]int{}}
}

func (r *inMemorySessionRepo) List(context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out, nil
}

func (r *inMemorySessionRepo) Get(_ context.Context, destination string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[destination]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *inMemorySessionRepo) Save(_ context.Context, session domain.Session) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return domain.Session{}, r.saveErr
	}

	stored, ok := r.sessions[session.Destination]
	switch {
	case session.Revision == 0 && ok:
		return domain.Session{}, domain.ErrSessionConflict
	case session.Revision != 0 && (!ok || stored.Revision != session.Revision):
		return domain.Session{}, domain.ErrSessionChanged
	}

	r.revision++
	session.Revision = r.revision
	r.sessions[session.Destination] = session
	return session, nil
}

func (r *inMemorySessionRepo) Delete(_ context.Context, destination string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, destination)
	return nil
}

func (r *inMemorySessionRepo) PackChains(context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.chains))
	for dest, count := range r.chains {
		out[dest] = count
	}
	return out, nil
}

func (r *inMemorySessionRepo) SavePackChain(_ context.Context, destination string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[destination] = count
	return nil
}

type inMemoryEmergencyRepo struct {
	mu     sync.Mutex
	usage  domain.EmergencyUsage
	policy domain.EmergencyPolicyID
}

func (r *inMemoryEmergencyRepo) Usage(context.Context) (domain.EmergencyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage, nil
}

func (r *inMemoryEmergencyRepo) SaveUsage(_ context.Context, usage domain.EmergencyUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = usage
	return nil
}

func (r *inMemoryEmergencyRepo) Policy(context.Context) (domain.EmergencyPolicyID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy, nil
}

func (r *inMemoryEmergencyRepo) SavePolicy(_ context.Context, id domain.EmergencyPolicyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = id
	return nil
}

type recordingConsumptionLog struct {
	mu      sync.Mutex
	entries []domain.ConsumptionEntry
}

func (l *recordingConsumptionLog) Record(_ context.Context, entry domain.ConsumptionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

type inMemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

func (s *inMemoryCursorStore) Cursor(_ context.Context, peer string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[peer], nil
}

func (s *inMemoryCursorStore) SaveCursor(_ context.Context, peer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors == nil {
		s.cursors = map[string]time.Time{}
	}
	s.cursors[peer] = at
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(eventType domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type testEngine struct {
	clock       *manualClock
	store       *inMemoryLedgerStore
	rates       *inMemoryRateRepo
	sessions    *inMemorySessionRepo
	emergencyDB *inMemoryEmergencyRepo
	consumption *recordingConsumptionLog
	events      *recordingPublisher
	ledger      *LedgerService
	market      *MarketService
	paywall     *PaywallService
	economy     *EconomyService
	emergency   *EmergencyService
}

func newTestEngine(balance int64, rates ...domain.MarketRate) *testEngine {
	e := &testEngine{
		clock:       newManualClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)),
		store:       newLedgerStore(balance),
		rates:       newRateRepo(rates...),
		sessions:    newSessionRepo(),
		emergencyDB: &inMemoryEmergencyRepo{},
		consumption: &recordingConsumptionLog{},
		events:      &recordingPublisher{},
	}
	e.ledger = NewLedgerService(e.store, e.events, e.clock, "device-a")
	e.market = NewMarketService(e.rates, e.clock)
	e.paywall = NewPaywallService(e.ledger, e.market, e.sessions, e.events, e.clock, nil)
	e.economy = NewEconomyService(e.ledger, e.market, e.paywall, e.events, e.clock, nil, DefaultEconomyConfig())
	e.emergency = NewEmergencyService(e.paywall, e.ledger, e.emergencyDB, e.consumption, e.clock, nil, domain.EmergencyPolicyBalanced)
	return e
}

func (e *testEngine) balance() int64 {
	snapshot, _ := e.store.Snapshot(context.Background())
	return snapshot.Balance
}

func flatRate(destination string, perMinute float64) domain.MarketRate {
	rate := domain.DefaultMarketRate(destination, time.Time{})
	rate.RatePerMinute = perMinute
	return rate
}

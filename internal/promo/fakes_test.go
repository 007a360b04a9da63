package promo

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"subpromo/internal/cache"
	"subpromo/internal/model"
	"subpromo/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-memory PromoCodeStore. Transactions are serialised and
// rolled back from a snapshot when fn fails.
type fakeStore struct {
	txMu sync.Mutex

	mu              sync.Mutex
	promos          map[uuid.UUID]model.PromoCode
	plans           map[uuid.UUID]model.Plan
	subs            map[uuid.UUID]model.Subscription
	redemptions     []model.SubscriptionPromoCode
	applicablePlans map[uuid.UUID]map[uuid.UUID]bool
	applicableUsers map[uuid.UUID]map[uuid.UUID]bool
	calls           map[string]int
	failOn          map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		promos:          make(map[uuid.UUID]model.PromoCode),
		plans:           make(map[uuid.UUID]model.Plan),
		subs:            make(map[uuid.UUID]model.Subscription),
		applicablePlans: make(map[uuid.UUID]map[uuid.UUID]bool),
		applicableUsers: make(map[uuid.UUID]map[uuid.UUID]bool),
		calls:           make(map[string]int),
		failOn:          make(map[string]error),
	}
}

func (s *fakeStore) addPromo(p model.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[p.ID] = p
}

func (s *fakeStore) addPlan(price string) model.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan := model.Plan{ID: uuid.New(), Name: "Plan", Price: decimal.RequireFromString(price), IsActive: true}
	s.plans[plan.ID] = plan
	return plan
}

func (s *fakeStore) addSubscription(userID, planID uuid.UUID) model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := model.Subscription{ID: uuid.New(), UserID: userID, PlanID: planID, Status: "active", CreatedAt: time.Now()}
	s.subs[sub.ID] = sub
	return sub
}

func (s *fakeStore) allowPlan(promoID, planID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applicablePlans[promoID] == nil {
		s.applicablePlans[promoID] = make(map[uuid.UUID]bool)
	}
	s.applicablePlans[promoID][planID] = true
}

func (s *fakeStore) allowUser(promoID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applicableUsers[promoID] == nil {
		s.applicableUsers[promoID] = make(map[uuid.UUID]bool)
	}
	s.applicableUsers[promoID][userID] = true
}

func (s *fakeStore) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeStore) usageCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[id].UsageCount
}

func (s *fakeStore) redemptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redemptions)
}

// record counts a call and returns the injected failure for it, if any.
// The caller must hold s.mu.
func (s *fakeStore) record(name string) error {
	s.calls[name]++
	return s.failOn[name]
}

func (s *fakeStore) FindByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByID"); err != nil {
		return nil, err
	}
	p, ok := s.promos[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) FindByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByCode"); err != nil {
		return nil, err
	}
	code = repository.NormaliseCode(code)
	for _, p := range s.promos {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) IsPlanApplicable(ctx context.Context, promoCodeID, planID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("IsPlanApplicable"); err != nil {
		return false, err
	}
	return s.applicablePlans[promoCodeID][planID], nil
}

func (s *fakeStore) IsUserApplicable(ctx context.Context, promoCodeID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("IsUserApplicable"); err != nil {
		return false, err
	}
	return s.applicableUsers[promoCodeID][userID], nil
}

func (s *fakeStore) CountUsageByUserAndCode(ctx context.Context, userID, promoCodeID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CountUsageByUserAndCode"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range s.redemptions {
		if r.PromoCodeID == promoCodeID && r.IsActive && s.subs[r.SubscriptionID].UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountPriorSubscriptions(ctx context.Context, userID, excludeSubscriptionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CountPriorSubscriptions"); err != nil {
		return 0, err
	}
	n := 0
	for id, sub := range s.subs {
		if sub.UserID == userID && id != excludeSubscriptionID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.PromoCodeTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.NewTransientError("failed to begin transaction", err)
	}

	s.mu.Lock()
	promos := make(map[uuid.UUID]model.PromoCode, len(s.promos))
	for k, v := range s.promos {
		promos[k] = v
	}
	redemptions := append([]model.SubscriptionPromoCode(nil), s.redemptions...)
	s.mu.Unlock()

	if err := fn(ctx, &fakeTx{fakeStore: s}); err != nil {
		s.mu.Lock()
		s.promos = promos
		s.redemptions = redemptions
		s.mu.Unlock()
		return err
	}
	return nil
}

// fakeTx runs queries against the store while its transaction lock is held.
type fakeTx struct {
	*fakeStore
}

func (t *fakeTx) LockByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("LockByID"); err != nil {
		return nil, err
	}
	p, ok := t.promos[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *fakeTx) FindSubscription(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("FindSubscription"); err != nil {
		return nil, err
	}
	sub, ok := t.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (t *fakeTx) FindPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("FindPlan"); err != nil {
		return nil, err
	}
	plan, ok := t.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (t *fakeTx) AtomicIncrementUsage(ctx context.Context, id uuid.UUID) (int, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("AtomicIncrementUsage"); err != nil {
		return 0, false, err
	}
	p, ok := t.promos[id]
	if !ok || !p.IsActive || !p.HasCapacity() {
		return 0, false, nil
	}
	p.UsageCount++
	t.promos[id] = p
	return p.UsageCount, true, nil
}

func (t *fakeTx) CreateRedemptionRecord(ctx context.Context, rec *model.SubscriptionPromoCode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("CreateRedemptionRecord"); err != nil {
		return err
	}
	for _, r := range t.redemptions {
		if r.SubscriptionID == rec.SubscriptionID && r.PromoCodeID == rec.PromoCodeID {
			return model.NewConflictError(model.ErrCodeDuplicateRedemption, "duplicate redemption", nil)
		}
	}
	t.redemptions = append(t.redemptions, *rec)
	return nil
}

func (t *fakeTx) UpsertPromoCode(ctx context.Context, def *model.PromoCodeDefinition) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("UpsertPromoCode"); err != nil {
		return false, err
	}
	_, exists := t.promos[def.ID]
	t.promos[def.ID] = def.PromoCode
	return !exists, nil
}

// fakePlans serves plans from the fake store.
type fakePlans struct {
	store *fakeStore
	err   error
}

func (p *fakePlans) GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.calls["GetPlan"]++
	plan, ok := p.store.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

// memCache is an in-memory cache.Cache that ignores TTL expiry.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	gets    int
	sets    int
	failing bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failing {
		return nil, &cache.Error{Op: "get", Key: key, Err: errors.New("connection refused")}
	}
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.failing {
		return &cache.Error{Op: "set", Key: key, Err: errors.New("connection refused")}
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

// DeleteByPattern matches keys with path.Match, which shares Redis's glob
// syntax for keys without slashes.
func (c *memCache) DeleteByPattern(ctx context.Context, pattern string, batchSize int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return 0, &cache.Error{Op: "scan", Key: pattern, Err: errors.New("connection refused")}
	}
	deleted := 0
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.data, key)
			delete(c.ttls, key)
			deleted++
		}
	}
	return deleted, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// mockInvalidator is a testify mock of Invalidator.
type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, ev cache.Event) (int, error) {
	args := m.Called(ctx, ev)
	return args.Int(0), args.Error(1)
}

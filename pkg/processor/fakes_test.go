package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/grouping"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/kafka"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/redis"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/resolver"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/rules"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCustomers struct {
	mu        sync.Mutex
	rows      map[string]models.Customer
	updates   int
	listCalls int
	updateErr map[string]error
}

func newFakeCustomers(customers ...models.Customer) *fakeCustomers {
	f := &fakeCustomers{rows: map[string]models.Customer{}, updateErr: map[string]error{}}
	for _, c := range customers {
		f.rows[c.GUID] = c.Clone()
	}
	return f
}

func (f *fakeCustomers) sortedGUIDs() []string {
	guids := make([]string, 0, len(f.rows))
	for guid := range f.rows {
		guids = append(guids, guid)
	}
	sort.Strings(guids)
	return guids
}

func (f *fakeCustomers) match(lookup resolver.Lookup) *models.Customer {
	for _, guid := range f.sortedGUIDs() {
		c := f.rows[guid]
		if lookup.EmailKey != "" && normalizers.EmailKey(c.Email) == lookup.EmailKey {
			out := c.Clone()
			return &out
		}
	}
	for _, guid := range f.sortedGUIDs() {
		c := f.rows[guid]
		if lookup.PhoneKey != "" && c.NormalizedPhone == lookup.PhoneKey {
			out := c.Clone()
			return &out
		}
	}
	return nil
}

func (f *fakeCustomers) Match(_ context.Context, lookup resolver.Lookup) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.match(lookup), nil
}

func (f *fakeCustomers) FindOrCreateWithLock(_ context.Context, lookup resolver.Lookup, seed models.Customer) (models.Customer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.match(lookup); existing != nil {
		return *existing, false, nil
	}
	f.rows[seed.GUID] = seed.Clone()
	return seed, true, nil
}

func (f *fakeCustomers) GetForUpdate(_ context.Context, guid string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[guid]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("customer %s not found", guid))
	}
	out := c.Clone()
	return &out, nil
}

func (f *fakeCustomers) Update(_ context.Context, customer models.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[customer.GUID]; err != nil {
		return err
	}
	f.rows[customer.GUID] = customer.Clone()
	f.updates++
	return nil
}

func (f *fakeCustomers) ListGUIDs(_ context.Context, after string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []string
	for _, guid := range f.sortedGUIDs() {
		if guid > after && len(out) < limit {
			out = append(out, guid)
		}
	}
	return out, nil
}

func (f *fakeCustomers) get(guid string) models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[guid]
}

func (f *fakeCustomers) all() []models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Customer, 0, len(f.rows))
	for _, guid := range f.sortedGUIDs() {
		out = append(out, f.rows[guid])
	}
	return out
}

type fakeAccounts struct {
	rows map[string][]models.CustomerAccount
}

func (f *fakeAccounts) EnsureEmail(_ context.Context, account models.CustomerAccount) (bool, error) {
	key := normalizers.EmailKey(account.Email)
	for _, existing := range f.rows[account.CustomerGUID] {
		if normalizers.EmailKey(existing.Email) == key {
			return false, nil
		}
	}
	account.IsMain = len(f.rows[account.CustomerGUID]) == 0
	f.rows[account.CustomerGUID] = append(f.rows[account.CustomerGUID], account)
	return true, nil
}

func (f *fakeAccounts) ListByCustomer(_ context.Context, guid string) ([]models.CustomerAccount, error) {
	return slices.Clone(f.rows[guid]), nil
}

type fakeOrders struct {
	rows map[string]models.Order
}

func (f *fakeOrders) Get(_ context.Context, id string) (*models.Order, error) {
	o, ok := f.rows[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("order %s not found", id))
	}
	return &o, nil
}

func (f *fakeOrders) AttachCustomer(_ context.Context, ids []string, guid string) (int, error) {
	n := 0
	for _, id := range ids {
		o, ok := f.rows[id]
		if !ok || o.CustomerGUID == guid {
			continue
		}
		o.CustomerGUID = guid
		f.rows[id] = o
		n++
	}
	return n, nil
}

type fakeMetrics map[string]*models.CustomerMetric

func (f fakeMetrics) Get(_ context.Context, guid string) (*models.CustomerMetric, error) {
	return f[guid], nil
}

type staticPolicy struct {
	policy models.IdentityPolicy
}

func (s *staticPolicy) IdentityPolicy(context.Context) (models.IdentityPolicy, error) {
	return s.policy, nil
}

type stubRules struct {
	rules []models.TagRule
	calls int
}

func (s *stubRules) ListActive(context.Context) ([]models.TagRule, error) {
	s.calls++
	return s.rules, nil
}

type stubSettings struct {
	settings models.ClassificationSettings
	calls    int
}

func (s *stubSettings) ClassificationSettings(context.Context) (models.ClassificationSettings, error) {
	s.calls++
	return s.settings, nil
}

// fakeTx replays fn on transient errors like database.RunInTx, without rollback.
type fakeTx struct {
	attempts int
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < 3; i++ {
		f.attempts++
		if err = fn(ctx); err == nil {
			return nil
		}
		if !database.IsTransient(err) {
			return err
		}
	}
	return errors.Join(database.ErrRetriesExhausted, err)
}

type fakeLocker struct {
	held bool
	keys []string
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	if f.held {
		return redis.ErrLockNotAcquired
	}
	f.keys = append(f.keys, key)
	return fn(ctx)
}

type fakeNotifier struct {
	reasons []string
}

func (f *fakeNotifier) Publish(_ context.Context, reason string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeEvents struct {
	events []*kafka.CustomerEvent
}

func (f *fakeEvents) PublishCustomerEvents(_ context.Context, events []*kafka.CustomerEvent) error {
	f.events = append(f.events, events...)
	return nil
}

type fakeGraph struct {
	projected []string
}

func (f *fakeGraph) Project(_ context.Context, customer models.Customer, _ []models.CustomerAccount) error {
	f.projected = append(f.projected, customer.GUID)
	return nil
}

type harness struct {
	customers  *fakeCustomers
	accounts   *fakeAccounts
	orders     *fakeOrders
	metricRows fakeMetrics
	policy     *staticPolicy
	tx         *fakeTx
	ruleSource *stubRules
	settings   *stubSettings
	locker     *fakeLocker
	notifier   *fakeNotifier
	events     *fakeEvents
	graph      *fakeGraph
	processor  *Processor
}

func newHarness(t *testing.T, customers ...models.Customer) *harness {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	h := &harness{
		customers:  newFakeCustomers(customers...),
		accounts:   &fakeAccounts{rows: map[string][]models.CustomerAccount{}},
		orders:     &fakeOrders{rows: map[string]models.Order{}},
		metricRows: fakeMetrics{},
		policy:     &staticPolicy{},
		tx:         &fakeTx{},
		ruleSource: &stubRules{},
		settings:   &stubSettings{settings: models.DefaultClassificationSettings()},
		locker:     &fakeLocker{},
		notifier:   &fakeNotifier{},
		events:     &fakeEvents{},
		graph:      &fakeGraph{},
	}

	h.processor = NewProcessor(Dependencies{
		Customers:  h.customers,
		Accounts:   h.accounts,
		Orders:     h.orders,
		Metrics:    h.metricRows,
		Policy:     h.policy,
		Tx:         h.tx,
		Engine:     rules.NewEngine(h.ruleSource, logger, rules.WithClock(func() time.Time { return testNow })),
		Classifier: grouping.NewClassifier(h.settings, logger),
		Locker:     h.locker,
		Notifier:   h.notifier,
		Events:     h.events,
		Graph:      h.graph,
	}, Config{}, logger)
	return h
}

func (h *harness) addOrders(orders ...models.Order) []models.Order {
	for _, o := range orders {
		h.orders.rows[o.ID] = o
	}
	return orders
}

func vipRule() models.TagRule {
	return models.TagRule{
		ID:        "r1",
		TagKey:    "big-spender",
		Label:     "Big spender",
		IsActive:  true,
		MatchType: models.MatchTypeAll,
		SetVIP:    true,
		Conditions: []models.Condition{
			{Field: "totalSpent", Operator: ">=", Value: float64(1000)},
		},
	}
}

package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	rules []models.TagRule
	err   error
	calls int
}

func (s *stubSource) ListActive(_ context.Context) ([]models.TagRule, error) {
	s.calls++
	return s.rules, s.err
}

func newTestEngine(rules ...models.TagRule) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := NewEngine(&stubSource{}, logger, WithClock(func() time.Time { return testNow }))
	e.Load(rules)
	return e
}

func timePtr(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	metrics := &models.CustomerMetric{
		OrdersCount:       12,
		TotalSpent:        25000,
		TotalSpentBase:    1000,
		AverageOrderValue: 2083.3,
		FirstOrderAt:      timePtr(testNow.AddDate(-2, 0, 0)),
		LastOrderAt:       timePtr(testNow.AddDate(0, 0, -10)),
	}
	customer := models.Customer{
		GUID:          "c-1",
		ShopID:        "shop-cz",
		Provider:      "shoptet",
		CustomerGroup: models.CustomerGroupRegistered,
		Data: map[string]any{
			"newsletter": "yes",
			"loyalty":    map[string]any{"tier": "Gold", "points": "340"},
		},
	}

	tests := []struct {
		name     string
		rules    []models.TagRule
		metrics  *models.CustomerMetric
		wantKeys []string
		wantVIP  bool
		present  bool
	}{
		{
			name:     "rule without conditions always matches",
			rules:    []models.TagRule{{ID: "r1", TagKey: "everyone", Label: "Everyone", IsActive: true}},
			metrics:  metrics,
			wantKeys: []string{"everyone"},
		},
		{
			name: "inactive rules are ignored",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "off", Label: "Off", IsActive: false, SetVIP: true},
			},
			metrics:  metrics,
			wantKeys: []string{},
		},
		{
			name: "all requires every condition",
			rules: []models.TagRule{{
				ID: "r1", TagKey: "loyal", Label: "Loyal", IsActive: true, MatchType: models.MatchTypeAll,
				Conditions: []models.Condition{
					{Field: "ordersCount", Operator: ">=", Value: 10},
					{Field: "totalSpent", Operator: ">", Value: 30000},
				},
			}},
			metrics:  metrics,
			wantKeys: []string{},
		},
		{
			name: "any requires one condition",
			rules: []models.TagRule{{
				ID: "r1", TagKey: "loyal", Label: "Loyal", IsActive: true, MatchType: "ANY",
				Conditions: []models.Condition{
					{Field: "ordersCount", Operator: ">=", Value: 10},
					{Field: "totalSpent", Operator: ">", Value: 30000},
				},
			}},
			metrics:  metrics,
			wantKeys: []string{"loyal"},
		},
		{
			name: "missing metrics never satisfy metric conditions",
			rules: []models.TagRule{{
				ID: "r1", TagKey: "new", Label: "New", IsActive: true,
				Conditions: []models.Condition{{Field: "ordersCount", Operator: "<", Value: 1}},
			}},
			wantKeys: []string{},
		},
		{
			name: "day counts",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "recent", Label: "Recent", IsActive: true,
					Conditions: []models.Condition{{Field: "daysSinceLastOrder", Operator: "<=", Value: 10}}},
				{ID: "r2", TagKey: "veteran", Label: "Veteran", IsActive: true,
					Conditions: []models.Condition{{Field: "daysSinceFirstOrder", Operator: ">", Value: 700}}},
			},
			metrics:  metrics,
			wantKeys: []string{"recent", "veteran"},
		},
		{
			name: "relative datetime",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "active", Label: "Active", IsActive: true,
					Conditions: []models.Condition{{Field: "lastOrderAt", Operator: "after", Value: "-30d"}}},
				{ID: "r2", TagKey: "lapsed", Label: "Lapsed", IsActive: true,
					Conditions: []models.Condition{{Field: "lastOrderAt", Operator: "before", Value: "-90d"}}},
			},
			metrics:  metrics,
			wantKeys: []string{"active"},
		},
		{
			name: "string catalog fields and extension paths",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "shoptet", Label: "Shoptet", IsActive: true,
					Conditions: []models.Condition{{Field: "provider", Operator: "in", Value: []any{"Shoptet", "Woo"}}}},
				{ID: "r2", TagKey: "gold", Label: "Gold", IsActive: true,
					Conditions: []models.Condition{{Field: "data.loyalty.tier", Operator: "=", Value: "gold"}}},
				{ID: "r3", TagKey: "points", Label: "Points", IsActive: true,
					Conditions: []models.Condition{{Field: "loyalty.points", Operator: ">", Value: 300, Type: models.FieldTypeNumber}}},
				{ID: "r4", TagKey: "subscribed", Label: "Subscribed", IsActive: true,
					Conditions: []models.Condition{{Field: "data.newsletter", Operator: "is_true", Type: models.FieldTypeBoolean}}},
				{ID: "r5", TagKey: "no-note", Label: "No note", IsActive: true,
					Conditions: []models.Condition{{Field: "data.note", Operator: "is_null"}}},
			},
			metrics:  metrics,
			wantKeys: []string{"gold", "no-note", "points", "shoptet", "subscribed"},
		},
		{
			name: "malformed conditions never match",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "bad-op", Label: "Bad op", IsActive: true,
					Conditions: []models.Condition{{Field: "ordersCount", Operator: "in", Value: 1}}},
				{ID: "r2", TagKey: "bad-value", Label: "Bad value", IsActive: true,
					Conditions: []models.Condition{{Field: "totalSpent", Operator: ">", Value: "lots"}}},
				{ID: "r3", TagKey: "bad-type", Label: "Bad type", IsActive: true,
					Conditions: []models.Condition{{Field: "provider", Operator: "=", Value: "x", Type: models.FieldTypeNumber}}},
				{ID: "r4", TagKey: "bad-date", Label: "Bad date", IsActive: true,
					Conditions: []models.Condition{{Field: "lastOrderAt", Operator: "before", Value: "someday"}}},
				{ID: "r5", TagKey: "bad-any", Label: "Bad any", IsActive: true, MatchType: models.MatchTypeAny,
					Conditions: []models.Condition{
						{Field: "ordersCount", Operator: ">", Value: nil},
						{Field: "ordersCount", Operator: ">", Value: 1},
					}},
			},
			metrics:  metrics,
			wantKeys: []string{"bad-any"},
		},
		{
			name: "vip rule matched",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "big-spender", Label: "Big spender", IsActive: true, SetVIP: true,
					Conditions: []models.Condition{{Field: "totalSpent", Operator: ">=", Value: 20000}}},
			},
			metrics:  metrics,
			wantKeys: []string{"big-spender"},
			wantVIP:  true,
			present:  true,
		},
		{
			name: "vip rule present but not matched",
			rules: []models.TagRule{
				{ID: "r1", TagKey: "big-spender", Label: "Big spender", IsActive: true, SetVIP: true,
					Conditions: []models.Condition{{Field: "totalSpent", Operator: ">=", Value: 50000}}},
			},
			metrics:  metrics,
			wantKeys: []string{},
			present:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.rules...)
			result := e.Evaluate(customer, tt.metrics)

			keys := make([]string, 0, len(result.AutoTags))
			for _, tag := range result.AutoTags {
				keys = append(keys, tag.Key)
			}
			assert.ElementsMatch(t, tt.wantKeys, keys)
			assert.Equal(t, tt.wantVIP, result.VIPMatched)
			assert.Equal(t, tt.present, result.VIPRulesPresent)
		})
	}
}

func TestEvaluateMetricThresholds(t *testing.T) {
	atLeastFive := models.TagRule{ID: "r1", TagKey: "regular", Label: "Regular", IsActive: true,
		Conditions: []models.Condition{{Field: "ordersCount", Operator: ">=", Value: 5}}}
	neverOrdered := models.TagRule{ID: "r2", TagKey: "no-orders", Label: "No orders", IsActive: true,
		Conditions: []models.Condition{{Field: "lastOrderAt", Operator: "is_null"}}}

	tests := []struct {
		name    string
		rule    models.TagRule
		metrics *models.CustomerMetric
		want    bool
	}{
		{name: "orders count at threshold", rule: atLeastFive, metrics: &models.CustomerMetric{OrdersCount: 5}, want: true},
		{name: "orders count below threshold", rule: atLeastFive, metrics: &models.CustomerMetric{OrdersCount: 4}, want: false},
		{name: "orders count without metrics", rule: atLeastFive, metrics: nil, want: false},
		{name: "no last order recorded", rule: neverOrdered, metrics: &models.CustomerMetric{OrdersCount: 4}, want: true},
		{name: "last order without metrics", rule: neverOrdered, metrics: nil, want: true},
		{name: "last order recorded", rule: neverOrdered, metrics: &models.CustomerMetric{OrdersCount: 4, LastOrderAt: timePtr(testNow)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.rule)

			result := e.Evaluate(models.Customer{GUID: "c-1"}, tt.metrics)

			if tt.want {
				require.Len(t, result.AutoTags, 1)
				assert.Equal(t, tt.rule.TagKey, result.AutoTags[0].Key)
			} else {
				assert.Empty(t, result.AutoTags)
			}
		})
	}
}

func TestEvaluateFirstRuleOwnsTagKey(t *testing.T) {
	e := newTestEngine(
		models.TagRule{ID: "low", TagKey: "loyal", Label: "Loyal (low)", Color: "#ccc", Priority: 1, IsActive: true},
		models.TagRule{ID: "high", TagKey: "LOYAL", Label: "Loyal", Color: "#f00", Priority: 10, IsActive: true},
		models.TagRule{ID: "vip", TagKey: "loyal", Label: "Loyal VIP", Priority: 0, IsActive: true, SetVIP: true},
	)

	result := e.Evaluate(models.Customer{}, nil)

	require.Len(t, result.AutoTags, 1)
	assert.Equal(t, models.AutoTag{Key: "loyal", Label: "Loyal", Color: "#f00", RuleID: "high"}, result.AutoTags[0])
	assert.True(t, result.VIPMatched, "a matching vip rule counts even when its tag key is taken")
}

func TestEvaluateOrder(t *testing.T) {
	e := newTestEngine(
		models.TagRule{ID: "3", TagKey: "c", Label: "charlie", Priority: 5, IsActive: true},
		models.TagRule{ID: "2", TagKey: "b", Label: "Bravo", Priority: 5, IsActive: true},
		models.TagRule{ID: "1", TagKey: "a", Label: "alpha", Priority: 1, IsActive: true},
		models.TagRule{ID: "4", TagKey: "", Label: "Zulu Team!", Priority: 9, IsActive: true},
	)

	result := e.Evaluate(models.Customer{}, nil)

	keys := []string{}
	for _, tag := range result.AutoTags {
		keys = append(keys, tag.Key)
	}
	assert.Equal(t, []string{"zulu-team", "b", "c", "a"}, keys)

	ids := []string{}
	for _, rule := range e.Rules() {
		ids = append(ids, rule.ID)
	}
	assert.Equal(t, []string{"4", "2", "3", "1"}, ids)
}

func TestEvaluateDoesNotMutateCustomer(t *testing.T) {
	e := newTestEngine(models.TagRule{ID: "1", TagKey: "x", Label: "X", IsActive: true,
		Conditions: []models.Condition{{Field: "data.a.b", Operator: "=", Value: "c"}}})
	customer := models.Customer{Data: map[string]any{"a": map[string]any{"b": "c"}}}
	before := customer.Clone()

	first := e.Evaluate(customer, nil)
	second := e.Evaluate(customer, nil)

	assert.Equal(t, before, customer)
	assert.Equal(t, first, second)
}

func TestRefresh(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	source := &stubSource{rules: []models.TagRule{{ID: "1", TagKey: "one", Label: "One", IsActive: true}}}
	e := NewEngine(source, logger, WithClock(func() time.Time { return testNow }))

	assert.Empty(t, e.Evaluate(models.Customer{}, nil).AutoTags)

	require.NoError(t, e.Refresh(context.Background()))
	assert.Len(t, e.Evaluate(models.Customer{}, nil).AutoTags, 1)

	source.rules = []models.TagRule{
		{ID: "2", TagKey: "two", Label: "Two", IsActive: true,
			Conditions: []models.Condition{{Field: "ordersCount", Operator: "between", Value: 1}}},
	}
	require.NoError(t, e.Refresh(context.Background()))
	assert.Empty(t, e.Evaluate(models.Customer{}, nil).AutoTags, "rules from before the refresh must be gone")

	source.err = errors.New("db down")
	assert.Error(t, e.Refresh(context.Background()))
	assert.Len(t, e.Rules(), 1, "a failed refresh keeps the previous set")
	assert.Equal(t, 3, source.calls)
}

func TestResolveType(t *testing.T) {
	tests := []struct {
		name    string
		cond    models.Condition
		want    models.FieldType
		field   Field
		wantErr bool
	}{
		{name: "catalog field", cond: models.Condition{Field: "TotalSpent"}, want: models.FieldTypeNumber, field: FieldTotalSpent},
		{name: "catalog with matching type", cond: models.Condition{Field: "isVip", Type: models.FieldTypeBoolean}, want: models.FieldTypeBoolean, field: FieldIsVIP},
		{name: "catalog with conflicting type", cond: models.Condition{Field: "lastOrderAt", Type: models.FieldTypeString}, wantErr: true},
		{name: "extension default", cond: models.Condition{Field: "data.segment"}, want: models.FieldTypeString},
		{name: "extension declared", cond: models.Condition{Field: "data.birthday", Type: models.FieldTypeDatetime}, want: models.FieldTypeDatetime},
		{name: "unknown type", cond: models.Condition{Field: "data.x", Type: "money"}, wantErr: true},
		{name: "blank field", cond: models.Condition{Field: " "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, typ, err := ResolveType(tt.cond)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ)
			assert.Equal(t, tt.field, field)
		})
	}
}

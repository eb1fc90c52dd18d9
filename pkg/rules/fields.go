package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

// Field identifies a catalog field. Conditions on any other key address the
// customer's extension data.
type Field int

const (
	FieldExtension Field = iota
	FieldOrdersCount
	FieldTotalSpent
	FieldTotalSpentBase
	FieldAverageOrderValue
	FieldDaysSinceFirstOrder
	FieldDaysSinceLastOrder
	FieldFirstOrderAt
	FieldLastOrderAt
	FieldProvider
	FieldShopID
	FieldCustomerGroup
	FieldIsVIP
)

// Subject is what a rule is evaluated against.
type Subject struct {
	Customer models.Customer
	Metrics  *models.CustomerMetric
	Now      time.Time
}

type fieldSpec struct {
	key     string
	typ     models.FieldType
	extract func(Subject) Value
}

var catalog = map[Field]fieldSpec{
	FieldOrdersCount:         {"ordersCount", models.FieldTypeNumber, metric(func(m *models.CustomerMetric) float64 { return float64(m.OrdersCount) })},
	FieldTotalSpent:          {"totalSpent", models.FieldTypeNumber, metric(func(m *models.CustomerMetric) float64 { return m.TotalSpent })},
	FieldTotalSpentBase:      {"totalSpentBase", models.FieldTypeNumber, metric(func(m *models.CustomerMetric) float64 { return m.TotalSpentBase })},
	FieldAverageOrderValue:   {"averageOrderValue", models.FieldTypeNumber, metric(func(m *models.CustomerMetric) float64 { return m.AverageOrderValue })},
	FieldDaysSinceFirstOrder: {"daysSinceFirstOrder", models.FieldTypeNumber, daysSince(func(m *models.CustomerMetric) *time.Time { return m.FirstOrderAt })},
	FieldDaysSinceLastOrder:  {"daysSinceLastOrder", models.FieldTypeNumber, daysSince(func(m *models.CustomerMetric) *time.Time { return m.LastOrderAt })},
	FieldFirstOrderAt:        {"firstOrderAt", models.FieldTypeDatetime, instant(func(m *models.CustomerMetric) *time.Time { return m.FirstOrderAt })},
	FieldLastOrderAt:         {"lastOrderAt", models.FieldTypeDatetime, instant(func(m *models.CustomerMetric) *time.Time { return m.LastOrderAt })},
	FieldProvider:            {"provider", models.FieldTypeString, customerString(func(c models.Customer) string { return c.Provider })},
	FieldShopID:              {"shopId", models.FieldTypeString, customerString(func(c models.Customer) string { return c.ShopID })},
	FieldCustomerGroup:       {"customerGroup", models.FieldTypeString, customerString(func(c models.Customer) string { return string(c.CustomerGroup) })},
	FieldIsVIP:               {"isVip", models.FieldTypeBoolean, func(s Subject) Value { return Bool(s.Customer.IsVIP) }},
}

var fieldsByKey = func() map[string]Field {
	out := make(map[string]Field, len(catalog))
	for field, spec := range catalog {
		out[strings.ToLower(spec.key)] = field
	}
	return out
}()

// LookupField resolves a catalog key case-insensitively.
func LookupField(key string) (Field, bool) {
	field, ok := fieldsByKey[strings.ToLower(strings.TrimSpace(key))]
	return field, ok
}

// CatalogKeys lists the catalog keys in sorted order.
func CatalogKeys() []string {
	keys := make([]string, 0, len(catalog))
	for _, spec := range catalog {
		keys = append(keys, spec.key)
	}
	sort.Strings(keys)
	return keys
}

func (f Field) String() string {
	if spec, ok := catalog[f]; ok {
		return spec.key
	}
	return "extension"
}

func metric(get func(*models.CustomerMetric) float64) func(Subject) Value {
	return func(s Subject) Value {
		if s.Metrics == nil {
			return Null()
		}
		return Number(get(s.Metrics))
	}
}

func daysSince(get func(*models.CustomerMetric) *time.Time) func(Subject) Value {
	return func(s Subject) Value {
		if s.Metrics == nil {
			return Null()
		}
		at := get(s.Metrics)
		if at == nil || at.IsZero() {
			return Null()
		}
		return Number(float64(int64(s.Now.Sub(*at) / (24 * time.Hour))))
	}
}

func instant(get func(*models.CustomerMetric) *time.Time) func(Subject) Value {
	return func(s Subject) Value {
		if s.Metrics == nil {
			return Null()
		}
		at := get(s.Metrics)
		if at == nil || at.IsZero() {
			return Null()
		}
		return DateTime(*at)
	}
}

func customerString(get func(models.Customer) string) func(Subject) Value {
	return func(s Subject) Value {
		v := strings.TrimSpace(get(s.Customer))
		if v == "" {
			return Null()
		}
		return String(v)
	}
}

// extensionValue walks a dot path through the customer's extension data. A
// leading "data." segment is optional.
func extensionValue(data map[string]any, path string) (any, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "data.")
	if path == "" {
		return nil, false
	}

	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

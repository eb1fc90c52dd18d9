package models

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// CustomerGroup is the canonical business group of a customer.
type CustomerGroup string

const (
	CustomerGroupRegistered CustomerGroup = "registered"
	CustomerGroupGuest      CustomerGroup = "guest"
	CustomerGroupCompany    CustomerGroup = "company"
)

// CustomerGroups lists the closed set in display order.
var CustomerGroups = []CustomerGroup{CustomerGroupRegistered, CustomerGroupGuest, CustomerGroupCompany}

func (g CustomerGroup) Valid() bool {
	return slices.Contains(CustomerGroups, g)
}

// ParseCustomerGroup maps a stored value onto the closed set, defaulting to registered.
func ParseCustomerGroup(s string) CustomerGroup {
	g := CustomerGroup(strings.ToLower(strings.TrimSpace(s)))
	if g.Valid() {
		return g
	}
	return CustomerGroupRegistered
}

// Address is a structured postal address. Keys are optional (street, city,
// zip, country, company, vatId, ...).
type Address map[string]any

func (a Address) String(key string) string {
	if a == nil {
		return ""
	}
	s, _ := a[key].(string)
	return strings.TrimSpace(s)
}

func (a Address) Clone() Address {
	if a == nil {
		return nil
	}
	return Address(cloneMap(a))
}

// AutoTag is a rule-produced tag stored on the customer.
type AutoTag struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Color  string `json:"color,omitempty"`
	RuleID string `json:"ruleId,omitempty"`
}

// Customer is the canonical identity for one real-world buyer.
type Customer struct {
	GUID              string         `json:"guid"`
	ShopID            string         `json:"shop_id"`
	Provider          string         `json:"provider,omitempty"`
	Email             string         `json:"email,omitempty"`
	Phone             string         `json:"phone,omitempty"`
	NormalizedPhone   string         `json:"normalized_phone,omitempty"`
	FullName          string         `json:"full_name,omitempty"`
	BillingAddress    Address        `json:"billing_address,omitempty"`
	DeliveryAddresses []Address      `json:"delivery_addresses,omitempty"`
	CustomerGroup     CustomerGroup  `json:"customer_group"`
	SourceGroup       string         `json:"source_group,omitempty"`
	IsVIP             bool           `json:"is_vip"`
	Tags              []string       `json:"tags"`
	AutoTags          []AutoTag      `json:"auto_tags"`
	Data              map[string]any `json:"data,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c Customer) Clone() Customer {
	out := c
	out.BillingAddress = c.BillingAddress.Clone()
	if c.DeliveryAddresses != nil {
		out.DeliveryAddresses = make([]Address, len(c.DeliveryAddresses))
		for i, a := range c.DeliveryAddresses {
			out.DeliveryAddresses[i] = a.Clone()
		}
	}
	out.Tags = slices.Clone(c.Tags)
	out.AutoTags = slices.Clone(c.AutoTags)
	if c.Data != nil {
		out.Data = cloneMap(c.Data)
	}
	return out
}

// CustomerAccount is a login or contact account owned by a customer.
type CustomerAccount struct {
	ID              string         `json:"id" db:"id"`
	CustomerGUID    string         `json:"customer_guid" db:"customer_guid"`
	ShopID          string         `json:"shop_id" db:"shop_id"`
	ExternalRef     string         `json:"external_ref,omitempty" db:"external_ref"`
	Email           string         `json:"email,omitempty" db:"email"`
	Phone           string         `json:"phone,omitempty" db:"phone"`
	IsMain          bool           `json:"is_main" db:"is_main"`
	IsAuthorized    bool           `json:"is_authorized" db:"is_authorized"`
	IsEmailVerified bool           `json:"is_email_verified" db:"is_email_verified"`
	Data            map[string]any `json:"data,omitempty" db:"-"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// CustomerMetric is the externally computed order aggregate for a customer.
type CustomerMetric struct {
	CustomerGUID      string     `json:"customer_guid" db:"customer_guid"`
	OrdersCount       int        `json:"orders_count" db:"orders_count"`
	TotalSpent        float64    `json:"total_spent" db:"total_spent"`
	TotalSpentBase    float64    `json:"total_spent_base" db:"total_spent_base"`
	AverageOrderValue float64    `json:"average_order_value" db:"average_order_value"`
	FirstOrderAt      *time.Time `json:"first_order_at,omitempty" db:"first_order_at"`
	LastOrderAt       *time.Time `json:"last_order_at,omitempty" db:"last_order_at"`
}

func cloneMap(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			out[k] = slices.Clone(t)
		}
	}
	return out
}

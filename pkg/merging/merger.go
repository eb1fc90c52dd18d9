// Package merging folds newly observed contact data into an existing customer
// without losing or degrading what is already known.
package merging

import (
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

// Extension data keys the merger writes from order-level company hints.
const (
	DataKeyCompanyName = "companyName"
	DataKeyVATID       = "vatId"
)

// Incoming is the contact data observed on one order (or re-derived from a customer).
type Incoming struct {
	ShopID            string
	Provider          string
	Email             string
	Phone             string
	FullName          string
	BillingAddress    models.Address
	DeliveryAddresses []models.Address
	SourceGroup       string
	Data              map[string]any
}

// IncomingFromOrder extracts the mergeable contact data of an order.
func IncomingFromOrder(order models.Order) Incoming {
	in := Incoming{
		ShopID:         order.ShopID,
		Provider:       order.Provider,
		Email:          strings.TrimSpace(order.CustomerEmail),
		Phone:          strings.TrimSpace(order.CustomerPhone),
		FullName:       strings.TrimSpace(order.CustomerName),
		BillingAddress: order.BillingAddress,
		SourceGroup:    strings.TrimSpace(order.CustomerGroup),
	}
	if !isEmptyAddress(order.DeliveryAddress) {
		in.DeliveryAddresses = []models.Address{order.DeliveryAddress}
	}

	data := map[string]any{}
	if name := strings.TrimSpace(order.CompanyName); name != "" {
		data[DataKeyCompanyName] = name
	}
	if vat := strings.TrimSpace(order.VATID); vat != "" {
		data[DataKeyVATID] = vat
	}
	if len(data) > 0 {
		in.Data = data
	}
	return in
}

// IncomingFromCustomer re-derives the incoming view of a stored customer.
func IncomingFromCustomer(c models.Customer) Incoming {
	return Incoming{
		ShopID:            c.ShopID,
		Provider:          c.Provider,
		Email:             c.Email,
		Phone:             c.Phone,
		FullName:          c.FullName,
		BillingAddress:    c.BillingAddress,
		DeliveryAddresses: c.DeliveryAddresses,
		SourceGroup:       c.SourceGroup,
		Data:              c.Data,
	}
}

// Merge returns existing enriched with incoming and whether anything changed.
// existing is never mutated.
func Merge(existing models.Customer, incoming Incoming) (models.Customer, bool) {
	out := existing.Clone()
	changed := false

	set := func(dst *string, value string) {
		if *dst != value {
			*dst = value
			changed = true
		}
	}

	if out.ShopID == "" && incoming.ShopID != "" {
		set(&out.ShopID, incoming.ShopID)
	}
	if out.Provider == "" && incoming.Provider != "" {
		set(&out.Provider, incoming.Provider)
	}
	if strings.TrimSpace(out.Email) == "" && strings.TrimSpace(incoming.Email) != "" {
		set(&out.Email, strings.TrimSpace(incoming.Email))
	}

	if name, ok := mergeScalar(out.FullName, incoming.FullName); ok {
		set(&out.FullName, name)
	}
	if phone, ok := mergeScalar(out.Phone, incoming.Phone); ok {
		set(&out.Phone, phone)
	}
	if key := normalizers.PhoneKey(out.Phone); key != "" {
		set(&out.NormalizedPhone, key)
	}

	if incoming.SourceGroup != "" {
		set(&out.SourceGroup, incoming.SourceGroup)
	}

	if billing, ok := mergeAddress(out.BillingAddress, incoming.BillingAddress); ok {
		out.BillingAddress = billing
		changed = true
	}

	for _, addr := range incoming.DeliveryAddresses {
		if isEmptyAddress(addr) || containsAddress(out.DeliveryAddresses, addr) {
			continue
		}
		out.DeliveryAddresses = append(out.DeliveryAddresses, addr.Clone())
		changed = true
	}

	for key, value := range incoming.Data {
		if isEmpty(value) {
			continue
		}
		if current, ok := out.Data[key]; ok && !isEmpty(current) {
			continue
		}
		if out.Data == nil {
			out.Data = map[string]any{}
		}
		out.Data[key] = value
		changed = true
	}

	return out, changed
}

// mergeScalar applies the scalar replacement rule: a non-empty incoming value
// replaces existing when existing is empty, incoming is longer, or they differ.
func mergeScalar(existing, incoming string) (string, bool) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing, false
	}
	if strings.TrimSpace(existing) == "" || utf8.RuneCountInString(incoming) > utf8.RuneCountInString(existing) || incoming != existing {
		return incoming, incoming != existing
	}
	return existing, false
}

// mergeAddress merges key by key: an incoming value is taken when the existing
// one is empty, or when both are strings and the incoming one is longer.
func mergeAddress(existing, incoming models.Address) (models.Address, bool) {
	if isEmptyAddress(incoming) {
		return existing, false
	}

	out := existing.Clone()
	changed := false
	for key, value := range incoming {
		if isEmpty(value) {
			continue
		}
		current, ok := out[key]
		if !ok || isEmpty(current) {
			if out == nil {
				out = models.Address{}
			}
			out[key] = value
			changed = true
			continue
		}
		cs, cok := current.(string)
		is, iok := value.(string)
		if cok && iok && utf8.RuneCountInString(strings.TrimSpace(is)) > utf8.RuneCountInString(strings.TrimSpace(cs)) {
			out[key] = is
			changed = true
		}
	}
	return out, changed
}

func containsAddress(list []models.Address, addr models.Address) bool {
	want := canonicalAddress(addr)
	for _, candidate := range list {
		if reflect.DeepEqual(canonicalAddress(candidate), want) {
			return true
		}
	}
	return false
}

// canonicalAddress drops empty values and trims strings so formatting noise
// does not defeat structural equality.
func canonicalAddress(addr models.Address) map[string]any {
	out := make(map[string]any, len(addr))
	for key, value := range addr {
		if isEmpty(value) {
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = strings.TrimSpace(s)
			continue
		}
		out[key] = value
	}
	return out
}

func isEmptyAddress(addr models.Address) bool {
	for _, value := range addr {
		if !isEmpty(value) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case models.Address:
		return len(val) == 0
	default:
		return false
	}
}

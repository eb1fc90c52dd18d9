package models

import "time"

// Order is the slice of a storefront order this service consumes. Empty
// strings mean the storefront did not provide the value.
type Order struct {
	ID     string `json:"id"`
	ShopID string `json:"shop_id"`
	// PreferredShopID is the shop an order is explicitly linked to, when it differs from ShopID.
	PreferredShopID    string         `json:"preferred_shop_id,omitempty"`
	Provider           string         `json:"provider,omitempty"`
	CustomerAccountRef string         `json:"customer_account_ref,omitempty"`
	CustomerEmail      string         `json:"customer_email,omitempty"`
	CustomerPhone      string         `json:"customer_phone,omitempty"`
	CustomerName       string         `json:"customer_name,omitempty"`
	BillingAddress     Address        `json:"billing_address,omitempty"`
	DeliveryAddress    Address        `json:"delivery_address,omitempty"`
	CustomerGroup      string         `json:"customer_group,omitempty"`
	CompanyName        string         `json:"company_name,omitempty"`
	VATID              string         `json:"vat_id,omitempty"`
	IsGuest            bool           `json:"is_guest"`
	ForceCompany       bool           `json:"force_company"`
	Data               map[string]any `json:"data,omitempty"`
	CustomerGUID       string         `json:"customer_guid,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// PreferredShop is the shop whose identities win lookup ties for this order.
func (o Order) PreferredShop() string {
	if o.PreferredShopID != "" {
		return o.PreferredShopID
	}
	return o.ShopID
}

// HasOwner reports whether the order was placed from a storefront account.
func (o Order) HasOwner() bool {
	return o.CustomerAccountRef != ""
}

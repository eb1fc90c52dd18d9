package merging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

func baseCustomer() models.Customer {
	return models.Customer{
		GUID:            "c-1",
		ShopID:          "1",
		Email:           "jan@shop.cz",
		Phone:           "+420777123456",
		NormalizedPhone: "+420777123456",
		FullName:        "Jan Novak",
		BillingAddress:  models.Address{"street": "Main 1", "city": "Praha"},
		DeliveryAddresses: []models.Address{
			{"street": "Main 1", "city": "Praha"},
		},
		CustomerGroup: models.CustomerGroupRegistered,
		Tags:          []string{"Registered"},
		Data:          map[string]any{"source": "shoptet"},
	}
}

func TestMerge_Scalars(t *testing.T) {
	tests := []struct {
		name        string
		existing    string
		incoming    string
		want        string
		wantChanged bool
	}{
		{name: "fills empty", existing: "", incoming: "Jan Novak", want: "Jan Novak", wantChanged: true},
		{name: "longer wins", existing: "Jan", incoming: "Jan Novak", want: "Jan Novak", wantChanged: true},
		{name: "different replaces", existing: "Jan Novak", incoming: "Petr Svoboda", want: "Petr Svoboda", wantChanged: true},
		{name: "empty never replaces", existing: "Jan Novak", incoming: "", want: "Jan Novak", wantChanged: false},
		{name: "whitespace never replaces", existing: "Jan Novak", incoming: "   ", want: "Jan Novak", wantChanged: false},
		{name: "same value is no-op", existing: "Jan Novak", incoming: "Jan Novak", want: "Jan Novak", wantChanged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := baseCustomer()
			existing.FullName = tt.existing

			merged, changed := Merge(existing, Incoming{FullName: tt.incoming})
			assert.Equal(t, tt.want, merged.FullName)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestMerge_PhoneUpdatesNormalizedPhone(t *testing.T) {
	existing := baseCustomer()
	existing.Phone = ""
	existing.NormalizedPhone = ""

	merged, changed := Merge(existing, Incoming{Phone: "+420 608 000 111"})
	require.True(t, changed)
	assert.Equal(t, "+420 608 000 111", merged.Phone)
	assert.Equal(t, "+420608000111", merged.NormalizedPhone)
}

func TestMerge_Address(t *testing.T) {
	tests := []struct {
		name        string
		existing    models.Address
		incoming    models.Address
		want        models.Address
		wantChanged bool
	}{
		{
			name:        "fills missing key",
			existing:    models.Address{"street": "Main 1"},
			incoming:    models.Address{"zip": "11000"},
			want:        models.Address{"street": "Main 1", "zip": "11000"},
			wantChanged: true,
		},
		{
			name:        "longer string wins",
			existing:    models.Address{"street": "Main 1"},
			incoming:    models.Address{"street": "Main Street 1"},
			want:        models.Address{"street": "Main Street 1"},
			wantChanged: true,
		},
		{
			name:        "shorter string does not replace",
			existing:    models.Address{"street": "Main Street 1"},
			incoming:    models.Address{"street": "Main 1"},
			want:        models.Address{"street": "Main Street 1"},
			wantChanged: false,
		},
		{
			name:        "empty incoming value ignored",
			existing:    models.Address{"street": "Main 1"},
			incoming:    models.Address{"street": ""},
			want:        models.Address{"street": "Main 1"},
			wantChanged: false,
		},
		{
			name:        "non-string existing kept",
			existing:    models.Address{"geo": map[string]any{"lat": 1.0}},
			incoming:    models.Address{"geo": "50.08,14.43"},
			want:        models.Address{"geo": map[string]any{"lat": 1.0}},
			wantChanged: false,
		},
		{
			name:        "nil existing",
			existing:    nil,
			incoming:    models.Address{"city": "Brno"},
			want:        models.Address{"city": "Brno"},
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := baseCustomer()
			existing.BillingAddress = tt.existing

			merged, changed := Merge(existing, Incoming{BillingAddress: tt.incoming})
			assert.Equal(t, tt.want, merged.BillingAddress)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestMerge_DeliveryAddressesDeduplicated(t *testing.T) {
	existing := baseCustomer()

	merged, changed := Merge(existing, Incoming{DeliveryAddresses: []models.Address{
		{"street": " Main 1", "city": "Praha", "note": ""},
		{"street": "Second 2", "city": "Brno"},
		{"street": "Second 2", "city": "Brno"},
		{},
	}})

	require.True(t, changed)
	assert.Equal(t, []models.Address{
		{"street": "Main 1", "city": "Praha"},
		{"street": "Second 2", "city": "Brno"},
	}, merged.DeliveryAddresses)
}

func TestMerge_DataFillsOnlyMissingKeys(t *testing.T) {
	existing := baseCustomer()

	merged, changed := Merge(existing, Incoming{Data: map[string]any{
		"source":           "other",
		DataKeyCompanyName: "ACME s.r.o.",
	}})

	require.True(t, changed)
	assert.Equal(t, "shoptet", merged.Data["source"])
	assert.Equal(t, "ACME s.r.o.", merged.Data[DataKeyCompanyName])
}

func TestMerge_DoesNotMutateExisting(t *testing.T) {
	existing := baseCustomer()

	_, changed := Merge(existing, Incoming{
		BillingAddress:    models.Address{"zip": "11000"},
		DeliveryAddresses: []models.Address{{"street": "Other 3"}},
		Data:              map[string]any{"x": 1},
	})

	require.True(t, changed)
	assert.Equal(t, baseCustomer(), existing)
}

func TestMerge_Idempotent(t *testing.T) {
	customers := []models.Customer{baseCustomer(), {GUID: "empty"}}
	withCompany := baseCustomer()
	withCompany.SourceGroup = "Firma"
	withCompany.Data[DataKeyVATID] = "CZ123"
	customers = append(customers, withCompany)

	for _, c := range customers {
		merged, changed := Merge(c, IncomingFromCustomer(c))
		assert.False(t, changed, c.GUID)
		assert.Equal(t, c, merged, c.GUID)
	}
}

func TestMerge_OrderIntoCustomer(t *testing.T) {
	existing := baseCustomer()
	order := models.Order{
		ID:              "o-1",
		ShopID:          "2",
		CustomerEmail:   "JAN@shop.cz",
		CustomerPhone:   "+420777123456",
		CustomerName:    "Jan Novak",
		DeliveryAddress: models.Address{"street": "Depot 9", "city": "Ostrava"},
		CustomerGroup:   "VIP zákazníci",
		CompanyName:     "ACME s.r.o.",
		VATID:           "CZ123",
	}

	merged, changed := Merge(existing, IncomingFromOrder(order))
	require.True(t, changed)
	assert.Equal(t, "1", merged.ShopID)
	assert.Equal(t, "jan@shop.cz", merged.Email)
	assert.Equal(t, "VIP zákazníci", merged.SourceGroup)
	assert.Len(t, merged.DeliveryAddresses, 2)
	assert.Equal(t, "ACME s.r.o.", merged.Data[DataKeyCompanyName])
	assert.Equal(t, "CZ123", merged.Data[DataKeyVATID])

	again, changedAgain := Merge(merged, IncomingFromOrder(order))
	assert.False(t, changedAgain)
	assert.Equal(t, merged, again)
}

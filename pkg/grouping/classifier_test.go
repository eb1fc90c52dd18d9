package grouping

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/merging"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

func testSettings() models.ClassificationSettings {
	return models.ClassificationSettings{
		GroupLabels: map[models.CustomerGroup]string{
			models.CustomerGroupRegistered: "Registrovaný",
			models.CustomerGroupGuest:      "Host",
			models.CustomerGroupCompany:    "Firma",
		},
		GroupAliases: map[models.CustomerGroup][]string{
			models.CustomerGroupCompany:    {"Velkoobchod", " B2B "},
			models.CustomerGroupRegistered: {"Stálý zákazník"},
			models.CustomerGroupGuest:      {"b2b"},
		},
		VIPLabel:               "VIP",
		ForbiddenTagSignatures: []string{"heureka", "  "},
	}
}

func TestClassify(t *testing.T) {
	c := NewStaticClassifier(testSettings())

	tests := []struct {
		name     string
		customer models.Customer
		cctx     ClassifyContext
		want     models.CustomerGroup
	}{
		{
			name: "alias wins over guest flag",
			cctx: ClassifyContext{SourceGroup: "  velkoOBCHOD ", IsGuest: true},
			want: models.CustomerGroupCompany,
		},
		{
			name:     "alias wins over sticky company",
			customer: models.Customer{CustomerGroup: models.CustomerGroupCompany},
			cctx:     ClassifyContext{SourceGroup: "Stálý zákazník"},
			want:     models.CustomerGroupRegistered,
		},
		{
			name: "alias listed twice resolves to first group in order",
			cctx: ClassifyContext{SourceGroup: "B2B"},
			want: models.CustomerGroupGuest,
		},
		{
			name:     "alias from stored source group",
			customer: models.Customer{SourceGroup: "Velkoobchod"},
			want:     models.CustomerGroupCompany,
		},
		{
			name:     "already company stays company",
			customer: models.Customer{CustomerGroup: models.CustomerGroupCompany},
			cctx:     ClassifyContext{IsGuest: true},
			want:     models.CustomerGroupCompany,
		},
		{
			name: "force company flag",
			cctx: ClassifyContext{ForceCompany: true, IsGuest: true},
			want: models.CustomerGroupCompany,
		},
		{
			name:     "company on billing address",
			customer: models.Customer{BillingAddress: models.Address{"company": "ACME"}},
			want:     models.CustomerGroupCompany,
		},
		{
			name:     "company on delivery address",
			customer: models.Customer{DeliveryAddresses: []models.Address{{"street": "x"}, {"company": "ACME"}}},
			want:     models.CustomerGroupCompany,
		},
		{
			name: "external company name",
			cctx: ClassifyContext{CompanyName: "ACME s.r.o."},
			want: models.CustomerGroupCompany,
		},
		{
			name: "vat id",
			cctx: ClassifyContext{VATID: "CZ12345678"},
			want: models.CustomerGroupCompany,
		},
		{
			name: "guest",
			cctx: ClassifyContext{IsGuest: true, SourceGroup: "unknown group"},
			want: models.CustomerGroupGuest,
		},
		{
			name:     "default registered",
			customer: models.Customer{CustomerGroup: models.CustomerGroupGuest},
			want:     models.CustomerGroupRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.customer, tt.cctx)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestContextFromOrders(t *testing.T) {
	t.Run("guest only when every order is an ownerless guest order", func(t *testing.T) {
		cctx := ContextFromOrders([]models.Order{
			{IsGuest: true, CustomerGroup: "Host"},
			{IsGuest: true, CustomerAccountRef: "acc-1"},
		})
		assert.False(t, cctx.IsGuest)
		assert.Equal(t, "Host", cctx.SourceGroup)
	})

	t.Run("collects company hints", func(t *testing.T) {
		cctx := ContextFromOrders([]models.Order{
			{IsGuest: true, VATID: "CZ1"},
			{IsGuest: true, ForceCompany: true, CompanyName: " ACME "},
		})
		assert.True(t, cctx.IsGuest)
		assert.True(t, cctx.ForceCompany)
		assert.Equal(t, "ACME", cctx.CompanyName)
		assert.Equal(t, "CZ1", cctx.VATID)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, ClassifyContext{}, ContextFromOrders(nil))
	})
}

func TestContextFromCustomer(t *testing.T) {
	cctx := ContextFromCustomer(models.Customer{
		CustomerGroup: models.CustomerGroupGuest,
		SourceGroup:   "Host",
		Data:          map[string]any{merging.DataKeyVATID: "CZ1"},
	})
	assert.Equal(t, ClassifyContext{SourceGroup: "Host", IsGuest: true, VATID: "CZ1"}, cctx)
}

type stubSettings struct {
	settings models.ClassificationSettings
	err      error
}

func (s *stubSettings) ClassificationSettings(context.Context) (models.ClassificationSettings, error) {
	return s.settings, s.err
}

func TestClassifier_Refresh(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	source := &stubSettings{settings: testSettings()}
	c := NewClassifier(source, logger)

	assert.Equal(t, "Registered", c.GroupLabel(models.CustomerGroupRegistered))

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, "Registrovaný", c.GroupLabel(models.CustomerGroupRegistered))
	assert.Equal(t, models.CustomerGroupCompany, c.Classify(models.Customer{}, ClassifyContext{SourceGroup: "velkoobchod"}))

	source.err = errors.New("db down")
	source.settings = models.ClassificationSettings{}
	require.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, "Registrovaný", c.GroupLabel(models.CustomerGroupRegistered), "previous settings stay active")
}

func TestClassifier_DefaultsFillMissingLabels(t *testing.T) {
	c := NewStaticClassifier(models.ClassificationSettings{
		GroupLabels: map[models.CustomerGroup]string{models.CustomerGroupGuest: "Návštěvník"},
	})

	settings := c.Settings()
	assert.Equal(t, "Návštěvník", settings.GroupLabels[models.CustomerGroupGuest])
	assert.Equal(t, "Registered", settings.GroupLabels[models.CustomerGroupRegistered])
	assert.Equal(t, "VIP", settings.VIPLabel)
}

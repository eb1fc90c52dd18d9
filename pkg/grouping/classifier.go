// Package grouping canonicalizes customers into business groups and builds
// their display tag lists.
package grouping

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/merging"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// SettingsSource loads the current classification settings.
type SettingsSource interface {
	ClassificationSettings(ctx context.Context) (models.ClassificationSettings, error)
}

// ClassifyContext carries the order-level hints used for classification.
type ClassifyContext struct {
	SourceGroup  string
	IsGuest      bool
	ForceCompany bool
	CompanyName  string
	VATID        string
}

// ContextFromOrders combines the hints of every order in a group. The group is
// guest only when every order is a guest order without an owning account.
func ContextFromOrders(orders []models.Order) ClassifyContext {
	var cctx ClassifyContext
	if len(orders) == 0 {
		return cctx
	}
	cctx.IsGuest = true
	for _, order := range orders {
		if g := strings.TrimSpace(order.CustomerGroup); g != "" {
			cctx.SourceGroup = g
		}
		if !order.IsGuest || order.HasOwner() {
			cctx.IsGuest = false
		}
		cctx.ForceCompany = cctx.ForceCompany || order.ForceCompany
		if name := strings.TrimSpace(order.CompanyName); name != "" {
			cctx.CompanyName = name
		}
		if vat := strings.TrimSpace(order.VATID); vat != "" {
			cctx.VATID = vat
		}
	}
	return cctx
}

// ContextFromCustomer rebuilds the hints from stored state, for recomputes
// that run without an order.
func ContextFromCustomer(c models.Customer) ClassifyContext {
	cctx := ClassifyContext{
		SourceGroup: c.SourceGroup,
		IsGuest:     c.CustomerGroup == models.CustomerGroupGuest,
	}
	if s, ok := c.Data[merging.DataKeyCompanyName].(string); ok {
		cctx.CompanyName = strings.TrimSpace(s)
	}
	if s, ok := c.Data[merging.DataKeyVATID].(string); ok {
		cctx.VATID = strings.TrimSpace(s)
	}
	return cctx
}

type compiledSettings struct {
	models.ClassificationSettings
	aliases   map[string]models.CustomerGroup
	forbidden []string
	standard  map[string]struct{}
}

func compile(settings models.ClassificationSettings) *compiledSettings {
	settings = settings.WithDefaults()
	compiled := &compiledSettings{
		ClassificationSettings: settings,
		aliases:                map[string]models.CustomerGroup{},
		standard:               map[string]struct{}{},
	}

	// Iterate the closed set in order so an alias listed under two groups resolves deterministically.
	for _, group := range models.CustomerGroups {
		for _, alias := range settings.GroupAliases[group] {
			key := normalizers.Fold(alias)
			if _, taken := compiled.aliases[key]; key != "" && !taken {
				compiled.aliases[key] = group
			}
		}
		compiled.standard[normalizers.Fold(settings.GroupLabels[group])] = struct{}{}
	}
	compiled.standard[normalizers.Fold(settings.VIPLabel)] = struct{}{}

	for _, signature := range settings.ForbiddenTagSignatures {
		if key := normalizers.Fold(signature); key != "" {
			compiled.forbidden = append(compiled.forbidden, key)
		}
	}
	return compiled
}

// Classifier owns the classification settings and applies them. Settings are
// swapped atomically by Refresh; readers never see a partial update.
type Classifier struct {
	source   SettingsSource
	logger   ectologger.Logger
	settings atomic.Pointer[compiledSettings]
}

// NewClassifier creates a classifier that starts with default settings until Refresh succeeds.
func NewClassifier(source SettingsSource, logger ectologger.Logger) *Classifier {
	c := &Classifier{source: source, logger: logger}
	c.settings.Store(compile(models.DefaultClassificationSettings()))
	return c
}

// NewStaticClassifier creates a classifier with fixed settings.
func NewStaticClassifier(settings models.ClassificationSettings) *Classifier {
	c := &Classifier{}
	c.settings.Store(compile(settings))
	return c
}

// Refresh reloads the settings from the source. On error the previous settings stay active.
func (c *Classifier) Refresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "grouping.Classifier.Refresh")
	defer span.End()

	if c.source == nil {
		return nil
	}
	settings, err := c.source.ClassificationSettings(ctx)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to refresh classification settings")
		return err
	}
	c.settings.Store(compile(settings))
	c.logger.WithContext(ctx).WithFields(map[string]any{
		"aliases":   len(settings.GroupAliases),
		"forbidden": len(settings.ForbiddenTagSignatures),
	}).Debug("Refreshed classification settings")
	return nil
}

// Settings returns the active settings with defaults applied.
func (c *Classifier) Settings() models.ClassificationSettings {
	return c.settings.Load().ClassificationSettings
}

// Classify resolves the canonical group of a customer. Precedence: configured
// alias of the source group, company (sticky once assigned), guest, registered.
func (c *Classifier) Classify(customer models.Customer, cctx ClassifyContext) models.CustomerGroup {
	settings := c.settings.Load()

	sourceGroup := cctx.SourceGroup
	if sourceGroup == "" {
		sourceGroup = customer.SourceGroup
	}
	if group, ok := settings.aliases[normalizers.Fold(sourceGroup)]; ok {
		return group
	}

	if customer.CustomerGroup == models.CustomerGroupCompany || IsCompany(customer, cctx) {
		return models.CustomerGroupCompany
	}
	if cctx.IsGuest {
		return models.CustomerGroupGuest
	}
	return models.CustomerGroupRegistered
}

// IsCompany applies the company heuristic.
func IsCompany(customer models.Customer, cctx ClassifyContext) bool {
	if cctx.ForceCompany {
		return true
	}
	if customer.BillingAddress.String("company") != "" {
		return true
	}
	for _, addr := range customer.DeliveryAddresses {
		if addr.String("company") != "" {
			return true
		}
	}
	return strings.TrimSpace(cctx.CompanyName) != "" || strings.TrimSpace(cctx.VATID) != ""
}

// GroupLabel returns the display label of a group.
func (c *Classifier) GroupLabel(group models.CustomerGroup) string {
	return c.settings.Load().GroupLabels[models.ParseCustomerGroup(string(group))]
}

// isForbidden matches the folded tag against the signatures exactly; a tag
// that merely contains a signature is kept.
func (s *compiledSettings) isForbidden(tag string) bool {
	return slices.Contains(s.forbidden, normalizers.Fold(tag))
}

func (s *compiledSettings) isStandard(tag string) bool {
	_, ok := s.standard[normalizers.Fold(tag)]
	return ok
}

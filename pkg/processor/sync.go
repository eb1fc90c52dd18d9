package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/grouping"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/merging"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/resolver"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/rules"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// written is a customer committed by the pipeline, queued for events and
// graph projection.
type written struct {
	customer models.Customer
	created  bool
}

type groupOutcome struct {
	stats    models.SyncStats
	customer models.Customer
	changed  bool
	created  bool
}

// SyncBatch groups orders by contact and processes each group in its own
// transaction. A failed group is counted and reported in the returned error;
// the other groups still commit. Orders without contact data and orders whose
// identity may not be created are counted, not reported.
func (p *Processor) SyncBatch(ctx context.Context, orders []models.Order) (models.SyncStats, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.SyncBatch")
	defer span.End()

	start := time.Now()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "SyncBatch",
		"orders": len(orders),
	})

	var stats models.SyncStats
	groups, skipped := resolver.Group(orders)
	stats.OrdersSkippedNoContact = len(skipped)

	res := resolver.NewResolver(p.Customers, p.Policy, p.logger)

	var (
		errs    []error
		commits []written
	)
	for _, group := range groups {
		outcome, err := p.syncGroup(ctx, res, group)
		if err != nil {
			res.Forget(group.Lookup)
			if errors.Is(err, resolver.ErrCreationNotAllowed) {
				stats.OrdersUnresolved += len(group.Orders)
				continue
			}

			stats.GroupsFailed++
			metrics.GroupsFailedTotal.Inc()
			if isTransient(err) {
				err = markTransient(err, "group "+group.Key)
			} else {
				err = fmt.Errorf("group %s: %w", group.Key, err)
			}
			log.WithError(err).WithField("key", group.Key).Error("Failed to sync order group")
			errs = append(errs, err)
			continue
		}

		stats.Add(outcome.stats)
		if outcome.changed || outcome.created {
			commits = append(commits, written{customer: outcome.customer, created: outcome.created})
		}
	}

	p.afterCommit(ctx, commits)

	status := "success"
	if len(errs) > 0 {
		status = "partial"
	}
	metrics.RecordSyncBatch(status, time.Since(start).Seconds())
	metrics.RecordSyncOrders("attached", stats.OrdersAttached)
	metrics.RecordSyncOrders("skipped_no_contact", stats.OrdersSkippedNoContact)
	metrics.RecordSyncOrders("unresolved", stats.OrdersUnresolved)

	log.WithFields(map[string]any{
		"groups":            len(groups),
		"orders_attached":   stats.OrdersAttached,
		"customers_created": stats.CustomersCreated,
		"customers_updated": stats.CustomersUpdated,
		"accounts_created":  stats.AccountsCreated,
		"skipped":           stats.OrdersSkippedNoContact,
		"unresolved":        stats.OrdersUnresolved,
		"failed":            stats.GroupsFailed,
	}).Info("Synced order batch")

	return stats, errors.Join(errs...)
}

// syncGroup resolves, enriches and writes one identity. Replays after a
// transient failure forget what the rolled back attempt memoized.
func (p *Processor) syncGroup(ctx context.Context, res *resolver.Resolver, group resolver.OrderGroup) (groupOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.syncGroup")
	defer span.End()

	var (
		out     groupOutcome
		attempt int
	)
	err := p.Tx.RunInTx(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			res.Forget(group.Lookup)
		}
		out = groupOutcome{}

		resolution, err := res.Resolve(ctx, group)
		if err != nil {
			return err
		}

		current, err := p.Customers.GetForUpdate(ctx, resolution.GUID)
		if err != nil {
			return err
		}
		metric, err := p.Metrics.Get(ctx, resolution.GUID)
		if err != nil {
			return err
		}

		incoming := make([]merging.Incoming, 0, len(group.Orders))
		for _, order := range group.Orders {
			incoming = append(incoming, merging.IncomingFromOrder(order))
		}
		updated, changed := p.enrich(*current, incoming, grouping.ContextFromOrders(group.Orders), metric)

		if changed {
			updated.UpdatedAt = time.Now().UTC()
			if err := p.Customers.Update(ctx, updated); err != nil {
				return err
			}
		}

		policy, err := res.Policy(ctx)
		if err != nil {
			return err
		}
		accounts, err := p.upkeepAccounts(ctx, updated, group.Orders, policy)
		if err != nil {
			return err
		}

		attached, err := p.Orders.AttachCustomer(ctx, orderIDs(group.Orders), updated.GUID)
		if err != nil {
			return err
		}
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"customer_guid": updated.GUID,
			"orders":        len(group.Orders),
			"relinked":      attached,
		}).Debug("Attached orders to customer")

		out.customer = updated
		out.changed = changed
		out.created = resolution.Created
		out.stats.OrdersAttached = len(group.Orders)
		out.stats.AccountsCreated = accounts
		switch {
		case resolution.Created:
			out.stats.CustomersCreated = 1
		case changed:
			out.stats.CustomersUpdated = 1
		}
		return nil
	})
	if err == nil {
		switch {
		case out.created:
			metrics.RecordCustomerWrite("create")
		case out.changed:
			metrics.RecordCustomerWrite("update")
		}
	}
	return out, err
}

// ResyncOrder re-runs merge, classification and rules for the identity an
// order is linked to, writing only when something changed. An order without
// an identity goes through a one-order batch instead.
func (p *Processor) ResyncOrder(ctx context.Context, orderID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ResyncOrder")
	defer span.End()

	order, err := p.Orders.Get(ctx, orderID)
	if err != nil {
		return false, markTransient(err, "order "+orderID)
	}

	if order.CustomerGUID == "" {
		stats, err := p.SyncBatch(ctx, []models.Order{*order})
		if err != nil {
			return false, err
		}
		return stats.CustomersCreated+stats.CustomersUpdated > 0, nil
	}

	res := resolver.NewResolver(p.Customers, p.Policy, p.logger)
	var (
		updated models.Customer
		changed bool
	)
	err = p.Tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := p.Customers.GetForUpdate(ctx, order.CustomerGUID)
		if err != nil {
			return err
		}
		metric, err := p.Metrics.Get(ctx, current.GUID)
		if err != nil {
			return err
		}

		orders := []models.Order{*order}
		updated, changed = p.enrich(*current, []merging.Incoming{merging.IncomingFromOrder(*order)}, grouping.ContextFromOrders(orders), metric)
		if changed {
			updated.UpdatedAt = time.Now().UTC()
			if err := p.Customers.Update(ctx, updated); err != nil {
				return err
			}
		}

		policy, err := res.Policy(ctx)
		if err != nil {
			return err
		}
		_, err = p.upkeepAccounts(ctx, updated, orders, policy)
		return err
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("order_id", orderID).Error("Failed to resync order")
		return false, markTransient(err, "order "+orderID)
	}

	if changed {
		metrics.RecordCustomerWrite("update")
		p.afterCommit(ctx, []written{{customer: updated}})
	}
	return changed, nil
}

// enrich merges incoming data, reclassifies, re-evaluates the rules and
// rebuilds the tag list. It reports whether the result differs from current.
func (p *Processor) enrich(current models.Customer, incoming []merging.Incoming, cctx grouping.ClassifyContext, metric *models.CustomerMetric) (models.Customer, bool) {
	next := current
	changed := false
	for _, in := range incoming {
		var merged bool
		next, merged = merging.Merge(next, in)
		changed = changed || merged
	}
	next = next.Clone()

	next.CustomerGroup = p.Classifier.Classify(next, cctx)
	result := p.Engine.Evaluate(next, metric)
	next.IsVIP = applyVIP(next.IsVIP, result)

	autoTags := result.AutoTags
	if autoTags == nil {
		autoTags = []models.AutoTag{}
	}
	custom := p.Classifier.CustomTags(current)
	next.AutoTags = autoTags
	next.Tags = p.Classifier.BuildTagList(next.CustomerGroup, next.IsVIP, autoTags, custom)

	changed = changed ||
		next.CustomerGroup != current.CustomerGroup ||
		next.IsVIP != current.IsVIP ||
		!slices.Equal(next.AutoTags, current.AutoTags) ||
		!slices.Equal(next.Tags, current.Tags)
	return next, changed
}

// applyVIP sets the flag when a VIP rule matched and clears it only when VIP
// rules exist and none matched. Without VIP rules a stored flag is kept.
func applyVIP(current bool, result rules.Result) bool {
	if result.VIPMatched {
		return true
	}
	if result.VIPRulesPresent {
		return false
	}
	return current
}

// upkeepAccounts ensures one account per normalized email seen on the orders
// when the order has an owning account or guest accounts are auto-registered.
func (p *Processor) upkeepAccounts(ctx context.Context, customer models.Customer, orders []models.Order, policy models.IdentityPolicy) (int, error) {
	created := 0
	seen := map[string]struct{}{}
	for _, order := range orders {
		key, ok := normalizers.NormalizeEmailKey(order.CustomerEmail)
		if !ok {
			continue
		}
		if !order.HasOwner() && !policy.AutoRegisterGuestAccounts {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		isNew, err := p.Accounts.EnsureEmail(ctx, models.CustomerAccount{
			CustomerGUID: customer.GUID,
			ShopID:       order.ShopID,
			ExternalRef:  order.CustomerAccountRef,
			Email:        strings.TrimSpace(order.CustomerEmail),
			Phone:        strings.TrimSpace(order.CustomerPhone),
			IsAuthorized: order.HasOwner(),
		})
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	if created > 0 {
		metrics.AccountsCreatedTotal.Add(float64(created))
	}
	return created, nil
}

func orderIDs(orders []models.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	return ids
}

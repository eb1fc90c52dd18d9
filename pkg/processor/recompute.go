package processor

import (
	"context"
	"errors"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/grouping"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/redis"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// RecomputeAll re-classifies and re-evaluates the rules for every customer.
// Only one worker runs it at a time: when the recompute lock is held elsewhere
// the run is skipped, not queued.
func (p *Processor) RecomputeAll(ctx context.Context) (models.RecomputeStats, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RecomputeAll")
	defer span.End()

	log := p.logger.WithContext(ctx).WithField("method", "RecomputeAll")
	start := time.Now()

	var stats models.RecomputeStats
	run := func(ctx context.Context) error {
		var err error
		stats, err = p.recomputeAll(ctx)
		return err
	}

	var err error
	if p.Locker == nil {
		err = run(ctx)
	} else {
		err = p.Locker.WithLock(ctx, p.config.RecomputeLockKey, p.config.RecomputeLockTTL, run)
	}

	if errors.Is(err, redis.ErrLockNotAcquired) {
		log.Info("Recompute already running on another worker, skipping")
		metrics.RecordRecompute("skipped", 0)
		return models.RecomputeStats{Skipped: true}, nil
	}
	if err != nil {
		log.WithError(err).Error("Recompute failed")
		metrics.RecordRecompute("failed", time.Since(start).Seconds())
		return stats, err
	}

	metrics.RecordRecompute("success", time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"scanned": stats.Scanned,
		"updated": stats.Updated,
		"failed":  stats.Failed,
	}).Info("Recompute finished")
	return stats, nil
}

func (p *Processor) recomputeAll(ctx context.Context) (models.RecomputeStats, error) {
	var stats models.RecomputeStats

	// pick up rule and settings edits that were not broadcast
	if err := p.refresh(ctx); err != nil {
		return stats, err
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		guids, err := p.Customers.ListGUIDs(ctx, after, p.config.RecomputePageSize)
		if err != nil {
			return stats, err
		}
		if len(guids) == 0 {
			return stats, nil
		}

		var commits []written
		for _, guid := range guids {
			stats.Scanned++
			customer, changed, err := p.recomputeCustomer(ctx, guid)
			if err != nil {
				stats.Failed++
				p.logger.WithContext(ctx).WithError(err).WithField("customer_guid", guid).Warn("Failed to recompute customer")
				continue
			}
			if changed {
				stats.Updated++
				metrics.RecordCustomerWrite("recompute")
				commits = append(commits, written{customer: customer})
			}
		}
		p.afterCommit(ctx, commits)

		after = guids[len(guids)-1]
		if len(guids) < p.config.RecomputePageSize {
			return stats, nil
		}
	}
}

func (p *Processor) recomputeCustomer(ctx context.Context, guid string) (models.Customer, bool, error) {
	var (
		updated models.Customer
		changed bool
	)
	err := p.Tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := p.Customers.GetForUpdate(ctx, guid)
		if err != nil {
			return err
		}
		metric, err := p.Metrics.Get(ctx, guid)
		if err != nil {
			return err
		}

		updated, changed = p.enrich(*current, nil, grouping.ContextFromCustomer(*current), metric)
		if !changed {
			return nil
		}
		updated.UpdatedAt = time.Now().UTC()
		return p.Customers.Update(ctx, updated)
	})
	return updated, changed, err
}

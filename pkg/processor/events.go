package processor

import (
	"context"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/kafka"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/redis"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// RulesChanged reloads the rule set and classification settings on this
// worker and announces the change to the others.
func (p *Processor) RulesChanged(ctx context.Context, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RulesChanged")
	defer span.End()

	if err := p.refresh(ctx); err != nil {
		return err
	}
	if p.Notifier == nil {
		return nil
	}
	if err := p.Notifier.Publish(ctx, reason); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to announce rules change")
		return err
	}
	return nil
}

// HandleRulesChanged refreshes this worker when another one announced a change.
func (p *Processor) HandleRulesChanged(ctx context.Context, event redis.RulesChangedEvent) error {
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"source": event.Source,
		"reason": event.Reason,
	}).Info("Rules changed on another worker, refreshing")
	return p.refresh(ctx)
}

// Refresh reloads the rule set and classification settings.
func (p *Processor) Refresh(ctx context.Context) error {
	return p.refresh(ctx)
}

func (p *Processor) refresh(ctx context.Context) error {
	if err := p.Engine.Refresh(ctx); err != nil {
		metrics.RecordRuleRefresh("failed", 0)
		return err
	}
	if err := p.Classifier.Refresh(ctx); err != nil {
		metrics.RecordRuleRefresh("failed", 0)
		return err
	}
	metrics.RecordRuleRefresh("success", len(p.Engine.Rules()))
	return nil
}

// afterCommit publishes events and graph projections for committed
// customers. Both are best effort: failures are logged, never returned.
func (p *Processor) afterCommit(ctx context.Context, commits []written) {
	if len(commits) == 0 {
		return
	}

	if p.Events != nil {
		events := make([]*kafka.CustomerEvent, 0, len(commits))
		for _, c := range commits {
			event, err := kafka.NewCustomerEvent(c.customer, c.created)
			if err != nil {
				p.logger.WithContext(ctx).WithError(err).WithField("customer_guid", c.customer.GUID).Warn("Failed to encode customer event")
				continue
			}
			events = append(events, event)
		}
		if err := p.Events.PublishCustomerEvents(ctx, events); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to publish customer events")
		}
	}

	if p.Graph != nil {
		for _, c := range commits {
			accounts, err := p.Accounts.ListByCustomer(ctx, c.customer.GUID)
			if err != nil {
				p.logger.WithContext(ctx).WithError(err).WithField("customer_guid", c.customer.GUID).Warn("Failed to load accounts for graph projection")
				continue
			}
			if err := p.Graph.Project(ctx, c.customer, accounts); err != nil {
				p.logger.WithContext(ctx).WithError(err).WithField("customer_guid", c.customer.GUID).Warn("Failed to project customer")
			}
		}
	}
}

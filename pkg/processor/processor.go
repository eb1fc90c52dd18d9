// Package processor drives the customer pipeline: orders are grouped by
// contact, resolved to an identity, merged into it, classified and tagged,
// and the identity is written back inside one locked transaction per group.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/grouping"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/kafka"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/resolver"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/rules"
)

// ErrTransient marks a group that failed on lock contention after every
// retry. Replaying the same orders later is safe.
var ErrTransient = errors.New("transient sync failure")

// CustomerStore is the identity persistence the pipeline needs.
type CustomerStore interface {
	resolver.Store
	GetForUpdate(ctx context.Context, guid string) (*models.Customer, error)
	Update(ctx context.Context, customer models.Customer) error
	ListGUIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// AccountStore keeps the contact accounts of a customer.
type AccountStore interface {
	EnsureEmail(ctx context.Context, account models.CustomerAccount) (bool, error)
	ListByCustomer(ctx context.Context, customerGUID string) ([]models.CustomerAccount, error)
}

// OrderStore reads orders and links them to their identity.
type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	AttachCustomer(ctx context.Context, orderIDs []string, customerGUID string) (int, error)
}

// MetricStore reads the externally computed customer metrics.
type MetricStore interface {
	Get(ctx context.Context, customerGUID string) (*models.CustomerMetric, error)
}

// Transactor runs fn in a transaction, replaying it on transient conflicts.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker runs fn while holding a cluster-wide lock, failing fast when the
// lock is held elsewhere.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Notifier announces rule and settings changes to the other workers.
type Notifier interface {
	Publish(ctx context.Context, reason string) error
}

// EventPublisher emits customer change events.
type EventPublisher interface {
	PublishCustomerEvents(ctx context.Context, events []*kafka.CustomerEvent) error
}

// Projector mirrors customers into the identity graph.
type Projector interface {
	Project(ctx context.Context, customer models.Customer, accounts []models.CustomerAccount) error
}

// Config tunes the recompute run
type Config struct {
	RecomputePageSize int
	RecomputeLockKey  string
	RecomputeLockTTL  time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		RecomputePageSize: 500,
		RecomputeLockKey:  "customers:recompute",
		RecomputeLockTTL:  5 * time.Minute,
	}
}

// Dependencies groups the collaborators of a Processor. Locker, Notifier,
// Events and Graph are optional.
type Dependencies struct {
	Customers  CustomerStore
	Accounts   AccountStore
	Orders     OrderStore
	Metrics    MetricStore
	Policy     resolver.PolicySource
	Tx         Transactor
	Engine     *rules.Engine
	Classifier *grouping.Classifier
	Locker     Locker
	Notifier   Notifier
	Events     EventPublisher
	Graph      Projector
}

// Processor is safe for concurrent use; every batch gets its own resolver.
type Processor struct {
	Dependencies
	config Config
	logger ectologger.Logger
}

// NewProcessor creates a new processor
func NewProcessor(deps Dependencies, config Config, logger ectologger.Logger) *Processor {
	defaults := DefaultConfig()
	if config.RecomputePageSize <= 0 {
		config.RecomputePageSize = defaults.RecomputePageSize
	}
	if config.RecomputeLockKey == "" {
		config.RecomputeLockKey = defaults.RecomputeLockKey
	}
	if config.RecomputeLockTTL <= 0 {
		config.RecomputeLockTTL = defaults.RecomputeLockTTL
	}

	return &Processor{
		Dependencies: deps,
		config:       config,
		logger:       logger,
	}
}

// HandleOrderMessage is the Kafka handler for the order topic. Only transient
// failures are returned, so the message stays uncommitted and is redelivered;
// other group failures are logged and the message is committed.
func (p *Processor) HandleOrderMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	switch msg.Event.Type {
	case kafka.EventOrderResync:
		_, err := p.ResyncOrder(ctx, msg.Event.OrderID)
		return retryable(err)
	default:
		_, err := p.SyncBatch(ctx, msg.BatchOrders())
		return retryable(err)
	}
}

func isTransient(err error) bool {
	return database.IsTransient(err) || errors.Is(err, database.ErrRetriesExhausted)
}

// markTransient tags lock contention and exhausted retries with ErrTransient.
// Any other error is returned unchanged.
func markTransient(err error, scope string) error {
	if isTransient(err) {
		return fmt.Errorf("%w: %s: %w", ErrTransient, scope, err)
	}
	return err
}

func retryable(err error) error {
	if err != nil && errors.Is(err, ErrTransient) {
		return err
	}
	return nil
}

package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/resolver"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// Repository handles customer identity persistence. Every method runs on the
// transaction carried by ctx when there is one.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	retry  database.RetryConfig
}

// NewRepository creates a new customer repository
func NewRepository(db database.DB, logger ectologger.Logger, retry database.RetryConfig) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		retry:  retry,
	}
}

// Match finds the identity for a lookup: email first (customer email or any
// account email), then normalized phone. Ties prefer the lookup's shop, then
// the oldest identity. Returns nil when nothing matches.
func (r *Repository) Match(ctx context.Context, lookup resolver.Lookup) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Match")
	defer span.End()

	if lookup.EmailKey != "" {
		accounts := sqlbuilder.PostgreSQL.NewSelectBuilder()
		accounts.Select("customer_guid").From(accountTable).Where(accounts.Equal("email_normalized", lookup.EmailKey))

		sb := customerStruct.SelectFrom(customerTable)
		sb.Where(sb.Or(
			sb.Equal("email_normalized", lookup.EmailKey),
			sb.In("guid", accounts),
		))
		found, err := r.first(ctx, sb, lookup.PreferredShop)
		if err != nil || found != nil {
			return found, err
		}
	}

	if lookup.PhoneKey != "" {
		sb := customerStruct.SelectFrom(customerTable)
		sb.Where(sb.Equal("normalized_phone", lookup.PhoneKey))
		return r.first(ctx, sb, lookup.PreferredShop)
	}
	return nil, nil
}

func (r *Repository) first(ctx context.Context, sb *database.SelectBuilder, preferredShop string) (*models.Customer, error) {
	sb.OrderBy(fmt.Sprintf("(shop_id = %s) DESC", sb.Var(preferredShop)), "created_at ASC", "guid ASC")
	sb.Limit(1)

	query, args := sb.Build()
	var row CustomerRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to match customer")
		return nil, database.QueryError(err, "failed to match customer")
	}

	customer := ToCustomer(&row)
	return &customer, nil
}

// FindOrCreateWithLock takes a transaction-scoped advisory lock on every
// contact key of the lookup, re-runs the match and inserts seed only when
// there is still no match. Concurrent creators sharing an email or a phone
// serialize on the lock and the loser finds the winner's row. Keys are locked
// in ascending order.
func (r *Repository) FindOrCreateWithLock(ctx context.Context, lookup resolver.Lookup, seed models.Customer) (models.Customer, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.FindOrCreateWithLock")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "FindOrCreateWithLock",
		"key":    lookup.Key(),
	})

	var (
		customer models.Customer
		created  bool
	)
	err := database.RunInTx(ctx, r.db, r.retry, func(ctx context.Context) error {
		q := database.Conn(ctx, r.db)
		for _, key := range lookup.LockKeys() {
			if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
				log.WithError(err).WithField("lock_key", key).Error("Failed to acquire identity lock")
				return database.QueryError(err, "failed to acquire identity lock")
			}
		}

		existing, err := r.Match(ctx, lookup)
		if err != nil {
			return err
		}
		if existing != nil {
			customer, created = *existing, false
			return nil
		}

		now := time.Now().UTC()
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = now
		}
		seed.UpdatedAt = seed.CreatedAt
		if seed.CustomerGroup == "" {
			seed.CustomerGroup = models.CustomerGroupRegistered
		}

		ib := customerStruct.InsertInto(customerTable, FromCustomer(seed))
		query, args := ib.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to create customer")
			return database.QueryError(err, "failed to create customer")
		}
		customer, created = seed, true
		return nil
	})
	if err != nil {
		return models.Customer{}, false, err
	}

	if created {
		log.WithFields(map[string]any{"customer_guid": customer.GUID}).Info("Created customer")
	}
	return customer, created, nil
}

// GetForUpdate retrieves a customer and holds its row lock until the
// surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, guid string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.GetForUpdate")
	defer span.End()

	sb := customerStruct.SelectFrom(customerTable)
	sb.Where(sb.Equal("guid", guid))
	sb.ForUpdate()

	query, args := sb.Build()
	var row CustomerRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("customer %s not found", guid))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get customer")
		return nil, database.QueryError(err, "failed to get customer")
	}

	customer := ToCustomer(&row)
	return &customer, nil
}

// Update writes every mutable column of a customer. The guid and creation
// time never change.
func (r *Repository) Update(ctx context.Context, customer models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.Update")
	defer span.End()

	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	row := FromCustomer(customer)

	ub := database.NewUpdateBuilder()
	ub.Update(customerTable)
	ub.Set(
		ub.Assign("shop_id", row.ShopID),
		ub.Assign("provider", row.Provider),
		ub.Assign("email", row.Email),
		ub.Assign("email_normalized", row.EmailNormalized),
		ub.Assign("phone", row.Phone),
		ub.Assign("normalized_phone", row.NormalizedPhone),
		ub.Assign("full_name", row.FullName),
		ub.Assign("billing_address", row.BillingAddress),
		ub.Assign("delivery_addresses", row.DeliveryAddresses),
		ub.Assign("customer_group", row.CustomerGroup),
		ub.Assign("source_group", row.SourceGroup),
		ub.Assign("is_vip", row.IsVIP),
		ub.Assign("tags", row.Tags),
		ub.Assign("auto_tags", row.AutoTags),
		ub.Assign("data", row.Data),
		ub.Assign("updated_at", row.UpdatedAt),
	)
	ub.Where(ub.Equal("guid", customer.GUID))

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("customer_guid", customer.GUID).Error("Failed to update customer")
		return database.QueryError(err, "failed to update customer")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("customer %s not found", customer.GUID))
	}
	return nil
}

// ListGUIDs pages through every customer guid in ascending order, starting
// after the given guid ("" for the first page).
func (r *Repository) ListGUIDs(ctx context.Context, after string, limit int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "customer.Repository.ListGUIDs")
	defer span.End()

	if limit < 1 {
		limit = 500
	}

	sb := database.NewSelectBuilder()
	sb.Select("guid")
	sb.From(customerTable)
	if after != "" {
		sb.Where(sb.GreaterThan("guid", after))
	}
	sb.OrderBy("guid ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	guids := []string{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &guids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list customer guids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list customer guids")
	}
	return guids, nil
}

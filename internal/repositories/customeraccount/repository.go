package customeraccount

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// Repository handles customer account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new customer account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByCustomer returns the accounts of a customer, main account first.
func (r *Repository) ListByCustomer(ctx context.Context, customerGUID string) ([]models.CustomerAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "customeraccount.Repository.ListByCustomer")
	defer span.End()

	sb := accountStruct.SelectFrom(accountTable)
	sb.Where(sb.Equal("customer_guid", customerGUID))
	sb.OrderBy("is_main DESC", "created_at ASC")

	query, args := sb.Build()
	var rows []AccountRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list customer accounts")
		return nil, database.QueryError(err, "failed to list customer accounts")
	}

	accounts := make([]models.CustomerAccount, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, ToAccount(&rows[i]))
	}
	return accounts, nil
}

// EnsureEmail makes sure the customer has exactly one account with the
// account's normalized email. A new account becomes the main account when the
// customer has none yet; an existing one keeps its values and only fills in
// what was missing, touching updated_at only when it did. Returns whether an
// account was created.
func (r *Repository) EnsureEmail(ctx context.Context, account models.CustomerAccount) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "customeraccount.Repository.EnsureEmail")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":        "EnsureEmail",
		"customer_guid": account.CustomerGUID,
	})

	if _, ok := normalizers.NormalizeEmailKey(account.Email); !ok {
		return false, httperror.NewHTTPError(http.StatusBadRequest, "account email is required")
	}

	q := database.Conn(ctx, r.db)

	existsSb := database.NewSelectBuilder()
	existsSb.Select("COUNT(*)")
	existsSb.From(accountTable)
	existsSb.Where(existsSb.Equal("customer_guid", account.CustomerGUID))
	query, args := existsSb.Build()
	var count int
	if err := q.GetContext(ctx, &count, query, args...); err != nil {
		log.WithError(err).Error("Failed to count customer accounts")
		return false, database.QueryError(err, "failed to count customer accounts")
	}

	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.IsMain = count == 0
	account.CreatedAt = now
	account.UpdatedAt = now

	ib := accountStruct.InsertInto(accountTable, FromAccount(account))
	ub := ib.OnConflict("customer_guid", "email_normalized")
	ub.Set(
		database.KeepExisting(accountTable, "external_ref"),
		database.KeepExisting(accountTable, "phone"),
		database.KeepExisting(accountTable, "shop_id"),
		"is_authorized = customer_accounts.is_authorized OR EXCLUDED.is_authorized",
		database.TouchWhen(accountTable, "updated_at",
			database.FillsMissing(accountTable, "external_ref"),
			database.FillsMissing(accountTable, "phone"),
			database.FillsMissing(accountTable, "shop_id"),
			"(NOT customer_accounts.is_authorized AND EXCLUDED.is_authorized)",
		),
	)
	ib.Returning("(xmax = 0) AS inserted")

	query, args = ib.Build()
	var inserted bool
	if err := q.GetContext(ctx, &inserted, query, args...); err != nil {
		log.WithError(err).Error("Failed to upsert customer account")
		return false, database.QueryError(err, "failed to upsert customer account")
	}

	if inserted {
		log.WithFields(map[string]any{"account_id": account.ID, "is_main": account.IsMain}).Info("Created customer account")
	}
	return inserted, nil
}

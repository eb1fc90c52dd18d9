package order

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// Repository reads storefront orders and links them to customer identities.
// The orders themselves are owned by the import pipeline.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new order repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an order by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.Get")
	defer span.End()

	sb := orderStruct.SelectFrom(orderTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row OrderRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("order %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get order")
		return nil, database.QueryError(err, "failed to get order")
	}

	order := ToOrder(&row)
	return &order, nil
}

// AttachCustomer links the given orders to a customer in one statement and
// returns how many orders changed owner.
func (r *Repository) AttachCustomer(ctx context.Context, orderIDs []string, customerGUID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.AttachCustomer")
	defer span.End()

	if len(orderIDs) == 0 {
		return 0, nil
	}

	ids := make([]any, 0, len(orderIDs))
	for _, id := range orderIDs {
		ids = append(ids, id)
	}

	ub := database.NewUpdateBuilder()
	ub.Update(orderTable)
	ub.Set(ub.Assign("customer_guid", customerGUID))
	ub.Where(
		ub.In("id", ids...),
		ub.Or(ub.IsNull("customer_guid"), ub.NotEqual("customer_guid", customerGUID)),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_guid": customerGUID,
			"orders":        len(orderIDs),
		}).Error("Failed to attach orders to customer")
		return 0, database.QueryError(err, "failed to attach orders to customer")
	}

	n, err := res.RowsAffected()
	if err != nil {
		// the update went through; only the count is unknown
		r.logger.WithContext(ctx).WithError(err).WithField("customer_guid", customerGUID).Warn("Failed to count attached orders")
		return 0, nil
	}
	return int(n), nil
}

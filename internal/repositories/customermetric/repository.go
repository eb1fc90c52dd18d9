package customermetric

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

const metricTable = "customer_metrics"

var metricStruct = database.NewStruct(new(models.CustomerMetric))

// Repository reads the order aggregates maintained by the metrics job. This
// service never writes them.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new customer metric repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the metrics of a customer, or nil when none were computed yet.
func (r *Repository) Get(ctx context.Context, customerGUID string) (*models.CustomerMetric, error) {
	ctx, span := tracing.StartSpan(ctx, "customermetric.Repository.Get")
	defer span.End()

	sb := metricStruct.SelectFrom(metricTable)
	sb.Where(sb.Equal("customer_guid", customerGUID))

	query, args := sb.Build()
	var metric models.CustomerMetric
	if err := database.Conn(ctx, r.db).GetContext(ctx, &metric, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get customer metrics")
		return nil, database.QueryError(err, "failed to get customer metrics")
	}
	return &metric, nil
}

package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

const (
	settingsTable = "customer_settings"

	KeyIdentityPolicy = "identity_policy"
	KeyClassification = "classification"
)

// Defaults are used for keys that have no row yet.
type Defaults struct {
	IdentityPolicy models.IdentityPolicy
	Classification models.ClassificationSettings
}

// Repository reads customer settings. Writes belong to the admin surface.
type Repository struct {
	db       database.DB
	logger   ectologger.Logger
	defaults Defaults
}

// NewRepository creates a new settings repository
func NewRepository(db database.DB, logger ectologger.Logger, defaults Defaults) *Repository {
	return &Repository{
		db:       db,
		logger:   logger,
		defaults: defaults,
	}
}

// IdentityPolicy returns the stored identity policy or the configured default.
func (r *Repository) IdentityPolicy(ctx context.Context) (models.IdentityPolicy, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.IdentityPolicy")
	defer span.End()

	policy := r.defaults.IdentityPolicy
	if _, err := r.load(ctx, KeyIdentityPolicy, &policy); err != nil {
		return models.IdentityPolicy{}, err
	}
	return policy, nil
}

// ClassificationSettings returns the stored settings, with empty labels filled
// from the configured default.
func (r *Repository) ClassificationSettings(ctx context.Context) (models.ClassificationSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.ClassificationSettings")
	defer span.End()

	var stored models.ClassificationSettings
	found, err := r.load(ctx, KeyClassification, &stored)
	if err != nil {
		return models.ClassificationSettings{}, err
	}
	if !found {
		return r.defaults.Classification.WithDefaults(), nil
	}
	return stored.WithDefaults(), nil
}

// load decodes the value stored under key into dest, leaving dest untouched
// when there is no row.
func (r *Repository) load(ctx context.Context, key string, dest any) (bool, error) {
	sb := database.NewSelectBuilder()
	sb.Select("value")
	sb.From(settingsTable)
	sb.Where(sb.Equal("key", key))

	query, args := sb.Build()
	var raw []byte
	if err := database.Conn(ctx, r.db).GetContext(ctx, &raw, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			r.logger.WithContext(ctx).WithField("key", key).Debug("Setting not stored, using default")
			return false, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Failed to load setting")
		return false, database.QueryError(err, "failed to load setting")
	}
	if len(raw) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Stored setting is not valid JSON")
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	return true, nil
}

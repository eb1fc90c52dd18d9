package tagrule

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// Repository handles tag rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new tag rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create validates and stores a new tag rule. The tag key is slugged and
// lower-cased before validation.
func (r *Repository) Create(ctx context.Context, req models.CreateTagRuleRequest) (*models.TagRule, error) {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.Create")
	defer span.End()

	req.TagKey = normalizers.Slugify(req.TagKey)
	req.Label = strings.TrimSpace(req.Label)
	if req.MatchType == "" {
		req.MatchType = models.MatchTypeAll
	}
	req.MatchType = models.MatchType(strings.ToLower(string(req.MatchType)))
	req.Conditions = normalizeConditions(req.Conditions)

	if err := validate.Struct(req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, validationError(req, err).Error())
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":  "Create",
		"tag_key": req.TagKey,
	})

	now := time.Now().UTC()
	rule := models.TagRule{
		ID:          uuid.New().String(),
		TagKey:      req.TagKey,
		Label:       req.Label,
		Color:       req.Color,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
		MatchType:   req.MatchType,
		SetVIP:      req.SetVIP,
		Conditions:  req.Conditions,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ib := tagRuleStruct.InsertInto(tagRuleTable, FromTagRule(rule))
	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "tag rule with key %s already exists", rule.TagKey)
		}
		log.WithError(err).Error("Failed to create tag rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create tag rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created tag rule")
	return &rule, nil
}

// Get retrieves a tag rule by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.TagRule, error) {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.Get")
	defer span.End()

	sb := tagRuleStruct.SelectFrom(tagRuleTable)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var row TagRuleRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("tag rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get tag rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tag rule")
	}

	rule := ToTagRule(&row)
	return &rule, nil
}

// List retrieves every tag rule that is not deleted, active or not.
func (r *Repository) List(ctx context.Context) ([]models.TagRule, error) {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.List")
	defer span.End()

	return r.list(ctx, false)
}

// ListActive retrieves the active tag rules, highest priority first.
func (r *Repository) ListActive(ctx context.Context) ([]models.TagRule, error) {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.ListActive")
	defer span.End()

	return r.list(ctx, true)
}

func (r *Repository) list(ctx context.Context, activeOnly bool) ([]models.TagRule, error) {
	sb := tagRuleStruct.SelectFrom(tagRuleTable)
	where := []string{sb.IsNull("deleted_at")}
	if activeOnly {
		where = append(where, sb.Equal("is_active", true))
	}
	sb.Where(where...)
	sb.OrderBy("priority DESC", "label ASC", "id ASC")

	query, args := sb.Build()
	var rows []TagRuleRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tag rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tag rules")
	}

	rules := make([]models.TagRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, ToTagRule(&rows[i]))
	}
	return rules, nil
}

// Update applies a partial update to a tag rule
func (r *Repository) Update(ctx context.Context, id string, req models.UpdateTagRuleRequest) (*models.TagRule, error) {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.Update")
	defer span.End()

	if err := validate.Struct(req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, validationError(req, err).Error())
	}
	if req.Conditions != nil {
		conditions := normalizeConditions(*req.Conditions)
		for _, c := range conditions {
			if err := validate.Struct(c); err != nil {
				return nil, httperror.NewHTTPError(http.StatusBadRequest, validationError(c, err).Error())
			}
		}
		req.Conditions = &conditions
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Label != nil {
		existing.Label = strings.TrimSpace(*req.Label)
	}
	if req.Color != nil {
		existing.Color = *req.Color
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.MatchType != nil {
		existing.MatchType = models.MatchType(strings.ToLower(string(*req.MatchType)))
	}
	if req.SetVIP != nil {
		existing.SetVIP = *req.SetVIP
	}
	if req.Conditions != nil {
		existing.Conditions = *req.Conditions
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	existing.UpdatedAt = time.Now().UTC()

	row := FromTagRule(*existing)
	ub := database.NewUpdateBuilder()
	ub.Update(tagRuleTable)
	ub.Set(
		ub.Assign("label", row.Label),
		ub.Assign("color", row.Color),
		ub.Assign("priority", row.Priority),
		ub.Assign("is_active", row.IsActive),
		ub.Assign("match_type", row.MatchType),
		ub.Assign("set_vip", row.SetVIP),
		ub.Assign("conditions", row.Conditions),
		ub.Assign("description", row.Description),
		ub.Assign("updated_at", row.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update tag rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update tag rule")
	}

	return existing, nil
}

// Delete soft deletes a tag rule
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "tagrule.Repository.Delete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tagRuleTable)
	ub.Set(
		ub.Assign("deleted_at", time.Now().UTC()),
		ub.Assign("is_active", false),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete tag rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete tag rule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("tag rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithField("id", id).Info("Deleted tag rule")
	return nil
}

// normalizeConditions trims fields and lower-cases operators and types.
func normalizeConditions(conditions []models.Condition) []models.Condition {
	out := make([]models.Condition, 0, len(conditions))
	for _, c := range conditions {
		c.Field = strings.TrimSpace(c.Field)
		c.Operator = strings.ToLower(strings.TrimSpace(c.Operator))
		c.Type = models.FieldType(strings.ToLower(strings.TrimSpace(string(c.Type))))
		out = append(out, c)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

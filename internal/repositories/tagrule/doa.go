package tagrule

import (
	"database/sql"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

const tagRuleTable = "tag_rules"

type TagRuleRow struct {
	ID          string                             `db:"id"`
	TagKey      string                             `db:"tag_key"`
	Label       string                             `db:"label"`
	Color       sql.NullString                     `db:"color"`
	Priority    int                                `db:"priority"`
	IsActive    bool                               `db:"is_active"`
	MatchType   string                             `db:"match_type"`
	SetVIP      bool                               `db:"set_vip"`
	Conditions  database.JSONB[[]models.Condition] `db:"conditions"`
	Description sql.NullString                     `db:"description"`
	CreatedAt   time.Time                          `db:"created_at"`
	UpdatedAt   time.Time                          `db:"updated_at"`
	DeletedAt   sql.NullTime                       `db:"deleted_at"`
}

var tagRuleStruct = database.NewStruct(new(TagRuleRow))

func FromTagRule(rule models.TagRule) *TagRuleRow {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []models.Condition{}
	}
	row := &TagRuleRow{
		ID:         rule.ID,
		TagKey:     rule.TagKey,
		Label:      rule.Label,
		Color:      sql.NullString{String: rule.Color, Valid: rule.Color != ""},
		Priority:   rule.Priority,
		IsActive:   rule.IsActive,
		MatchType:  string(rule.MatchType),
		SetVIP:     rule.SetVIP,
		Conditions: database.NewJSONB(conditions),
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
	if rule.Description != nil {
		row.Description = sql.NullString{String: *rule.Description, Valid: true}
	}
	return row
}

func ToTagRule(row *TagRuleRow) models.TagRule {
	rule := models.TagRule{
		ID:         row.ID,
		TagKey:     row.TagKey,
		Label:      row.Label,
		Color:      row.Color.String,
		Priority:   row.Priority,
		IsActive:   row.IsActive,
		MatchType:  models.MatchType(row.MatchType),
		SetVIP:     row.SetVIP,
		Conditions: row.Conditions.Data,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.Description.Valid {
		description := row.Description.String
		rule.Description = &description
	}
	return rule
}

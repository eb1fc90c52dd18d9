package models

import "time"

// MatchType combines the conditions of a rule.
type MatchType string

const (
	MatchTypeAll MatchType = "all"
	MatchTypeAny MatchType = "any"
)

// FieldType is the comparison semantics of a condition.
type FieldType string

const (
	FieldTypeNumber   FieldType = "number"
	FieldTypeString   FieldType = "string"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeBoolean  FieldType = "boolean"
)

// Operators.
const (
	OpEquals     = "="
	OpNotEquals  = "!="
	OpGreater    = ">"
	OpGreaterEq  = ">="
	OpLess       = "<"
	OpLessEq     = "<="
	OpIn         = "in"
	OpNotIn      = "not_in"
	OpIsNull     = "is_null"
	OpIsNotNull  = "is_not_null"
	OpIsTrue     = "is_true"
	OpIsFalse    = "is_false"
	OpBefore     = "before"
	OpAfter      = "after"
	OpOnOrBefore = "on_or_before"
	OpOnOrAfter  = "on_or_after"
)

// Condition is one predicate of a tag rule as stored.
type Condition struct {
	Field    string    `json:"field" validate:"required,rulefield"`
	Operator string    `json:"operator" validate:"required"`
	Value    any       `json:"value,omitempty"`
	Type     FieldType `json:"type,omitempty" validate:"omitempty,oneof=number string datetime boolean"`
}

// TagRule is a user-editable classification rule.
type TagRule struct {
	ID          string      `json:"id" db:"id"`
	TagKey      string      `json:"tag_key" db:"tag_key"`
	Label       string      `json:"label" db:"label"`
	Color       string      `json:"color,omitempty" db:"color"`
	Priority    int         `json:"priority" db:"priority"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	MatchType   MatchType   `json:"match_type" db:"match_type"`
	SetVIP      bool        `json:"set_vip" db:"set_vip"`
	Conditions  []Condition `json:"conditions" db:"-"`
	Description *string     `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// CreateTagRuleRequest is the input for creating a tag rule.
type CreateTagRuleRequest struct {
	TagKey      string      `json:"tag_key" validate:"required,max=64,tagkey"`
	Label       string      `json:"label" validate:"required,max=128"`
	Color       string      `json:"color,omitempty" validate:"omitempty,max=32"`
	Priority    int         `json:"priority"`
	IsActive    bool        `json:"is_active"`
	MatchType   MatchType   `json:"match_type" validate:"omitempty,oneof=all any"`
	SetVIP      bool        `json:"set_vip"`
	Conditions  []Condition `json:"conditions" validate:"dive"`
	Description *string     `json:"description,omitempty"`
}

// UpdateTagRuleRequest is a partial update; nil fields are left unchanged.
type UpdateTagRuleRequest struct {
	Label       *string      `json:"label,omitempty" validate:"omitempty,max=128"`
	Color       *string      `json:"color,omitempty" validate:"omitempty,max=32"`
	Priority    *int         `json:"priority,omitempty"`
	IsActive    *bool        `json:"is_active,omitempty"`
	MatchType   *MatchType   `json:"match_type,omitempty" validate:"omitempty,oneof=all any"`
	SetVIP      *bool        `json:"set_vip,omitempty"`
	Conditions  *[]Condition `json:"conditions,omitempty"`
	Description *string      `json:"description,omitempty"`
}

package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

// condition is a stored Condition resolved against the field registry with
// its expected operand parsed. A condition that fails to compile keeps err set
// and always evaluates to false.
type condition struct {
	field    Field
	path     string
	typ      models.FieldType
	op       string
	expected Value
	// rawExpected is kept for datetimes, whose relative forms depend on the evaluation clock.
	rawExpected any
	err         error
}

// ResolveType returns the effective type of a condition: the catalog type for
// catalog fields, the declared type (default string) for extension fields.
func ResolveType(c models.Condition) (Field, models.FieldType, error) {
	field, isCatalog := LookupField(c.Field)
	if isCatalog {
		typ := catalog[field].typ
		if c.Type != "" && c.Type != typ {
			return field, typ, fmt.Errorf("field %s is %s, condition declares %s", c.Field, typ, c.Type)
		}
		return field, typ, nil
	}

	if strings.TrimSpace(c.Field) == "" {
		return FieldExtension, "", fmt.Errorf("condition has no field")
	}
	switch c.Type {
	case "":
		return FieldExtension, models.FieldTypeString, nil
	case models.FieldTypeNumber, models.FieldTypeString, models.FieldTypeDatetime, models.FieldTypeBoolean:
		return FieldExtension, c.Type, nil
	}
	return FieldExtension, c.Type, fmt.Errorf("unknown condition type %q", c.Type)
}

func compileCondition(c models.Condition) condition {
	op := strings.ToLower(strings.TrimSpace(c.Operator))
	out := condition{path: c.Field, op: op, rawExpected: c.Value}

	field, typ, err := ResolveType(c)
	out.field, out.typ = field, typ
	if err != nil {
		out.err = err
		return out
	}
	if !OperatorAllowed(typ, op) {
		out.err = fmt.Errorf("operator %q is not valid for %s field %s; allowed: %s",
			c.Operator, typ, c.Field, strings.Join(Operators(typ), ", "))
		return out
	}

	switch typ {
	case models.FieldTypeNumber:
		out.expected, out.err = ParseNumber(c.Value)
	case models.FieldTypeString:
		switch op {
		case models.OpIn, models.OpNotIn:
			out.expected, out.err = ParseStringSet(c.Value)
		case models.OpEquals, models.OpNotEquals:
			out.expected, out.err = ParseString(c.Value)
			if out.err == nil && out.expected.IsNull() {
				out.err = fmt.Errorf("empty comparison value for %s", c.Field)
			}
		}
	case models.FieldTypeBoolean:
		out.expected, out.err = ParseBool(c.Value)
	case models.FieldTypeDatetime:
		if op != models.OpIsNull && op != models.OpIsNotNull {
			// validate eagerly; the operand is re-parsed against the evaluation clock
			_, out.err = ParseDateTime(c.Value, time.Now())
		}
	}
	return out
}

func (c condition) evaluate(s Subject) (matched bool) {
	if c.err != nil {
		return false
	}
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()

	switch c.typ {
	case models.FieldTypeNumber:
		return compareNumber(c.op, c.actualNumber(s), c.expected)
	case models.FieldTypeString:
		return compareString(c.op, c.actualString(s), c.expected)
	case models.FieldTypeBoolean:
		actual, valid := c.actualBool(s)
		return compareBool(c.op, actual, valid, c.expected)
	case models.FieldTypeDatetime:
		expected := Null()
		if c.op != models.OpIsNull && c.op != models.OpIsNotNull {
			var err error
			if expected, err = ParseDateTime(c.rawExpected, s.Now); err != nil || expected.IsNull() {
				return false
			}
		}
		return compareDateTime(c.op, c.actualDateTime(s), expected)
	}
	return false
}

func (c condition) raw(s Subject) (any, bool) {
	return extensionValue(s.Customer.Data, c.path)
}

func (c condition) actualNumber(s Subject) Value {
	if c.field != FieldExtension {
		return catalog[c.field].extract(s)
	}
	raw, ok := c.raw(s)
	if !ok {
		return Null()
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return Null()
	}
	return v
}

func (c condition) actualString(s Subject) Value {
	if c.field != FieldExtension {
		return catalog[c.field].extract(s)
	}
	raw, ok := c.raw(s)
	if !ok {
		return Null()
	}
	v, err := ParseString(raw)
	if err != nil {
		return Null()
	}
	return v
}

// actualBool returns the tri-state actual value; valid is false when a value
// is present but is not a recognisable boolean.
func (c condition) actualBool(s Subject) (Value, bool) {
	if c.field != FieldExtension {
		return catalog[c.field].extract(s), true
	}
	raw, ok := c.raw(s)
	if !ok {
		return Null(), true
	}
	v, err := ParseBool(raw)
	if err != nil {
		return Null(), false
	}
	return v, true
}

func (c condition) actualDateTime(s Subject) Value {
	if c.field != FieldExtension {
		return catalog[c.field].extract(s)
	}
	raw, ok := c.raw(s)
	if !ok {
		return Null()
	}
	v, err := ParseDateTime(raw, s.Now)
	if err != nil {
		return Null()
	}
	return v
}

// ValidateCondition returns the reason a stored condition can never match,
// or nil when it compiles.
func ValidateCondition(c models.Condition) error {
	return compileCondition(c).err
}

package rules

import (
	"slices"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

var operatorsByType = map[models.FieldType][]string{
	models.FieldTypeNumber: {
		models.OpEquals, models.OpNotEquals,
		models.OpGreater, models.OpGreaterEq, models.OpLess, models.OpLessEq,
	},
	models.FieldTypeString: {
		models.OpEquals, models.OpNotEquals,
		models.OpIn, models.OpNotIn,
		models.OpIsNull, models.OpIsNotNull,
	},
	models.FieldTypeBoolean: {
		models.OpIsTrue, models.OpIsFalse,
		models.OpEquals, models.OpNotEquals,
	},
	models.FieldTypeDatetime: {
		models.OpBefore, models.OpAfter, models.OpOnOrBefore, models.OpOnOrAfter,
		models.OpEquals, models.OpNotEquals,
		models.OpIsNull, models.OpIsNotNull,
	},
}

// OperatorAllowed reports whether op is valid for a field type.
func OperatorAllowed(typ models.FieldType, op string) bool {
	return slices.Contains(operatorsByType[typ], op)
}

// Operators returns the operators valid for a field type.
func Operators(typ models.FieldType) []string {
	return slices.Clone(operatorsByType[typ])
}

func compareNumber(op string, actual, expected Value) bool {
	a, ok := actual.Number()
	if !ok {
		return false
	}
	e, ok := expected.Number()
	if !ok {
		return false
	}
	switch op {
	case models.OpEquals:
		return a == e
	case models.OpNotEquals:
		return a != e
	case models.OpGreater:
		return a > e
	case models.OpGreaterEq:
		return a >= e
	case models.OpLess:
		return a < e
	case models.OpLessEq:
		return a <= e
	}
	return false
}

func compareString(op string, actual, expected Value) bool {
	switch op {
	case models.OpIsNull:
		return actual.IsNull()
	case models.OpIsNotNull:
		return !actual.IsNull()
	}

	a := normalizers.Fold(actual.String())
	if actual.IsNull() {
		a = ""
	}

	switch op {
	case models.OpEquals, models.OpNotEquals:
		e, ok := expected.Str()
		if !ok {
			return false
		}
		equal := a == normalizers.Fold(e)
		if op == models.OpEquals {
			return equal
		}
		return !equal
	case models.OpIn, models.OpNotIn:
		set, ok := expected.Set()
		if !ok || len(set) == 0 {
			return false
		}
		in := a != "" && slices.Contains(set, a)
		if op == models.OpIn {
			return in
		}
		return !in
	}
	return false
}

// compareBool is tri-state: is_false matches false or absent, is_true matches
// only true, and an unparseable actual matches neither.
func compareBool(op string, actual Value, actualValid bool, expected Value) bool {
	if !actualValid {
		return false
	}

	want := true
	switch op {
	case models.OpIsTrue:
	case models.OpIsFalse:
		want = false
	case models.OpEquals, models.OpNotEquals:
		if b, ok := expected.Bool(); ok {
			want = b
		} else if !expected.IsNull() {
			return false
		}
		if op == models.OpNotEquals {
			want = !want
		}
	default:
		return false
	}

	b, ok := actual.Bool()
	if !ok {
		// absent
		return !want
	}
	return b == want
}

func compareDateTime(op string, actual, expected Value) bool {
	switch op {
	case models.OpIsNull:
		return actual.IsNull()
	case models.OpIsNotNull:
		return !actual.IsNull()
	}

	a, ok := actual.Time()
	if !ok {
		return false
	}
	e, ok := expected.Time()
	if !ok {
		return false
	}

	if expected.dateOnly {
		dayStart := startOfDay(e)
		nextDay := dayStart.AddDate(0, 0, 1)
		switch op {
		case models.OpBefore:
			return a.Before(dayStart)
		case models.OpAfter:
			return !a.Before(nextDay)
		case models.OpOnOrBefore:
			return a.Before(nextDay)
		case models.OpOnOrAfter:
			return !a.Before(dayStart)
		case models.OpEquals:
			return !a.Before(dayStart) && a.Before(nextDay)
		case models.OpNotEquals:
			return a.Before(dayStart) || !a.Before(nextDay)
		}
		return false
	}

	a = a.Truncate(time.Second)
	e = e.Truncate(time.Second)
	switch op {
	case models.OpBefore:
		return a.Before(e)
	case models.OpAfter:
		return a.After(e)
	case models.OpOnOrBefore:
		return !a.After(e)
	case models.OpOnOrAfter:
		return !a.Before(e)
	case models.OpEquals:
		return a.Equal(e)
	case models.OpNotEquals:
		return !a.Equal(e)
	}
	return false
}

package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

// Kind is the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindStringSet
	KindBool
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStringSet:
		return "string_set"
	case KindBool:
		return "bool"
	case KindDateTime:
		return "datetime"
	default:
		return "null"
	}
}

// Value is a tagged condition operand. Only the field matching kind is meaningful.
type Value struct {
	kind Kind
	num  float64
	str  string
	set  []string
	b    bool
	t    time.Time
	// dateOnly marks datetimes given without a time of day; they compare by calendar day.
	dateOnly bool
}

func Null() Value                  { return Value{kind: KindNull} }
func Number(f float64) Value       { return Value{kind: KindNumber, num: f} }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func StringSet(set []string) Value { return Value{kind: KindStringSet, set: set} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func DateTime(t time.Time) Value   { return Value{kind: KindDateTime, t: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) Set() ([]string, bool) {
	return v.set, v.kind == KindStringSet
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDateTime
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindStringSet:
		return strings.Join(v.set, ",")
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDateTime:
		return v.t.Format(time.RFC3339)
	default:
		return "null"
	}
}

// ParseNumber accepts numeric JSON values and numeric strings.
func ParseNumber(raw any) (Value, error) {
	f, ok := toFloat64(raw)
	if !ok {
		return Null(), fmt.Errorf("not a number: %v", raw)
	}
	return Number(f), nil
}

// ParseString accepts scalars and renders them as strings. nil and blank strings are Null.
func ParseString(raw any) (Value, error) {
	s, ok := scalarString(raw)
	if !ok {
		return Null(), fmt.Errorf("not a scalar: %T", raw)
	}
	if strings.TrimSpace(s) == "" {
		return Null(), nil
	}
	return String(s), nil
}

// ParseStringSet accepts a list of scalars or a comma separated string and
// returns the folded, de-duplicated set.
func ParseStringSet(raw any) (Value, error) {
	var items []string
	switch v := raw.(type) {
	case nil:
	case string:
		items = strings.Split(v, ",")
	case []string:
		items = v
	case []any:
		for _, item := range v {
			s, ok := scalarString(item)
			if !ok {
				return Null(), fmt.Errorf("set item is not a scalar: %T", item)
			}
			items = append(items, s)
		}
	default:
		s, ok := scalarString(v)
		if !ok {
			return Null(), fmt.Errorf("not a list: %T", raw)
		}
		items = []string{s}
	}

	seen := map[string]struct{}{}
	set := make([]string, 0, len(items))
	for _, item := range items {
		key := normalizers.Fold(item)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, key)
	}
	return StringSet(set), nil
}

// ParseBool is tri-state: recognised truthy and falsy inputs yield a Bool,
// nil yields Null and anything else is an error.
func ParseBool(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		switch normalizers.Fold(v) {
		case "true", "1", "yes", "y", "on":
			return Bool(true), nil
		case "false", "0", "no", "n", "off":
			return Bool(false), nil
		case "":
			return Null(), nil
		}
		return Null(), fmt.Errorf("not a boolean: %q", v)
	}
	if f, ok := toFloat64(raw); ok {
		switch f {
		case 1:
			return Bool(true), nil
		case 0:
			return Bool(false), nil
		}
	}
	return Null(), fmt.Errorf("not a boolean: %v", raw)
}

var relativeExpr = regexp.MustCompile(`^([+-]?)(\d+)\s*([hdwmy])$`)

var dateTimeLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", true},
	{"02.01.2006", true},
}

// ParseDateTime accepts absolute timestamps, "now", "today" and offsets from
// now such as "-30d", "+2w", "12h", "-6m" (months) or "-1y".
func ParseDateTime(raw any, now time.Time) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case time.Time:
		return DateTime(v), nil
	case string:
		return parseDateTimeString(v, now)
	}
	if f, ok := toFloat64(raw); ok {
		// unix seconds
		return DateTime(time.Unix(int64(f), 0).UTC()), nil
	}
	return Null(), fmt.Errorf("not a datetime: %v", raw)
}

func parseDateTimeString(raw string, now time.Time) (Value, error) {
	s := strings.TrimSpace(raw)
	switch normalizers.Fold(s) {
	case "":
		return Null(), nil
	case "now":
		return DateTime(now), nil
	case "today":
		return Value{kind: KindDateTime, t: startOfDay(now), dateOnly: true}, nil
	}

	if m := relativeExpr.FindStringSubmatch(normalizers.Fold(s)); m != nil {
		n, _ := strconv.Atoi(m[2])
		if m[1] == "-" {
			n = -n
		}
		switch m[3] {
		case "h":
			return DateTime(now.Add(time.Duration(n) * time.Hour)), nil
		case "d":
			return DateTime(now.AddDate(0, 0, n)), nil
		case "w":
			return DateTime(now.AddDate(0, 0, 7*n)), nil
		case "m":
			return DateTime(now.AddDate(0, n, 0)), nil
		case "y":
			return DateTime(now.AddDate(n, 0, 0)), nil
		}
	}

	for _, candidate := range dateTimeLayouts {
		if t, err := time.ParseInLocation(candidate.layout, s, time.UTC); err == nil {
			return Value{kind: KindDateTime, t: t, dateOnly: candidate.dateOnly}, nil
		}
	}
	return Null(), fmt.Errorf("unrecognised datetime %q", raw)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func toFloat64(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", true
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	}
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

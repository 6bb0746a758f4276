package resource

import (
	"fmt"
	"sort"
	"strconv"
)

// Value is a predicate operand: either a single scalar or a membership set.
type Value struct {
	set   bool
	items []any
}

// Scalar builds a single value operand. v may be nil.
func Scalar(v any) Value {
	return Value{items: []any{v}}
}

// Set builds a membership operand.
func Set(items ...any) Value {
	return Value{set: true, items: append([]any(nil), items...)}
}

func (v Value) IsSet() bool { return v.set }

// Items returns the operand values; a scalar yields a one element slice.
func (v Value) Items() []any { return v.items }

// Scalar returns the single value of a scalar operand.
func (v Value) Scalar() any {
	if v.set || len(v.items) == 0 {
		return nil
	}
	return v.items[0]
}

// Matches reports whether candidate equals the scalar or is a member of the set.
// Values are compared by canonical text so that "1" and 1 are equal, which
// mirrors how query string tokens are compared against typed columns.
func (v Value) Matches(candidate any) bool {
	c := Canonical(candidate)
	for _, item := range v.items {
		if Canonical(item) == c {
			return true
		}
	}
	return false
}

func (v Value) canonical() any {
	if !v.set {
		return v.Scalar()
	}
	return v.items
}

// Canonical renders a scalar as comparable text. Integral floats print
// without a fractional part and nil renders as "null".
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Predicates maps field names to operands.
type Predicates map[string]Value

// Fields returns the predicate field names in sorted order.
func (p Predicates) Fields() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p Predicates) canonical() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.canonical()
	}
	return out
}

// OrderField is one ordering term.
type OrderField struct {
	Field string
	Desc  bool
}

func (o OrderField) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

// Query is what a Collection needs to select records.
//
// A record matches when it satisfies every Include predicate and does not
// satisfy all Exclude predicates at once. When SoftDeleteField is set and
// WithDeleted is false, records whose flag is true never match.
type Query struct {
	Include         Predicates
	Exclude         Predicates
	OrderBy         []OrderField
	SoftDeleteField string
	WithDeleted     bool
}

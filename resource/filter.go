package resource

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// ExcludePrefix marks a query parameter as a negated predicate.
	ExcludePrefix = "exclude__"

	ParamPage    = "page"
	ParamTop     = "top"
	ParamBottom  = "bottom"
	ParamOrderBy = "order_by"
)

// Window is the pagination directive of a list request.
type Window struct {
	Top    int
	Bottom *int
	Page   *int
}

// Offset resolves the starting offset, letting page override top.
func (w Window) Offset(pageSize int) int {
	if w.Page != nil {
		return (*w.Page - 1) * pageSize
	}
	return w.Top
}

// Ranged reports whether the window selects an explicit [top, bottom) range.
func (w Window) Ranged() bool { return w.Bottom != nil }

// FilterSpec is a parsed list request.
type FilterSpec struct {
	Include Predicates
	Exclude Predicates
	OrderBy []OrderField
	Window  Window
}

// ParseFilters turns raw query parameters into a FilterSpec.
//
// Keys starting with ExcludePrefix become exclude predicates. Other keys
// become include predicates when fields allows them and are dropped
// otherwise. The pagination keys are always consumed and never become
// predicates. When a key repeats, the last value wins.
func ParseFilters(params url.Values, fields FieldSet) (FilterSpec, error) {
	spec := FilterSpec{
		Include: Predicates{},
		Exclude: Predicates{},
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		if len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]

		switch key {
		case ParamTop:
			n, err := parseCount(key, raw, 0)
			if err != nil {
				return FilterSpec{}, err
			}
			spec.Window.Top = n
			continue
		case ParamBottom:
			n, err := parseCount(key, raw, 0)
			if err != nil {
				return FilterSpec{}, err
			}
			spec.Window.Bottom = &n
			continue
		case ParamPage:
			n, err := parseCount(key, raw, 1)
			if err != nil {
				return FilterSpec{}, err
			}
			spec.Window.Page = &n
			continue
		case ParamOrderBy:
			spec.OrderBy = parseOrder(raw, fields)
			continue
		}

		if field, ok := strings.CutPrefix(key, ExcludePrefix); ok {
			if field == "" {
				continue
			}
			if v, ok := ParseValue(raw); ok {
				spec.Exclude[field] = v
			}
			continue
		}

		if !fields.Allows(key) {
			continue
		}
		if v, ok := ParseValue(raw); ok {
			spec.Include[key] = v
		}
	}

	return spec, nil
}

// ParseValue decodes one query parameter value.
//
// A value with a comma becomes a membership set of its trimmed, non-empty
// tokens; a single surviving token collapses to a scalar string and no
// tokens at all yields false. Anything else is decoded as JSON when
// possible and kept as the raw string otherwise.
func ParseValue(raw string) (Value, bool) {
	if strings.Contains(raw, ",") {
		var tokens []any
		for _, tok := range strings.Split(raw, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				tokens = append(tokens, tok)
			}
		}
		switch len(tokens) {
		case 0:
			return Value{}, false
		case 1:
			return Scalar(tokens[0]), true
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].(string) < tokens[j].(string) })
		return Set(tokens...), true
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Scalar(raw), true
	}

	switch t := decoded.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Scalar(int64(t)), true
		}
		return Scalar(t), true
	case string, bool, nil:
		return Scalar(t), true
	default:
		// objects and arrays are not predicate operands
		return Scalar(raw), true
	}
}

func parseCount(key, raw string, min int) (int, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return 0, NewParseError(key, raw, err)
		}
		n = int(f)
	}
	// bounded so that page offsets cannot overflow
	if n > math.MaxInt32 {
		return 0, NewParseError(key, raw, nil)
	}
	if n < min {
		return 0, NewParseError(key, raw, nil)
	}
	return n, nil
}

func parseOrder(raw string, fields FieldSet) []OrderField {
	var out []OrderField
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		desc := strings.HasPrefix(tok, "-")
		name := strings.TrimPrefix(tok, "-")
		if name == "" || !fields.Allows(name) {
			continue
		}
		out = append(out, OrderField{Field: name, Desc: desc})
	}
	return out
}

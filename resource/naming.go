package resource

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// defaultName derives a resource name from T: *Appointment becomes
// "appointments", ServiceLabel becomes "service_labels".
func defaultName[T any]() string {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	name := typ.Name()
	// generic instantiations carry their type arguments in brackets
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return ""
	}
	return inflection.Plural(toSnake(name))
}

// toSnake converts s to snake_case. Punctuation collapses into a single
// underscore so the result is safe to use inside cache keys and metric labels.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pending := false
	sep := func() {
		if b.Len() > 0 {
			pending = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r), unicode.IsDigit(r):
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
		default:
			sep()
		}
	}

	return b.String()
}

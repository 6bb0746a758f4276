package resource

import "sort"

type fieldSetKind uint8

const (
	fieldSetUnset fieldSetKind = iota
	fieldSetAll
	fieldSetNamed
)

// FieldSet is either every field or an explicit list of field names.
// The zero value is unset and is replaced by AllFields when a resource is
// built.
type FieldSet struct {
	kind  fieldSetKind
	names map[string]struct{}
}

// AllFields matches any field name.
func AllFields() FieldSet {
	return FieldSet{kind: fieldSetAll}
}

// NamedFields matches only the given names. With no names it matches nothing.
func NamedFields(names ...string) FieldSet {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return FieldSet{kind: fieldSetNamed, names: set}
}

// Allows reports whether name is a member of the set.
func (f FieldSet) Allows(name string) bool {
	switch f.kind {
	case fieldSetAll:
		return true
	case fieldSetNamed:
		_, ok := f.names[name]
		return ok
	default:
		return false
	}
}

func (f FieldSet) IsAll() bool { return f.kind == fieldSetAll }

func (f FieldSet) isUnset() bool { return f.kind == fieldSetUnset }

// Names returns the sorted member names. It is empty for AllFields.
func (f FieldSet) Names() []string {
	out := make([]string, 0, len(f.names))
	for n := range f.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Outside returns the sorted keys of payload that the set does not allow.
func (f FieldSet) Outside(payload Payload) []string {
	if f.IsAll() {
		return nil
	}
	var out []string
	for k := range payload {
		if !f.Allows(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

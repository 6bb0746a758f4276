package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator joins cache key segments, e.g. "appointments:object:42".
const KeySeparator = ":"

// Key joins segments into a namespaced cache key.
func Key(segments ...string) string {
	return strings.Join(segments, KeySeparator)
}

// KeySerializer builds a canonical string from arbitrary values.
// Equal inputs must produce equal output across calls and processes.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// canonicalSerializer walks values with reflection. Map keys and struct
// fields are emitted in a fixed order so that logically equal inputs
// serialize identically.
type canonicalSerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return canonicalSerializer{}
}

func (s canonicalSerializer) SerializeKey(method string, args ...any) string {
	var b strings.Builder
	b.WriteString(method)
	for _, arg := range args {
		b.WriteString("|")
		s.write(&b, reflect.ValueOf(arg))
	}
	return b.String()
}

func (s canonicalSerializer) write(b *strings.Builder, rv reflect.Value) {
	if !rv.IsValid() {
		b.WriteString("nil")
		return
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("nil")
			return
		}
		s.write(b, rv.Elem())
	case reflect.String:
		b.WriteString(strconv.Quote(rv.String()))
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			b.WriteString("[]")
			return
		}
		b.WriteString("[")
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteString(",")
			}
			s.write(b, rv.Index(i))
		}
		b.WriteString("]")
	case reflect.Map:
		s.writeMap(b, rv)
	case reflect.Struct:
		s.writeStruct(b, rv)
	default:
		// funcs and channels have no stable identity
		fmt.Fprintf(b, "<%s>", rv.Type())
	}
}

func (s canonicalSerializer) writeMap(b *strings.Builder, rv reflect.Value) {
	type pair struct {
		key   string
		value reflect.Value
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var kb strings.Builder
		s.write(&kb, iter.Key())
		pairs = append(pairs, pair{key: kb.String(), value: iter.Value()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	b.WriteString("{")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(p.key)
		b.WriteString("=")
		s.write(b, p.value)
	}
	b.WriteString("}")
}

func (s canonicalSerializer) writeStruct(b *strings.Builder, rv reflect.Value) {
	rt := rv.Type()
	b.WriteString(rt.Name())
	b.WriteString("{")
	first := true
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if !first {
			b.WriteString(",")
		}
		first = false
		b.WriteString(field.Name)
		b.WriteString(":")
		s.write(b, rv.Field(i))
	}
	b.WriteString("}")
}

// Fingerprint returns a stable 64 bit hex digest of the canonical form of args.
func Fingerprint(serializer KeySerializer, method string, args ...any) string {
	if serializer == nil {
		serializer = canonicalSerializer{}
	}
	sum := xxhash.Sum64String(serializer.SerializeKey(method, args...))
	return fmt.Sprintf("%016x", sum)
}

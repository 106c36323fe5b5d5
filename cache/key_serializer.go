package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const (
	// KeySeparator defines the delimiter used between cache key segments.
	KeySeparator = "::"
	// NamespaceSeparator follows the namespace (usually a table name) so that
	// Clear(namespace + NamespaceSeparator) only matches that namespace.
	NamespaceSeparator = ":"
)

// keySerializer builds keys of the form namespace:method::arg::arg.
// Arguments are rendered by kind. Funcs and chans use their pointer, which
// is only stable within one process. Stringer arrays and structs (uuid.UUID,
// time.Time) use String().
type keySerializer struct {
	namespace string
}

// NewDefaultKeySerializer creates a serializer without a namespace.
func NewDefaultKeySerializer() KeySerializer {
	return &keySerializer{}
}

// NewKeySerializer creates a serializer that prefixes every key with namespace.
func NewKeySerializer(namespace string) KeySerializer {
	return &keySerializer{namespace: namespace}
}

// Namespace returns the prefix that scopes all keys produced for namespace.
func Namespace(namespace string) string {
	return namespace + NamespaceSeparator
}

// SerializeKey builds a cache key from method name and args.
func (s *keySerializer) SerializeKey(method string, args ...any) string {
	var b strings.Builder
	if s.namespace != "" {
		b.WriteString(Namespace(s.namespace))
	}
	b.WriteString(method)

	for _, arg := range args {
		b.WriteString(KeySeparator)
		b.WriteString(s.serializeValue(arg))
	}
	return b.String()
}

func (s *keySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSequence("slice", rv)
	case reflect.Array:
		if stringer, ok := v.(fmt.Stringer); ok {
			return stringer.String()
		}
		return s.serializeSequence("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		if stringer, ok := v.(fmt.Stringer); ok {
			return stringer.String()
		}
		return s.serializeStruct(rv)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return "json:" + string(data)
}

func (s *keySerializer) serializeSequence(label string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", label, len(parts), strings.Join(parts, ","))
}

// serializeMap sorts pairs by their rendered key so output is deterministic.
func (s *keySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := s.serializeValue(iter.Key().Interface())
		v := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *keySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

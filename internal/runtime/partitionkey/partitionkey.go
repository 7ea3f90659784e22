// Package partitionkey derives broker routing keys from tagged message fields.
//
// A field takes part in the key when it carries a `partitionkey` struct tag.
// The tag value is an optional integer order; fields are sorted ascending by
// order and ties keep declaration order:
//
//	type OrderPlaced struct {
//		TenantID   string    `partitionkey:"0"`
//		CustomerID uuid.UUID `partitionkey:"1"`
//	}
//
// Promoted fields of embedded structs take part as if declared on the outer
// type. A tag on the embedded field itself keys on the embedded value as a
// whole, e.g. an embedded uuid.UUID.
//
// Values are rendered in canonical form and joined with "|". A nil value
// contributes an empty segment so positions stay meaningful. Values containing
// "|" are not escaped.
package partitionkey

import (
	"encoding"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// TagName is the struct tag marking routing key fields.
	TagName = "partitionkey"
	// Delimiter separates key segments.
	Delimiter = "|"
)

// KeyFunc renders the routing key of a message instance. It accepts values and
// pointers of the type it was built for.
type KeyFunc func(msg any) string

// Resolver builds KeyFuncs once per message type and memoizes them.
type Resolver struct {
	cache sync.Map // reflect.Type -> *entry
}

type entry struct {
	fn  KeyFunc
	err error
}

type keyField struct {
	name  string
	index []int
	order int
}

func New() *Resolver {
	return &Resolver{}
}

// Default is the process-wide resolver.
var Default = New()

// For returns the KeyFunc for t. ok is false when t declares no key fields,
// which is a normal configuration. err reports malformed tags.
func (r *Resolver) For(t reflect.Type) (fn KeyFunc, ok bool, err error) {
	if t == nil {
		return nil, false, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, found := r.cache.Load(t); found {
		e := cached.(*entry)
		return e.fn, e.fn != nil, e.err
	}

	fields, err := compile(t)
	e := &entry{err: err}
	if err == nil && len(fields) > 0 {
		e.fn = keyFunc(fields)
	}
	// Racing builders produce identical entries; the first stored wins.
	actual, _ := r.cache.LoadOrStore(t, e)
	e = actual.(*entry)
	return e.fn, e.fn != nil, e.err
}

// Resolve renders the routing key of msg. ok is false when msg's type
// declares no key fields or its tags are malformed.
func (r *Resolver) Resolve(msg any) (string, bool) {
	fn, ok, err := r.For(reflect.TypeOf(msg))
	if !ok || err != nil {
		return "", false
	}
	return fn(msg), true
}

// Resolve renders the routing key of msg with the Default resolver.
func Resolve(msg any) (string, bool) {
	return Default.Resolve(msg)
}

func compile(t reflect.Type) ([]keyField, error) {
	if t.Kind() != reflect.Struct {
		return nil, nil
	}

	var fields []keyField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		tag, tagged := f.Tag.Lookup(TagName)
		if !tagged {
			continue
		}
		order := 0
		if tag = strings.TrimSpace(tag); tag != "" {
			n, err := strconv.Atoi(tag)
			if err != nil {
				return nil, fmt.Errorf("partitionkey: %s.%s: invalid order %q", t.Name(), f.Name, tag)
			}
			order = n
		}
		fields = append(fields, keyField{name: f.Name, index: f.Index, order: order})
	}

	slices.SortStableFunc(fields, func(a, b keyField) int {
		return a.order - b.order
	})
	return fields, nil
}

func keyFunc(fields []keyField) KeyFunc {
	return func(msg any) string {
		v := reflect.ValueOf(msg)
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return strings.Repeat(Delimiter, len(fields)-1)
			}
			v = v.Elem()
		}

		segments := make([]string, len(fields))
		for i, f := range fields {
			fv, err := v.FieldByIndexErr(f.index)
			if err != nil {
				// nil embedded pointer on the path
				continue
			}
			segments[i] = Canonical(fv)
		}
		return strings.Join(segments, Delimiter)
	}
}

var (
	timeType          = reflect.TypeFor[time.Time]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	stringerType      = reflect.TypeFor[fmt.Stringer]()
)

// Canonical renders a single key value. UUIDs use their lower-case hyphenated
// text form, times RFC3339Nano in UTC, numbers invariant decimal notation.
func Canonical(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return ""
	}

	if v.CanInterface() {
		if v.Type() == timeType {
			return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
		}
		if v.Type().Implements(textMarshalerType) {
			if text, err := v.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
				return string(text)
			}
		}
		if v.Type().Implements(stringerType) {
			return v.Interface().(fmt.Stringer).String()
		}
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return ""
		}
	}
	if v.CanInterface() {
		return fmt.Sprint(v.Interface())
	}
	return ""
}

package partitionkey

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderedKeys struct {
	B string `partitionkey:"1"`
	A string `partitionkey:"0"`
	C string `partitionkey:"2"`
	X string
}

type nullableKeys struct {
	First  *string `partitionkey:"0"`
	Second string  `partitionkey:"1"`
}

type noKeys struct {
	ID   string
	Name string `json:"name"`
}

type declarationOrder struct {
	Region string `partitionkey:""`
	Tenant string `partitionkey:""`
}

type typedKeys struct {
	ID      uuid.UUID `partitionkey:"0"`
	Count   int64     `partitionkey:"1"`
	Ratio   float64   `partitionkey:"2"`
	Active  bool      `partitionkey:"3"`
	At      time.Time `partitionkey:"4"`
	Small   uint8     `partitionkey:"5"`
	Missing *int      `partitionkey:"6"`
}

type Tenant struct {
	TenantID string `partitionkey:"0"`
}

type embedded struct {
	Tenant
	OrderID string `partitionkey:"1"`
}

type embeddedPtr struct {
	*Tenant
	OrderID string `partitionkey:"1"`
}

type taggedEmbed struct {
	Region string `partitionkey:"0"`

	uuid.UUID `partitionkey:"1"`
}

type taggedEmbedPtr struct {
	*Tenant `partitionkey:"0"`
}

type badOrder struct {
	A string `partitionkey:"first"`
}

type status int

func (s status) String() string { return [...]string{"pending", "paid"}[s] }

type stringerKey struct {
	Status status `partitionkey:""`
}

func TestResolveOrdersByTagOrder(t *testing.T) {
	key, ok := New().Resolve(orderedKeys{B: "b", A: "a", C: "c", X: "ignored"})
	require.True(t, ok)
	assert.Equal(t, "a|b|c", key)
}

func TestResolveKeepsNullSegments(t *testing.T) {
	key, ok := New().Resolve(nullableKeys{First: nil, Second: "x"})
	require.True(t, ok)
	assert.Equal(t, "|x", key)

	first := "f"
	key, _ = New().Resolve(&nullableKeys{First: &first, Second: "x"})
	assert.Equal(t, "f|x", key)
}

func TestResolveNoKeysIsNone(t *testing.T) {
	r := New()
	fn, ok, err := r.For(reflect.TypeOf(noKeys{}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fn)

	_, ok = r.Resolve(noKeys{ID: "1"})
	assert.False(t, ok)

	_, ok = r.Resolve("plain string")
	assert.False(t, ok)

	_, ok = r.Resolve(nil)
	assert.False(t, ok)
}

func TestResolveDeclarationOrderByDefault(t *testing.T) {
	key, ok := New().Resolve(declarationOrder{Region: "eu", Tenant: "acme"})
	require.True(t, ok)
	assert.Equal(t, "eu|acme", key)
}

func TestCanonicalForms(t *testing.T) {
	id := uuid.MustParse("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	at := time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("x", -3600))

	key, ok := New().Resolve(typedKeys{ID: id, Count: -42, Ratio: 0.25, Active: true, At: at, Small: 7})
	require.True(t, ok)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8|-42|0.25|true|2024-01-02T04:04:05.0000006Z|7|", key)

	key, _ = New().Resolve(typedKeys{Ratio: 1e21})
	assert.Contains(t, key, "|1000000000000000000000|", "floats never use exponent notation")
}

func TestStringerValues(t *testing.T) {
	key, ok := New().Resolve(stringerKey{Status: 1})
	require.True(t, ok)
	assert.Equal(t, "paid", key)
}

func TestEmbeddedFieldsArePromoted(t *testing.T) {
	key, ok := New().Resolve(embedded{Tenant: Tenant{TenantID: "t1"}, OrderID: "o9"})
	require.True(t, ok)
	assert.Equal(t, "t1|o9", key)

	key, ok = New().Resolve(embeddedPtr{OrderID: "o9"})
	require.True(t, ok)
	assert.Equal(t, "|o9", key, "nil embedded pointer yields an empty segment")
}

func TestTaggedEmbeddedFieldKeysOnWholeValue(t *testing.T) {
	id := uuid.MustParse("6f1c2e0a-5b7d-4c1e-9a3f-2d8b7e6c5a41")
	key, ok := New().Resolve(taggedEmbed{UUID: id, Region: "eu"})
	require.True(t, ok)
	assert.Equal(t, "eu|6f1c2e0a-5b7d-4c1e-9a3f-2d8b7e6c5a41", key)

	key, ok = New().Resolve(&taggedEmbedPtr{})
	require.True(t, ok)
	assert.Equal(t, "|", key, "nil tagged embed and its nil promoted field give empty segments")
}

func TestNilMessagePointer(t *testing.T) {
	var msg *orderedKeys
	key, ok := New().Resolve(msg)
	require.True(t, ok)
	assert.Equal(t, "||", key)
}

func TestDelimiterIsNotEscaped(t *testing.T) {
	key, _ := New().Resolve(declarationOrder{Region: "eu|west", Tenant: "acme"})
	assert.Equal(t, "eu|west|acme", key)
}

func TestMalformedOrderTag(t *testing.T) {
	r := New()
	_, ok, err := r.For(reflect.TypeOf(badOrder{}))
	assert.False(t, ok)
	assert.EqualError(t, err, `partitionkey: badOrder.A: invalid order "first"`)

	_, ok = r.Resolve(badOrder{A: "x"})
	assert.False(t, ok)
}

func TestForCachesPerType(t *testing.T) {
	r := New()
	fn1, ok, err := r.For(reflect.TypeOf(orderedKeys{}))
	require.NoError(t, err)
	require.True(t, ok)
	fn2, _, _ := r.For(reflect.TypeOf(&orderedKeys{}))

	assert.Equal(t, reflect.ValueOf(fn1).Pointer(), reflect.ValueOf(fn2).Pointer(), "pointer and value types share one entry")

	count := 0
	r.cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, 1, count)
}

func TestConcurrentLookups(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	keys := make([]string, 32)
	for i := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys[i], _ = r.Resolve(orderedKeys{A: "a", B: "b", C: "c"})
		}()
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, "a|b|c", k)
	}
}

func TestPackageResolveUsesDefault(t *testing.T) {
	key, ok := Resolve(orderedKeys{A: "1", B: "2", C: "3"})
	require.True(t, ok)
	assert.Equal(t, "1|2|3", key)
}

package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

var (
	depot    = geo.NewCoordinate(-4.0083, 5.3600)
	customer = geo.NewCoordinate(-3.9870, 5.3480)
)

func sampleRoute() *routing.Route {
	return &routing.Route{
		Geometry: geo.Polyline{depot, geo.NewCoordinate(-4.0, 5.355), customer},
		Steps: []routing.ManeuverStep{
			{ID: routing.StepID{Leg: 0, Step: 0}, ManeuverType: "depart", InstructionText: "Head out", Location: depot},
			{ID: routing.StepID{Leg: 0, Step: 1}, ManeuverType: "arrive", InstructionText: "You have arrived at your destination", Location: customer, CumulativeDistanceMeters: 2650},
		},
		TotalDistanceMeters:  2650,
		TotalDurationSeconds: 420,
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "b", []byte("one")))
	require.NoError(t, store.Set(ctx, "a", []byte("two")))

	value, found, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("one"), value)

	// Returned slices are copies
	value[0] = 'X'
	value, _, _ = store.Get(ctx, "b")
	assert.Equal(t, []byte("one"), value)

	require.NoError(t, store.Set(ctx, "b", []byte("three")))
	value, _, _ = store.Get(ctx, "b")
	assert.Equal(t, []byte("three"), value)
	value, _, _ = store.Get(ctx, "a")
	assert.Equal(t, []byte("two"), value)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "routes.json")

	store, err := OpenFileStore(path)
	require.NoError(t, err)

	_, found, err := store.Get(ctx, "route")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "route", []byte(`{"geometry":"abc"}`)))
	require.NoError(t, store.Set(ctx, "other", []byte("x")))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	value, found, err := reopened.Get(ctx, "route")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"geometry":"abc"}`), value)
	assert.Equal(t, path, reopened.Path())

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(depot, customer)
	assert.Equal(t, "route:-4.0083,5.3600->-3.9870,5.3480", a)

	// Sub-precision jitter maps to the same key
	jittered := geo.NewCoordinate(depot.Longitude+0.00002, depot.Latitude-0.00002)
	assert.Equal(t, a, Fingerprint(jittered, customer))

	// Direction matters
	assert.NotEqual(t, a, Fingerprint(customer, depot))

	// Negative zero is normalized
	assert.Equal(t, Fingerprint(geo.NewCoordinate(0, 0), customer), Fingerprint(geo.NewCoordinate(-0.00001, 0.00001), customer))
}

func TestRouteCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewRouteCache(NewMemoryStore())

	_, found, err := c.Get(ctx, depot, customer)
	require.NoError(t, err)
	assert.False(t, found)

	route := sampleRoute()
	require.NoError(t, c.Put(ctx, depot, customer, EntryFromRoute(route)))

	entry, found, err := c.Get(ctx, depot, customer)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 2.65, entry.DistanceKm, 1e-9)
	assert.InDelta(t, 7, entry.DurationMinutes, 1e-9)

	restored, err := entry.Route()
	require.NoError(t, err)
	require.Len(t, restored.Geometry, 3)
	for i, p := range route.Geometry {
		assert.InDelta(t, p.Latitude, restored.Geometry[i].Latitude, 1e-5)
		assert.InDelta(t, p.Longitude, restored.Geometry[i].Longitude, 1e-5)
	}
	assert.Equal(t, route.Steps, restored.Steps)
	assert.InDelta(t, route.TotalDistanceMeters, restored.TotalDistanceMeters, 1e-6)
	assert.InDelta(t, route.TotalDurationSeconds, restored.TotalDurationSeconds, 1e-6)
}

func TestRouteCache_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := NewRouteCache(NewMemoryStore())

	require.NoError(t, c.Put(ctx, depot, customer, RouteEntry{Geometry: "first", DistanceKm: 1}))
	nearby := geo.NewCoordinate(depot.Longitude+0.00001, depot.Latitude)
	require.NoError(t, c.Put(ctx, nearby, customer, RouteEntry{Geometry: "second", DistanceKm: 2}))

	entry, found, err := c.Get(ctx, depot, customer)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", entry.Geometry)
	assert.Equal(t, 2.0, entry.DistanceKm)
}

func TestRouteCache_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "routes.json")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, NewRouteCache(store).Put(ctx, depot, customer, EntryFromRoute(sampleRoute())))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	entry, found, err := NewRouteCache(reopened).Get(ctx, depot, customer)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, entry.Steps, 2)
}

func TestRouteCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Fingerprint(depot, customer), []byte("nope")))

	_, found, err := NewRouteCache(store).Get(ctx, depot, customer)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRouteCache_EmptyGeometry(t *testing.T) {
	ctx := context.Background()
	c := NewRouteCache(NewMemoryStore())

	route := &routing.Route{TotalDistanceMeters: 0}
	require.NoError(t, c.Put(ctx, depot, depot, EntryFromRoute(route)))

	entry, found, err := c.Get(ctx, depot, depot)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, entry.Geometry)

	restored, err := entry.Route()
	require.NoError(t, err)
	assert.Empty(t, restored.Geometry)
	assert.Zero(t, restored.TotalDistanceMeters)
}

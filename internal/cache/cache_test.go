package cache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func lahore() models.CityForecast {
	return models.CityForecast{
		City:    "Lahore",
		Outcome: models.OutcomeSuccess,
		Table: models.ForecastTable{
			{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Temp: 10.5, Humidity: 60, Wind: 5.2, City: "Lahore"},
		},
	}
}

// TestInMemoryCache_ExpiryCountsFromFetchedAt verifies an entry stored after its fetch expires
// ttl after FetchedAt, not ttl after Set.
func TestInMemoryCache_ExpiryCountsFromFetchedAt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewInMemoryCache(WithClock(clock.Now))

	val := lahore()
	val.FetchedAt = clock.Now()
	clock.Advance(10 * time.Minute)
	if err := c.Set(ctx, "Lahore", val, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(49 * time.Minute)
	if _, ok, _ := c.Get(ctx, "Lahore"); !ok {
		t.Fatal("Get() miss before FetchedAt+ttl")
	}
	clock.Advance(time.Minute)
	if _, ok, _ := c.Get(ctx, "Lahore"); ok {
		t.Error("Get() hit at FetchedAt+ttl, want expired")
	}

	stale := lahore()
	stale.FetchedAt = clock.Now().Add(-2 * time.Hour)
	if err := c.Set(ctx, "Multan", stale, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "Multan"); ok {
		t.Error("entry already past its ttl was stored")
	}
}

func TestRemainingTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		fetchedAt time.Time
		want      time.Duration
	}{
		{"unset", time.Time{}, time.Hour},
		{"just fetched", now, time.Hour},
		{"fetched earlier", now.Add(-15 * time.Minute), 45 * time.Minute},
		{"future stamp", now.Add(time.Minute), time.Hour},
		{"past ttl", now.Add(-90 * time.Minute), -30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := remainingTTL(models.CityForecast{FetchedAt: tt.fetchedAt}, time.Hour, now)
			if got != tt.want {
				t.Errorf("remainingTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := lahore()
	if err := c.Set(ctx, "Lahore", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "Lahore")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if !reflect.DeepEqual(got, val) {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies the entry is valid strictly before TTL and removed at TTL.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewInMemoryCache(WithClock(clock.Now))

	if err := c.Set(ctx, "Lahore", lahore(), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(time.Hour - time.Nanosecond)
	if _, ok, _ := c.Get(ctx, "Lahore"); !ok {
		t.Fatal("Get() ok = false just before TTL, want true")
	}

	clock.Advance(time.Nanosecond)
	if _, ok, _ := c.Get(ctx, "Lahore"); ok {
		t.Error("Get() ok = true at TTL, want false")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be deleted on access", c.Len())
	}
}

func TestInMemoryCache_Set_NonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "Lahore", lahore(), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "Lahore"); ok {
		t.Error("Get() ok = true, want false when stored with zero TTL")
	}
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	calls := 0
	compute := func(context.Context) models.CityForecast {
		calls++
		return lahore()
	}

	first, hit, err := GetOrCompute(ctx, c, "Lahore", FixedTTL(time.Hour), compute)
	if err != nil || hit {
		t.Fatalf("first GetOrCompute() hit=%v err=%v, want miss and nil", hit, err)
	}
	second, hit, err := GetOrCompute(ctx, c, "Lahore", FixedTTL(time.Hour), compute)
	if err != nil || !hit {
		t.Fatalf("second GetOrCompute() hit=%v err=%v, want hit and nil", hit, err)
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second = %+v, want identical to first %+v", second, first)
	}
}

func TestGetOrCompute_RecomputesAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewInMemoryCache(WithClock(clock.Now))
	calls := 0
	compute := func(context.Context) models.CityForecast {
		calls++
		return lahore()
	}

	_, _, _ = GetOrCompute(ctx, c, "Lahore", FixedTTL(time.Hour), compute)
	clock.Advance(time.Hour)
	_, hit, _ := GetOrCompute(ctx, c, "Lahore", FixedTTL(time.Hour), compute)
	if hit {
		t.Error("GetOrCompute() hit = true after TTL, want false")
	}
	if calls != 2 {
		t.Errorf("compute calls = %d, want 2", calls)
	}
}

func TestGetOrCompute_ZeroTTLNotStored(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	calls := 0
	compute := func(context.Context) models.CityForecast {
		calls++
		return models.CityForecast{City: "Lahore", Outcome: models.OutcomeFetchFailed}
	}

	for i := 0; i < 3; i++ {
		_, _, _ = GetOrCompute(ctx, c, "Lahore", FixedTTL(0), compute)
	}
	if calls != 3 {
		t.Errorf("compute calls = %d, want 3 when results are not cacheable", calls)
	}
}

type failingCache struct {
	getErr error
	setErr error
}

func (f *failingCache) Get(ctx context.Context, key string) (models.CityForecast, bool, error) {
	return models.CityForecast{}, false, f.getErr
}

func (f *failingCache) Set(ctx context.Context, key string, value models.CityForecast, ttl time.Duration) error {
	return f.setErr
}

// TestGetOrCompute_BackendErrors verifies backend failures degrade to a miss and still return the value.
func TestGetOrCompute_BackendErrors(t *testing.T) {
	tests := []struct {
		name  string
		cache *failingCache
	}{
		{"get error", &failingCache{getErr: errors.New("connection reset")}},
		{"set error", &failingCache{setErr: errors.New("server out of memory")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit, err := GetOrCompute(context.Background(), tt.cache, "Lahore", FixedTTL(time.Hour), func(context.Context) models.CityForecast {
				return lahore()
			})
			if err == nil {
				t.Error("GetOrCompute() err = nil, want backend error")
			}
			if hit {
				t.Error("GetOrCompute() hit = true, want false")
			}
			if got.City != "Lahore" || len(got.Table) != 1 {
				t.Errorf("GetOrCompute() = %+v, want computed value", got)
			}
		})
	}
}

func TestMemcachedKey(t *testing.T) {
	if got := memcachedKey("Lahore"); got != "forecast:Lahore" {
		t.Errorf(`memcachedKey("Lahore") = %q, want "forecast:Lahore"`, got)
	}

	distinct := []string{"New York", "New_York", "New  York", "tab\there", "tab_here", strings.Repeat("x", 400), strings.Repeat("x", 401)}
	seen := make(map[string]string, len(distinct))
	for _, city := range distinct {
		k := memcachedKey(city)
		if len(k) > 250 {
			t.Errorf("len(memcachedKey(%.20q)) = %d, want <= 250", city, len(k))
		}
		if strings.ContainsFunc(k, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
			t.Errorf("memcachedKey(%q) = %q contains unsafe characters", city, k)
		}
		if prev, ok := seen[k]; ok {
			t.Errorf("memcachedKey(%.20q) and memcachedKey(%.20q) both = %q", prev, city, k)
		}
		seen[k] = city
	}

	if memcachedKey("New York") != memcachedKey("New York") {
		t.Error("memcachedKey is not deterministic")
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211 , ,host2:11211")
	want := []string{"host1:11211", "host2:11211"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseAddrs() = %v, want %v", got, want)
	}
}

package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// brokenKV fails every operation, standing in for an unreachable store
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenKV) Del(context.Context, string) error { return errors.New("connection refused") }
func (brokenKV) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGetOrSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory())

	calls := 0
	producer := func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	v1, err := s.GetOrSet(ctx, "dld:properties:abc", time.Hour, producer)
	if err != nil || string(v1) != "payload" {
		t.Fatalf("first GetOrSet = %q, %v", v1, err)
	}
	v2, err := s.GetOrSet(ctx, "dld:properties:abc", time.Hour, producer)
	if err != nil || string(v2) != "payload" {
		t.Fatalf("second GetOrSet = %q, %v", v2, err)
	}
	if calls != 1 {
		t.Fatalf("producer ran %d times, want 1", calls)
	}
}

func TestGetOrSetWithUnreachableStore(t *testing.T) {
	ctx := context.Background()
	s := New(brokenKV{})

	calls := 0
	v, err := s.GetOrSet(ctx, "k", time.Hour, func(context.Context) ([]byte, error) {
		calls++
		return []byte("fresh"), nil
	})
	if err != nil {
		t.Fatalf("GetOrSet returned error despite producer success: %v", err)
	}
	if string(v) != "fresh" || calls != 1 {
		t.Fatalf("v=%q calls=%d", v, calls)
	}
	// direct ops degrade, never throw
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatalf("Get against broken store reported a hit")
	}
	if s.Set(ctx, "k", []byte("x"), time.Hour) {
		t.Fatalf("Set against broken store reported success")
	}
	if s.Del(ctx, "k") {
		t.Fatalf("Del against broken store reported success")
	}
}

func TestGetOrSetProducerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory())
	want := errors.New("upstream down")

	_, err := s.GetOrSet(ctx, "k", time.Hour, func(context.Context) ([]byte, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want producer error", err)
	}
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatalf("failed producer result was cached")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now()
	m.now = func() time.Time { return base }

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatalf("fresh key missing")
	}

	base = base.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expired key still present")
	}
}

func TestGetOrSetJSONTyped(t *testing.T) {
	type rec struct {
		ID    string `json:"id"`
		Price int    `json:"price"`
	}
	ctx := context.Background()
	s := New(NewMemory())

	calls := 0
	get := func() (rec, error) {
		return GetOrSetJSON(ctx, s, Key("dld", "detail", "p1"), time.Hour, func(context.Context) (rec, error) {
			calls++
			return rec{ID: "p1", Price: 100}, nil
		})
	}
	r1, err := get()
	if err != nil || r1.ID != "p1" {
		t.Fatalf("first: %+v, %v", r1, err)
	}
	r2, err := get()
	if err != nil || r2.Price != 100 {
		t.Fatalf("second: %+v, %v", r2, err)
	}
	if calls != 1 {
		t.Fatalf("producer ran %d times, want 1", calls)
	}
}

func TestKeyStableAndNamespaced(t *testing.T) {
	a := Key("dld", "search", "dubai-marina", "2")
	b := Key("dld", "search", "dubai-marina", "2")
	c := Key("dld", "search", "dubai-marina", "3")
	if a != b {
		t.Fatalf("same params produced different keys: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different params collided: %q", a)
	}
	if domainOf(a) != "dld" {
		t.Fatalf("domainOf = %q", domainOf(a))
	}
}

package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDescriber struct {
	calls   atomic.Int32
	release chan struct{}
	mu      sync.Mutex
	next    Description
	err     error
}

func (f *fakeDescriber) Describe(ctx context.Context) (Description, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return Description{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, f.err
}

func (f *fakeDescriber) set(description Description, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = description
	f.err = err
}

func describeTables(names ...string) Description {
	description := Description{Dialect: "postgres"}
	for _, name := range names {
		description.Tables = append(description.Tables, TableInfo{
			Schema:  "public",
			Name:    name,
			Columns: []ColumnInfo{{Name: "id", Type: "integer"}},
		})
	}
	return description
}

func TestCacheGetLoadsOnce(t *testing.T) {
	describer := &fakeDescriber{}
	describer.set(describeTables("customers"), nil)
	cache := NewCache(describer, time.Second, nil)

	for i := 0; i < 3; i++ {
		description, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(description.Tables) != 1 {
			t.Fatalf("Get() tables = %d", len(description.Tables))
		}
	}
	if got := describer.calls.Load(); got != 1 {
		t.Fatalf("Describe calls = %d, want 1", got)
	}
}

func TestCacheCoalescesConcurrentLoads(t *testing.T) {
	describer := &fakeDescriber{release: make(chan struct{})}
	describer.set(describeTables("customers", "orders"), nil)
	cache := NewCache(describer, time.Second, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			description, err := cache.Get(context.Background())
			if err == nil && len(description.Tables) != 2 {
				err = errors.New("partial description")
			}
			errs <- err
		}()
	}
	for describer.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(describer.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if got := describer.calls.Load(); got != 1 {
		t.Fatalf("Describe calls = %d, want 1", got)
	}
}

func TestCacheRefreshSwapsDescription(t *testing.T) {
	describer := &fakeDescriber{}
	describer.set(describeTables("customers"), nil)
	cache := NewCache(describer, time.Second, nil)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	describer.set(describeTables("customers", "orders"), nil)
	refreshed, err := cache.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(refreshed.Tables) != 2 {
		t.Fatalf("Refresh() tables = %d", len(refreshed.Tables))
	}
	current, _ := cache.Get(context.Background())
	if len(current.Tables) != 2 {
		t.Fatalf("Get() after refresh tables = %d", len(current.Tables))
	}
}

func TestCacheFailedRefreshKeepsPrevious(t *testing.T) {
	describer := &fakeDescriber{}
	describer.set(describeTables("customers"), nil)
	cache := NewCache(describer, time.Second, nil)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	describer.set(Description{}, &Error{Err: ErrNoTables})
	if _, err := cache.Refresh(context.Background()); !errors.Is(err, ErrNoTables) {
		t.Fatalf("Refresh() error = %v, want ErrNoTables", err)
	}
	current, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(current.Tables) != 1 {
		t.Fatalf("Get() tables = %d", len(current.Tables))
	}
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	describer := &fakeDescriber{}
	describer.set(describeTables("customers"), nil)
	cache := NewCache(describer, time.Second, nil)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	cache.Invalidate()
	if cache.Loaded() {
		t.Fatal("Loaded() = true after Invalidate")
	}
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := describer.calls.Load(); got != 2 {
		t.Fatalf("Describe calls = %d, want 2", got)
	}
}

func TestCacheGetHonoursCallerCancellation(t *testing.T) {
	describer := &fakeDescriber{release: make(chan struct{})}
	describer.set(describeTables("customers"), nil)
	cache := NewCache(describer, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Get() error = %v, want context.Canceled", err)
	}
	close(describer.release)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	describer := &fakeDescriber{}
	describer.set(describeTables("customers", "orders"), nil)
	cache := NewCache(describer, time.Second, nil)

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first.Tables[0].Name = "edited"
	first.Tables[1].Columns[0].Type = "text"
	first.Tables = append(first.Tables[:1], TableInfo{Name: "extra"})

	second, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if second.Tables[0].Name != "customers" || second.Tables[1].Name != "orders" {
		t.Fatalf("Get() tables = %+v", second.Tables)
	}
	if second.Tables[1].Columns[0].Type != "integer" {
		t.Fatalf("Get() column type = %q", second.Tables[1].Columns[0].Type)
	}
}

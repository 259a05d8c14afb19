package movies

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubProvider struct {
	records []MovieRecord
	err     error
	calls   atomic.Int32
	// release, when set, blocks every call until it is closed.
	release chan struct{}
	started chan struct{}
	once    sync.Once
	ctxErr  atomic.Value
}

func (s *stubProvider) Lookup(ctx context.Context, _ string) ([]MovieRecord, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.release != nil {
		<-s.release
	}
	if err := ctx.Err(); err != nil {
		s.ctxErr.Store(err)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCachingProviderLookup(t *testing.T) {
	base := &stubProvider{records: []MovieRecord{{ID: "301", Title: "The Matrix", Year: 1999}}}
	cache := NewCachingProvider(base, time.Minute, 10)

	ctx := context.Background()

	first, err := cache.Lookup(ctx, "matrix")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(first) != 1 || first[0].Title != "The Matrix" {
		t.Fatalf("unexpected records: %+v", first)
	}
	if got := base.calls.Load(); got != 1 {
		t.Fatalf("expected base called once got %d", got)
	}

	second, err := cache.Lookup(ctx, "matrix")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 1 {
		t.Fatalf("expected cached result got %d calls", got)
	}
	if len(second) != 1 || second[0].ID != first[0].ID || second[0].Title != first[0].Title {
		t.Fatalf("expected identical records got %+v", second)
	}
}

func TestCachingProviderReturnsCopies(t *testing.T) {
	base := &stubProvider{records: []MovieRecord{{ID: "1", Title: "Heat", Genres: []string{"crime"}}}}
	cache := NewCachingProvider(base, time.Minute, 10)

	records, err := cache.Lookup(context.Background(), "heat")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	records[0].Title = "mutated"
	records[0].Genres[0] = "mutated"

	again, err := cache.Lookup(context.Background(), "heat")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if again[0].Title != "Heat" || again[0].Genres[0] != "crime" {
		t.Fatalf("cached entry was mutated: %+v", again[0])
	}
}

func TestCachingProviderLookupErrors(t *testing.T) {
	cache := NewCachingProvider(nil, time.Minute, 10)
	if _, err := cache.Lookup(context.Background(), "matrix"); err != ErrProviderUnavailable {
		t.Fatalf("expected provider unavailable got %v", err)
	}

	base := &stubProvider{err: ErrProviderUnavailable}
	cache = NewCachingProvider(base, time.Minute, 10)
	if _, err := cache.Lookup(context.Background(), "matrix"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable got %v", err)
	}

	base.err = nil
	base.records = []MovieRecord{{ID: "1", Title: "Matrix"}}
	if _, err := cache.Lookup(context.Background(), "matrix"); err != nil {
		t.Fatalf("lookup after failure: %v", err)
	}
	if got := base.calls.Load(); got != 2 {
		t.Fatalf("expected failures not to be cached, got %d calls", got)
	}
}

func TestCachingProviderExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	base := &stubProvider{records: []MovieRecord{{ID: "1", Title: "Alien"}}}
	cache := NewCachingProvider(base, time.Minute, 10, WithClock(clock.Now))

	if _, err := cache.Lookup(context.Background(), "alien"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	clock.Advance(59 * time.Second)
	if _, err := cache.Lookup(context.Background(), "alien"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 1 {
		t.Fatalf("expected 1 call within ttl got %d", got)
	}

	clock.Advance(2 * time.Second)

	if _, err := cache.Lookup(context.Background(), "alien"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", got)
	}
}

func TestCachingProviderEvictsOldestFetch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	base := &stubProvider{records: []MovieRecord{{ID: "1", Title: "Movie"}}}
	cache := NewCachingProvider(base, time.Hour, 2, WithClock(clock.Now))
	ctx := context.Background()

	for _, query := range []string{"first", "second"} {
		if _, err := cache.Lookup(ctx, query); err != nil {
			t.Fatalf("lookup %q: %v", query, err)
		}
		clock.Advance(time.Second)
	}

	// A hit does not make "first" any younger.
	if _, err := cache.Lookup(ctx, "first"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := cache.Lookup(ctx, "third"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := cache.Len(); got != 2 {
		t.Fatalf("expected cache bounded at 2 got %d", got)
	}
	if got := base.calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls got %d", got)
	}

	if _, err := cache.Lookup(ctx, "second"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 3 {
		t.Fatalf("expected second to still be cached got %d calls", got)
	}
	if _, err := cache.Lookup(ctx, "first"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 4 {
		t.Fatalf("expected first to have been evicted got %d calls", got)
	}
}

func TestCachingProviderCollapsesConcurrentMisses(t *testing.T) {
	base := &stubProvider{
		records: []MovieRecord{{ID: "1", Title: "Dune"}},
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	cache := NewCachingProvider(base, time.Minute, 10)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := cache.Lookup(context.Background(), "dune")
			if err == nil && (len(records) != 1 || records[0].Title != "Dune") {
				err = errors.New("unexpected records")
			}
			errs <- err
		}()
	}

	<-base.started
	time.Sleep(20 * time.Millisecond)
	close(base.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
	}
	if got := base.calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call got %d", got)
	}
}

func TestCachingProviderCallerCancellation(t *testing.T) {
	base := &stubProvider{
		records: []MovieRecord{{ID: "1", Title: "Solaris"}},
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	cache := NewCachingProvider(base, time.Minute, 10)

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := cache.Lookup(ctx, "solaris")
		abandoned <- err
	}()
	<-base.started

	waiting := make(chan error, 1)
	go func() {
		_, err := cache.Lookup(context.Background(), "solaris")
		waiting <- err
	}()

	cancel()
	err := <-abandoned
	if !errors.Is(err, ErrProviderUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to see unavailable got %v", err)
	}

	close(base.release)
	if err := <-waiting; err != nil {
		t.Fatalf("expected other caller to succeed got %v", err)
	}
	if v := base.ctxErr.Load(); v != nil {
		t.Fatalf("expected upstream call to survive cancellation got %v", v)
	}
	if _, err := cache.Lookup(context.Background(), "solaris"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := base.calls.Load(); got != 1 {
		t.Fatalf("expected result of the shared call to be cached got %d calls", got)
	}
}

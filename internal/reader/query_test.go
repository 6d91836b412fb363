package reader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (o *recordingObserver) ObserveRead(query string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[query]++
	if err != nil {
		o.errs++
	}
}

func (o *recordingObserver) count(query string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[query]
}

func TestQueryRefetch(t *testing.T) {
	var n atomic.Int64
	q := NewQuery("n", func(context.Context) (int64, error) {
		return n.Add(1), nil
	}, QueryOptions{})
	defer q.Close()

	if st := q.Latest(); st.HasData || st.IsLoading {
		t.Fatalf("new query state = %+v, want empty", st)
	}

	st, err := q.Refetch(context.Background())
	if err != nil {
		t.Fatalf("Refetch() error = %v", err)
	}
	if !st.HasData || st.Data != 1 || st.IsLoading || st.Err != nil {
		t.Errorf("state = %+v, want data 1", st)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	st, _ = q.Refetch(context.Background())
	if st.Data != 2 {
		t.Errorf("second Refetch data = %d, want 2", st.Data)
	}
	if q.Key() != "n" {
		t.Errorf("Key() = %q", q.Key())
	}
}

func TestQueryKeepsLastValueOnError(t *testing.T) {
	fail := errors.New("rpc down")
	var broken atomic.Bool
	q := NewQuery("balance", func(context.Context) (int, error) {
		if broken.Load() {
			return 0, fail
		}
		return 42, nil
	}, QueryOptions{Label: "balanceOf"})
	defer q.Close()

	if _, err := q.Refetch(context.Background()); err != nil {
		t.Fatalf("Refetch() error = %v", err)
	}

	broken.Store(true)
	st, err := q.Refetch(context.Background())
	if !errors.Is(err, fail) {
		t.Fatalf("Refetch() error = %v, want %v", err, fail)
	}
	if !errors.Is(st.Err, ErrNetworkUnavailable) {
		t.Errorf("state.Err = %v, want ErrNetworkUnavailable", st.Err)
	}
	if !st.HasData || st.Data != 42 {
		t.Errorf("state = %+v, want last value 42 kept", st)
	}

	broken.Store(false)
	st, _ = q.Refetch(context.Background())
	if st.Err != nil {
		t.Errorf("state.Err after recovery = %v, want nil", st.Err)
	}
}

func TestQueryFirstFetchErrorClearsLoading(t *testing.T) {
	q := NewQuery("x", func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}, QueryOptions{})
	defer q.Close()

	st, _ := q.Refetch(context.Background())
	if st.HasData || st.IsLoading {
		t.Errorf("state = %+v, want no data and not loading", st)
	}
	if !errors.Is(st.Err, ErrNetworkUnavailable) {
		t.Errorf("state.Err = %v", st.Err)
	}
}

func TestQueryCoalescesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery("total", func(ctx context.Context) (int, error) {
		calls.Add(1)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, QueryOptions{})
	defer q.Close()

	const callers = 5
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, _ := q.Refetch(context.Background())
			results[i] = st.Data
		}(i)
	}

	// Let every caller join the in-flight call.
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("caller %d got %d, want 7", i, v)
		}
	}
}

func TestQueryCloseDiscardsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var updates atomic.Int32
	q := NewQuery("slow", func(context.Context) (int, error) {
		close(started)
		<-release
		return 99, nil
	}, QueryOptions{OnUpdate: func() { updates.Add(1) }})

	done := make(chan error, 1)
	go func() {
		_, err := q.Refetch(context.Background())
		done <- err
	}()

	<-started
	q.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("Refetch() error = %v, want ErrClosed", err)
	}
	before := updates.Load()
	close(release)

	// The fetch goroutine finishes after release; its value must not land.
	time.Sleep(20 * time.Millisecond)
	if st := q.Latest(); st.HasData {
		t.Errorf("state = %+v, want in-flight value discarded", st)
	}
	if updates.Load() != before {
		t.Error("OnUpdate fired after Close")
	}
	if _, err := q.Refetch(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refetch() after Close error = %v, want ErrClosed", err)
	}
	q.Close()
}

func TestQueryRefetchContextCancelled(t *testing.T) {
	release := make(chan struct{})
	q := NewQuery("slow", func(ctx context.Context) (int, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 1, nil
	}, QueryOptions{})
	defer q.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Refetch(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Refetch() error = %v, want deadline exceeded", err)
	}
}

func TestQueryPolls(t *testing.T) {
	var n atomic.Int32
	obs := &recordingObserver{}
	q := NewQuery("tick", func(context.Context) (int32, error) {
		return n.Add(1), nil
	}, QueryOptions{PollInterval: 5 * time.Millisecond, Observer: obs, Label: "tick"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	q.Close()
	atClose := n.Load()

	if atClose < 3 {
		t.Fatalf("fetches = %d, want at least 3", atClose)
	}
	if obs.count("tick") < 3 {
		t.Errorf("observed reads = %d, want at least 3", obs.count("tick"))
	}

	// One call already in flight may settle; nothing new starts.
	time.Sleep(10 * 5 * time.Millisecond)
	if after := n.Load(); after > atClose+1 {
		t.Errorf("fetches after Close = %d, was %d at Close", after, atClose)
	}
}

func TestQueryLimiter(t *testing.T) {
	// One token, refilled every 50ms.
	lim := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	q := NewQuery("lim", func(context.Context) (int, error) {
		return 1, nil
	}, QueryOptions{Limiter: lim})
	defer q.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := q.Refetch(context.Background()); err != nil {
			t.Fatalf("Refetch() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 limited fetches took %v, want >= ~100ms", elapsed)
	}
}

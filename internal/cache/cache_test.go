package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hostgenius/panel/internal/fetch"
	"github.com/hostgenius/panel/internal/module"
	"github.com/hostgenius/panel/internal/observability"
)

var errDown = &fetch.TransportError{URL: "/partials/x", StatusCode: 503, Status: "503 Service Unavailable"}

// fakeFetcher returns queued responses in order, repeating the last one.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	urls  []string
	queue []response
	gate  chan struct{} // when set, Fetch blocks until closed
}

type response struct {
	body string
	err  error
}

func (f *fakeFetcher) push(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, response{body, err})
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.urls = append(f.urls, url)
	var r response
	if len(f.queue) > 0 {
		r = f.queue[0]
		if len(f.queue) > 1 {
			f.queue = f.queue[1:]
		}
	}
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return r.body, r.err
}

func (f *fakeFetcher) setGate(g chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = g
}

// waitForCalls polls until at least n fetches have started.
func waitForCalls(t *testing.T, f *fakeFetcher, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("fetch calls = %d, want %d", f.Calls(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeClock is advanced explicitly by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRegistry() *module.Registry {
	r := module.NewRegistry()
	r.Register(module.Descriptor{ID: "dashboard", Title: "Dashboard", Kind: module.KindInternal})
	for _, id := range []string{"vps-services", "profile", "projects"} {
		r.Register(module.Descriptor{ID: id, Title: id, URL: "/partials/" + id, Kind: module.KindPartial})
	}
	return r
}

// thirtySecondPolicy gives every module a 30s TTL and forces profile.
func thirtySecondPolicy() Policy {
	return Policy{
		DefaultTTL:  30 * time.Second,
		ForceReload: map[string]bool{"profile": true},
	}
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeFetcher, *fakeClock) {
	t.Helper()
	f := &fakeFetcher{}
	clk := newFakeClock()
	base := []Option{WithPolicy(thirtySecondPolicy()), WithClock(clk.Now)}
	return New(f, testRegistry(), append(base, opts...)...), f, clk
}

func TestGet_FreshEntryMakesNoRequest(t *testing.T) {
	// Given: a successful fetch at t=0
	c, f, clk := newTestCache(t)
	f.push("A", nil)
	if _, err := c.Get(context.Background(), "vps-services"); err != nil {
		t.Fatalf("initial Get: %v", err)
	}

	// When: every get inside the TTL window
	for _, elapsed := range []time.Duration{0, time.Second, 29999 * time.Millisecond} {
		clk.now = newFakeClock().now.Add(elapsed)
		res, err := c.Get(context.Background(), "vps-services")

		// Then: content is served from memory
		if err != nil {
			t.Fatalf("Get at %v: %v", elapsed, err)
		}
		if res.Content != "A" || !res.FromCache || res.Degraded {
			t.Errorf("Get at %v = %+v, want cached A", elapsed, res)
		}
	}
	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.Calls())
	}
}

func TestGet_ExpiredEntryMakesExactlyOneRequest(t *testing.T) {
	// Given: an entry fetched at t=0
	c, f, clk := newTestCache(t)
	f.push("A", nil)
	f.push("B", nil)
	c.Get(context.Background(), "vps-services")

	// When: get at exactly the TTL
	clk.Advance(30 * time.Second)
	res, err := c.Get(context.Background(), "vps-services")

	// Then: one extra request refreshes the entry
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f.Calls() != 2 {
		t.Errorf("fetch calls = %d, want 2", f.Calls())
	}
	if res.Content != "B" || res.FromCache {
		t.Errorf("Get = %+v, want fresh B", res)
	}
	if got := c.State("vps-services"); got != Fresh {
		t.Errorf("State = %v, want fresh", got)
	}
}

func TestGet_FailedRefreshServesPriorEntry(t *testing.T) {
	// Given: a stale entry and a server that now fails
	core, logs := observer.New(zap.WarnLevel)
	c, f, clk := newTestCache(t, WithLogger(zap.New(core)))
	f.push("A", nil)
	f.push("", errDown)
	first, _ := c.Get(context.Background(), "vps-services")
	clk.Advance(time.Minute)

	// When
	res, err := c.Get(context.Background(), "vps-services")

	// Then: prior content, degraded, no error, one warning
	if err != nil {
		t.Fatalf("Get returned error %v, want degraded result", err)
	}
	if res.Content != "A" || !res.Degraded {
		t.Errorf("Get = %+v, want degraded A", res)
	}
	if !res.FetchedAt.Equal(first.FetchedAt) {
		t.Errorf("FetchedAt = %v, want original %v", res.FetchedAt, first.FetchedAt)
	}
	warnings := logs.FilterMessage("serving stale fragment after failed refresh").All()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if got := warnings[0].ContextMap()["module"]; got != "vps-services" {
		t.Errorf("warning module field = %v", got)
	}
	// Staleness never deletes.
	if got := c.State("vps-services"); got != Stale {
		t.Errorf("State = %v, want stale", got)
	}
}

func TestGet_FailedFetchWithNothingCachedReturnsTransportError(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("", errDown)

	res, err := c.Get(context.Background(), "vps-services")

	if !errors.Is(err, fetch.ErrTransport) {
		t.Fatalf("err = %v, want transport error", err)
	}
	var te *fetch.TransportError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Errorf("err = %#v, want status 503", err)
	}
	if res != (Result{}) {
		t.Errorf("Result = %+v, want zero", res)
	}
	if got := c.State("vps-services"); got != Absent {
		t.Errorf("State = %v, want absent", got)
	}
}

func TestInvalidate_ForcesRequest(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("A", nil)
	f.push("B", nil)
	c.Get(context.Background(), "vps-services")

	c.Invalidate("vps-services")
	if got := c.State("vps-services"); got != Absent {
		t.Fatalf("State after Invalidate = %v, want absent", got)
	}
	res, err := c.Get(context.Background(), "vps-services")

	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f.Calls() != 2 || res.Content != "B" {
		t.Errorf("calls=%d content=%q, want 2 and B", f.Calls(), res.Content)
	}
}

func TestInvalidate_ThenFailureHasNoFallback(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("A", nil)
	f.push("", errDown)
	c.Get(context.Background(), "vps-services")

	c.Invalidate("vps-services")
	_, err := c.Get(context.Background(), "vps-services")

	if !errors.Is(err, fetch.ErrTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("A", nil)
	c.Get(context.Background(), "vps-services")
	c.Get(context.Background(), "projects")

	c.InvalidateAll()

	if n := len(c.Snapshot()); n != 0 {
		t.Fatalf("Snapshot has %d entries, want 0", n)
	}
	c.Get(context.Background(), "vps-services")
	c.Get(context.Background(), "projects")
	if f.Calls() != 4 {
		t.Errorf("fetch calls = %d, want 4", f.Calls())
	}
}

func TestScenario_ThirtySecondTTL(t *testing.T) {
	t.Run("refresh succeeds", func(t *testing.T) {
		c, f, clk := newTestCache(t)
		f.push("A", nil)
		f.push("B", nil)

		c.Get(context.Background(), "vps-services") // t=0

		clk.Advance(10 * time.Second) // t=10000
		res, _ := c.Get(context.Background(), "vps-services")
		if res.Content != "A" || f.Calls() != 1 {
			t.Fatalf("t=10000: content=%q calls=%d, want A with no new request", res.Content, f.Calls())
		}

		clk.Advance(21 * time.Second) // t=31000
		res, _ = c.Get(context.Background(), "vps-services")
		if res.Content != "B" || f.Calls() != 2 {
			t.Fatalf("t=31000: content=%q calls=%d, want B with one request", res.Content, f.Calls())
		}
	})

	t.Run("refresh fails", func(t *testing.T) {
		c, f, clk := newTestCache(t)
		f.push("A", nil)
		f.push("", errDown)

		c.Get(context.Background(), "vps-services")
		clk.Advance(31 * time.Second)
		res, err := c.Get(context.Background(), "vps-services")

		if err != nil || res.Content != "A" || !res.Degraded {
			t.Fatalf("t=31000: res=%+v err=%v, want degraded A", res, err)
		}
		if f.Calls() != 2 {
			t.Errorf("fetch calls = %d, want 2", f.Calls())
		}
	})
}

func TestScenario_ForceReload(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("P1", nil)
	f.push("P2", nil)

	first, _ := c.Get(context.Background(), "profile")
	second, _ := c.Get(context.Background(), "profile") // elapsed 0

	if f.Calls() != 2 {
		t.Fatalf("fetch calls = %d, want 2", f.Calls())
	}
	if first.Content != "P1" || second.Content != "P2" || second.FromCache {
		t.Errorf("got %q then %+v", first.Content, second)
	}
	if got := c.State("profile"); got != Stale {
		t.Errorf("State = %v, want stale for force-reloaded module", got)
	}
}

func TestForceReload_FallsBackOnFailure(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("P1", nil)
	f.push("", errDown)
	c.Get(context.Background(), "profile")

	res, err := c.Get(context.Background(), "profile")

	if err != nil || res.Content != "P1" || !res.Degraded {
		t.Errorf("res=%+v err=%v, want degraded P1", res, err)
	}
}

func TestGet_UnknownModule(t *testing.T) {
	c, f, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "nope")

	if !errors.Is(err, module.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if f.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.Calls())
	}
}

func TestGet_InternalModuleIsNotFetchable(t *testing.T) {
	c, f, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "dashboard")

	if !errors.Is(err, ErrNotFetchable) {
		t.Errorf("err = %v, want ErrNotFetchable", err)
	}
	if f.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.Calls())
	}
}

func TestGet_UsesDescriptorURL(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("x", nil)

	c.Get(context.Background(), "projects")

	if len(f.urls) != 1 || f.urls[0] != "/partials/projects" {
		t.Errorf("urls = %v", f.urls)
	}
}

func TestGet_CoalescesConcurrentRequests(t *testing.T) {
	// Given: a fetch that blocks until released
	c, f, _ := newTestCache(t)
	f.push("A", nil)
	f.gate = make(chan struct{})

	// When: several callers ask for the same module at once
	const callers = 8
	var wg sync.WaitGroup
	var ok atomic.Int32
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			res, err := c.Get(context.Background(), "vps-services")
			if err == nil && res.Content == "A" {
				ok.Add(1)
			}
		}()
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	// Wait until the first fetch is in progress before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for f.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	// Then: every caller gets A; at most a straggler that arrived after
	// the entry was stored could hit the cache, never a second request.
	if ok.Load() != callers {
		t.Errorf("successful callers = %d, want %d", ok.Load(), callers)
	}
	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.Calls())
	}
}

func TestInvalidate_DuringFetchForcesNewRequest(t *testing.T) {
	for _, tt := range []struct {
		name       string
		invalidate func(c *Cache)
	}{
		{"one module", func(c *Cache) { c.Invalidate("vps-services") }},
		{"all modules", func(c *Cache) { c.InvalidateAll() }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a fetch of OLD that is still in progress
			c, f, _ := newTestCache(t)
			f.push("OLD", nil)
			f.push("NEW", nil)
			gate := make(chan struct{})
			f.setGate(gate)

			type got struct {
				res Result
				err error
			}
			first := make(chan got, 1)
			go func() {
				res, err := c.Get(context.Background(), "vps-services")
				first <- got{res, err}
			}()
			waitForCalls(t, f, 1)
			f.setGate(nil)

			// When: the module is invalidated and requested again
			tt.invalidate(c)
			res, err := c.Get(context.Background(), "vps-services")

			// Then: a second request returns the new body
			if err != nil {
				t.Fatalf("Get after invalidate: %v", err)
			}
			if f.Calls() != 2 {
				t.Errorf("fetch calls = %d, want 2", f.Calls())
			}
			if res.Content != "NEW" {
				t.Errorf("Content = %q, want NEW", res.Content)
			}

			// And: the older response does not overwrite the newer entry
			close(gate)
			if old := <-first; old.err != nil || old.res.Content != "OLD" {
				t.Errorf("first Get = %q, %v; want OLD", old.res.Content, old.err)
			}
			res, err = c.Get(context.Background(), "vps-services")
			if err != nil || res.Content != "NEW" || !res.FromCache {
				t.Errorf("cached Get = %q (from cache %v), %v; want cached NEW", res.Content, res.FromCache, err)
			}
			if f.Calls() != 2 {
				t.Errorf("fetch calls = %d, want 2", f.Calls())
			}
		})
	}
}

func TestGet_CanceledCallerDoesNotFailSharedRequest(t *testing.T) {
	// Given: a leader whose context is canceled while its fetch is pending
	c, f, _ := newTestCache(t)
	f.push("A", nil)
	gate := make(chan struct{})
	f.setGate(gate)

	ctx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "vps-services")
		leader <- err
	}()
	waitForCalls(t, f, 1)

	follower := make(chan Result, 1)
	go func() {
		res, _ := c.Get(context.Background(), "vps-services")
		follower <- res
	}()

	// When: the leader gives up and the fetch then completes
	cancel()
	if err := <-leader; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	close(gate)

	// Then: the other caller still gets the fragment
	if res := <-follower; res.Content != "A" || res.Degraded {
		t.Errorf("follower = %+v, want fresh A", res)
	}
	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.Calls())
	}
}

func TestGet_DifferentModulesFetchIndependently(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("x", nil)

	c.Get(context.Background(), "vps-services")
	c.Get(context.Background(), "projects")

	if f.Calls() != 2 {
		t.Errorf("fetch calls = %d, want 2", f.Calls())
	}
}

func TestSnapshot(t *testing.T) {
	c, f, clk := newTestCache(t)
	f.push("x", nil)
	c.Get(context.Background(), "vps-services")
	clk.Advance(40 * time.Second)
	c.Get(context.Background(), "projects")

	snap := c.Snapshot()

	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}
	if snap[0].ID != "projects" || snap[0].State != Fresh || snap[0].Age != 0 {
		t.Errorf("snap[0] = %+v", snap[0])
	}
	if snap[1].ID != "vps-services" || snap[1].State != Stale || snap[1].Age != 40*time.Second {
		t.Errorf("snap[1] = %+v", snap[1])
	}
}

func TestRunInvalidator(t *testing.T) {
	c, f, _ := newTestCache(t)
	f.push("x", nil)
	c.Get(context.Background(), "vps-services")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunInvalidator(ctx, "vps-services", 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.State("vps-services") != Absent && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if got := c.State("vps-services"); got != Absent {
		t.Fatalf("State = %v, want absent after tick", got)
	}
	// The invalidator never refetches.
	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.Calls())
	}
}

func TestRunInvalidator_NonPositiveIntervalReturns(t *testing.T) {
	c, _, _ := newTestCache(t)
	done := make(chan struct{})
	go func() {
		c.RunInvalidator(context.Background(), "profile", 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunInvalidator did not return for zero interval")
	}
}

func TestMetrics(t *testing.T) {
	m := observability.NewCollector("panel")
	c, f, clk := newTestCache(t, WithMetrics(m))
	f.push("A", nil)
	f.push("", errDown)

	c.Get(context.Background(), "vps-services") // fetch
	c.Get(context.Background(), "vps-services") // hit
	clk.Advance(time.Minute)
	c.Get(context.Background(), "vps-services") // fetch, error, degraded
	c.Invalidate("vps-services")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"hits", testutil.ToFloat64(m.CacheHits.WithLabelValues("vps-services")), 1},
		{"fetches", testutil.ToFloat64(m.CacheFetches.WithLabelValues("vps-services")), 2},
		{"errors", testutil.ToFloat64(m.CacheFetchErrors.WithLabelValues("vps-services")), 1},
		{"degraded", testutil.ToFloat64(m.CacheDegraded.WithLabelValues("vps-services")), 1},
		{"invalidations", testutil.ToFloat64(m.CacheInvalidations.WithLabelValues("vps-services")), 1},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Errorf("%s = %v, want %v", ck.name, ck.got, ck.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Absent: "absent", Fresh: "fresh", Stale: "stale"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

package fetch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/geosift/geosift/cache"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/internal/geosifttest"
	"github.com/geosift/geosift/plugin"
)

// scriptedPlugin serves a fixed page sequence, one page per call, with
// independent pagination state per target.
type scriptedPlugin struct {
	name       string
	configured bool
	reason     string
	pages      []plugin.Page
	failAt     int // 0-based call index that errors; -1 never
	failErr    error
	delay      time.Duration
	endless    bool // always return one record and a next cursor

	mu            sync.Mutex
	calls         map[string]int
	cursors       map[string][]string
	activations   int
	deactivations int
}

func newScriptedPlugin(name string, pages ...plugin.Page) *scriptedPlugin {
	return &scriptedPlugin{
		name:       name,
		configured: true,
		failAt:     -1,
		pages:      pages,
		calls:      make(map[string]int),
		cursors:    make(map[string][]string),
	}
}

func (s *scriptedPlugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{Name: s.name, Category: "test", Version: "1.0.0"}
}

func (s *scriptedPlugin) IsConfigured() (bool, string) {
	return s.configured, s.reason
}

func (s *scriptedPlugin) SearchForTargets(ctx context.Context, query string) ([]geo.Target, error) {
	return []geo.Target{{PluginName: s.name, ExternalID: query, DisplayName: query}}, nil
}

func (s *scriptedPlugin) ReturnLocations(ctx context.Context, target geo.Target, params plugin.FetchParams) (plugin.Page, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return plugin.Page{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls[target.ExternalID]
	s.calls[target.ExternalID]++
	s.cursors[target.ExternalID] = append(s.cursors[target.ExternalID], params.Cursor)

	if s.failAt >= 0 && call == s.failAt {
		return plugin.Page{}, s.failErr
	}
	if s.endless {
		return pageOf(call, 1, fmt.Sprintf("page-%d", call+1)), nil
	}
	if call >= len(s.pages) {
		return plugin.Page{}, nil
	}
	return s.pages[call], nil
}

func (s *scriptedPlugin) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations++
	return nil
}

func (s *scriptedPlugin) Deactivate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivations++
	return nil
}

func (s *scriptedPlugin) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *scriptedPlugin) receivedCursors(externalID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cursors[externalID]))
	copy(out, s.cursors[externalID])
	return out
}

var (
	_ plugin.Plugin      = (*scriptedPlugin)(nil)
	_ plugin.Activatable = (*scriptedPlugin)(nil)
)

// limitedPlugin adds a declared request budget to a scripted plugin.
type limitedPlugin struct {
	*scriptedPlugin
	decl plugin.RateLimit
}

func (l *limitedPlugin) RateLimit() plugin.RateLimit {
	return l.decl
}

var _ plugin.RateLimited = (*limitedPlugin)(nil)

func pageOf(start, count int, cursor string) plugin.Page {
	records := make([]geo.RawRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, geo.RawRecord{
			"lat":  40.0 + float64(start+i)*0.01,
			"lon":  -74.0,
			"name": fmt.Sprintf("Spot %d", start+i),
		})
	}
	return plugin.Page{Records: records, Cursor: cursor}
}

func newTestOrchestrator(t *testing.T, plugins ...plugin.Plugin) (*Orchestrator, *cache.Manager) {
	t.Helper()
	registry := plugin.NewRegistry("1.0.0")
	for _, plg := range plugins {
		if err := registry.Register(plg); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	cacheManager := cache.NewManager(t.TempDir())
	return NewOrchestrator(registry, cacheManager, geo.NewStandardizer()), cacheManager
}

func TestOrchestratorCollectPipeline(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 3, "page-1"),
		pageOf(3, 2, ""),
	)
	orchestrator, cacheManager := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	locations, err := orchestrator.Collect(context.Background(), "bsky", target, Options{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(locations) != 5 {
		t.Fatalf("Expected 5 locations, got %d", len(locations))
	}
	if locations[0].Latitude != 40.0 || locations[0].Longitude != -74.0 {
		t.Errorf("Unexpected first coordinates (%v, %v)", locations[0].Latitude, locations[0].Longitude)
	}
	if plg.callCount() != 2 {
		t.Errorf("Expected 2 page calls, got %d", plg.callCount())
	}

	// The cursor from each page feeds the next call
	cursors := plg.receivedCursors(target.ExternalID)
	if len(cursors) != 2 || cursors[0] != "" || cursors[1] != "page-1" {
		t.Errorf("Unexpected cursor sequence %v", cursors)
	}

	// A session is held for the duration of the run
	if plg.activations != 1 || plg.deactivations != 1 {
		t.Errorf("Expected one activate/deactivate cycle, got %d/%d", plg.activations, plg.deactivations)
	}

	// The result landed in the cache
	cached, ok := cacheManager.Get("bsky", target.ExternalID)
	if !ok || len(cached) != 5 {
		t.Errorf("Expected the result cached, got ok=%v len=%d", ok, len(cached))
	}
}

func TestOrchestratorCollectServesCache(t *testing.T) {
	plg := newScriptedPlugin("bsky", pageOf(0, 3, ""))
	orchestrator, cacheManager := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	want := geosifttest.Locations(4)
	if err := cacheManager.Put("bsky", target.ExternalID, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	locations, err := orchestrator.Collect(context.Background(), "bsky", target, Options{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(locations) != 4 {
		t.Errorf("Expected the 4 cached locations, got %d", len(locations))
	}
	if plg.callCount() != 0 {
		t.Errorf("Expected the plugin untouched on a cache hit, got %d calls", plg.callCount())
	}
}

func TestOrchestratorCollectRefreshBypassesCache(t *testing.T) {
	plg := newScriptedPlugin("bsky", pageOf(0, 2, ""))
	orchestrator, cacheManager := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	if err := cacheManager.Put("bsky", target.ExternalID, geosifttest.Locations(4)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	locations, err := orchestrator.Collect(context.Background(), "bsky", target, Options{Refresh: true})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(locations) != 2 {
		t.Errorf("Expected 2 fresh locations, got %d", len(locations))
	}
	if plg.callCount() != 1 {
		t.Errorf("Expected the plugin invoked on refresh, got %d calls", plg.callCount())
	}

	// The refresh replaced the cached payload
	cached, ok := cacheManager.Get("bsky", target.ExternalID)
	if !ok || len(cached) != 2 {
		t.Errorf("Expected the cache overwritten, got ok=%v len=%d", ok, len(cached))
	}
}

func TestOrchestratorPartialResultsOnPageError(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 3, "page-1"),
		pageOf(3, 3, "page-2"),
	)
	plg.failAt = 1
	plg.failErr = fmt.Errorf("upstream 500")

	orchestrator, cacheManager := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	locations, err := orchestrator.Collect(context.Background(), "bsky", target, Options{})
	if err == nil {
		t.Fatal("Expected the page error surfaced")
	}
	if !errors.IsFetchError(err) {
		t.Errorf("Expected a fetch error, got %v", err)
	}
	if len(locations) != 3 {
		t.Errorf("Expected the first page preserved, got %d locations", len(locations))
	}

	// Incomplete fetches never land in the cache
	if _, ok := cacheManager.Get("bsky", target.ExternalID); ok {
		t.Error("Expected no cache entry for a failed fetch")
	}
}

func TestOrchestratorMaxItemsSoftCap(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 4, "page-1"),
		pageOf(4, 4, "page-2"),
		pageOf(8, 4, "page-3"),
		pageOf(12, 4, "page-4"),
	)
	orchestrator, _ := newTestOrchestrator(t, plg)

	locations, err := orchestrator.Collect(context.Background(), "bsky", geosifttest.Target("bsky"), Options{MaxItems: 6})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	// The page that crossed the cap is kept, nothing further is fetched
	if plg.callCount() != 2 {
		t.Errorf("Expected 2 page calls under a cap of 6, got %d", plg.callCount())
	}
	if len(locations) != 8 {
		t.Errorf("Expected 8 locations (cap plus the crossing page), got %d", len(locations))
	}
}

func TestOrchestratorPaginationTerminates(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 3, "page-1"),
		pageOf(3, 2, "page-2"),
		pageOf(5, 1, "page-3"),
		plugin.Page{}, // provider runs out
	)
	orchestrator, _ := newTestOrchestrator(t, plg)

	locations, err := orchestrator.Collect(context.Background(), "bsky", geosifttest.Target("bsky"), Options{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if plg.callCount() != 4 {
		t.Errorf("Expected 4 page calls against a draining provider, got %d", plg.callCount())
	}
	if len(locations) != 6 {
		t.Errorf("Expected 6 locations, got %d", len(locations))
	}
}

func TestOrchestratorUnknownPlugin(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t)

	_, err := orchestrator.Collect(context.Background(), "ghost", geosifttest.Target("ghost"), Options{})
	if err == nil {
		t.Fatal("Expected an error for an unregistered plugin")
	}
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOrchestratorUnconfiguredPlugin(t *testing.T) {
	plg := newScriptedPlugin("bsky")
	plg.configured = false
	plg.reason = "app password not set"
	orchestrator, _ := newTestOrchestrator(t, plg)

	_, err := orchestrator.Collect(context.Background(), "bsky", geosifttest.Target("bsky"), Options{})
	if err == nil {
		t.Fatal("Expected an error for an unconfigured plugin")
	}
	if !errors.IsNotConfigured(err) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
	if plg.callCount() != 0 {
		t.Errorf("Expected the plugin untouched, got %d calls", plg.callCount())
	}
}

func TestOrchestratorStartRunSingleFlight(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 1, "page-1"),
		pageOf(1, 1, "page-2"),
		pageOf(2, 1, ""),
	)
	plg.delay = 30 * time.Millisecond
	orchestrator, _ := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	run, err := orchestrator.StartRun(context.Background(), "bsky", target, Options{})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	// Same pair while in flight is rejected
	if _, err := orchestrator.StartRun(context.Background(), "bsky", target, Options{}); !errors.IsRunActive(err) {
		t.Errorf("Expected ErrRunActive for a duplicate run, got %v", err)
	}

	// A different target of the same plugin is independent
	other := geo.Target{PluginName: "bsky", ExternalID: "other-user", DisplayName: "Other"}
	otherRun, err := orchestrator.StartRun(context.Background(), "bsky", other, Options{})
	if err != nil {
		t.Fatalf("StartRun for a second target failed: %v", err)
	}

	if got := len(orchestrator.ActiveRuns()); got != 2 {
		t.Errorf("Expected 2 active runs, got %d", got)
	}

	locations, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(locations) != 3 {
		t.Errorf("Expected 3 locations, got %d", len(locations))
	}
	if run.Status() != RunStatusCompleted {
		t.Errorf("Expected status completed, got %s", run.Status())
	}
	if _, err := otherRun.Wait(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	// The pair is free again once the run ends
	rerun, err := orchestrator.StartRun(context.Background(), "bsky", target, Options{})
	if err != nil {
		t.Fatalf("StartRun after completion failed: %v", err)
	}
	if _, err := rerun.Wait(context.Background()); err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}
}

func TestOrchestratorRunCancellation(t *testing.T) {
	plg := newScriptedPlugin("bsky")
	plg.endless = true
	plg.delay = 10 * time.Millisecond
	orchestrator, _ := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	run, err := orchestrator.StartRun(context.Background(), "bsky", target, Options{})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	// Let a few pages land, then stop
	time.Sleep(80 * time.Millisecond)
	run.Cancel()

	locations, err := run.Wait(context.Background())
	if err == nil {
		t.Fatal("Expected a cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if run.Status() != RunStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", run.Status())
	}
	if len(locations) == 0 {
		t.Error("Expected the records accumulated before cancellation to survive")
	}
	if got := len(orchestrator.ActiveRuns()); got != 0 {
		t.Errorf("Expected no active runs after cancellation, got %d", got)
	}
	if _, ok := orchestrator.RunFor("bsky", target.ExternalID); ok {
		t.Error("Expected the run deregistered after cancellation")
	}
}

func TestOrchestratorRunTimeout(t *testing.T) {
	plg := newScriptedPlugin("bsky")
	plg.endless = true
	plg.delay = 10 * time.Millisecond
	orchestrator, _ := newTestOrchestrator(t, plg)
	target := geosifttest.Target("bsky")

	run, err := orchestrator.StartRun(context.Background(), "bsky", target, Options{Timeout: 80 * time.Millisecond})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	locations, err := run.Wait(context.Background())
	if err == nil {
		t.Fatal("Expected the deadline to end the run")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if run.Status() != RunStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", run.Status())
	}
	if len(locations) == 0 {
		t.Error("Expected the records accumulated before the deadline to survive")
	}
}

func TestOrchestratorRunProgress(t *testing.T) {
	plg := newScriptedPlugin("bsky",
		pageOf(0, 2, "page-1"),
		pageOf(2, 2, ""),
	)
	orchestrator, _ := newTestOrchestrator(t, plg)

	run, err := orchestrator.StartRun(context.Background(), "bsky", geosifttest.Target("bsky"), Options{MaxItems: 4})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	var events []Progress
	for report := range run.Progress() {
		events = append(events, report)
	}

	if len(events) == 0 {
		t.Fatal("Expected progress reports")
	}
	last := 0
	for i, event := range events {
		if event.Percent < last {
			t.Errorf("Report %d went backwards: %d after %d", i, event.Percent, last)
		}
		if event.Percent > 100 {
			t.Errorf("Report %d exceeds 100: %d", i, event.Percent)
		}
		if event.Message == "" {
			t.Errorf("Report %d has no message", i)
		}
		last = event.Percent
	}
	if events[len(events)-1].Percent != 100 {
		t.Errorf("Expected the final report to saturate at 100, got %d", events[len(events)-1].Percent)
	}

	if _, err := run.Wait(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestOrchestratorSharedLimiterPerPlugin(t *testing.T) {
	const window = 200 * time.Millisecond
	plg := &limitedPlugin{
		scriptedPlugin: newScriptedPlugin("bsky",
			pageOf(0, 1, "page-1"),
			pageOf(1, 1, ""),
		),
		decl: plugin.RateLimit{MaxCalls: 2, WindowSeconds: window.Seconds()},
	}
	orchestrator, _ := newTestOrchestrator(t, plg)

	start := time.Now()
	if _, err := orchestrator.Collect(context.Background(), "bsky", geosifttest.Target("bsky"), Options{}); err != nil {
		t.Fatalf("First collect failed: %v", err)
	}
	other := geo.Target{PluginName: "bsky", ExternalID: "other-user"}
	if _, err := orchestrator.Collect(context.Background(), "bsky", other, Options{}); err != nil {
		t.Fatalf("Second collect failed: %v", err)
	}
	elapsed := time.Since(start)

	// Four calls through a 2-per-window budget span at least one window
	if plg.callCount() != 4 {
		t.Fatalf("Expected 4 page calls across both targets, got %d", plg.callCount())
	}
	if elapsed < window {
		t.Errorf("Two runs made 4 calls in %v; the shared budget requires at least %v", elapsed, window)
	}
	if len(orchestrator.limiters) != 1 {
		t.Errorf("Expected one shared limiter for the plugin, got %d", len(orchestrator.limiters))
	}
}

package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/geosift/geosift/cache"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
	"github.com/geosift/geosift/plugin"
)

// Options control one fetch run.
type Options struct {
	// MaxItems is a soft cap on accumulated records: the loop stops at
	// the first page that reaches it, so the result may run over by at
	// most one page. Zero means unbounded.
	MaxItems int

	// PageSize is a page size hint passed to the plugin; zero lets the
	// plugin choose
	PageSize int

	// Refresh skips the cache read; the fresh result still writes back
	Refresh bool

	// Timeout caps one run end to end; zero means no deadline. Expiry is
	// reported like cancellation, with partial results intact.
	Timeout time.Duration
}

// Orchestrator drives plugins through the fetch pipeline: cache check,
// rate-limited paginated retrieval, standardization, cache write. It
// borrows plugin references from the registry per call and never stores
// them.
//
// Limiters are shared per plugin, so concurrent runs against different
// targets of one provider still respect that provider's budget.
type Orchestrator struct {
	registry     *plugin.Registry
	cache        *cache.Manager
	standardizer *geo.Standardizer

	limitersMu sync.Mutex
	limiters   map[string]*Limiter

	runsMu sync.Mutex
	runs   map[string]*Run
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(registry *plugin.Registry, cacheManager *cache.Manager, standardizer *geo.Standardizer) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		cache:        cacheManager,
		standardizer: standardizer,
		limiters:     make(map[string]*Limiter),
		runs:         make(map[string]*Run),
	}
}

// Collect runs the full pipeline for one (plugin, target) and blocks
// until it finishes. On a mid-loop fetch failure the standardized
// partial results return together with the error.
func (o *Orchestrator) Collect(ctx context.Context, pluginName string, target geo.Target, opts Options) ([]geo.StandardizedLocation, error) {
	plg, err := o.lookup(pluginName)
	if err != nil {
		return nil, err
	}

	sink := newProgressSink()
	defer sink.close()
	return o.collect(ctx, plg, pluginName, target, opts, sink)
}

// StartRun launches the pipeline in the background and returns a handle
// for progress, cancellation, and the result. At most one run per
// (plugin, target) pair is in flight; starting a second returns
// ErrRunActive.
func (o *Orchestrator) StartRun(ctx context.Context, pluginName string, target geo.Target, opts Options) (*Run, error) {
	plg, err := o.lookup(pluginName)
	if err != nil {
		return nil, err
	}

	key := cache.Key(pluginName, target.ExternalID)
	runCtx, cancel := context.WithCancel(ctx)

	o.runsMu.Lock()
	if _, exists := o.runs[key]; exists {
		o.runsMu.Unlock()
		cancel()
		return nil, errors.Wrapf(errors.ErrRunActive, "plugin %s, target %s", pluginName, target.ExternalID)
	}
	run := newRun(pluginName, target, cancel)
	o.runs[key] = run
	o.runsMu.Unlock()

	logger.Infow("Fetch run started",
		"plugin", pluginName,
		"target", target.ExternalID)

	go func() {
		locations, err := o.collect(runCtx, plg, pluginName, target, opts, run.sink)

		// Deregister before finish so a waiter on Done can start the
		// next run without hitting the stale entry
		o.runsMu.Lock()
		delete(o.runs, key)
		o.runsMu.Unlock()

		run.finish(locations, err)
		cancel()

		switch run.Status() {
		case RunStatusCompleted:
			logger.Infow("Fetch run completed",
				"plugin", pluginName,
				"target", target.ExternalID,
				"locations", len(locations))
		case RunStatusCancelled:
			logger.Infow("Fetch run cancelled",
				"plugin", pluginName,
				"target", target.ExternalID,
				"locations_before_cancel", len(locations))
		default:
			logger.Warnw("Fetch run failed",
				"plugin", pluginName,
				"target", target.ExternalID,
				"locations_before_failure", len(locations),
				"error", err)
		}
	}()

	return run, nil
}

// RunFor returns the active run for a (plugin, target) pair, if any.
func (o *Orchestrator) RunFor(pluginName, externalID string) (*Run, bool) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	run, ok := o.runs[cache.Key(pluginName, externalID)]
	return run, ok
}

// ActiveRuns returns a snapshot of the in-flight runs, ordered by
// plugin then target.
func (o *Orchestrator) ActiveRuns() []*Run {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()

	runs := make([]*Run, 0, len(o.runs))
	for _, run := range o.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].PluginName != runs[j].PluginName {
			return runs[i].PluginName < runs[j].PluginName
		}
		return runs[i].Target.ExternalID < runs[j].Target.ExternalID
	})
	return runs
}

// lookup borrows the named plugin from the registry, requiring it to be
// present and configured.
func (o *Orchestrator) lookup(pluginName string) (plugin.Plugin, error) {
	plg, ok := o.registry.Get(pluginName)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "plugin %q is not registered", pluginName)
	}
	if configured, reason := plg.IsConfigured(); !configured {
		if reason == "" {
			reason = "missing required settings"
		}
		return nil, errors.Wrapf(errors.ErrNotConfigured, "plugin %q: %s", pluginName, reason)
	}
	return plg, nil
}

// limiterFor returns the plugin's shared limiter, built on first use
// from the plugin's declared budget.
func (o *Orchestrator) limiterFor(pluginName string, plg plugin.Plugin) *Limiter {
	o.limitersMu.Lock()
	defer o.limitersMu.Unlock()

	if limiter, ok := o.limiters[pluginName]; ok {
		return limiter
	}

	var limiter *Limiter
	if rl, ok := plg.(plugin.RateLimited); ok {
		decl := rl.RateLimit()
		limiter = LimiterFromManifest(&decl)
	} else {
		limiter = NewLimiter(DefaultMaxCalls, DefaultWindow)
	}
	o.limiters[pluginName] = limiter
	return limiter
}

// collect is the pipeline body shared by Collect and StartRun.
func (o *Orchestrator) collect(ctx context.Context, plg plugin.Plugin, pluginName string, target geo.Target, opts Options, sink *progressSink) ([]geo.StandardizedLocation, error) {
	targetKey := target.ExternalID

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if !opts.Refresh {
		if cached, ok := o.cache.Get(pluginName, targetKey); ok {
			sink.emit(100, fmt.Sprintf("Loaded %d cached locations", len(cached)), len(cached), 0)
			return cached, nil
		}
	}

	// Activatable plugins hold a session for the duration of the run
	if act, ok := plg.(plugin.Activatable); ok {
		if err := act.Activate(ctx); err != nil {
			return nil, errors.Wrapf(errors.Wrap(errors.ErrFetch, err.Error()),
				"plugin %s failed to activate", pluginName)
		}
		defer func() {
			// Deactivation still runs after cancellation
			if err := act.Deactivate(context.Background()); err != nil {
				logger.Warnw("Plugin failed to deactivate",
					"plugin", pluginName,
					"error", err)
			}
		}()
	}

	records, pages, fetchErr := o.fetchPages(ctx, plg, pluginName, target, opts, sink)
	locations := o.standardizer.StandardizeAll(records)

	if fetchErr != nil {
		// Partial results stay usable; only complete fetches are cached
		return locations, fetchErr
	}

	if err := o.cache.Put(pluginName, targetKey, locations); err != nil {
		logger.Warnw("Failed to cache fetch results",
			"plugin", pluginName,
			"target", targetKey,
			"error", err)
	}

	sink.emit(100, fmt.Sprintf("Collected %d locations", len(locations)), len(locations), pages)
	return locations, nil
}

// fetchPages drives the plugin's pagination loop until the provider
// runs out, the soft item cap fills, the context cancels, or a page
// fails. Accumulated records always come back, error or not.
func (o *Orchestrator) fetchPages(ctx context.Context, plg plugin.Plugin, pluginName string, target geo.Target, opts Options, sink *progressSink) ([]geo.RawRecord, int, error) {
	limiter := o.limiterFor(pluginName, plg)

	var records []geo.RawRecord
	var cursor string
	page := 0

	// Page logs are throttled; the sink still sees every page
	logEvery := rate.Sometimes{First: 1, Interval: 2 * time.Second}

	for {
		// Cancellation is checked once per iteration, so stopping costs
		// at most one page of latency
		select {
		case <-ctx.Done():
			return records, page, ctx.Err()
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			return records, page, err
		}

		result, err := plg.ReturnLocations(ctx, target, plugin.FetchParams{
			Cursor:   cursor,
			PageSize: opts.PageSize,
		})
		if err != nil {
			// A page call aborted by cancellation reports the cancellation,
			// not a fetch failure
			if ctx.Err() != nil {
				return records, page, ctx.Err()
			}
			return records, page, errors.Wrapf(errors.Wrap(errors.ErrFetch, err.Error()),
				"plugin %s page %d for target %s", pluginName, page+1, target.ExternalID)
		}

		page++
		records = append(records, result.Records...)
		sink.emit(percentFor(len(records), opts.MaxItems),
			fmt.Sprintf("Fetched page %d (%d records)", page, len(records)),
			len(records), page)
		logEvery.Do(func() {
			logger.Debugw("Fetched page",
				"plugin", pluginName,
				"target", target.ExternalID,
				"page", page,
				"records", len(records))
		})

		if len(result.Records) == 0 || result.Cursor == "" {
			return records, page, nil
		}
		if opts.MaxItems > 0 && len(records) >= opts.MaxItems {
			return records, page, nil
		}
		cursor = result.Cursor
	}
}

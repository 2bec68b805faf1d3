package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/fetch"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
	"github.com/geosift/geosift/project"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run <plugin> [query]",
	Short: "Fetch locations for targets through a plugin",
	Long: `Fetch location data for one or more targets through a plugin.

The query is resolved to a target via the plugin's own search, then the
target's history is fetched page by page, standardized, and cached.
Cached results are served until they expire; --refresh forces a refetch.

Multiple targets run concurrently on a worker pool sized by the fetch
configuration (or --workers). Interrupting with Ctrl+C stops after the
page in flight; everything fetched up to that point is kept.

Examples:
  geosift run dummy walker-7                       # One target
  geosift run bsky alice.bsky.social --max-items 200
  geosift run bsky --targets "alice.test 'Bob Quinn' carol.test"
  geosift run bsky alice.test --project trip       # Append to a project
  geosift run localfiles exports --refresh         # Skip the cache`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pluginName := args[0]

		targetsFlag, _ := cmd.Flags().GetString("targets")
		queries := parseTargetQueries(targetsFlag)
		if len(args) == 2 {
			queries = append([]string{args[1]}, queries...)
		}
		if len(queries) == 0 {
			return fmt.Errorf("no targets given: pass a query argument or --targets")
		}

		maxItems, _ := cmd.Flags().GetInt("max-items")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		refresh, _ := cmd.Flags().GetBool("refresh")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		workers, _ := cmd.Flags().GetInt("workers")
		projectPath, _ := cmd.Flags().GetString("project")

		return runFetch(pluginName, queries, fetchSettings{
			maxItems:    maxItems,
			pageSize:    pageSize,
			refresh:     refresh,
			timeout:     timeout,
			workers:     workers,
			projectPath: projectPath,
		})
	},
}

func init() {
	RunCmd.Flags().String("targets", "", "Quoted list of target queries (shell-style splitting)")
	RunCmd.Flags().Int("max-items", 0, "Stop after roughly this many records per target (0 = config default)")
	RunCmd.Flags().Int("page-size", 0, "Records requested per page (0 = config default)")
	RunCmd.Flags().Bool("refresh", false, "Ignore cached results and refetch")
	RunCmd.Flags().Duration("timeout", 0, "Per-target deadline (0 = config default)")
	RunCmd.Flags().Int("workers", 0, "Concurrent target workers (0 = config default)")
	RunCmd.Flags().String("project", "", "Project file or name to append results to")
}

// fetchSettings carries the run flags after config defaults resolve.
type fetchSettings struct {
	maxItems    int
	pageSize    int
	refresh     bool
	timeout     time.Duration
	workers     int
	projectPath string
}

// parseTargetQueries splits a --targets value like a shell would, so
// quoted multi-word names survive. Unbalanced quotes degrade to
// whitespace splitting.
func parseTargetQueries(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts, err := shellquote.Split(raw)
	if err != nil {
		logger.Debugw("Shell-style target splitting failed, using whitespace",
			"input", raw,
			"error", err)
		parts = strings.Fields(raw)
	}
	return parts
}

// runFetch resolves targets and drives the fetch pipeline for them.
func runFetch(pluginName string, queries []string, settings fetchSettings) error {
	cfg, registry, err := loadRuntime()
	if err != nil {
		return err
	}

	if !pluginEnabled(cfg, pluginName) {
		return fmt.Errorf("plugin %q is disabled by configuration (plugins.enabled)", pluginName)
	}
	plg, ok := registry.Get(pluginName)
	if !ok {
		return fmt.Errorf("plugin %q is not installed (see 'geosift plugins list')", pluginName)
	}
	if configured, reason := plg.IsConfigured(); !configured {
		return fmt.Errorf("plugin %q is not configured: %s", pluginName, reason)
	}

	fetchCfg := cfg.GetFetchConfig()
	opts := fetch.Options{
		MaxItems: settings.maxItems,
		PageSize: settings.pageSize,
		Refresh:  settings.refresh,
		Timeout:  settings.timeout,
	}
	if opts.MaxItems == 0 {
		opts.MaxItems = fetchCfg.MaxItems
	}
	if opts.PageSize == 0 {
		opts.PageSize = fetchCfg.PageSize
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Duration(fetchCfg.TargetTimeoutSeconds) * time.Second
	}
	workers := settings.workers
	if workers == 0 {
		workers = fetchCfg.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the run; partial results still come back
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		pterm.Println()
		pterm.Warning.Println("Interrupt received, stopping after the page in flight...")
		cancel()
	}()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Searching %s for %d target(s)...", pluginName, len(queries)))
	targets := make([]geo.Target, 0, len(queries))
	for _, query := range queries {
		found, err := plg.SearchForTargets(ctx, query)
		if err != nil {
			if spinner != nil {
				spinner.Stop()
			}
			return fmt.Errorf("searching %s for %q: %w", pluginName, query, err)
		}
		if len(found) == 0 {
			if spinner != nil {
				spinner.Stop()
			}
			return fmt.Errorf("no targets matched %q", query)
		}
		if len(found) > 1 {
			logger.Infow("Multiple targets matched, using the first",
				"query", query,
				"matches", len(found))
		}
		targets = append(targets, found[0])
	}
	if spinner != nil {
		spinner.Stop()
	}
	for _, target := range targets {
		pterm.Printf("  %s %s\n", pterm.LightCyan(target.DisplayName), pterm.Gray(target.ExternalID))
	}
	pterm.Println()

	orchestrator := fetch.NewOrchestrator(registry, newCacheManager(cfg), geo.NewStandardizer())

	startTime := time.Now()
	var locations []geo.StandardizedLocation
	var failed int
	if len(targets) == 1 {
		locations, err = fetchOne(ctx, orchestrator, pluginName, targets[0], opts)
		if err != nil {
			failed = 1
			pterm.Error.Printf("%s: %v\n", targets[0].DisplayName, err)
		}
	} else {
		locations, failed = fetchMany(ctx, orchestrator, pluginName, targets, opts, workers)
	}
	elapsed := time.Since(startTime)

	pterm.Println()
	if failed == 0 {
		pterm.Success.Println("Fetch completed")
	} else {
		pterm.Warning.Printf("Fetch completed with %d failed target(s)\n", failed)
	}
	pterm.Printf("  Targets: %d\n", len(targets))
	pterm.Printf("  Locations: %s\n", pterm.Green(fmt.Sprintf("%d", len(locations))))
	pterm.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if settings.projectPath != "" && len(locations) > 0 {
		if err := appendToProject(cfg, settings.projectPath, targets, locations); err != nil {
			return err
		}
	}

	if failed == len(targets) {
		return fmt.Errorf("all %d target(s) failed", failed)
	}
	return nil
}

// fetchOne runs a single target, relaying its progress reports.
func fetchOne(ctx context.Context, orchestrator *fetch.Orchestrator, pluginName string, target geo.Target, opts fetch.Options) ([]geo.StandardizedLocation, error) {
	run, err := orchestrator.StartRun(ctx, pluginName, target, opts)
	if err != nil {
		return nil, err
	}

	for progress := range run.Progress() {
		if progress.Percent > 0 {
			pterm.Printf("  %s %s\n", pterm.Gray(fmt.Sprintf("%3d%%", progress.Percent)), progress.Message)
		} else {
			pterm.Printf("  %s\n", progress.Message)
		}
	}
	return run.Result()
}

// fetchMany fans the targets out over the worker pool and reports per
// target as results land. Returns everything collected and how many
// targets failed.
func fetchMany(ctx context.Context, orchestrator *fetch.Orchestrator, pluginName string, targets []geo.Target, opts fetch.Options, workers int) ([]geo.StandardizedLocation, int) {
	pool := fetch.NewPool(orchestrator, workers)
	pool.Start(ctx)

	go func() {
		for _, target := range targets {
			if err := pool.Submit(fetch.Task{PluginName: pluginName, Target: target, Options: opts}); err != nil {
				logger.Warnw("Task not queued",
					"target", target.ExternalID,
					"error", err)
			}
		}
		pool.Close()
	}()

	var all []geo.StandardizedLocation
	var failed int
	for result := range pool.Results() {
		name := result.Task.Target.DisplayName
		if result.Err != nil {
			failed++
			pterm.Error.Printf("%s: %v\n", name, result.Err)
		} else {
			pterm.Printf("  %s: %s locations\n", pterm.LightCyan(name), pterm.Green(fmt.Sprintf("%d", len(result.Locations))))
		}
		// Failed tasks still contribute what standardized before the error
		all = append(all, result.Locations...)
	}
	return all, failed
}

// appendToProject loads or creates the project and merges the run's
// results into it. A bare name resolves inside the projects root as a
// modern document.
func appendToProject(cfg *config.Config, path string, targets []geo.Target, locations []geo.StandardizedLocation) error {
	store := project.NewStore(expandPath(cfg.GetProjectsDir()))

	path = expandPath(path)
	if !strings.ContainsAny(path, `/\`) && filepath.Ext(path) == "" {
		path = filepath.Join(store.Root(), path+".json")
	}

	var proj *project.Project
	if _, statErr := os.Stat(path); statErr == nil {
		loaded, err := store.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}
		proj = loaded
	} else {
		proj = store.Create(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	store.AddTargets(proj, targets...)
	added := store.AddLocations(proj, locations)
	if err := store.Save(proj, path); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	pterm.Success.Printf("Saved %d new location(s) to %s\n", added, path)
	return nil
}

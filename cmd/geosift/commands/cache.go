package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/geosift/geosift/config"
)

// CacheCmd represents the cache command
var CacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the fetch result cache",
	Long: `Manage the on-disk cache of fetch results.

Each (plugin, target) run is cached as one entry and served until its
TTL passes. Expired entries are dropped lazily on read; prune removes
them eagerly, clear removes everything.

Examples:
  geosift cache status      # Entry count, size, TTL
  geosift cache prune       # Drop expired entries
  geosift cache clear       # Drop everything`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location, size, and TTL",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cache entries",
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	RunE:  runCachePrune,
}

func init() {
	CacheCmd.AddCommand(cacheStatusCmd)
	CacheCmd.AddCommand(cacheClearCmd)
	CacheCmd.AddCommand(cachePruneCmd)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	manager := newCacheManager(cfg)
	if cfg.Cache.Disabled {
		fmt.Println("Cache: disabled")
		return nil
	}

	entries, bytes := cacheUsage(manager.Root())
	fmt.Printf("Root: %s\n", manager.Root())
	fmt.Printf("TTL: %s\n", manager.TTL())
	fmt.Printf("Entries: %d\n", entries)
	fmt.Printf("Size: %.1f KiB\n", float64(bytes)/1024)
	return nil
}

// cacheUsage counts entries and bytes under the cache root. A missing
// root reads as empty.
func cacheUsage(root string) (int, int64) {
	var entries int
	var bytes int64

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return 0, 0
	}
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".json") {
			continue
		}
		entries++
		if info, err := os.Stat(filepath.Join(root, dirEntry.Name())); err == nil {
			bytes += info.Size()
		}
	}
	return entries, bytes
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	manager := newCacheManager(cfg)
	entries, _ := cacheUsage(manager.Root())
	if err := manager.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	pterm.Success.Printf("Removed %d cache entries\n", entries)
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	removed, err := newCacheManager(cfg).Prune()
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}

	pterm.Success.Printf("Removed %d expired cache entries\n", removed)
	return nil
}

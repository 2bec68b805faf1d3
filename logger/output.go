package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints, final status
//	1 (-v)      - + Progress, startup info, plugin status, operation summaries
//	2 (-vv)     - + Page fetches, timing, config loaded, cache hits/misses
//	3 (-vvv)    - + Plugin internals, SQL statements, standardization drops
//	4 (-vvvv)   - + Raw record dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Collected locations, command output
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // Progress indicators (e.g., "Fetched page 3, 150 records")
	OutputStartup       // Startup banners, config summary
	OutputPluginStatus  // Plugin discovered/configured/failed status
	OutputOperationInfo // High-level operation summaries

	// Level 2 (-vv) - Detailed
	OutputPaging     // Per-page fetch details and cursors
	OutputTiming     // Operation timing (e.g., "fetch took 42ms")
	OutputConfig     // Config values loaded/applied
	OutputCacheInfo  // Cache hit/miss/expiry decisions
	OutputRateLimits // Rate limiter waits and window state

	// Level 3 (-vvv) - Debug
	OutputPluginLogs // Plugin-internal logging
	OutputDrops      // Standardization drops with reasons
	OutputSQLQueries // Individual SQL statements against legacy stores
	OutputInternalOp // Internal operation flow

	// Level 4 (-vvvv) - Full dump
	OutputRawRecords // Full raw record contents before standardization
	OutputDataDump   // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress:      VerbosityInfo,
	OutputStartup:       VerbosityInfo,
	OutputPluginStatus:  VerbosityInfo,
	OutputOperationInfo: VerbosityInfo,

	// Level 2 - Detailed
	OutputPaging:     VerbosityDebug,
	OutputTiming:     VerbosityDebug,
	OutputConfig:     VerbosityDebug,
	OutputCacheInfo:  VerbosityDebug,
	OutputRateLimits: VerbosityDebug,

	// Level 3 - Debug
	OutputPluginLogs: VerbosityTrace,
	OutputDrops:      VerbosityTrace,
	OutputSQLQueries: VerbosityTrace,
	OutputInternalOp: VerbosityTrace,

	// Level 4 - Full dump
	OutputRawRecords: VerbosityAll,
	OutputDataDump:   VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:       "results",
	OutputErrors:        "errors",
	OutputUserStatus:    "status",
	OutputProgress:      "progress",
	OutputStartup:       "startup",
	OutputPluginStatus:  "plugin-status",
	OutputOperationInfo: "operation-info",
	OutputPaging:        "paging",
	OutputTiming:        "timing",
	OutputConfig:        "config",
	OutputCacheInfo:     "cache",
	OutputRateLimits:    "rate-limits",
	OutputPluginLogs:    "plugin-logs",
	OutputDrops:         "drops",
	OutputSQLQueries:    "sql",
	OutputInternalOp:    "internal",
	OutputRawRecords:    "raw-records",
	OutputDataDump:      "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "results, errors, progress, and status"
	case VerbosityDebug:
		return "above + paging, timing, cache and config details"
	case VerbosityTrace:
		return "above + plugin logs, drops, SQL"
	case VerbosityAll:
		return "full output including raw records"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}

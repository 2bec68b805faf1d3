package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/display"
	"github.com/geosift/geosift/logger"
	"github.com/geosift/geosift/plugin"
)

// PluginsCmd represents the plugins command
var PluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List, inspect, install, and configure plugins",
	Long: `Manage GeoSift source plugins.

Plugins are discovered from the configured search paths. Each plugin
directory carries a plugin.toml (or plugin.yaml) manifest binding it to
a compiled-in driver; loose <name>.plugin.toml files work too.

Examples:
  geosift plugins list                          # Show discovered plugins
  geosift plugins info bsky                     # Descriptor and settings schema
  geosift plugins install github.com/acme/geosift-flickr
  geosift plugins configure bsky --set identifier=alice.test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	Long: `List every plugin found on the configured search paths, with its
category, version, and whether it is ready to run.

A plugin shows as "needs config" when required settings are missing and
as "disabled" when the plugins.enabled whitelist excludes it. Manifests
that failed to load are reported separately.`,
	RunE: runPluginsList,
}

var pluginsInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show details for one plugin",
	Long: `Display a plugin's descriptor, rate limit budget, configuration
state, and settings schema.

Example:
  geosift plugins info bsky`,
	Args: cobra.ExactArgs(1),
	RunE: runPluginsInfo,
}

var pluginsInstallCmd = &cobra.Command{
	Use:   "install <src> [name]",
	Short: "Install a plugin bundle into the plugin root",
	Long: `Fetch a plugin bundle into the first configured plugin search path.

The source can be a local directory, a git URL, a GitHub shorthand like
github.com/user/repo, or an archive URL (zip, tar.gz); archives are
extracted automatically. The bundle must carry a plugin manifest at its
top level.

Examples:
  geosift plugins install ./my-plugin
  geosift plugins install github.com/acme/geosift-flickr
  geosift plugins install https://example.com/bundle.tar.gz flickr`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		force, _ := cmd.Flags().GetBool("force")
		return runPluginsInstall(args[0], name, force)
	},
}

var pluginsConfigureCmd = &cobra.Command{
	Use:   "configure <name>",
	Short: "Show or set a plugin's settings",
	Long: `Without --set, print the plugin's settings schema with current
values (secrets masked). With --set, write the given options into the
plugin's settings store.

Examples:
  geosift plugins configure bsky
  geosift plugins configure bsky --set identifier=alice.test --set app_password=xxxx-yyyy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assignments, _ := cmd.Flags().GetStringArray("set")
		return runPluginsConfigure(args[0], assignments)
	},
}

func init() {
	pluginsListCmd.Flags().Bool("json", false, "Output the plugin list as JSON")
	pluginsInstallCmd.Flags().Bool("force", false, "Replace an already installed plugin of the same name")
	pluginsConfigureCmd.Flags().StringArray("set", nil, "Set a key=value option (repeatable)")

	PluginsCmd.AddCommand(pluginsListCmd)
	PluginsCmd.AddCommand(pluginsInfoCmd)
	PluginsCmd.AddCommand(pluginsInstallCmd)
	PluginsCmd.AddCommand(pluginsConfigureCmd)
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	cfg, registry, err := loadRuntime()
	if err != nil {
		return err
	}

	plugins := registry.All()
	if display.ShouldOutputJSON(cmd) {
		descriptors := make([]plugin.Descriptor, 0, len(plugins))
		for _, plg := range plugins {
			descriptors = append(descriptors, plg.Descriptor())
		}
		return display.OutputJSON(descriptors)
	}

	if len(plugins) == 0 {
		fmt.Println("No plugins found")
		fmt.Printf("Search paths: %s\n", strings.Join(pluginPaths(cfg), ", "))
		return nil
	}

	fmt.Printf("%-18s %-12s %-10s %-14s %s\n", "NAME", "CATEGORY", "VERSION", "STATUS", "DESCRIPTION")
	fmt.Printf("%-18s %-12s %-10s %-14s %s\n", "----", "--------", "-------", "------", "-----------")

	for _, plg := range plugins {
		desc := plg.Descriptor()
		status := "ready"
		if !pluginEnabled(cfg, desc.Name) {
			status = "disabled"
		} else if configured, _ := plg.IsConfigured(); !configured {
			status = "needs config"
		}
		fmt.Printf("%-18s %-12s %-10s %-14s %s\n",
			truncate(desc.Name, 18),
			truncate(desc.Category, 12),
			truncate(desc.Version, 10),
			status,
			truncate(desc.Description, 50))
	}
	fmt.Printf("\nTotal: %d plugin(s)\n", len(plugins))

	if failures := registry.Failures(); len(failures) > 0 {
		fmt.Printf("\n%d manifest(s) failed to load:\n", len(failures))
		for _, failure := range failures {
			fmt.Printf("  %s: %v\n", failure.Path, failure.Err)
		}
	}
	return nil
}

func runPluginsInfo(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, registry, err := loadRuntime()
	if err != nil {
		return err
	}

	plg, ok := registry.Get(name)
	if !ok {
		return fmt.Errorf("plugin %q is not installed (see 'geosift plugins list')", name)
	}

	desc := plg.Descriptor()
	fmt.Printf("Name: %s\n", desc.Name)
	fmt.Printf("Category: %s\n", desc.Category)
	fmt.Printf("Version: %s\n", desc.Version)
	if desc.Author != "" {
		fmt.Printf("Author: %s\n", desc.Author)
	}
	if desc.Description != "" {
		fmt.Printf("Description: %s\n", desc.Description)
	}
	if !pluginEnabled(cfg, desc.Name) {
		fmt.Println("Enabled: no (excluded by plugins.enabled)")
	}

	if rl, ok := plg.(plugin.RateLimited); ok {
		budget := rl.RateLimit()
		fmt.Printf("Rate limit: %d calls per %.0fs\n", budget.MaxCalls, budget.WindowSeconds)
	}

	configured, reason := plg.IsConfigured()
	if configured {
		fmt.Println("Configured: yes")
	} else {
		fmt.Printf("Configured: no (%s)\n", reason)
	}

	if configurable, ok := plg.(plugin.Configurable); ok {
		schema := configurable.ConfigSchema()
		if len(schema) > 0 {
			fmt.Println("\nSettings:")
			printConfigSchema(configurable, schema)
		}
	}
	return nil
}

// printConfigSchema renders the schema table with current values,
// masking secrets.
func printConfigSchema(configurable plugin.Configurable, schema map[string]plugin.ConfigField) {
	keys := make([]string, 0, len(schema))
	for key := range schema {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Printf("  %-15s %-8s %-9s %-20s %s\n", "KEY", "TYPE", "REQUIRED", "VALUE", "DESCRIPTION")
	for _, key := range keys {
		field := schema[key]

		value := ""
		if store := configurable.Config(); store != nil {
			value = store.StringOption(key)
		}
		if value == "" && field.Default != "" {
			value = field.Default + " (default)"
		}
		if field.Secret && value != "" {
			value = "••••••"
		}

		required := "no"
		if field.Required {
			required = "yes"
		}
		fmt.Printf("  %-15s %-8s %-9s %-20s %s\n",
			truncate(key, 15), field.Type, required, truncate(value, 20), field.Description)
	}
}

// runPluginsInstall fetches a plugin bundle into the plugin root and
// validates its manifest.
func runPluginsInstall(src, name string, force bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	paths := pluginPaths(cfg)
	if len(paths) == 0 {
		return fmt.Errorf("no plugin search paths configured (plugins.paths)")
	}
	root := paths[0]

	if name == "" {
		name = bundleName(src)
	}
	dst := filepath.Join(root, name)

	if _, statErr := os.Stat(dst); statErr == nil {
		if !force {
			return fmt.Errorf("plugin %q is already installed at %s (use --force to replace)", name, dst)
		}
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to remove existing plugin: %w", err)
		}
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(expandPath(src), pwd, getter.Detectors)
	if err != nil {
		return fmt.Errorf("failed to detect source type: %w", err)
	}
	logger.Debugw("Detected plugin source",
		"input", src,
		"detected", detected)

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Fetching %s...", src))

	client := &getter.Client{
		Ctx:  context.Background(),
		Src:  detected,
		Dst:  dst,
		Mode: getter.ClientModeDir,
		// Default getters cover local dirs, git, http, and archives
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		if spinner != nil {
			spinner.Stop()
		}
		os.RemoveAll(dst)
		return fmt.Errorf("failed to fetch plugin bundle: %w", err)
	}
	if spinner != nil {
		spinner.Stop()
	}

	manifest, err := plugin.LoadManifestFromDir(dst)
	if err != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("fetched bundle has no usable plugin manifest: %w", err)
	}

	pterm.Success.Printf("Installed %s %s to %s\n", manifest.Name, manifest.Version, dst)

	if !driverCompiledIn(manifest.Driver) {
		pterm.Warning.Printf("Driver %q is not compiled into this build; the plugin will not load\n", manifest.Driver)
	} else {
		pterm.Info.Println("Run 'geosift plugins list' to confirm it loads")
	}
	return nil
}

func driverCompiledIn(driver string) bool {
	for _, known := range plugin.Drivers() {
		if known == driver {
			return true
		}
	}
	return false
}

// bundleName derives a directory name from the install source.
func bundleName(src string) string {
	// Strip query fragments from URL-shaped sources
	if parsed, err := url.Parse(src); err == nil && parsed.Path != "" {
		src = parsed.Path
	}

	src = strings.TrimSuffix(src, "/")
	src = strings.TrimSuffix(src, ".git")
	for _, suffix := range []string{".tar.gz", ".tgz", ".zip"} {
		src = strings.TrimSuffix(src, suffix)
	}

	base := filepath.Base(src)
	base = strings.NewReplacer(":", "-", "@", "-", " ", "-").Replace(base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "plugin"
	}
	return base
}

func runPluginsConfigure(name string, assignments []string) error {
	_, registry, err := loadRuntime()
	if err != nil {
		return err
	}

	plg, ok := registry.Get(name)
	if !ok {
		return fmt.Errorf("plugin %q is not installed (see 'geosift plugins list')", name)
	}
	configurable, ok := plg.(plugin.Configurable)
	if !ok {
		return fmt.Errorf("plugin %q has no settings", name)
	}

	if len(assignments) == 0 {
		schema := configurable.ConfigSchema()
		if len(schema) == 0 {
			fmt.Printf("Plugin %q declares no settings\n", name)
			return nil
		}
		printConfigSchema(configurable, schema)
		return nil
	}

	store := configurable.Config()
	if store == nil {
		return fmt.Errorf("plugin %q has no settings store", name)
	}

	schema := configurable.ConfigSchema()
	values := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		key, value, found := strings.Cut(assignment, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid --set %q (expected key=value)", assignment)
		}
		if _, known := schema[key]; !known {
			logger.Warnw("Setting a key the plugin does not declare",
				"plugin", name,
				"key", key)
		}
		values[key] = value
	}

	if err := store.Write(config.SectionStringOptions, values); err != nil {
		return fmt.Errorf("failed to write plugin settings: %w", err)
	}

	pterm.Success.Printf("Updated %d setting(s) for %s\n", len(values), name)
	if configured, reason := plg.IsConfigured(); !configured {
		pterm.Warning.Printf("Plugin still needs configuration: %s\n", reason)
	}
	return nil
}

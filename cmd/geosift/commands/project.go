package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/display"
	"github.com/geosift/geosift/project"
)

// ProjectCmd represents the project command
var ProjectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project files",
	Long: `Manage GeoSift project files.

Projects hold collected locations, selected targets, and notes. Two
on-disk formats exist: the modern single-document .json format and the
legacy .db format kept for compatibility with older installations.
The path's extension selects the format.

Examples:
  geosift project list                          # Projects in the workspace
  geosift project create "Harbor trip"
  geosift project show ~/.geosift/projects/harbor-trip.json
  geosift project export harbor-trip.json out.geojson
  geosift project migrate old-case.db new-case.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects in the workspace",
	Long:  "List every loadable project under the configured projects directory.",
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show a project's contents",
	Long: `Display a project's metadata, selected targets, and location count.

Example:
  geosift project show harbor-trip.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectShow,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty project",
	Long: `Create an empty project in the projects directory.

The project is written in the modern .json format; pass --legacy for
the .db format older installations read.

Examples:
  geosift project create "Harbor trip"
  geosift project create archive-case --legacy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		legacy, _ := cmd.Flags().GetBool("legacy")
		return runProjectCreate(args[0], legacy)
	},
}

var projectExportCmd = &cobra.Command{
	Use:   "export <path> [output]",
	Short: "Export a project's locations",
	Long: `Export a project's located entries to GeoJSON, CSV, or KML.

The format follows --format, or the output file's extension when the
flag is absent. Locations that never resolved coordinates are skipped.

Examples:
  geosift project export harbor-trip.json out.geojson
  geosift project export harbor-trip.json --format kml
  geosift project export old-case.db points.csv`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) == 2 {
			output = args[1]
		}
		format, _ := cmd.Flags().GetString("format")
		return runProjectExport(args[0], output, format)
	},
}

var projectMigrateCmd = &cobra.Command{
	Use:   "migrate <source> <dest>",
	Short: "Copy a project between formats",
	Long: `Load a project from the source path and save it to the dest path in
the format the dest extension implies. The source file is left alone.

Examples:
  geosift project migrate old-case.db new-case.json     # legacy to modern
  geosift project migrate case.json archive.db          # modern to legacy`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProjectMigrate(args[0], args[1])
	},
}

func init() {
	projectListCmd.Flags().Bool("json", false, "Output the project list as JSON")
	projectCreateCmd.Flags().Bool("legacy", false, "Write the legacy .db format instead of .json")
	projectExportCmd.Flags().String("format", "", "Export format: geojson, csv, kml (default: from output extension)")

	ProjectCmd.AddCommand(projectListCmd)
	ProjectCmd.AddCommand(projectShowCmd)
	ProjectCmd.AddCommand(projectCreateCmd)
	ProjectCmd.AddCommand(projectExportCmd)
	ProjectCmd.AddCommand(projectMigrateCmd)
}

// projectStore builds the store rooted at the configured projects dir.
func projectStore() (*config.Config, *project.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, project.NewStore(expandPath(cfg.GetProjectsDir())), nil
}

// resolveProjectPath lets bare file names refer to the projects root.
func resolveProjectPath(store *project.Store, path string) string {
	path = expandPath(path)
	if !strings.ContainsAny(path, `/\`) {
		inRoot := filepath.Join(store.Root(), path)
		if _, err := project.FormatForPath(path); err == nil {
			return inRoot
		}
	}
	return path
}

func runProjectList(cmd *cobra.Command, args []string) error {
	_, store, err := projectStore()
	if err != nil {
		return err
	}

	summaries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(summaries)
	}

	if len(summaries) == 0 {
		fmt.Printf("No projects found in %s\n", store.Root())
		return nil
	}

	fmt.Printf("%-25s %-8s %-10s %-17s %s\n", "NAME", "FORMAT", "LOCATIONS", "MODIFIED", "PATH")
	fmt.Printf("%-25s %-8s %-10s %-17s %s\n", "----", "------", "---------", "--------", "----")
	for _, summary := range summaries {
		fmt.Printf("%-25s %-8s %-10d %-17s %s\n",
			truncate(summary.Name, 25),
			summary.Format,
			summary.Locations,
			summary.ModifiedAt.Format("2006-01-02 15:04"),
			summary.Path)
	}
	fmt.Printf("\nTotal: %d project(s)\n", len(summaries))
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	_, store, err := projectStore()
	if err != nil {
		return err
	}

	path := resolveProjectPath(store, args[0])
	proj, err := store.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	format, _ := project.FormatForPath(path)

	fmt.Printf("Name: %s\n", proj.Name)
	fmt.Printf("ID: %s\n", proj.ID)
	fmt.Printf("Path: %s\n", proj.Path)
	fmt.Printf("Format: %s\n", format)
	fmt.Printf("Created: %s\n", proj.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Modified: %s\n", proj.ModifiedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Locations: %d\n", len(proj.Locations))

	if len(proj.SelectedTargets) > 0 {
		fmt.Println("\nTargets:")
		for _, target := range proj.SelectedTargets {
			fmt.Printf("  %s (%s via %s)\n", target.DisplayName, target.ExternalID, target.PluginName)
		}
	}
	if enabled := proj.EnabledPlugins(); len(enabled) > 0 {
		fmt.Printf("\nEnabled plugins: %s\n", strings.Join(enabled, ", "))
	}
	if len(proj.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(proj.Tags, ", "))
	}
	if proj.Notes != "" {
		fmt.Printf("\nNotes:\n%s\n", proj.Notes)
	}
	return nil
}

func runProjectCreate(name string, legacy bool) error {
	_, store, err := projectStore()
	if err != nil {
		return err
	}

	proj := store.Create(name)
	path := proj.Path
	if legacy {
		path = strings.TrimSuffix(path, ".json") + ".db"
	}

	if err := store.Save(proj, path); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	pterm.Success.Printf("Created project %q at %s\n", proj.Name, proj.Path)
	return nil
}

func runProjectExport(path, output, formatFlag string) error {
	cfg, store, err := projectStore()
	if err != nil {
		return err
	}

	path = resolveProjectPath(store, path)
	proj, err := store.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	// The format comes from the flag, else from the output extension
	formatName := formatFlag
	if formatName == "" && output != "" {
		formatName = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	if formatName == "" {
		return fmt.Errorf("no export format: pass --format or an output file with an extension")
	}
	format, err := project.ParseExportFormat(formatName)
	if err != nil {
		return err
	}

	if output == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		output = filepath.Join(expandPath(cfg.Workspace.ExportDir), base+"."+string(format))
	} else {
		output = expandPath(output)
	}

	if err := store.ExportFile(proj, format, output); err != nil {
		return fmt.Errorf("failed to export project: %w", err)
	}

	located := 0
	for _, location := range proj.Locations {
		if location.HasCoordinates() {
			located++
		}
	}
	pterm.Success.Printf("Exported %d location(s) to %s\n", located, output)
	if skipped := len(proj.Locations) - located; skipped > 0 {
		pterm.Info.Printf("Skipped %d location(s) without coordinates\n", skipped)
	}
	return nil
}

func runProjectMigrate(source, dest string) error {
	_, store, err := projectStore()
	if err != nil {
		return err
	}

	source = resolveProjectPath(store, source)
	dest = resolveProjectPath(store, dest)

	if err := store.Migrate(source, dest); err != nil {
		return fmt.Errorf("failed to migrate project: %w", err)
	}

	sourceFormat, _ := project.FormatForPath(source)
	destFormat, _ := project.FormatForPath(dest)
	pterm.Success.Printf("Migrated %s (%s) to %s (%s)\n", source, sourceFormat, dest, destFormat)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/corpuscrawl/internal/corpus"
	"github.com/nao1215/corpuscrawl/internal/model"
	"github.com/nao1215/corpuscrawl/internal/report"
	"github.com/spf13/cobra"
)

// defaultManifestFile is the manifest name inside a mirror root.
const defaultManifestFile = "manifest.json"

// NewOverviewCmd creates the overview command.
func NewOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview <mirror-root>",
		Short: "Summarize a local text mirror in Markdown",
		Long: `Overview reads the manifest of a local TEI/XML mirror and prints a
Markdown summary: file counts per repository, the most frequent authors,
and every title grouped by repository and author.

The manifest lists each file with its repository, title and author. It is
only written when one of the maintenance flags is given:
  --build   inventory the mirror from scratch
  --repair  fill in missing titles and authors from the files
  --clean   drop files whose path ends with the given suffixes

Examples:
  # Build the manifest and print the overview
  corpuscrawl overview --build ~/mirror

  # Drop catalog descriptor files, then write the overview to a file
  corpuscrawl overview --clean __cts__.xml ~/mirror -o OVERVIEW.md`,
		Args: cobra.ExactArgs(1),
		RunE: runOverviewCmd,
	}

	cmd.Flags().StringP("manifest", "m", "",
		"Manifest path (default: <mirror-root>/manifest.json)")
	cmd.Flags().Bool("build", false,
		"Build the manifest by scanning the mirror")
	cmd.Flags().Bool("repair", false,
		"Fill in missing titles and authors from the files")
	cmd.Flags().StringSlice("clean", nil,
		"Drop manifest files whose path ends with one of these suffixes")
	cmd.Flags().StringP("name", "n", "",
		"Heading of the overview (default: mirror directory name)")
	cmd.Flags().StringP("output", "o", "",
		"Write the overview to this file instead of stdout")

	return cmd
}

// runOverviewCmd executes the overview command.
func runOverviewCmd(cmd *cobra.Command, args []string) error {
	root := args[0]
	manifestPath, err := cmd.Flags().GetString("manifest")
	if err != nil {
		return err
	}
	if manifestPath == "" {
		manifestPath = filepath.Join(root, defaultManifestFile)
	}
	build, err := cmd.Flags().GetBool("build")
	if err != nil {
		return err
	}
	repair, err := cmd.Flags().GetBool("repair")
	if err != nil {
		return err
	}
	clean, err := cmd.Flags().GetStringSlice("clean")
	if err != nil {
		return err
	}
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}
	if name == "" {
		name = filepath.Base(filepath.Clean(root))
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	logger, err := setupLogger(cmd, getVerboseFlag(cmd))
	if err != nil {
		return err
	}

	var manifest *model.DirectoryManifest
	if build {
		manifest, err = corpus.BuildManifest(root)
	} else {
		manifest, err = corpus.LoadManifest(manifestPath)
		if errors.Is(err, corpus.ErrManifestNotFound) {
			return fmt.Errorf("%w (use --build to create it)", err)
		}
	}
	if err != nil {
		return err
	}

	changed := build
	if repair {
		n := corpus.RepairManifest(root, manifest)
		logger.Info("manifest repaired", "entries", n)
		changed = true
	}
	if len(clean) > 0 {
		n := corpus.CleanManifest(manifest, clean...)
		logger.Info("manifest cleaned", "removed", n)
		changed = true
	}
	if changed {
		if err := corpus.SaveManifest(manifestPath, manifest); err != nil {
			return err
		}
		logger.Info("manifest saved", "path", manifestPath, "files", manifest.TotalFiles)
	}

	if outputPath == "" {
		return report.WriteOverview(cmd.OutOrStdout(), name, manifest)
	}

	f, err := os.Create(outputPath) //nolint:gosec // path is user-specified report destination
	if err != nil {
		return fmt.Errorf("failed to create overview file: %w", err)
	}
	if err := report.WriteOverview(f, name, manifest); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Overview saved to %s\n", outputPath)
	return nil
}

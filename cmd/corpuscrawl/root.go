package main

import (
	"fmt"
	"os"

	"github.com/nao1215/corpuscrawl/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for corpuscrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpuscrawl",
		Short: "Polite harvester for public-domain text archives",
		Long: `corpuscrawl harvests documents from public-domain text archives into a
JSON Lines corpus.

Two kinds of sources are supported. Crawl sources are static sites walked
from start URLs, where pages are classified as indexes, works and leaves.
Catalog sources list works on paginated subject pages and offer EPUB
archives; they are harvested in three phases (catalog, download, extract)
that can also be run one at a time.

Every request goes through a per-host rate limiter with random jitter and
periodic courtesy pauses.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", logFormatText, "Log format: text or json")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewPhaseCmd(pipeline.PhaseCatalog))
	cmd.AddCommand(NewPhaseCmd(pipeline.PhaseDownload))
	cmd.AddCommand(NewPhaseCmd(pipeline.PhaseExtract))
	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewOverviewCmd())
	cmd.AddCommand(NewFailuresCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/engine"
	"github.com/dispodojo/agent-finder/pkg/input"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/output"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Resolve listing agents for a file of addresses",
	Long: `Reads property addresses from a CSV or Excel file, resolves the
listing agent for each through the source waterfall, and exports the
results.`,
	RunE: runResolve,
}

func init() {
	runCmd.Flags().StringP("output", "o", "output.csv", "path for the output file")
	runCmd.Flags().String("format", "csv", "output format (csv, excel)")
	runCmd.Flags().String("sources", "", "comma-separated sources to use (default from config)")
	runCmd.Flags().Int("max-concurrent", 0, "max concurrent address resolutions")
	runCmd.Flags().String("google-api-key", "", "Google Custom Search API key (enables google_search)")
	runCmd.Flags().String("google-cse-id", "", "Google Custom Search Engine ID")
	runCmd.Flags().Bool("no-enrich", false, "skip the contact enrichment step")
	runCmd.Flags().Bool("no-cache", false, "ignore cached results and re-scrape everything")
	runCmd.Flags().String("cache-path", "", "path to the cache database")
	runCmd.Flags().String("progress", "text", "progress output format (text, json)")
	runCmd.Flags().Bool("dry-run", false, "validate the input file without scraping")
}

func runResolve(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		v, err := input.Validate(inputPath)
		if err != nil {
			return err
		}
		printValidation(v)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Info("Agent Finder starting", "version", version)

	properties, err := input.ReadProperties(inputPath)
	if err != nil {
		return err
	}
	if len(properties) == 0 {
		fmt.Println("No valid addresses found in input file.")
		return nil
	}
	logger.Info("Input loaded", "file", inputPath, "addresses", len(properties))

	eng, err := engine.New(cfg, logger, metrics.NewDefault())
	if err != nil {
		return err
	}
	defer eng.Close()

	progressFormat, _ := cmd.Flags().GetString("progress")
	reporter := reporting.NewProgressReporter(reporting.OutputFormat(progressFormat), os.Stdout)
	eng.OnProgress(func(p engine.Progress) {
		if p.CurrentAddress == "" {
			return
		}
		reporter.ReportRow(reporting.RowEvent{
			Processed: p.Completed,
			Total:     p.Total,
			Address:   p.CurrentAddress,
			Status:    p.CurrentStatus,
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, summary, err := eng.Run(ctx, properties)
	if err != nil {
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	written, err := output.ExportFile(results, outputPath, format)
	if err != nil {
		return err
	}
	fmt.Printf("\nResults exported to: %s\n", written)

	reporter.ReportRunCompleted(summary)
	return nil
}

// applyRunFlags layers the command-line overrides onto the config
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	if sources, _ := cmd.Flags().GetString("sources"); sources != "" {
		if err := selectSources(cfg, sources); err != nil {
			return err
		}
	}
	if n, _ := cmd.Flags().GetInt("max-concurrent"); n > 0 {
		cfg.Pipeline.MaxConcurrency = n
	}
	if key, _ := cmd.Flags().GetString("google-api-key"); key != "" {
		cfg.Google.APIKey = key
	}
	if id, _ := cmd.Flags().GetString("google-cse-id"); id != "" {
		cfg.Google.CSEID = id
	}
	if cfg.Google.APIKey != "" && cfg.Google.CSEID != "" {
		cfg.Sources.Google.Enabled = true
	}
	if noEnrich, _ := cmd.Flags().GetBool("no-enrich"); noEnrich {
		cfg.Pipeline.Enrich = false
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if path, _ := cmd.Flags().GetString("cache-path"); path != "" {
		cfg.Cache.Path = path
	}
	return nil
}

// selectSources enables exactly the named sources
func selectSources(cfg *config.Config, list string) error {
	enabled := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		enabled[strings.TrimSpace(name)] = true
	}

	known := map[string]*bool{
		"redfin":        &cfg.Sources.Redfin.Enabled,
		"homeharvest":   &cfg.Sources.HomeHarvest.Enabled,
		"realtor":       &cfg.Sources.Realtor.Enabled,
		"zillow":        &cfg.Sources.Zillow.Enabled,
		"google_search": &cfg.Sources.Google.Enabled,
	}
	for name := range enabled {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown source %q (valid: redfin, homeharvest, realtor, zillow, google_search)", name)
		}
	}
	for name, flag := range known {
		*flag = enabled[name]
	}
	return nil
}

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dispodojo/agent-finder/pkg/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and export the local result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Args:  cobra.NoArgs,
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.Stats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Cached results:    %d\n", stats.CachedResults)
		fmt.Printf("Recorded failures: %d\n", stats.RecordedFailures)
		return nil
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export <output-file>",
	Args:  cobra.ExactArgs(1),
	Short: "Export all cached results to a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.AllResults(context.Background())
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write([]string{
			"address", "agent_name", "brokerage", "phone", "email",
			"source", "listing_url", "list_date", "days_on_market",
			"listing_price", "status", "scraped_at", "expires_at",
		}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := w.Write([]string{
				e.RawAddress, e.AgentName, e.Brokerage, e.Phone, e.Email,
				e.Source, e.ListingURL, e.ListDate, e.DaysOnMarket,
				e.ListingPrice, e.Status, e.ScrapedAt, e.ExpiresAt,
			}); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
		fmt.Printf("Exported %d cached results to %s\n", len(entries), args[0])
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().String("cache-path", "", "path to the cache database")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheExportCmd)
}

func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Cache.Path
	if flagPath, _ := cmd.Flags().GetString("cache-path"); flagPath != "" {
		path = flagPath
	}
	return cache.Open(path, cfg.Cache.TTLDays)
}

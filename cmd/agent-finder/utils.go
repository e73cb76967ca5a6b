package main

import (
	"fmt"
	"os"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/input"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

// loadConfig loads the configuration, falling back to defaults plus
// environment variables when no config file exists
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config plus the -v flag
func newLogger(cfg *config.Config) *reporting.Logger {
	level := reporting.LogLevel(cfg.Logging.Level)
	if verbose {
		level = reporting.LogLevelDebug
	}
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  level,
		Format: reporting.LogFormat(cfg.Logging.Format),
		Output: os.Stderr,
	})
}

// printValidation renders an input-file validation summary
func printValidation(v *input.Validation) {
	fmt.Println("Input File Summary")
	fmt.Printf("  Total addresses: %d\n", v.TotalRows)
	fmt.Printf("  With city:       %d\n", v.WithCity)
	fmt.Printf("  With state:      %d\n", v.WithState)
	fmt.Printf("  With ZIP:        %d\n", v.WithZip)

	if len(v.Sample) > 0 {
		fmt.Println("\nSample addresses:")
		for i, addr := range v.Sample {
			fmt.Printf("  %d. %s\n", i+1, addr)
		}
	}
}

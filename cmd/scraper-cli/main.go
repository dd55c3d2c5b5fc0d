package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"jobhound/internal/config"
)

type rootOptions struct {
	configFile string
	output     string
	verbose    bool
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "scraper-cli",
		Short:         "Discover, score and browse job postings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "console" && opts.output != "json" {
				return fmt.Errorf("unknown output format %q (console or json)", opts.output)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "config.yaml", "configuration file (yaml or json)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "console", "output format: console, json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		newRunCmd(opts),
		newJobsCmd(opts),
		newSessionsCmd(opts),
		newStatsCmd(opts),
		newConfigCmd(opts),
		newSourcesCmd(opts),
	)
	return root
}

// loadConfig loads and validates the configuration file.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-checkout/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const prefix = "CHECKOUT"

func main() {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Maintenance tasks for the course checkout service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the same environment the server does. Command line flags
// belong to cobra, so conf only sees the program name.
func loadConfig() (config.Config, error) {
	_ = godotenv.Load()

	args := os.Args
	os.Args = args[:1]
	defer func() { os.Args = args }()

	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		return config.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

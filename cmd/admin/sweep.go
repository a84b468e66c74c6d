package main

import (
	"fmt"
	"time"

	"github.com/irsalhamdi/course-checkout/core/purchase"
	"github.com/irsalhamdi/course-checkout/database"
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail payments that stayed open for too long",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			before := time.Now().UTC().Add(-olderThan)
			n, err := purchase.NewSQLLedger(db, cfg.Kafka.Topic).FailStale(cmd.Context(), before)
			if err != nil {
				return fmt.Errorf("failing stale payments: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "failed %d payment(s) open since before %s\n", n, before.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Fail payments not updated for this long")

	return cmd
}

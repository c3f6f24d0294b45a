package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devrev/hvac-voice-agent/internal/store"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()

		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		applied, err := store.Migrate(ctx, pg.DB(), logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "Database is up to date.")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(out, "Applied %s\n", v)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", time.Minute, "overall migration timeout")
	rootCmd.AddCommand(migrateCmd)
}

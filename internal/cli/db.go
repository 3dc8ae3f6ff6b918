package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"taskflow/taskflow-api/internal/store"
)

func newDBCommand(r *runtime) *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var dsn string
	var timeout, interval time.Duration
	wait := &cobra.Command{
		Use:   "wait",
		Short: "Block until Postgres accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = r.cfg.DatabaseURL
			}
			if dsn == "" {
				return fmt.Errorf("--dsn or DATABASE_URL is required")
			}
			conn, err := sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer conn.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := store.WaitForDB(ctx, conn, timeout, interval); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), r.format, map[string]string{"status": "ready"})
		},
	}
	wait.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (defaults to DATABASE_URL)")
	wait.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "give up after this long")
	wait.Flags().DurationVar(&interval, "interval", 2*time.Second, "delay between attempts")

	db.AddCommand(wait)
	return db
}

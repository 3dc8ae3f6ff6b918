// Package cli implements the taskflow command line. Commands run the same
// services as the HTTP API against the configured store, so a session
// started with "taskflow login" is the one the server validates.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/taskflow-api/internal/app"
	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/config"
	"taskflow/taskflow-api/internal/observability"
)

type runtime struct {
	format     string
	configFile string

	cfg      config.Config
	log      *slog.Logger
	services *app.Services
}

func NewRootCommand() *cobra.Command {
	r := &runtime{}
	root := &cobra.Command{
		Use:   "taskflow",
		Short: "Manage TaskFlow accounts and tasks",
		Long: `taskflow drives the TaskFlow services from the terminal.

Without DATABASE_URL it works on the local JSON store (TASKFLOW_STORE_FILE);
with it, on Postgres. "taskflow serve" starts the HTTP API on the same data.

Examples:
  taskflow login --email demo@example.com --password password
  taskflow tasks add --title "Buy milk" --description "two liters of milk" --due 2024-01-01
  taskflow tasks list --status TODO -o yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return r.close()
		},
	}
	root.PersistentFlags().StringVarP(&r.format, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVar(&r.configFile, "config", "", "YAML config file (overrides "+config.ConfigFileEnv+")")

	root.AddCommand(
		newServeCommand(r),
		newLoginCommand(r),
		newRegisterCommand(r),
		newLogoutCommand(r),
		newWhoamiCommand(r),
		newProfileCommand(r),
		newTasksCommand(r),
		newDBCommand(r),
	)
	return root
}

func Execute() error {
	root := NewRootCommand()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

func (r *runtime) init(cmd *cobra.Command) error {
	r.format = strings.ToLower(strings.TrimSpace(r.format))
	if r.format != "json" && r.format != "yaml" {
		return fmt.Errorf("unsupported output format %q (want json or yaml)", r.format)
	}
	if r.configFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, r.configFile); err != nil {
			return fmt.Errorf("set %s: %w", config.ConfigFileEnv, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg
	r.log = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

func (r *runtime) open() (*app.Services, error) {
	if r.services != nil {
		return r.services, nil
	}
	s, err := app.Open(r.cfg, r.log, "cli")
	if err != nil {
		return nil, err
	}
	r.services = s
	return s, nil
}

func (r *runtime) close() error {
	if r.services == nil {
		return nil
	}
	err := r.services.Close()
	r.services = nil
	return err
}

// session returns the persisted session for commands that act as a user.
func (r *runtime) session() (*app.Services, auth.Session, error) {
	s, err := r.open()
	if err != nil {
		return nil, auth.Session{}, err
	}
	sess, err := s.Auth.CurrentSession()
	if errors.Is(err, auth.ErrNoSession) {
		return nil, auth.Session{}, fmt.Errorf("not logged in: run \"taskflow login\" first")
	}
	if err != nil {
		return nil, auth.Session{}, err
	}
	return s, sess, nil
}

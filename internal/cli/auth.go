package cli

import (
	"github.com/spf13/cobra"

	"taskflow/taskflow-api/internal/audit"
	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/tasks"
)

func newLoginCommand(r *runtime) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and start the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fields := requireFlags(map[string]string{"email": email, "password": password}); fields != nil {
				return fields
			}
			s, err := r.open()
			if err != nil {
				return err
			}
			res, err := s.Auth.Login(email, password)
			if err != nil {
				_ = s.Audit.Log(email, audit.ActionLogin, "", audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(res.User.Email, audit.ActionLogin, res.User.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, res)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRegisterCommand(r *runtime) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and start the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fields := requireFlags(map[string]string{"name": name, "email": email, "password": password}); fields != nil {
				return fields
			}
			s, err := r.open()
			if err != nil {
				return err
			}
			res, err := s.Auth.Register(name, email, password)
			if err != nil {
				_ = s.Audit.Log(email, audit.ActionRegister, "", audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(res.User.Email, audit.ActionRegister, res.User.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := r.open()
			if err != nil {
				return err
			}
			u, _, err := s.Auth.CurrentUser()
			if err != nil {
				return err
			}
			if err := s.Auth.Logout(); err != nil {
				return err
			}
			_ = s.Audit.Log(u.Email, audit.ActionLogout, u.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, map[string]bool{"authenticated": false})
		},
	}
}

func newWhoamiCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := r.open()
			if err != nil {
				return err
			}
			u, ok, err := s.Auth.CurrentUser()
			if err != nil {
				return err
			}
			if !ok {
				return render(cmd.OutOrStdout(), r.format, map[string]any{"authenticated": false})
			}
			return render(cmd.OutOrStdout(), r.format, map[string]any{"authenticated": true, "user": u})
		},
	}
}

func newProfileCommand(r *runtime) *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Manage the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var name, email, password, confirm string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change name, email or password",
		Long: `Change the signed-in account. Only the flags you pass are applied.

Examples:
  taskflow profile update --name "Alice B"
  taskflow profile update --password secret2 --confirm-password secret2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var upd auth.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("email") {
				upd.Email = &email
			}
			if cmd.Flags().Changed("password") {
				if err := auth.ValidatePassword(password, confirm); err != nil {
					return err
				}
				upd.Password = &password
			}

			s, sess, err := r.session()
			if err != nil {
				return err
			}
			u, err := s.Auth.UpdateProfile(sess.User.ID, upd)
			if err != nil {
				_ = s.Audit.Log(sess.User.Email, audit.ActionProfileUpdate, sess.User.ID, audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(u.Email, audit.ActionProfileUpdate, u.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, u)
		},
	}
	update.Flags().StringVar(&name, "name", "", "new display name")
	update.Flags().StringVar(&email, "email", "", "new email")
	update.Flags().StringVar(&password, "password", "", "new password")
	update.Flags().StringVar(&confirm, "confirm-password", "", "repeat the new password")

	profile.AddCommand(update)
	return profile
}

func requireFlags(values map[string]string) tasks.FieldErrors {
	fields := tasks.FieldErrors{}
	for name, v := range values {
		if v == "" {
			fields[name] = "--" + name + " is required"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

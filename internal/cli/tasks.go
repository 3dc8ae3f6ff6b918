package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"taskflow/taskflow-api/internal/audit"
	"taskflow/taskflow-api/internal/tasks"
)

func newTasksCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "List and edit your tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newTasksListCommand(r),
		newTasksAddCommand(r),
		newTasksUpdateCommand(r),
		newTasksRemoveCommand(r),
	)
	return cmd
}

func newTasksListCommand(r *runtime) *cobra.Command {
	var query, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, sess, err := r.session()
			if err != nil {
				return err
			}
			items, err := s.Tasks.List(sess, tasks.Filter{Query: query, Status: parseStatus(status)})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), r.format, items)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "match title or description")
	cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS or COMPLETED")
	return cmd
}

func newTasksAddCommand(r *runtime) *cobra.Command {
	var d tasks.Draft
	var status, priority string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.Status = parseStatus(status)
			d.Priority = parsePriority(priority)
			if fields := tasks.ValidateDraft(d); fields != nil {
				return fields
			}
			s, sess, err := r.session()
			if err != nil {
				return err
			}
			t, err := s.Tasks.Create(sess, d)
			if err != nil {
				_ = s.Audit.Log(sess.User.ID, audit.ActionTaskCreate, "", audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(sess.User.ID, audit.ActionTaskCreate, t.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, t)
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "task title")
	cmd.Flags().StringVar(&d.Description, "description", "", "task description")
	cmd.Flags().StringVar(&d.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.AssignedTo, "assign", "", "assignee")
	cmd.Flags().StringVar(&status, "status", "", "TODO (default), IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM (default) or HIGH")
	return cmd
}

func newTasksUpdateCommand(r *runtime) *cobra.Command {
	var title, description, due, assign, status, priority string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p tasks.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				p.Title = &title
			}
			if flags.Changed("description") {
				p.Description = &description
			}
			if flags.Changed("due") {
				p.DueDate = &due
			}
			if flags.Changed("assign") {
				p.AssignedTo = &assign
			}
			if flags.Changed("status") {
				st := parseStatus(status)
				p.Status = &st
			}
			if flags.Changed("priority") {
				pr := parsePriority(priority)
				p.Priority = &pr
			}
			if fields := tasks.ValidatePatch(p); fields != nil {
				return fields
			}

			s, sess, err := r.session()
			if err != nil {
				return err
			}
			t, err := s.Tasks.Update(sess, args[0], p)
			if err != nil {
				_ = s.Audit.Log(sess.User.ID, audit.ActionTaskUpdate, args[0], audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(sess.User.ID, audit.ActionTaskUpdate, t.ID, audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&due, "due", "", "new due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&assign, "assign", "", "new assignee")
	cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM or HIGH")
	return cmd
}

func newTasksRemoveCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, sess, err := r.session()
			if err != nil {
				return err
			}
			if err := s.Tasks.Delete(sess, args[0]); err != nil {
				_ = s.Audit.Log(sess.User.ID, audit.ActionTaskDelete, args[0], audit.OutcomeFailure, err.Error())
				return err
			}
			_ = s.Audit.Log(sess.User.ID, audit.ActionTaskDelete, args[0], audit.OutcomeSuccess, "")
			return render(cmd.OutOrStdout(), r.format, map[string]string{"deleted": args[0]})
		},
	}
}

func parseStatus(s string) tasks.Status {
	return tasks.Status(strings.ToUpper(strings.TrimSpace(s)))
}

func parsePriority(s string) tasks.Priority {
	return tasks.Priority(strings.ToUpper(strings.TrimSpace(s)))
}

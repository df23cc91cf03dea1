package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sheetboard/internal/board"
	"sheetboard/internal/models"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := newClient(v).Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\nexport BOARDCTL_TOKEN=%s\n", res.User.Email, res.User.Role, res.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newProjectsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := newClient(v).ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSHEET\tCREATED BY")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ProjectID, p.ProjectName, p.LinkedSheetID, p.CreatedBy)
			}
			return w.Flush()
		},
	}
}

func newTasksCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <project>",
		Short: "Show a project's tasks grouped by column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newClient(v).ListTasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, col := range b.Columns {
				fmt.Fprintf(out, "== %s\n", col)
				for _, t := range b.Tasks {
					if t.Status == col {
						fmt.Fprintf(out, "  %-10s %s (%d%%)\n", t.ID, t.TaskName, t.Progress)
					}
				}
			}
			return nil
		},
	}
}

func newMoveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "move <project> <task> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard(cmd, v, args[0])
			if err != nil {
				return err
			}
			e, err := b.Move(cmd.Context(), args[1], args[2])
			if err != nil {
				return err
			}
			if e == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already in %s\n", args[1], args[2])
				return nil
			}
			return settle(cmd, e)
		},
	}
}

func newEditCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <project> <task>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := changesFromFlags(cmd)
			if err != nil {
				return err
			}
			b, err := loadBoard(cmd, v, args[0])
			if err != nil {
				return err
			}
			e, err := b.Edit(cmd.Context(), args[1], changes)
			if err != nil {
				return err
			}
			return settle(cmd, e)
		},
	}
	f := cmd.Flags()
	f.String("name", "", "Task name")
	f.String("description", "", "Description")
	f.String("assignee", "", "Assignee email")
	f.String("status", "", "Status column")
	f.String("due", "", "Due date, YYYY-MM-DD")
	f.String("start", "", "Start date, YYYY-MM-DD")
	f.Int("progress", 0, "Progress percentage")
	return cmd
}

// changesFromFlags turns the flags set on the command line into a partial
// update.
func changesFromFlags(cmd *cobra.Command) (models.TaskChanges, error) {
	f := cmd.Flags()
	var c models.TaskChanges
	str := func(name string, dst **string) {
		if f.Changed(name) {
			s, _ := f.GetString(name)
			*dst = &s
		}
	}
	str("name", &c.TaskName)
	str("description", &c.Description)
	str("assignee", &c.AssigneeEmail)
	str("status", &c.Status)
	str("due", &c.DueDate)
	str("start", &c.StartDate)
	if f.Changed("progress") {
		p, _ := f.GetInt("progress")
		c.Progress = models.Progress(p)
	}
	if c.Empty() {
		return c, errors.New("nothing to change; pass at least one field flag")
	}
	return c, nil
}

func loadBoard(cmd *cobra.Command, v *viper.Viper, projectID string) (*board.Board, error) {
	c := newClient(v)
	snapshot, err := c.ListTasks(cmd.Context(), projectID)
	if err != nil {
		return nil, err
	}
	b := board.New(c.Project(projectID))
	b.Load(snapshot.Tasks, snapshot.Columns)
	return b, nil
}

// settle waits for the edit and prints its notification. A rollback is
// reported as an error.
func settle(cmd *cobra.Command, e *board.Edit) error {
	state, err := e.Wait(cmd.Context())
	if err != nil {
		return err
	}
	n := e.Notification()
	if state == board.RolledBack {
		return errors.New(n.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", strings.ToUpper(string(n.Level)), n.Message)
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
	"github.com/moekrh-design/kpi-team-system/internal/workflow"
)

// TaskDetailJSON is the output of task show.
type TaskDetailJSON struct {
	Task   *status.View  `json:"task"`
	Stages []model.Stage `json:"stages"`
}

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, update and approve tasks",
	}
	cmd.AddCommand(
		c.taskCreateCmd(),
		c.taskShowCmd(),
		c.taskListCmd(),
		c.taskSummaryCmd(),
		c.taskEditCmd(),
		c.taskProgressCmd(),
		c.taskReassignCmd(),
		c.taskApproveCmd(),
		c.taskCancelCmd(),
		c.taskDeleteCmd(),
		c.taskHistoryCmd(),
	)
	return cmd
}

// parseStage reads a --stage value: a template key or a custom name,
// optionally followed by @user.
func parseStage(ctx context.Context, a *app, v string) (workflow.StageSpec, error) {
	ref, assignee, _ := strings.Cut(v, "@")
	ref = strings.TrimSpace(ref)
	var spec workflow.StageSpec
	if model.StageName(ref) != ref {
		spec.Key = ref
	} else {
		spec.Name = ref
	}
	id, err := a.userID(ctx, strings.TrimSpace(assignee))
	if err != nil {
		return spec, err
	}
	spec.AssignedTo = id
	return spec, nil
}

func printView(w io.Writer, v *status.View) {
	t := v.Task()
	fmt.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	if v.Status != v.StoredStatus {
		fmt.Fprintf(w, "  status:     %s (stored %s)\n", v.Status, v.StoredStatus)
	} else {
		fmt.Fprintf(w, "  status:     %s\n", v.Status)
	}
	fmt.Fprintf(w, "  progress:   %g / %g (%s)\n", t.DoneValue, t.TargetValue, t.ProgressMode)
	fmt.Fprintf(w, "  priority:   %s\n", t.Priority)
	if t.EmployeeID != "" {
		fmt.Fprintf(w, "  employee:   %s\n", t.EmployeeID)
	}
	if t.SupervisorID != "" {
		fmt.Fprintf(w, "  supervisor: %s\n", t.SupervisorID)
	}
	if t.DueDate != "" {
		fmt.Fprintf(w, "  due:        %s\n", t.DueDate)
	}
}

func printStages(w io.Writer, stages []model.Stage) {
	for _, s := range stages {
		assignee := ""
		if s.AssignedTo != "" {
			assignee = "@" + s.AssignedTo
		}
		fmt.Fprintf(w, "  %s  %-28s %3.0f%%  %-11s %s\n", s.ID, s.Name, s.Progress, s.Status, assignee)
	}
}

func (c *cli) taskCreateCmd() *cobra.Command {
	var in workflow.NewTask
	var priority string
	var stages []string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				in.Title = strings.Join(args, " ")
				in.Priority = model.Priority(priority)
				var err error
				if in.EmployeeID, err = a.userID(ctx, in.EmployeeID); err != nil {
					return err
				}
				if in.SupervisorID, err = a.userID(ctx, in.SupervisorID); err != nil {
					return err
				}
				for _, s := range stages {
					spec, err := parseStage(ctx, a, s)
					if err != nil {
						return err
					}
					in.Stages = append(in.Stages, spec)
				}

				v, err := a.engine.CreateTask(ctx, actor, in)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s\n", v.ID())
				})
			})
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&in.EventID, "event", "", "event id")
	cmd.Flags().StringVarP(&in.EmployeeID, "employee", "e", "", "assigned employee (id or username)")
	cmd.Flags().StringVar(&in.SupervisorID, "supervisor", "", "supervisor (id or username)")
	cmd.Flags().Float64Var(&in.TargetValue, "target", 0, "target value (ignored with stages)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&stages, "stage", nil, "stage template key or name, optionally key@user (repeatable)")
	return cmd
}

func (c *cli) taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				v, stages, err := a.engine.Task(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if stages == nil {
					stages = []model.Stage{}
				}
				return c.output(cmd, TaskDetailJSON{Task: v, Stages: stages}, func(w io.Writer) {
					printView(w, v)
					if len(stages) > 0 {
						fmt.Fprintln(w, "stages:")
						printStages(w, stages)
					}
				})
			})
		},
	}
}

func (c *cli) listFilterFlags(cmd *cobra.Command, f *workflow.ListFilter, withStatus bool) {
	cmd.Flags().StringVarP(&f.EmployeeID, "employee", "e", "", "only tasks of this employee")
	cmd.Flags().StringVar(&f.EventID, "event", "", "only tasks of this event")
	if withStatus {
		cmd.Flags().StringVarP((*string)(&f.Status), "status", "s", "", "only tasks showing this status (overdue included)")
	}
}

func (c *cli) taskListCmd() *cobra.Command {
	var f workflow.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if f.Status != "" && !f.Status.IsValid() {
					return &model.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)}
				}
				var err error
				if f.EmployeeID, err = a.userID(ctx, f.EmployeeID); err != nil {
					return err
				}
				views, err := a.engine.ListTasks(ctx, actor, f)
				if err != nil {
					return err
				}
				return c.output(cmd, views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No tasks")
						return
					}
					for _, v := range views {
						t := v.Task()
						fmt.Fprintf(w, "%s  %-16s %5.0f/%-5.0f %-10s %s\n", t.ID, v.Status, t.DoneValue, t.TargetValue, t.DueDate, t.Title)
					}
				})
			})
		},
	}
	c.listFilterFlags(cmd, &f, true)
	return cmd
}

func (c *cli) taskSummaryCmd() *cobra.Command {
	var f workflow.ListFilter
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count visible tasks by displayed status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				var err error
				if f.EmployeeID, err = a.userID(ctx, f.EmployeeID); err != nil {
					return err
				}
				s, err := a.engine.Summary(ctx, actor, f)
				if err != nil {
					return err
				}
				return c.output(cmd, s, func(w io.Writer) {
					fmt.Fprintf(w, "Total: %d\n", s.Total)
					for _, st := range []model.Status{
						model.StatusNew, model.StatusInProgress, model.StatusPendingApproval,
						model.StatusOverdue, model.StatusCompleted,
					} {
						fmt.Fprintf(w, "  %-17s %d\n", st, s.ByStatus[st])
					}
					fmt.Fprintf(w, "Completion: %.0f%%\n", s.Completed*100)
				})
			})
		},
	}
	c.listFilterFlags(cmd, &f, false)
	return cmd
}

func (c *cli) taskEditCmd() *cobra.Command {
	var title, description, event, supervisor, priority, start, due string
	var target float64
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				var edit workflow.TaskEdit
				flags := cmd.Flags()
				if flags.Changed("title") {
					edit.Title = &title
				}
				if flags.Changed("description") {
					edit.Description = &description
				}
				if flags.Changed("event") {
					edit.EventID = &event
				}
				if flags.Changed("supervisor") {
					id, err := a.userID(ctx, supervisor)
					if err != nil {
						return err
					}
					edit.SupervisorID = &id
				}
				if flags.Changed("priority") {
					p := model.Priority(priority)
					edit.Priority = &p
				}
				if flags.Changed("start") {
					edit.StartDate = &start
				}
				if flags.Changed("due") {
					edit.DueDate = &due
				}
				if flags.Changed("target") {
					edit.TargetValue = &target
				}

				v, err := a.engine.UpdateTask(ctx, actor, args[0], edit)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) { printView(w, v) })
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVar(&event, "event", "", "new event id")
	cmd.Flags().StringVar(&supervisor, "supervisor", "", "new supervisor")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().StringVar(&start, "start", "", "new start date")
	cmd.Flags().StringVar(&due, "due", "", "new due date (empty clears)")
	cmd.Flags().Float64Var(&target, "target", 0, "new target value")
	return cmd
}

func (c *cli) taskProgressCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "progress <id> <done-value>",
		Short: "Record progress on a task without stages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := workflow.ParseProgress(args[1])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				v, err := a.engine.UpdateDirectProgress(ctx, actor, args[0], done, note)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) { printView(w, v) })
			})
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "progress note")
	return cmd
}

func (c *cli) taskReassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <id> <employee>",
		Short: "Assign a task to another employee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				id, err := a.userID(ctx, args[1])
				if err != nil {
					return err
				}
				v, err := a.engine.Reassign(ctx, actor, args[0], id)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) {
					fmt.Fprintf(w, "Assigned %s to %s\n", v.ID(), id)
				})
			})
		},
	}
}

func (c *cli) taskApproveCmd() *cobra.Command {
	var reject bool
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <id> [approved|rejected]",
		Short: "Approve or reject a task awaiting approval",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := model.DecisionApproved
			if reject {
				decision = model.DecisionRejected
			}
			if len(args) == 2 {
				decision = model.Decision(args[1])
			}
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				v, err := a.engine.RecordApproval(ctx, actor, args[0], decision, comment)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s, now %s\n", v.ID(), decision, v.Status)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "decision comment")
	return cmd
}

func (c *cli) taskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task (kept for audit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if err := a.engine.CancelTask(ctx, actor, args[0]); err != nil {
					return err
				}
				return c.output(cmd, map[string]string{"id": args[0], "status": string(model.StatusCancelled)}, func(w io.Writer) {
					fmt.Fprintf(w, "Cancelled %s\n", args[0])
				})
			})
		},
	}
}

func (c *cli) taskDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a task and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("delete is permanent; pass --force to confirm")
			}
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if err := a.engine.HardDeleteTask(ctx, actor, args[0]); err != nil {
					return err
				}
				return c.output(cmd, map[string]string{"id": args[0], "deleted": "true"}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s\n", args[0])
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm permanent deletion")
	return cmd
}

func (c *cli) taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show progress updates and approvals of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				h, err := a.engine.History(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return c.output(cmd, h, func(w io.Writer) {
					const layout = "2006-01-02 15:04"
					for _, u := range h.TaskUpdates {
						fmt.Fprintf(w, "%s  progress %g by %s  %s\n", u.CreatedAt.Format(layout), u.DoneValue, u.CreatedBy, u.Note)
					}
					for _, u := range h.StageUpdates {
						fmt.Fprintf(w, "%s  stage %s %g%% by %s  %s\n", u.CreatedAt.Format(layout), u.StageID, u.Progress, u.UpdatedBy, u.Note)
					}
					for _, ap := range h.Approvals {
						fmt.Fprintf(w, "%s  %s by %s  %s\n", ap.ApprovedAt.Format(layout), ap.Decision, ap.ApprovedBy, ap.Comment)
					}
				})
			})
		},
	}
}

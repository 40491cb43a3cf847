package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/workflow"
)

func (c *cli) stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Manage task stages",
	}
	cmd.AddCommand(c.stageAddCmd(), c.stageUpdateCmd(), c.stageEditCmd(), c.stageCancelCmd())
	return cmd
}

func (c *cli) stageAddCmd() *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "add <task-id> <template-key|name>[@user]",
		Short: "Add a stage to a task",
		Long:  "Add a stage to a task. A task without stages switches to stage tracking and restarts at 0%.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				spec, err := parseStage(ctx, a, args[1])
				if err != nil {
					return err
				}
				spec.Weight = weight
				s, err := a.engine.AddStage(ctx, actor, args[0], spec)
				if err != nil {
					return err
				}
				return c.output(cmd, s, func(w io.Writer) {
					fmt.Fprintf(w, "Added stage %s (%s) to %s\n", s.ID, s.Name, s.TaskID)
				})
			})
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "stage weight (0 = equal share)")
	return cmd
}

func (c *cli) stageUpdateCmd() *cobra.Command {
	var in workflow.StageProgress
	cmd := &cobra.Command{
		Use:   "update <stage-id> [progress]",
		Short: "Record progress on a stage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !in.MarkDone {
				return fmt.Errorf("give a progress value or --done")
			}
			if len(args) == 2 {
				p, err := workflow.ParseProgress(args[1])
				if err != nil {
					return err
				}
				in.Progress = p
			}
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				v, err := a.engine.UpdateStageProgress(ctx, actor, args[0], in)
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) { printView(w, v) })
			})
		},
	}
	cmd.Flags().BoolVar(&in.MarkDone, "done", false, "mark the stage 100% done")
	cmd.Flags().StringVarP(&in.Note, "note", "n", "", "progress note")
	return cmd
}

func (c *cli) stageEditCmd() *cobra.Command {
	var name, assign string
	var order int
	var weight float64
	cmd := &cobra.Command{
		Use:   "edit <stage-id>",
		Short: "Rename, reassign, reorder or reweight a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				var meta workflow.StageMeta
				flags := cmd.Flags()
				if flags.Changed("name") {
					meta.Name = &name
				}
				if flags.Changed("assign") {
					id, err := a.userID(ctx, assign)
					if err != nil {
						return err
					}
					meta.AssignedTo = &id
				}
				if flags.Changed("order") {
					meta.SortOrder = &order
				}
				if flags.Changed("weight") {
					meta.Weight = &weight
				}
				s, err := a.engine.UpdateStageMeta(ctx, actor, args[0], meta)
				if err != nil {
					return err
				}
				return c.output(cmd, s, func(w io.Writer) { printStages(w, []model.Stage{*s}) })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new stage name")
	cmd.Flags().StringVar(&assign, "assign", "", "new assignee (empty unassigns)")
	cmd.Flags().IntVar(&order, "order", 0, "new sort position")
	cmd.Flags().Float64Var(&weight, "weight", 0, "new weight (0 = equal share)")
	return cmd
}

func (c *cli) stageCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <stage-id>",
		Short: "Cancel a stage; it no longer counts towards the task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				v, err := a.engine.CancelStage(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return c.output(cmd, v, func(w io.Writer) { printView(w, v) })
			})
		},
	}
}

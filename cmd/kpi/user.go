package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var name, email, role string
	var canApprove bool
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if actor.Role != model.RoleAdmin {
					return fmt.Errorf("%s cannot add users: %w", actor.ID, model.ErrNotAuthorized)
				}
				u := &model.User{
					ID:          model.GenerateID(model.KindUser),
					Username:    strings.TrimSpace(args[0]),
					DisplayName: name,
					Role:        model.Role(role),
					Email:       strings.TrimSpace(email),
					CanApprove:  canApprove,
					Active:      true,
				}
				if u.DisplayName == "" {
					u.DisplayName = u.Username
				}
				if err := a.db.CreateUser(ctx, u); err != nil {
					return err
				}
				return c.output(cmd, u, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s %s (%s)\n", u.Role, u.ID, u.Username)
				})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "email address for notifications")
	add.Flags().StringVar(&role, "role", string(model.RoleEmployee), "admin, supervisor or employee")
	add.Flags().BoolVar(&canApprove, "can-approve", false, "employee may approve tasks")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, _ model.Actor) error {
				users, err := a.db.ListUsers(ctx)
				if err != nil {
					return err
				}
				if users == nil {
					users = []model.User{}
				}
				return c.output(cmd, users, func(w io.Writer) {
					for _, u := range users {
						fmt.Fprintf(w, "%s  %-12s %-10s %s\n", u.ID, u.Username, u.Role, u.Email)
					}
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	var markRead, unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List the --as user's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if c.as == "" {
					return fmt.Errorf("notifications need --as")
				}
				if markRead {
					n, err := a.db.MarkAllRead(ctx, actor.ID)
					if err != nil {
						return err
					}
					return c.output(cmd, map[string]int64{"marked": n}, func(w io.Writer) {
						fmt.Fprintf(w, "Marked %d notifications read\n", n)
					})
				}

				notes, err := a.db.ListNotifications(ctx, actor.ID, unread, limit)
				if err != nil {
					return err
				}
				if notes == nil {
					notes = []model.Notification{}
				}
				return c.output(cmd, notes, func(w io.Writer) {
					for _, n := range notes {
						mark := " "
						if !n.Read {
							mark = "*"
						}
						fmt.Fprintf(w, "%s %s  %-16s %s: %s\n", mark, n.CreatedAt.Format("2006-01-02 15:04"), n.Type, n.Title, n.Body)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&markRead, "read", false, "mark all notifications read")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum notifications to list (0 = all)")
	return cmd
}

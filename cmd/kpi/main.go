// Command kpi tracks team tasks, their stages and approvals, and sends
// assignment and due-date notifications.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moekrh-design/kpi-team-system/internal/config"
	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/log"
	"github.com/moekrh-design/kpi-team-system/internal/mail"
	"github.com/moekrh-design/kpi-team-system/internal/metrics"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/notify"
	"github.com/moekrh-design/kpi-team-system/internal/workflow"
)

// cli holds the persistent flags shared by every command.
type cli struct {
	config string
	dbPath string
	driver string
	json   bool
	as     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "kpi",
		Short:        "Team task and KPI tracking",
		Long:         `Track team tasks and their stages, approve completed work and remind people of due dates.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.config, "config", "", "config file (default ~/.kpi/config.yaml)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "sqlite file, or connection string with --driver pgx")
	root.PersistentFlags().StringVar(&c.driver, "driver", "", "database driver: sqlite or pgx")
	root.PersistentFlags().BoolVar(&c.json, "json", false, "print JSON")
	root.PersistentFlags().StringVar(&c.as, "as", "", "act as this user (id or username)")

	root.AddCommand(
		c.initCmd(),
		c.userCmd(),
		c.taskCmd(),
		c.stageCmd(),
		c.remindCmd(),
		c.sweepCmd(),
		c.notificationsCmd(),
		c.serveCmd(),
	)
	return root
}

// app is everything a command needs, wired from config.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	db       *db.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	mailer   *mail.SMTPMailer
	notifier *notify.Dispatcher
	engine   *workflow.Engine
}

func (c *cli) open(cmd *cobra.Command) (*app, error) {
	boot := log.NewWithOutput(cmd.ErrOrStderr(), "", "text")
	cfg, err := config.NewLoader(boot).Load(c.config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}
	if c.dbPath != "" {
		if cfg.Database.Driver == db.DriverPostgres || cfg.Database.Driver == "postgres" {
			cfg.Database.DSN = c.dbPath
		} else {
			cfg.Database.Path = c.dbPath
		}
	}

	logger := log.NewWithOutput(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "" || cfg.Database.Driver == db.DriverSQLite {
		dsn = cfg.Database.Path
		if dsn == "" {
			if dsn, err = db.DefaultPath(); err != nil {
				return nil, err
			}
		}
	}
	store, err := db.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	mailer := mail.NewSMTPMailer(cfg.Mail)
	dispatcher := notify.New(store, mailer,
		notify.WithLogger(logger),
		notify.WithMetrics(m),
		notify.WithBaseURL(cfg.BaseURL),
		notify.WithDueDays(cfg.Reminders.DueDays),
	)
	engine := workflow.New(store, dispatcher,
		workflow.WithLogger(logger),
		workflow.WithMetrics(m),
		workflow.WithFileRemover(uploadRemover(cfg.UploadDir)),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       store,
		registry: registry,
		metrics:  m,
		mailer:   mailer,
		notifier: dispatcher,
		engine:   engine,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close database")
	}
}

// uploadRemover deletes attachment files from dir. Without a directory there
// are no files to remove.
func uploadRemover(dir string) workflow.FileRemover {
	if dir == "" {
		return nil
	}
	return func(name string) error {
		err := os.Remove(filepath.Join(dir, filepath.Base(name)))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
}

// user resolves a user by id or username.
func (a *app) user(ctx context.Context, ref string) (*model.User, error) {
	u, err := a.db.GetUser(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return a.db.GetUserByUsername(ctx, ref)
	}
	return u, err
}

// userID resolves ref to a user id; empty stays empty.
func (a *app) userID(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	u, err := a.user(ctx, ref)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// actor returns the identity given by --as. Without it commands run as the
// system administrator.
func (a *app) actor(ctx context.Context, ref string) (model.Actor, error) {
	if ref == "" {
		return model.System, nil
	}
	u, err := a.user(ctx, ref)
	if err != nil {
		return model.Actor{}, fmt.Errorf("--as %s: %w", ref, err)
	}
	if !u.Active {
		return model.Actor{}, fmt.Errorf("--as %s: user is inactive", ref)
	}
	return u.Actor(), nil
}

// run opens the app, resolves the actor and calls fn.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app, actor model.Actor) error) error {
	a, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	actor, err := a.actor(ctx, c.as)
	if err != nil {
		return err
	}
	return fn(ctx, a, actor)
}

// output prints v as JSON with --json, otherwise calls text.
func (c *cli) output(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if c.json {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	text(w)
	return nil
}

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the user config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(log.NewWithOutput(cmd.ErrOrStderr(), "", "text")).EnsureUserConfig()
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return c.output(cmd, map[string]string{"config": path, "driver": a.cfg.Database.Driver}, func(w io.Writer) {
				fmt.Fprintf(w, "Config: %s\n", path)
				fmt.Fprintf(w, "Database ready (%s)\n", a.cfg.Database.Driver)
			})
		},
	}
}

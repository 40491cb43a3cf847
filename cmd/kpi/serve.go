package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/notify"
	"github.com/moekrh-design/kpi-team-system/internal/scheduler"
)

func (c *cli) remindCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "remind <task-id>",
		Short: "Email the task employee a reminder now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, actor model.Actor) error {
				if err := a.engine.Remind(ctx, actor, args[0], message); err != nil {
					return err
				}
				return c.output(cmd, map[string]string{"id": args[0], "sent": "true"}, func(w io.Writer) {
					fmt.Fprintf(w, "Reminder sent for %s\n", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "note to include")
	return cmd
}

func printSweep(w io.Writer, r notify.SweepReport) {
	fmt.Fprintf(w, "Due %s..%s: %d candidates, %d sent, %d skipped, %d failed\n",
		r.From, r.To, r.Candidates, r.Sent, r.Skipped, r.Failed)
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send due-soon reminders once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, _ model.Actor) error {
				report, err := a.notifier.RunDueSoonSweep(ctx)
				if err != nil {
					return err
				}
				return c.output(cmd, report, func(w io.Writer) { printSweep(w, report) })
			})
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder scheduler and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "metrics-addr", "", "metrics listen address (default from config)")
	return cmd
}

// serve runs until ctx is done.
func serve(ctx context.Context, a *app, addr string) error {
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}

	worker, err := scheduler.New("due-soon", a.cfg.Reminders.Interval, func(ctx context.Context) error {
		_, err := a.notifier.RunDueSoonSweep(ctx)
		return err
	}, scheduler.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer worker.Stop()

	var srv *http.Server
	errc := make(chan error, 1)
	if addr != "" {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	a.logger.WithFields(logrus.Fields{
		"metrics":  addr,
		"interval": a.cfg.Reminders.Interval,
		"due_days": a.cfg.Reminders.DueDays,
	}).Info("kpi serving")

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("metrics server shutdown")
		}
	}
	a.logger.Info("kpi stopped")
	return nil
}

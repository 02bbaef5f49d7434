// Command notifier runs the send-time optimized notification pipeline.
//
// Usage:
//
//	notifier serve
//	notifier dispatch
//	notifier aggregate --date 2026-03-09
//	notifier report --date 2026-03-09
//	notifier migrate
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/infra/config"
	"sendtime_notifier/internal/infra/httpapi"
	"sendtime_notifier/internal/infra/logger"
	"sendtime_notifier/internal/infra/scheduler"
	"sendtime_notifier/internal/infra/stream"
	"sendtime_notifier/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const dateLayout = "2006-01-02"

func main() {
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Multi-channel notification queue with send-time optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(dispatchCmd())
	root.AddCommand(aggregateCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		logger.Log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// run loads configuration, wires the service graph and hands it to fn with
// a context cancelled on SIGINT or SIGTERM.
func run(fn func(ctx context.Context, c *components) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	logger.Log.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"driver":      cfg.DatabaseDriver,
	}).Info("Configuration loaded")

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func parseDateFlag(raw string) (time.Time, error) {
	if raw == "" {
		return analytics.DateOf(time.Now()).AddDate(0, 0, -1), nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", raw)
	}
	return d, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, cron jobs, Kafka consumer and Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(serve)
		},
	}
}

func serve(ctx context.Context, c *components) error {
	log := logger.WithComponent("main")
	g, ctx := errgroup.WithContext(ctx)

	sched := scheduler.NewNotificationScheduler(
		c.dispatcher,
		c.aggregator,
		c.locker,
		logger.WithComponent("scheduler"),
		c.cfg.CronSpecDispatch,
		c.cfg.CronSpecAggregate,
	)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Notifications: c.notifications,
		Engagement:    c.engagement,
		Analytics:     c.analytics,
		Metrics:       c.metrics.Handler(),
		Health:        c.db.PingContext,
		Logger:        logger.WithComponent("http"),
	}, c.cfg.CORSAllowedOrigins)
	srv := &http.Server{
		Addr:              c.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.WithField("addr", c.cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(c.cfg.KafkaBrokers) > 0 {
		consumer := stream.NewEngagementConsumer(
			c.cfg.KafkaBrokers,
			c.cfg.KafkaEngagementTopic,
			c.cfg.KafkaGroupID,
			c.engagement,
			logger.WithComponent("kafka"),
		)
		g.Go(func() error { return consumer.Run(ctx) })
	} else {
		log.Info("KAFKA_BROKERS not set: engagement consumer disabled")
	}

	if c.bot != nil {
		telegram.RegisterBotCommands(c.bot, c.operator, logger.WithComponent("telegram"))
		telegram.RegisterOperatorHandlers(ctx, c.bot, c.operator, logger.WithComponent("telegram"))
		telegram.RegisterEngagementHandlers(ctx, c.bot, c.engagement, logger.WithComponent("telegram"))
		go c.bot.Start()
		g.Go(func() error {
			<-ctx.Done()
			c.bot.Stop()
			return nil
		})
		log.Info("Telegram bot started")
	}

	log.Info("Application setup complete")
	err := g.Wait()
	log.Info("Shutting down application...")
	return err
}

// --------------------------------------------------------------------------
// one-shot commands
// --------------------------------------------------------------------------

func dispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a single dispatch cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, c *components) error {
				release, err := c.locker.Acquire(ctx, scheduler.DispatchLockKey, c.cfg.ClaimLease)
				if err != nil {
					return err
				}
				defer release()
				report, err := c.dispatcher.RunCycle(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func aggregateCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate engagement events for a day (default: yesterday, UTC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, c *components) error {
				release, err := c.locker.Acquire(ctx, scheduler.AggregateLockKey, 30*time.Minute)
				if err != nil {
					return err
				}
				defer release()
				report, err := c.aggregator.Run(ctx, day)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Analysis date (YYYY-MM-DD)")
	return cmd
}

func reportCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the analytics report for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDateFlag(date)
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, c *components) error {
				rep, err := c.analytics.Report(ctx, day)
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Analysis date (YYYY-MM-DD)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, c *components) error {
				logger.Log.WithField("driver", c.cfg.DatabaseDriver).Info("Schema is up to date")
				return nil
			})
		},
	}
}

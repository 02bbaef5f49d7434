package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/analytics"
	"sendtime_notifier/internal/domain/cohort"
	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
	"sendtime_notifier/internal/domain/profile"
	"sendtime_notifier/internal/infra/cache"
	"sendtime_notifier/internal/infra/channel"
	"sendtime_notifier/internal/infra/config"
	idb "sendtime_notifier/internal/infra/database"
	"sendtime_notifier/internal/infra/logger"
	"sendtime_notifier/internal/infra/metrics"
	"sendtime_notifier/internal/infra/sqlite"
	"sendtime_notifier/internal/infra/telegram"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

type repositories struct {
	queue     notification.Repository
	profiles  profile.Repository
	events    engagement.Repository
	cohorts   cohort.Repository
	analytics analytics.Repository
}

// components is the fully wired service graph shared by every command.
type components struct {
	cfg     *config.AppConfig
	db      *sql.DB
	redis   *redis.Client
	locker  cache.Locker
	metrics *metrics.Collector
	bot     *telebot.Bot

	notifications *app.NotificationServiceImpl
	engagement    *app.EngagementService
	dispatcher    *app.DispatchService
	aggregator    *app.AggregationService
	analytics     *app.AnalyticsService
	operator      *app.OperatorService
}

func (c *components) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func openDatabase(ctx context.Context, cfg *config.AppConfig) (*sql.DB, repositories, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, repositories{}, err
		}
		return db, repositories{
			queue:     sqlite.NewNotificationRepository(db),
			profiles:  sqlite.NewProfileRepository(db),
			events:    sqlite.NewEngagementRepository(db),
			cohorts:   sqlite.NewCohortRepository(db),
			analytics: sqlite.NewAnalyticsRepository(db),
		}, nil
	default:
		db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, repositories{}, err
		}
		if err := idb.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, repositories{}, err
		}
		return db, repositories{
			queue:     idb.NewPostgresNotificationRepository(db),
			profiles:  idb.NewPostgresProfileRepository(db),
			events:    idb.NewPostgresEngagementRepository(db),
			cohorts:   idb.NewPostgresCohortRepository(db),
			analytics: idb.NewPostgresAnalyticsRepository(db),
		}, nil
	}
}

func newBot(cfg *config.AppConfig) (*telebot.Bot, error) {
	log := logger.WithComponent("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telegram handler failed")
		},
	}
	return telebot.NewBot(pref)
}

func buildComponents(ctx context.Context, cfg *config.AppConfig) (*components, error) {
	mainLog := logger.WithComponent("main")
	c := &components{cfg: cfg, metrics: metrics.NewCollector(), locker: cache.NoopLocker{}}

	db, repos, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	c.db = db
	mainLog.WithField("driver", cfg.DatabaseDriver).Info("Database connection established")

	var reportCache app.ReportCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("could not connect to redis: %w", err)
		}
		c.redis = rdb
		c.locker = cache.NewRedisLocker(rdb)
		reportCache = cache.NewReportCache(rdb, cfg.ReportCacheTTL)
		mainLog.Info("Redis lock and report cache enabled")
	} else {
		mainLog.Warn("REDIS_URL not set: jobs are not locked across instances and reports are not cached")
	}

	var cohortChannels []notification.Channel
	for _, raw := range cfg.CohortChannels {
		ch, ok := notification.ParseChannel(raw)
		if !ok {
			c.Close()
			return nil, fmt.Errorf("invalid COHORT_CHANNELS entry %q", raw)
		}
		cohortChannels = append(cohortChannels, ch)
	}

	senders := channel.NewRegistry(cfg.SendRatePerSecond)
	if cfg.SMTPHost != "" {
		senders.Register(channel.NewEmailSender(channel.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	}
	if cfg.SMSGatewayURL != "" {
		senders.Register(channel.NewSMSSender(cfg.SMSGatewayURL, cfg.SMSGatewayToken, &http.Client{Timeout: cfg.SendTimeout}))
	}
	if cfg.TelegramToken != "" {
		bot, err := newBot(cfg)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		c.bot = bot
		senders.Register(telegram.NewChatSender(telegram.NewTelebotAdapter(bot)))
	}
	mainLog.WithField("channels", senders.Channels()).Info("Channel senders registered")

	cohortSvc := app.NewCohortService(repos.cohorts, cohortChannels)
	planner := app.NewSendTimePlanner(repos.analytics, cohortSvc, logger.WithComponent("planner"))
	c.engagement = app.NewEngagementService(repos.events, c.metrics, logger.WithComponent("engagement"))
	c.notifications = app.NewNotificationServiceImpl(repos.queue, repos.profiles, planner, c.metrics, logger.WithComponent("notifications"))
	c.dispatcher = app.NewDispatchService(
		repos.queue,
		repos.profiles,
		senders,
		c.engagement,
		cohortSvc,
		app.DispatchConfig{
			BatchSize:       cfg.DispatchBatchSize,
			SendTimeout:     cfg.SendTimeout,
			ClaimLease:      cfg.ClaimLease,
			DisabledRecheck: cfg.DisabledChannelRetry,
			DisabledMaxAge:  cfg.DisabledChannelMaxAge,
		},
		c.metrics,
		logger.WithComponent("dispatcher"),
	)
	c.aggregator = app.NewAggregationService(
		repos.events,
		repos.analytics,
		repos.cohorts,
		cohortSvc,
		reportCache,
		app.AggregationConfig{WindowDays: cfg.AnalysisWindowDays, MinSampleSize: cfg.MinHourSampleSize},
		c.metrics,
		logger.WithComponent("aggregator"),
	)
	c.analytics = app.NewAnalyticsService(repos.analytics, repos.cohorts, reportCache, cfg.MinHourSampleSize, logger.WithComponent("analytics"))
	c.operator = app.NewOperatorService(c.notifications, c.analytics, cfg.AdminTelegramID)

	return c, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calm-red-fox/aitrail/internal/activity"
	"github.com/calm-red-fox/aitrail/internal/alerts"
	"github.com/calm-red-fox/aitrail/internal/api"
	"github.com/calm-red-fox/aitrail/internal/api/health"
	"github.com/calm-red-fox/aitrail/internal/clock"
	"github.com/calm-red-fox/aitrail/internal/config"
	"github.com/calm-red-fox/aitrail/internal/integrity"
	"github.com/calm-red-fox/aitrail/internal/metrics"
	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/notify"
	"github.com/calm-red-fox/aitrail/internal/retention"
	"github.com/calm-red-fox/aitrail/internal/scheduler"
	"github.com/calm-red-fox/aitrail/internal/storage"
	pkgconfig "github.com/calm-red-fox/aitrail/pkg/config"
)

var (
	configFile string
	apiAddr    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "aitraild",
	Short: "aitrail daemon - AI operation audit trail service",
	Long: `aitraild records AI model operations, enforces retention policies,
audits stored records for tampering, and raises alerts on anomalous
activity. It exposes an HTTP API for logging and querying.`,
	RunE: runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aitraild %s\n", pkgconfig.Version)
		fmt.Printf("  commit: %s\n", pkgconfig.Commit)
		fmt.Printf("  built:  %s\n", pkgconfig.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&apiAddr, "address", "a", "", "HTTP API listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	var cfg *config.Config

	if configFile != "" {
		var err error
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if apiAddr != "" {
		cfg.API.Address = apiAddr
	}
	cfg.Verbose = verbose

	for _, dir := range []string{filepath.Dir(cfg.Storage.SQLitePath), cfg.Retention.ArchiveDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// SQLite always holds alerts and policy runs; with the clickhouse
	// backend it keeps holding those while activity moves out.
	store := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s", cfg.Storage.SQLitePath)

	activityRepo := storage.ActivityRepository(store.Activity())
	var chStore *storage.ClickHouseActivityStore
	if cfg.Storage.Backend == config.BackendClickHouse {
		chStore = storage.NewClickHouseActivityStore(&storage.ClickHouseConfig{
			Addresses: []string{cfg.Storage.ClickHouse.Addr},
			Database:  cfg.Storage.ClickHouse.Database,
			Username:  cfg.Storage.ClickHouse.Username,
			Password:  cfg.Storage.ClickHouse.Password,
		})
		if err := chStore.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chStore.Close()
		if err := chStore.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		activityRepo = chStore
		log.Printf("activity records stored in clickhouse at %s", cfg.Storage.ClickHouse.Addr)
	}

	clk := clock.New()

	dispatcher, inApp, err := buildDispatcher(cfg, clk)
	if err != nil {
		return fmt.Errorf("configure notifications: %w", err)
	}
	defer dispatcher.Close()

	manager := alerts.NewManager(store.Alerts(), clk, dispatcher, &alerts.ManagerOptions{
		AggregationWindow:  cfg.Alerts.AggregationWindow,
		MaxAlertsPerWindow: cfg.Alerts.MaxAlertsPerWindow,
	})

	var evaluator *alerts.Evaluator
	var watcher *alerts.RuleWatcher
	if cfg.Alerts.RulesFile != "" {
		rules, err := alerts.LoadRulesFromFile(cfg.Alerts.RulesFile)
		if err != nil {
			return fmt.Errorf("load alert rules: %w", err)
		}
		ruleSet, err := alerts.NewRuleSet(rules)
		if err != nil {
			return fmt.Errorf("compile alert rules: %w", err)
		}
		evaluator = alerts.NewEvaluator(ruleSet, manager)
		watcher, err = alerts.NewRuleWatcher(cfg.Alerts.RulesFile, ruleSet)
		if err != nil {
			return fmt.Errorf("watch alert rules: %w", err)
		}
		log.Printf("loaded %d alert rules from %s", len(rules), cfg.Alerts.RulesFile)
	}

	sink := anomalySink(manager, evaluator, cfg.Alerts.Channels)
	logger := activity.NewLogger(activityRepo, clk, sink, nil)
	defer logger.Close()

	engine := retention.NewEngine(activityRepo, clk, cfg.Retention.ArchiveDir)
	auditor := integrity.NewAuditor(activityRepo, clk)
	detector := activity.NewDetector(activityRepo, clk)

	sched := scheduler.New(engine, auditor, detector, manager, store.PolicyRuns(), clk, scheduler.Config{
		Policies:             cfg.Retention.Policies,
		IntegrityInterval:    cfg.Integrity.Interval,
		AnomalySweepInterval: cfg.Anomaly.SweepInterval,
		AnomalyLookbackHours: cfg.Anomaly.LookbackHours,
		AlertChannels:        cfg.Alerts.Channels,
	})

	srv, err := api.New(&api.Config{Address: cfg.API.Address, Verbose: cfg.Verbose}, api.Deps{
		Logger:    logger,
		Engine:    engine,
		Auditor:   auditor,
		Alerts:    manager,
		Scheduler: sched,
		InApp:     inApp,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	if chStore != nil {
		srv.RegisterHealthChecker(health.NewClickHouseChecker(chStore))
	}
	srv.RegisterHealthChecker(health.NewArchiveDirChecker(cfg.Retention.ArchiveDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Address)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		log.Printf("metrics listening on %s", cfg.Metrics.Address)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics server shutdown: %v", err)
			}
		}()
	}

	log.Printf("starting aitraild %s", pkgconfig.Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { logger.Run(gctx); return nil })
	if watcher != nil {
		g.Go(func() error { watcher.Run(gctx); return nil })
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("run daemon: %w", err)
	}

	log.Printf("daemon stopped")
	return nil
}

// buildDispatcher assembles the notification dispatcher from config.
// The in-app channel is always registered so alerts are visible over
// the API even with no external channels configured.
func buildDispatcher(cfg *config.Config, clk clock.Clock) (*notify.Dispatcher, *notify.InAppNotifier, error) {
	dispatcher := notify.NewDispatcherWithRateLimit(notify.RateLimitConfig{
		MaxPerWindow: cfg.Notifications.RateLimit.MaxPerWindow,
		Window:       cfg.Notifications.RateLimit.Window,
		Enabled:      !cfg.Notifications.RateLimit.Disabled,
		Clock:        clk,
	})

	inApp := notify.NewInAppNotifier(cfg.Notifications.InAppCapacity)
	dispatcher.Register(inApp)

	if ec := cfg.Notifications.Email; ec != nil {
		email, err := notify.NewEmailNotifier(notify.EmailConfig{
			Host:       ec.Host,
			Port:       ec.Port,
			Username:   ec.Username,
			Password:   ec.Password,
			From:       ec.From,
			Recipients: ec.Recipients,
		})
		if err != nil {
			return nil, nil, err
		}
		dispatcher.Register(email)
	}

	if wc := cfg.Notifications.Webhook; wc != nil {
		webhook, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     wc.URL,
			Headers: wc.Headers,
		})
		if err != nil {
			return nil, nil, err
		}
		dispatcher.Register(webhook)
	}

	if sc := cfg.Notifications.SMS; sc != nil {
		sms, err := notify.NewSMSNotifier(notify.SMSConfig{
			GatewayURL: sc.GatewayURL,
			APIKey:     sc.APIKey,
			From:       sc.From,
			Recipients: sc.Recipients,
		})
		if err != nil {
			return nil, nil, err
		}
		dispatcher.Register(sms)
	}

	return dispatcher, inApp, nil
}

// anomalySink raises an alert for each finding from the logger's
// background probe and, when a rules file is configured, feeds the
// finding through the rule evaluator as well.
func anomalySink(manager *alerts.Manager, evaluator *alerts.Evaluator, channels []string) activity.AnomalySink {
	return func(ctx context.Context, anomalies []models.AnomalousActivity) {
		for _, anomaly := range anomalies {
			params := alerts.AnomalyParams(anomaly)
			params.Channels = channels
			if _, err := manager.Create(ctx, params); err != nil && err != alerts.ErrSuppressed {
				log.Printf("anomaly alert: %v", err)
			}

			if evaluator == nil {
				continue
			}
			evalCtx := map[string]any{
				"category":       string(anomaly.Category),
				"severity":       string(anomaly.Severity),
				"model_name":     anomaly.ModelName,
				"description":    anomaly.Description,
				"affected_count": len(anomaly.AffectedIDs),
			}
			if _, err := evaluator.EvaluateRules(ctx, evalCtx); err != nil {
				log.Printf("rule evaluation: %v", err)
			}
		}
	}
}

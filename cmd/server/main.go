package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/accountdesk/internal/activity"
	"github.com/matthewbaird/accountdesk/internal/auth"
	"github.com/matthewbaird/accountdesk/internal/bulk"
	"github.com/matthewbaird/accountdesk/internal/cache"
	"github.com/matthewbaird/accountdesk/internal/config"
	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/directory"
	"github.com/matthewbaird/accountdesk/internal/event"
	"github.com/matthewbaird/accountdesk/internal/eventbus"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/metrics"
	"github.com/matthewbaird/accountdesk/internal/schema"
	"github.com/matthewbaird/accountdesk/internal/server"
	"github.com/matthewbaird/accountdesk/internal/session"
	"github.com/matthewbaird/accountdesk/internal/sqlitedb"
	"github.com/matthewbaird/accountdesk/internal/templates"
	"github.com/matthewbaird/accountdesk/internal/wizard"
	"github.com/matthewbaird/accountdesk/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server error", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	reg := metrics.New()

	client, err := newDirectory(cfg, log)
	if err != nil {
		return err
	}

	var drv *entsql.Driver
	if cfg.DatabaseURL != "" {
		if drv, err = sqlitedb.Open(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		defer drv.Close()
		log.Info("database opened")
	}

	cacheMetrics, err := cache.NewMetrics(reg.Registerer())
	if err != nil {
		return err
	}
	accounts := cache.New(client,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(log),
		cache.WithMetrics(cacheMetrics),
	)

	tpls, err := loadTemplates(cfg.TemplatesFile)
	if err != nil {
		return err
	}
	log.Info("templates loaded", "count", len(tpls.ListNames()))

	sch := schema.Accounts()
	sessions, err := newSessionStore(ctx, cfg, drv, wizard.NewCodec(sch))
	if err != nil {
		return err
	}
	log.Info("session store ready", "backend", cfg.Session.Backend)

	store, err := newActivityStore(ctx, drv)
	if err != nil {
		return err
	}

	bus := eventbus.New(256, log)
	bus.Subscribe("log", eventbus.NewLogConsumer(log))
	eventMetrics, err := eventbus.NewMetricsConsumer(reg.Registerer())
	if err != nil {
		return err
	}
	bus.Subscribe("metrics", eventMetrics)
	recorder := event.NewActivityRecorder(store)
	recorder.SetPublisher(bus)

	wizardMetrics, err := wizard.NewMetrics(reg.Registerer())
	if err != nil {
		return err
	}
	engine := wizard.NewEngine(sch, tpls, client, accounts,
		wizard.WithLogger(log),
		wizard.WithMetrics(wizardMetrics),
	)

	runner := bulk.NewRunner(accounts, log)
	if err := runner.RegisterMetrics(reg.Registerer()); err != nil {
		return err
	}
	deskMetrics, err := desk.NewMetrics(reg.Registerer())
	if err != nil {
		return err
	}

	policy := auth.NewPolicy(cfg.AdminIDs, cfg.OperatorIDs)
	if len(cfg.AdminIDs) == 0 && len(cfg.OperatorIDs) == 0 {
		log.Warn("no ADMIN_IDS or OPERATOR_IDS configured; every actor is an admin")
		policy = auth.Open()
	}

	d, err := desk.New(desk.Config{
		Engine:    engine,
		Accounts:  accounts,
		Client:    client,
		Sessions:  sessions,
		Policy:    policy,
		Templates: tpls,
		Bulk:      runner,
		Recorder:  recorder,
		Logger:    log,
		Metrics:   deskMetrics,
	})
	if err != nil {
		return err
	}

	maintenance := worker.NewMaintenanceWorker(accounts, sessions, cfg.Cache.SweepInterval, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return maintenance.Run(gctx) })
	g.Go(func() error {
		return server.Run(gctx, server.Config{
			Port:     cfg.Port,
			Desk:     d,
			Activity: store,
			Metrics:  reg,
			Logger:   log,

			AllowedOrigins: cfg.AllowedOrigins,
		})
	})
	return g.Wait()
}

func newDirectory(cfg config.Config, log *logger.Logger) (directory.Client, error) {
	if cfg.Directory.Mode == config.DirectoryMemory {
		log.Warn("using in-memory directory; accounts are lost on restart")
		return directory.NewMemoryClient(), nil
	}
	return directory.NewHTTPClient(cfg.Directory.URL, cfg.Directory.Token, cfg.Directory.Timeout)
}

func loadTemplates(path string) (*templates.Registry, error) {
	if path == "" {
		return templates.Default()
	}
	return templates.LoadFile(path)
}

func newSessionStore(ctx context.Context, cfg config.Config, drv *entsql.Driver, codec wizard.Codec) (session.Store, error) {
	idle := cfg.Session.IdleTimeout
	switch cfg.Session.Backend {
	case config.SessionSQLite:
		s := session.NewSQLiteStore(drv, codec, idle)
		if err := s.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("creating session table: %w", err)
		}
		return s, nil
	case config.SessionRedis:
		rdb, err := session.DialRedis(ctx, cfg.Session.RedisAddr)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(rdb, codec, idle), nil
	}
	return session.NewMemoryStore(idle), nil
}

func newActivityStore(ctx context.Context, drv *entsql.Driver) (activity.Store, error) {
	if drv == nil {
		return activity.NewMemoryStore(), nil
	}
	s := activity.NewSQLiteStore(drv)
	if err := s.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("creating activity table: %w", err)
	}
	return s, nil
}

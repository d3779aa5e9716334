package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgecomet/siteguard/internal/allowlist"
	"github.com/edgecomet/siteguard/internal/audit"
	"github.com/edgecomet/siteguard/internal/common/config"
	"github.com/edgecomet/siteguard/internal/common/configtypes"
	"github.com/edgecomet/siteguard/internal/common/logger"
	"github.com/edgecomet/siteguard/internal/common/metricsserver"
	"github.com/edgecomet/siteguard/internal/common/redis"
	"github.com/edgecomet/siteguard/internal/hostsfile"
	"github.com/edgecomet/siteguard/internal/metrics"
	"github.com/edgecomet/siteguard/internal/risk"
	"github.com/edgecomet/siteguard/internal/scancache"
	"github.com/edgecomet/siteguard/internal/server"
)

func main() {
	configPath := flag.String("c", "configs/siteguard.yaml", "path to configuration file")
	testMode := flag.Bool("t", false, "test configuration and exit")
	flag.Parse()

	if *testMode {
		os.Exit(runConfigTest(*configPath))
	}

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	initialLogger.Info("Starting siteguard", zap.String("config_path", *configPath))

	cfg, err := config.Load(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}

	if err := run(cfg, dynamicLogger); err != nil {
		dynamicLogger.Error("siteguard stopped with error", zap.Error(err))
		_ = dynamicLogger.Sync()
		_ = dynamicLogger.Close()
		os.Exit(1)
	}

	_ = dynamicLogger.Sync()
	_ = dynamicLogger.Close()
}

func run(cfg *configtypes.Config, dynamicLogger *logger.DynamicLogger) error {
	lg := dynamicLogger.Logger

	collector := metrics.NewCollector(cfg.Metrics.Namespace, lg)

	store := hostsfile.NewLockedStore(
		hostsfile.NewStore(cfg.Hosts.Path, &hostsfile.OSPersister{Atomic: cfg.Hosts.IsAtomicWrite()}, lg),
		cfg.Hosts.LockFile,
		lg,
	)

	var (
		cache       risk.Cache = scancache.Noop{}
		redisClient *redis.Client
	)
	if cfg.ScanCache.Enabled {
		var err error
		redisClient, err = redis.NewClient(&cfg.Redis, lg)
		if err != nil {
			return fmt.Errorf("scan cache: %w", err)
		}
		defer redisClient.Close()
		cache = scancache.NewRedisCache(redisClient, time.Duration(cfg.ScanCache.TTL), collector, lg)
		lg.Info("Scan cache enabled",
			zap.String("redis", cfg.Redis.Addr),
			zap.Duration("ttl", time.Duration(cfg.ScanCache.TTL)))
	}

	assessor := risk.NewAssessor(loadScorer(cfg.Model.Path, lg), cache, lg)

	emitter, err := audit.New(cfg.Audit, lg)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	if cfg.Audit.Enabled {
		lg.Info("Audit log initialized", zap.String("path", cfg.Audit.Path))
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			lg.Error("Failed to close audit log", zap.Error(err))
		}
	}()

	protected, err := allowlist.Compile(cfg.Hosts.Protected)
	if err != nil {
		return fmt.Errorf("hosts.protected: %w", err)
	}
	if protected.Len() > 0 {
		lg.Info("Protected domain patterns loaded", zap.Int("count", protected.Len()))
	}

	hostsPath := store.Store().Path()

	srv := server.NewServer(store, assessor, collector, emitter, protected, cfg.Server, lg)
	if redisClient != nil {
		srv.AddReadinessCheck("Scan cache", redisClient.HealthCheck)
	}
	if err := srv.RefreshManagedEntries(context.Background()); err != nil {
		lg.Warn("Hosts file not readable at startup", zap.String("path", hostsPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Listen)
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metricsserver.Run(gctx, cfg.Metrics.Listen, cfg.Metrics.Path, collector, lg)
		})
	}

	if cfg.Hosts.Watch {
		watcher := hostsfile.NewWatcher(hostsPath, time.Duration(cfg.Hosts.WatchDebounce), func() {
			if err := srv.RefreshManagedEntries(gctx); err != nil {
				lg.Warn("Failed to refresh managed entries after file change", zap.Error(err))
			}
		}, lg)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		reloadModelOnSignal(gctx, cfg.Model.Path, assessor, lg)
		return nil
	})

	lg.Info("siteguard started",
		zap.String("listen", cfg.Server.Listen),
		zap.String("hosts_path", hostsPath),
		zap.Bool("model_loaded", assessor.Ready()))

	dynamicLogger.SwitchToConfiguredLevel()

	<-gctx.Done()
	dynamicLogger.EnsureInfoLevelForShutdown()
	lg.Info("Shutting down siteguard...")

	err = g.Wait()
	lg.Info("siteguard stopped")
	return err
}

// loadScorer returns nil when the model file cannot be loaded; the service
// still starts and /check answers "Model not loaded" until a reload succeeds.
func loadScorer(path string, lg *zap.Logger) risk.Scorer {
	if path == "" {
		lg.Info("Using built-in risk model", zap.String("version", risk.DefaultModel().Version))
		return risk.NewLogisticScorer(risk.DefaultModel())
	}

	model, err := risk.LoadModel(path)
	if err != nil {
		lg.Error("Failed to load risk model", zap.String("path", path), zap.Error(err))
		return nil
	}

	lg.Info("Risk model loaded", zap.String("path", path), zap.String("version", model.Version))
	return risk.NewLogisticScorer(model)
}

// reloadModelOnSignal reloads the model file on SIGHUP. A failed reload
// keeps the current model.
func reloadModelOnSignal(ctx context.Context, path string, assessor *risk.Assessor, lg *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if path == "" {
				lg.Info("SIGHUP ignored: built-in model in use")
				continue
			}
			model, err := risk.LoadModel(path)
			if err != nil {
				lg.Error("Model reload failed, keeping current model", zap.String("path", path), zap.Error(err))
				continue
			}
			assessor.SetScorer(risk.NewLogisticScorer(model))
			lg.Info("Risk model reloaded", zap.String("path", path), zap.String("version", model.Version))
		}
	}
}

func runConfigTest(configPath string) int {
	cfg, err := config.Load(configPath, zap.NewNop())
	if err != nil {
		fmt.Println("Configuration validation FAILED:")
		fmt.Printf("- %s: %v\n", configPath, err)
		return 1
	}

	fmt.Printf("configuration file %s syntax is ok\n", configPath)

	failed := false
	if cfg.Model.Path != "" {
		if _, err := risk.LoadModel(cfg.Model.Path); err != nil {
			fmt.Printf("- model %s: %v\n", cfg.Model.Path, err)
			failed = true
		}
	}

	store := hostsfile.NewStore(cfg.Hosts.Path, nil, zap.NewNop())
	if domains, err := store.List(); err != nil {
		fmt.Printf("- hosts file %s: %v\n", cfg.Hosts.Path, err)
		failed = true
	} else {
		fmt.Printf("hosts file %s: %d blocked domain(s)\n", cfg.Hosts.Path, len(domains))
	}

	if failed {
		fmt.Println("configuration test FAILED")
		return 1
	}
	fmt.Println("configuration test is successful")
	return 0
}

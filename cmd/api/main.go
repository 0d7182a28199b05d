package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-recon/internal/application"
	appai "github.com/bryanwahyu/automaton-recon/internal/application/ai"
	apprecon "github.com/bryanwahyu/automaton-recon/internal/application/recon"
	"github.com/bryanwahyu/automaton-recon/internal/config"
	aidomain "github.com/bryanwahyu/automaton-recon/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
	localai "github.com/bryanwahyu/automaton-recon/internal/infra/ai/local"
	openaiclient "github.com/bryanwahyu/automaton-recon/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-recon/internal/infra/db/badgerdb"
	mysqlp "github.com/bryanwahyu/automaton-recon/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/automaton-recon/internal/infra/db/postgres"
	dockerrunner "github.com/bryanwahyu/automaton-recon/internal/infra/executor/docker"
	"github.com/bryanwahyu/automaton-recon/internal/infra/executor/procrunner"
	"github.com/bryanwahyu/automaton-recon/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-recon/internal/infra/storage"
	"github.com/bryanwahyu/automaton-recon/internal/infra/tools"
	"github.com/bryanwahyu/automaton-recon/internal/logging"
	"github.com/bryanwahyu/automaton-recon/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	logging.Setup(loggingOptions(cfg))

	ctx := context.Background()

	// init repos sesuai driver
	var (
		repo     domain.Repository
		errRepo  scanerrors.Repository
		aiRepo   aidomain.Repository
		checkers = map[string]middleware.HealthChecker{}
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			logrus.Fatalf("mysql connect error: %v", err)
		}
		defer db.Close()
		repo = mysqlp.NewReportRepository(db)
		errRepo = mysqlp.NewScanErrorRepository(db)
		aiRepo = mysqlp.NewAnalysisRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			logrus.Fatalf("postgres connect error: %v", err)
		}
		defer db.Close()
		repo = postgresp.NewReportRepository(db)
		errRepo = postgresp.NewScanErrorRepository(db)
		aiRepo = postgresp.NewAnalysisRepository(db)
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	case "badger":
		store, err := badgerdb.Open(cfg.Database.Path)
		if err != nil {
			logrus.Fatalf("badger open error: %v", err)
		}
		defer store.Close()
		repo = badgerdb.NewReportRepository(store)
		errRepo = badgerdb.NewScanErrorRepository(store)
		aiRepo = badgerdb.NewAnalysisRepository(store)
	default:
		logrus.Fatalf("unknown database driver %q", cfg.Database.Driver)
	}

	// init artifact store, kosongin endpoint = disabled
	var artifacts domain.ArtifactStore = storage.Disabled{}
	if cfg.Minio.Endpoint != "" {
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logrus.Fatalf("minio init error: %v", err)
		}
		artifacts = store
	} else {
		logrus.Warn("artifact store disabled, raw tool output is dropped")
	}

	// init runner + adapters
	var runner domain.Runner
	switch cfg.Recon.Executor {
	case "process":
		runner = procrunner.New(procrunner.Config{
			TempDir:   cfg.Recon.TempDir,
			BufferCap: cfg.Recon.OutputBufferMB << 20,
		})
	case "docker":
		runner = dockerrunner.New(dockerrunner.Config{
			TempDir:   cfg.Recon.TempDir,
			BufferCap: cfg.Recon.OutputBufferMB << 20,
			Images:    cfg.Recon.Docker.Images,
			Network:   cfg.Recon.Docker.Network,
			ExtraArgs: cfg.Recon.Docker.ExtraArgs,
		})
	default:
		logrus.Fatalf("unknown executor %q", cfg.Recon.Executor)
	}
	settings := tools.Settings{
		WordlistWeb:    cfg.Recon.Wordlists.Web,
		WordlistDNS:    cfg.Recon.Wordlists.DNS,
		DefaultTimeout: time.Duration(cfg.Recon.ToolTimeoutSeconds) * time.Second,
		Tools:          toolOverrides(cfg.Recon.Tools),
	}
	adapters := tools.Registry(runner, settings)
	if cfg.Recon.Executor == "docker" {
		// tools live in images, the daemon client is all the host needs
		checkers["tools"] = &middleware.ToolHealthChecker{Binaries: []string{"docker"}}
	} else {
		checkers["tools"] = &middleware.ToolHealthChecker{Binaries: tools.Binaries(settings)}
	}

	// init services
	reconSvc := &apprecon.Service{
		Repo:      repo,
		Errors:    errRepo,
		Artifacts: artifacts,
		Adapters:  adapters,
		Clock:     application.SystemClock{},
		Opts: apprecon.Options{
			Workers:        cfg.Recon.Workers,
			MaxDuration:    time.Duration(cfg.Recon.GlobalTimeoutSeconds) * time.Second,
			Strict:         cfg.Recon.Strict,
			MaxPortTargets: cfg.Recon.MaxPortTargets,
			MaxWebTargets:  cfg.Recon.MaxWebTargets,
			Resolver:       net.DefaultResolver.LookupHost,
		},
	}

	model := cfg.AI.Model
	var aiClient aidomain.Client
	if cfg.AI.APIKey != "" {
		if model == "" {
			model = openaiclient.DefaultModel
		}
		aiClient = openaiclient.NewClient(cfg.AI.APIKey, model)
	} else {
		model = localai.ModelName
		aiClient = localai.Client{}
	}
	aiSvc := &appai.Service{
		Client: aiClient,
		Repo:   aiRepo,
		Scans:  repo,
		Clock:  application.SystemClock{},
		Model:  model,
	}

	// init rescan scheduler
	var entries []apprecon.ScheduleEntry
	for _, s := range cfg.Recon.Schedules {
		entries = append(entries, apprecon.ScheduleEntry{Target: s.Target, Profile: s.Profile, Cron: s.Cron})
	}
	rescanner, err := apprecon.NewRescanner(reconSvc, entries)
	if err != nil {
		logrus.Fatalf("schedule config error: %v", err)
	}
	rescanner.Start()
	defer rescanner.Stop()

	// rate limiter dibangun di sini biar reload config bisa ganti rate
	var limiter *middleware.RateLimiter
	if cfg.Server.RateCapacity > 0 && cfg.Server.RateRefill > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateCapacity, cfg.Server.RateRefill)
	}

	// live reload covers log level and rate limits, the rest needs a restart
	if err := config.Watch(ctx, path, func(next *config.Config) {
		logging.SetLevel(next.Logging.Level)
		if limiter != nil && next.Server.RateCapacity > 0 && next.Server.RateRefill > 0 {
			limiter.SetRate(next.Server.RateCapacity, next.Server.RateRefill)
		}
	}); err != nil {
		logrus.WithError(err).Warn("config watch unavailable")
	}

	// init router
	handler := httpserver.NewRouter(reconSvc, aiSvc, errRepo, httpserver.Config{
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
		Checkers:       checkers,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":     addr,
			"driver":   cfg.Database.Driver,
			"adapters": len(adapters),
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logrus.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logrus.Errorf("shutdown error: %v", err)
	}
}

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
}

// toolOverrides translate blok config per-tool ke opsi adapter.
func toolOverrides(m map[string]config.ToolConfig) map[domain.Tool]domain.ToolOptions {
	out := make(map[domain.Tool]domain.ToolOptions, len(m))
	for name, tc := range m {
		opt := domain.ToolOptions{
			BinaryPath: tc.Path,
			ExtraArgs:  tc.Args,
		}
		if tc.TimeoutSeconds > 0 {
			opt.Timeout = time.Duration(tc.TimeoutSeconds) * time.Second
		}
		out[domain.Tool(name)] = opt
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-recon/internal/application"
	apprecon "github.com/bryanwahyu/automaton-recon/internal/application/recon"
	"github.com/bryanwahyu/automaton-recon/internal/config"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-recon/internal/infra/db/badgerdb"
	mysqlp "github.com/bryanwahyu/automaton-recon/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/automaton-recon/internal/infra/db/postgres"
	dockerrunner "github.com/bryanwahyu/automaton-recon/internal/infra/executor/docker"
	"github.com/bryanwahyu/automaton-recon/internal/infra/executor/procrunner"
	"github.com/bryanwahyu/automaton-recon/internal/infra/storage"
	"github.com/bryanwahyu/automaton-recon/internal/infra/tools"
	"github.com/bryanwahyu/automaton-recon/internal/logging"
)

// One-shot batch mode: scan satu target sampai selesai, tulis report
// JSON, exit code ikut status scan. Dipakai dari cron atau pipeline CI.
//
//	RECON_TARGET       target (wajib)
//	RECON_PROFILE      passive | active | full (default passive)
//	RECON_STRICT       true/false, override config
//	RECON_MAX_SECONDS  batas wall clock satu scan
//	RECON_OUTPUT       path report JSON, kosong atau "-" berarti stdout
//	CONFIG_PATH        config.yaml opsional, tanpa file jatuh ke badger lokal
func main() {
	os.Exit(run())
}

func run() int {
	target := os.Getenv("RECON_TARGET")
	if target == "" {
		fmt.Fprintln(os.Stderr, "RECON_TARGET is required")
		return 1
	}

	cfg, fromFile := loadConfig()

	// report JSON goes to stdout, logs must stay off it
	opts := logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
	if opts.Output == "" || strings.EqualFold(opts.Output, "stdout") {
		opts.Output = "stderr"
	}
	logging.Setup(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, errRepo, closeRepo, err := openRepos(ctx, cfg, fromFile)
	if err != nil {
		logrus.Errorf("storage init error: %v", err)
		return 1
	}
	defer closeRepo()

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
			logrus.Errorf("minio init error: %v", err)
			return 1
		}
		artifacts = store
	}

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
		logrus.Errorf("unknown executor %q", cfg.Recon.Executor)
		return 1
	}
	settings := tools.Settings{
		WordlistWeb:    cfg.Recon.Wordlists.Web,
		WordlistDNS:    cfg.Recon.Wordlists.DNS,
		DefaultTimeout: time.Duration(cfg.Recon.ToolTimeoutSeconds) * time.Second,
		Tools:          toolOverrides(cfg.Recon.Tools),
	}

	svc := &apprecon.Service{
		Repo:      retryRepo{Repository: repo, attempts: 5},
		Errors:    errRepo,
		Artifacts: artifacts,
		Adapters:  tools.Registry(runner, settings),
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

	cmd := apprecon.StartScanCommand{
		Target:  target,
		Profile: os.Getenv("RECON_PROFILE"),
	}
	if cmd.Profile == "" {
		cmd.Profile = string(domain.ProfilePassive)
	}
	if v := os.Getenv("RECON_STRICT"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			logrus.Errorf("RECON_STRICT: %v", err)
			return 1
		}
		cmd.Strict = &strict
	}
	if v := os.Getenv("RECON_MAX_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			logrus.Errorf("RECON_MAX_SECONDS: bad value %q", v)
			return 1
		}
		cmd.MaxDuration = time.Duration(secs) * time.Second
	}

	report, err := svc.StartScan(ctx, cmd)
	if err != nil {
		logrus.Errorf("scan error: %v", err)
	}
	// persist can fail after the scan finished; the report itself is
	// still worth emitting
	if report != nil {
		if werr := writeReport(report, os.Getenv("RECON_OUTPUT")); werr != nil {
			logrus.Errorf("write report: %v", werr)
			return 1
		}
	}
	if err != nil {
		return 1
	}

	switch report.Status {
	case domain.StatusComplete:
		return 0
	case domain.StatusPartial:
		return 2
	default:
		return 1
	}
}

// loadConfig: CONFIG_PATH wajib kebaca kalau diset, config.yaml boleh
// absen, sisanya default bawaan.
func loadConfig() (*config.Config, bool) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
			os.Exit(1)
		}
		return config.Default(), false
	}
	return cfg, true
}

// openRepos picks the backend. Without a config file the run goes to a
// local badger db so history and diffs survive between invocations.
func openRepos(ctx context.Context, cfg *config.Config, fromFile bool) (domain.Repository, scanerrors.Repository, func(), error) {
	driver := cfg.Database.Driver
	if !fromFile {
		driver = "badger"
	}
	switch driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return mysqlp.NewReportRepository(db), mysqlp.NewScanErrorRepository(db), func() { db.Close() }, nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return postgresp.NewReportRepository(db), postgresp.NewScanErrorRepository(db), func() { db.Close() }, nil
	case "badger":
		path := cfg.Database.Path
		if path == "" {
			path = "recon.db"
		}
		store, err := badgerdb.Open(path)
		if err != nil {
			return nil, nil, nil, err
		}
		return badgerdb.NewReportRepository(store), badgerdb.NewScanErrorRepository(store), func() { store.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// retryRepo wraps Save with exponential backoff and jitter. A one-shot
// run has no second chance to persist its final report.
type retryRepo struct {
	domain.Repository
	attempts int
}

func (r retryRepo) Save(ctx context.Context, report *domain.Report) error {
	backoff := 500 * time.Millisecond
	var err error
	for i := 0; i < r.attempts; i++ {
		if err = r.Repository.Save(ctx, report); err == nil {
			return nil
		}
		if i == r.attempts-1 || ctx.Err() != nil {
			break
		}
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)))
		logrus.WithError(err).WithFields(logrus.Fields{"attempt": i + 1, "sleep": sleep}).Warn("report save failed, retrying")
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
	return err
}

func writeReport(report *domain.Report, out string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if out == "" || out == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0o644)
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

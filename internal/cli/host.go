package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"carerules/internal/assets"
	"carerules/internal/config"
	"carerules/internal/core"
	"carerules/internal/log"
	"carerules/internal/transform"
	"carerules/pkg/ruleapi"
	"carerules/plugins/growth"
	"carerules/plugins/stock"
)

type hostOptions struct {
	logLevel  string
	storage   string
	assetRoot string
	envFile   string
}

// bundledPlugins are installed into every host engine.
func bundledPlugins() []ruleapi.Plugin {
	return []ruleapi.Plugin{growth.New(), stock.New()}
}

type host struct {
	cfg      config.Config
	repo     core.Repository
	store    assets.Store
	engine   *core.Engine
	service  *core.Service
	registry *prometheus.Registry
	watcher  *assets.Watcher
	tracing  tracing
}

// environment merges the env file, if any, under the process environment.
func environment(envFile string) (map[string]string, error) {
	if envFile == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars, nil
}

func loadConfig(opts *hostOptions) (config.Config, error) {
	vars, err := environment(opts.envFile)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Parse(vars)
	if err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.storage != "" {
		cfg.StorageDriver = opts.storage
	}
	if opts.assetRoot != "" {
		cfg.AssetDriver = config.AssetFilesystem
		cfg.AssetFSRoot = opts.assetRoot
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openHost(ctx context.Context, opts *hostOptions, logOut io.Writer) (*host, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Output: logOut, Service: serviceName})

	blockAt, err := cfg.Blocking()
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	metrics, err := metricsRecorder(cfg, registry)
	if err != nil {
		return nil, err
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := core.OpenRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	store, err := assets.Open(ctx, cfg)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	tr, err := setupTracing(ctx, cfg, logOut)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	h := &host{cfg: cfg, repo: repo, store: store, engine: engine, registry: registry, tracing: tr}

	loader := assets.NewLoader(store)
	if cfg.AssetWatch {
		if h.watcher, err = assets.Watch(cfg.AssetFSRoot, loader, log.WithComponent("assets")); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("watch assets: %w", err)
		}
	}

	transformer := transform.New(engine.Catalog(), transform.WithMaxDepth(cfg.SimplifyDepth))
	h.service = core.NewService(engine, transformer, repo, loader,
		core.WithLogger(log.Core("host")),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tr.tracer),
		core.WithBlockingPriority(blockAt),
	)
	return h, nil
}

// buildEngine installs the bundled rule packs and ends the load phase.
func buildEngine(cfg config.Config) (*core.Engine, error) {
	var engineOpts []core.EngineOption
	if cfg.InheritRules {
		engineOpts = append(engineOpts, core.WithInheritedRules())
	}
	engine := core.NewEngine(engineOpts...)
	for _, p := range bundledPlugins() {
		if _, err := engine.InstallPlugin(p); err != nil {
			return nil, err
		}
	}
	engine.Seal()
	return engine, nil
}

func metricsRecorder(cfg config.Config, reg prometheus.Registerer) (core.MetricsRecorder, error) {
	switch cfg.Metrics {
	case config.MetricsExpvar:
		return core.NewExpvarMetricsRecorder(""), nil
	case config.MetricsPrometheus:
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("prometheus metrics: %w", err)
		}
		return rec, nil
	default:
		return nil, nil
	}
}

// Close stops the asset watcher, flushes pending spans and closes the
// repository.
func (h *host) Close() error {
	var errs []error
	if h.watcher != nil {
		errs = append(errs, h.watcher.Close())
	}
	if h.tracing.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, h.tracing.shutdown(ctx))
		cancel()
	}
	errs = append(errs, h.repo.Close())
	return errors.Join(errs...)
}

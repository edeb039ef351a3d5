// Package app wires configuration into the pipeline, the digest readers,
// and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/technews/internal/chain"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/digest"
	"github.com/deusflow/technews/internal/execlog"
	"github.com/deusflow/technews/internal/generator"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/notify"
	"github.com/deusflow/technews/internal/pipeline"
	"github.com/deusflow/technews/internal/relevance"
	"github.com/deusflow/technews/internal/rss"
	"github.com/deusflow/technews/internal/server"
	"github.com/deusflow/technews/internal/site"
)

// App holds what every command needs: config, catalog, store, and site.
type App struct {
	Config  *config.Config
	Catalog config.Catalog
	Store   digest.Store
	Site    *site.Site
	log     *slog.Logger
}

// Open loads the catalog and opens the digest store.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrDefault(log)

	catalog, err := config.LoadCatalog(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := digest.Open(ctx, cfg.DigestStore, cfg.StoreTarget())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s digest store: %w", cfg.DigestStore, err)
	}

	return &App{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		Site:    site.New(cfg.SiteDir, cfg.PublicURLPattern, cfg.Location, log),
		log:     log,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Run validates credentials, executes one pipeline run for date (empty
// means yesterday), and logs the run's counters.
func (a *App) Run(ctx context.Context, date string) (pipeline.Report, error) {
	providers := a.Catalog.Stages.Providers()
	if err := a.Config.Validate(providers); err != nil {
		return a.initFailure(ctx, date, err)
	}

	reg, err := BuildRegistry(ctx, a.Config, providers)
	if err != nil {
		return a.initFailure(ctx, date, err)
	}
	defer reg.Close()

	ch, err := chain.New(reg, a.Catalog.Stages, a.log)
	if err != nil {
		return a.initFailure(ctx, date, err)
	}

	p := pipeline.New(pipeline.Options{
		Sources:          a.Catalog.Sources,
		Fetcher:          rss.New(a.Catalog.Fetch, nil, a.log),
		Selector:         relevance.NewSelector(a.Catalog.Relevance, a.Catalog.Sources, a.Config.Location, a.log),
		Chain:            ch,
		Store:            a.Store,
		Pages:            a.Site,
		Notifier:         BuildNotifier(a.Config, a.log),
		Metrics:          metrics.Global,
		ExecutionLogPath: a.Config.ExecutionLogPath,
		Location:         a.Config.Location,
		Logger:           a.log,
	})

	report, err := p.Run(ctx, date)

	reg.Budget().LogStats(a.log)
	a.log.Info("📊 run metrics", "stats", metrics.Global.GetStats())
	return report, err
}

// RunOnce opens everything cfg names, runs the pipeline for date, and
// closes it again. Failures to open the catalog or the store count as a
// failed init step.
func RunOnce(ctx context.Context, cfg *config.Config, date string, log *slog.Logger) (pipeline.Report, error) {
	a, err := Open(ctx, cfg, log)
	if err != nil {
		return InitFailure(ctx, cfg, date, err, log)
	}
	defer a.Close()
	return a.Run(ctx, date)
}

func (a *App) initFailure(ctx context.Context, date string, cause error) (pipeline.Report, error) {
	return InitFailure(ctx, a.Config, date, cause, a.log)
}

// InitFailure records and reports a run that could not be assembled. The
// execution record is written and every configured channel is alerted.
func InitFailure(ctx context.Context, cfg *config.Config, date string, cause error, log *slog.Logger) (pipeline.Report, error) {
	log = logger.OrDefault(log)
	err := &pipeline.StepError{Step: pipeline.StepInit, Err: cause}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if date == "" {
		date = news.Yesterday(time.Now(), loc)
	}

	record := execlog.NewRecorder(date).Finalize(pipeline.StepInit, err)
	if saveErr := execlog.Save(cfg.ExecutionLogPath, record); saveErr != nil {
		log.Error("failed to save execution record", "path", cfg.ExecutionLogPath, "error", saveErr)
	}
	metrics.Global.RecordRun(date, record.Duration(), pipeline.StepInit, err)

	log.Error("❌ pipeline could not start", "date", date, "error", cause)
	BuildNotifier(cfg, log).Notify(context.WithoutCancel(ctx), notify.Alert{
		Step:    pipeline.StepInit,
		Summary: err.Error(),
		Time:    time.Now().In(loc),
	})
	return pipeline.Report{Record: record}, err
}

// Server builds the read-only HTTP surface.
func (a *App) Server() *server.Server {
	return server.New(server.Options{
		Store:            a.Store,
		Feed:             a.Site,
		Metrics:          metrics.Global,
		ExecutionLogPath: a.Config.ExecutionLogPath,
		Logger:           a.log,
	})
}

// BuildRegistry creates one client per provider, shared by every stage
// that names it.
func BuildRegistry(ctx context.Context, cfg *config.Config, providers []string) (*generator.Registry, error) {
	reg := generator.NewRegistry(generator.NewBudget(cfg.MaxAIRequests, nil), cfg.AIRequestTimeout)

	for _, name := range providers {
		key, _ := cfg.APIKey(name)
		switch name {
		case generator.ProviderGemini:
			g, err := generator.NewGemini(ctx, key)
			if err != nil {
				reg.Close()
				return nil, err
			}
			reg.Register(name, g)
		case generator.ProviderOpenAI:
			reg.Register(name, generator.NewOpenAI(key, cfg.OpenAIBaseURL))
		case generator.ProviderDeepSeek:
			reg.Register(name, generator.NewDeepSeek(key, cfg.DeepSeekBaseURL))
		case generator.ProviderOllama:
			o, err := generator.NewOllama(cfg.OllamaModel)
			if err != nil {
				reg.Close()
				return nil, err
			}
			reg.Register(name, o)
		default:
			reg.Close()
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return reg, nil
}

// BuildNotifier fans out to every configured alert channel.
func BuildNotifier(cfg *config.Config, log *slog.Logger) *notify.Multi {
	var channels []notify.Notifier

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, nil, log))
	}
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlack(cfg.SlackWebhookURL, nil, log))
	}
	if cfg.LineChannelAccessToken != "" && cfg.LineNotifyUserID != "" {
		channels = append(channels, notify.NewLine(cfg.LineChannelAccessToken, cfg.LineNotifyUserID, nil, log))
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := notify.NewDiscord(cfg.DiscordWebhookURL, log)
		if err != nil {
			logger.OrDefault(log).Warn("⚠️ discord alerts disabled", "error", err)
		} else {
			channels = append(channels, d)
		}
	}

	return notify.NewMulti(log, channels...)
}

// Check is the pre-flight health check: credentials for every stage
// provider, and writable output locations.
func (a *App) Check() error {
	var errs []error

	if err := a.Config.Validate(a.Catalog.Stages.Providers()); err != nil {
		errs = append(errs, err)
	}

	dirs := []string{a.Config.SiteDir, filepath.Dir(a.Config.ExecutionLogPath)}
	if a.Config.DigestStore == digest.BackendFile || a.Config.DigestStore == "" {
		dirs = append(dirs, filepath.Dir(a.Config.DigestPath))
	}
	for _, dir := range dirs {
		if err := writable(dir); err != nil {
			errs = append(errs, err)
		}
	}

	if BuildNotifier(a.Config, a.log).Len() == 0 {
		a.log.Warn("⚠️ no alert channel configured, failures will only be logged")
	}

	return errors.Join(errs...)
}

func writable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

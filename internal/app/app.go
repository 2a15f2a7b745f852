package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"peakwatch/internal/alerting"
	"peakwatch/internal/config"
	"peakwatch/internal/fetcher"
	"peakwatch/internal/levels"
	"peakwatch/internal/scheduler"
	"peakwatch/internal/service"
	"peakwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newKlineFetcher() fetcher.KlineFetcher {
	return fetcher.NewBybit(fetcher.BybitOptions{
		BaseURL:   a.Config.BybitEndpoint(),
		Category:  a.Config.Bybit.Category,
		Timeout:   a.Config.Bybit.RequestTimeout,
		UserAgent: a.Config.Bybit.UserAgent,
	}, a.Logger)
}

// newBalanceFetcher returns nil when no credentials are configured; that
// deployment variant simply has no balance in alerts or signatures.
func (a *App) newBalanceFetcher() fetcher.BalanceFetcher {
	if a.Config.Bybit.APIKey == "" || a.Config.Bybit.APISecret == "" {
		return nil
	}
	return fetcher.NewBalance(fetcher.BalanceOptions{
		BaseURL:   a.Config.BybitEndpoint(),
		APIKey:    a.Config.Bybit.APIKey,
		APISecret: a.Config.Bybit.APISecret,
		Coin:      a.Config.Bybit.BalanceCoin,
		Timeout:   a.Config.Bybit.RequestTimeout,
	}, a.Logger)
}

func (a *App) newResolver() *levels.Resolver {
	return levels.NewResolver(a.newKlineFetcher(), levels.ResolverOptions{
		Symbol:   a.Config.Watch.Symbol,
		Interval: a.Config.Watch.Interval,
		Limit:    a.Config.Watch.Limit,
		Eps:      a.Config.Watch.ClusterEps,
	}, a.Logger)
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	if !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, notifier alerting.Notifier) *service.Service {
	var sampleStore storage.LevelSampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	return service.New(
		a.newResolver(),
		a.newBalanceFetcher(),
		sampleStore,
		alertStore,
		notifier,
		service.Options{
			AlertPct:        a.Config.Watch.AlertPct,
			AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
		},
		a.Logger,
	)
}

// Run executes the long-running alert service: the scheduled deduplicated
// alert loop plus, when enabled, the chat command poller.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier()
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting enabled but no telegram channel configured")
	}

	var sink alerting.Notifier
	if notifier != nil {
		sink = notifier
	}
	svc := a.newService(store, sink)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	if notifier != nil && a.Config.Alerting.Telegram.Commands {
		go notifier.StartPolling(ctx, a.commandHandler(svc))
	}

	a.Logger.Info().
		Str("symbol", a.Config.Watch.Symbol).
		Str("interval", a.Config.Watch.Interval).
		Dur("tick", a.Config.Scheduler.Interval).
		Msg("starting peak level watcher")

	err = sched.Run(ctx, svc.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("peak level watcher stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

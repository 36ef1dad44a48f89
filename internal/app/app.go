// Package app wires the whole daemon together: config, logging, storage,
// registries, the transcode pool, the dispatcher and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"clipflow/internal/asset"
	"clipflow/internal/calendar"
	"clipflow/internal/config"
	"clipflow/internal/dispatch"
	"clipflow/internal/eventbus"
	"clipflow/internal/httpapi"
	"clipflow/internal/mailer"
	"clipflow/internal/media"
	"clipflow/internal/schedule"
	"clipflow/internal/storage"
	"clipflow/internal/transcode"
	logx "clipflow/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	bus   eventbus.Bus
	paths media.Paths

	assets     *asset.Registry
	schedules  *schedule.Registry
	pool       *transcode.Pool
	dispatcher *dispatch.Dispatcher

	httpSrv *http.Server

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New loads and validates the config, then builds every component. Nothing
// starts running until Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	assets := asset.NewRegistry(store, bus, log.With(logx.String("comp", "asset")))

	paths := media.Paths{
		UploadDir: orDefault(cfg.Media.UploadDir, "uploads"),
		VideosDir: orDefault(cfg.Media.VideosDir, "videos"),
	}
	prober := media.NewFFprobe(cfg.Media.FFprobePath, log.With(logx.String("comp", "ffprobe")))
	converter := media.NewFFmpegConverter(cfg.Media.FFmpegPath, cfg.Media.SegmentSeconds, cfg.Media.PlaylistType)

	jobTimeout, err := config.ParseDurationOrDefault("transcoder.job_timeout", cfg.Transcoder.JobTimeout, time.Hour)
	if err != nil {
		return nil, err
	}
	pool := transcode.NewPool(transcode.Config{
		Workers:    cfg.Transcoder.Workers,
		QueueSize:  cfg.Transcoder.QueueSize,
		JobTimeout: jobTimeout,
	}, assets, prober, converter, paths, bus, log.With(logx.String("comp", "transcode")))

	schedules := schedule.NewRegistry(store, assets, bus, log.With(logx.String("comp", "schedule")))
	schedules.SetDefaultTimezone(cfg.Dispatcher.Timezone)

	sender := mailer.New(cfg.Mailer, log.With(logx.String("comp", "mailer")))

	sendTimeout, err := config.ParseDurationOrDefault("dispatcher.send_timeout", cfg.Dispatcher.SendTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	dispatcher := dispatch.New(dispatch.Config{
		SendWorkers: cfg.Dispatcher.SendWorkers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		SendTimeout: sendTimeout,
	}, schedules, assets, sender, bus, log.With(logx.String("comp", "dispatch")))
	schedules.SetArmer(dispatcher)

	handlers := httpapi.NewHandlers(
		cfg.Media, paths, assets, pool, schedules, calendar.New(schedules),
		log.With(logx.String("comp", "http")),
	)

	readTimeout, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{
		Addr:         orDefault(cfg.Server.Addr, ":8080"),
		Handler:      handlers.Router(cfg.Server),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return &App{
		cfgMgr:     mgr,
		logSvc:     logSvc,
		log:        log,
		store:      store,
		bus:        bus,
		paths:      paths,
		assets:     assets,
		schedules:  schedules,
		pool:       pool,
		dispatcher: dispatcher,
		httpSrv:    httpSrv,
	}, nil
}

// Start brings the daemon up: media directories, workers, timers, the HTTP
// listener and the config watcher.
func (a *App) Start(ctx context.Context) error {
	for _, dir := range []string{a.paths.UploadDir, a.paths.VideosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a.pool.Start(ctx)
	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("http server listening", logx.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server failed", logx.Err(err))
		}
	}()

	// Config hot reload: logging changes apply live, everything else takes
	// effect on restart.
	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	sub := a.cfgMgr.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded", logx.String("log_level", cfg.Logging.Level))
			}
		}
	}()

	a.log.Info("clipflow started")
	return nil
}

// Stop shuts components down in reverse start order and waits for in-flight
// work to drain.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}

	a.dispatcher.Stop(shutdownCtx)
	a.pool.Stop(shutdownCtx)

	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("clipflow stopped")
	return a.logSvc.Close()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/taglog/internal/config"
	"github.com/rzbill/taglog/internal/runtime"
	httpserver "github.com/rzbill/taglog/internal/server/http"
	pebblestore "github.com/rzbill/taglog/internal/storage/pebble"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = os.Getenv

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Logger overrides the process logger built from TAGLOG_LOG_LEVEL and
	// TAGLOG_LOG_FORMAT.
	Logger logpkg.Logger
	// Ready, when set, receives the bound HTTP address once serving.
	Ready func(addr string)
}

// processLogger builds the logger from env; defaults: level=info, format=text.
func processLogger() logpkg.Logger {
	cfg := &logpkg.Config{
		Level:  getenvDefault("TAGLOG_LOG_LEVEL", "info"),
		Format: getenvDefault("TAGLOG_LOG_FORMAT", "text"),
	}
	l, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = parsed
		}
		l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	return l
}

// Run starts the HTTP server and the scheduled sweeper and blocks until ctx
// is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	procLogger := opts.Logger
	if procLogger == nil {
		procLogger = processLogger()
	}
	// Pebble logs through the stdlib logger.
	logpkg.RedirectStdLog(procLogger)

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	sweepEvery := time.Duration(opts.Config.SweepIntervalMs) * time.Millisecond
	procLogger.Info("starting taglog server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Duration("sweep_interval", sweepEvery),
		logpkg.Str("archive_dir", opts.Config.ArchiveDir),
		logpkg.Int("sub_buf", opts.Config.SubscriberBuffer),
	)

	hsrv := httpserver.New(rt, procLogger)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server failed", logpkg.Err(err))
			errCh <- err
			stop()
		}
	}()

	if sweepEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.RunSweeper(sctx, sweepEvery)
		}()
	}

	if opts.Ready != nil {
		go waitReady(sctx, hsrv, opts.Ready)
	}

	<-sctx.Done()
	// Stop serving before the runtime closes the DB.
	hsrv.Close()
	wg.Wait()
	procLogger.Info("taglog server stopped")
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func waitReady(ctx context.Context, s *httpserver.Server, ready func(string)) {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		if addr := s.Addr(); addr != "" {
			ready(addr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/content"
	"github.com/petervdpas/avp/internal/player"
	"github.com/petervdpas/avp/internal/source"
	"github.com/petervdpas/avp/internal/storage"
	"github.com/petervdpas/avp/internal/tts"
	"github.com/petervdpas/avp/internal/util"
	"github.com/petervdpas/avp/internal/viewer"
)

var log = logging.Logger("avp/app")

type Options struct {
	CfgPath string
	Cfg     config.Config
	Version string

	// OpenBrowser opens the creator page once the server accepts connections.
	OpenBrowser bool
}

// SetupLogging configures every avp/* logger from cfg.
func SetupLogging(cfg config.Logging) {
	lvl, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		lvl = logging.LevelInfo
	}
	format := logging.PlaintextOutput
	switch cfg.Format {
	case "color":
		format = logging.ColorizedOutput
	case "json":
		format = logging.JSONOutput
	}
	logging.SetupLogging(logging.Config{
		Format: format,
		Level:  lvl,
		Stderr: true,
	})
}

// Run serves the creator until ctx is canceled.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg
	base := filepath.Dir(opt.CfgPath)

	logs := viewer.NewLogBuffer(800)
	pipe := logging.NewPipeReader(logging.PipeFormat(logging.JSONOutput))
	defer pipe.Close()
	go func() { _, _ = io.Copy(logs, pipe) }()

	listenAddr, url := NormalizeViewerAddr(cfg.Server.HTTPAddr)
	logBanner(opt.CfgPath, url)

	// ── Speech cache
	var db *storage.DB
	if cfg.TTS.CacheEnabled {
		var err error
		db, err = storage.Open(util.ResolvePath(base, cfg.Paths.DataDir))
		if err != nil {
			log.Warnf("speech cache disabled: %v", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	// ── TTS provider
	provider, err := tts.New(ctx, cfg.TTS, db)
	if err != nil {
		return err
	}
	if provider == nil {
		log.Warn(tts.ErrNotConfigured.Error())
	}

	// ── Library
	libDir := util.ResolvePath(base, cfg.Paths.LibraryDir)
	store, err := content.NewStore(libDir, cfg.Limits.MaxFileSize())
	if err != nil {
		return err
	}
	var index *content.Index
	watcher, err := content.Watch(ctx, store, func(name string) {
		log.Debugf("library changed: %s", name)
	})
	if err != nil {
		log.Warnf("library watch disabled: %v", err)
	} else {
		defer watcher.Close()
		index = watcher.Index()
	}

	fetcher := source.NewFetcher(cfg.Limits.MaxFileSize(),
		time.Duration(cfg.Sources.HTTPTimeoutSeconds)*time.Second)
	defer fetcher.Close()

	pc := player.New(player.NewClockTransport(time.Duration(cfg.Player.TickMillis) * time.Millisecond))
	defer pc.Close()

	srv := viewer.NewServer(listenAddr, viewer.Viewer{
		CfgPath: opt.CfgPath,
		Cfg:     &cfg,
		Version: opt.Version,
		Logs:    logs,
		Library: store,
		Index:   index,
		Player:  pc,
		Fetcher: fetcher,
		TTS:     provider,
		Speech:  db,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Infof("creator listening on %s", url)

	if opt.OpenBrowser {
		go func() {
			if err := WaitTCP(listenAddr, 5*time.Second); err != nil {
				log.Warn(err)
				return
			}
			if err := util.OpenURL(url); err != nil {
				log.Warnf("open browser: %v", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Ends the event streams so Shutdown does not wait on them.
	pc.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), util.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	log.Info("stopped")
	return nil
}

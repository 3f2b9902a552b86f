package main

import (
	"context"
	"io"

	"github.com/ha1tch/qconsole/pkg/api"
	"github.com/ha1tch/qconsole/pkg/backend"
	"github.com/ha1tch/qconsole/pkg/config"
	"github.com/ha1tch/qconsole/pkg/library"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/query"
	"github.com/ha1tch/qconsole/pkg/remote"
	"github.com/ha1tch/qconsole/pkg/workbook"
)

// appOptions adjusts how an app is assembled.
type appOptions struct {
	// dryRun replaces the backend with a recorder that returns no rows.
	dryRun bool

	// watch keeps an fs library index current.
	watch bool

	logOutput io.Writer
}

// app is the assembled core shared by the commands.
type app struct {
	cfg    config.Config
	logger *log.Logger

	exec     backend.Executor
	recorder *backend.Recorder
	store    library.Store
	watcher  *library.Watcher
	engine   *query.Engine

	dispatcher *api.Dispatcher
}

func newLogger(cfg config.LogConfig, w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return log.New(log.Config{
		DefaultLevel: level,
		Output:       w,
		Format:       log.ParseFormat(cfg.Format),
	}), nil
}

// buildApp opens the backend and every enabled collaborator.
func buildApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	logger, err := newLogger(cfg.Log, opts.logOutput)
	if err != nil {
		return nil, usageError{err: err}
	}
	a := &app{cfg: cfg, logger: logger, store: library.Disabled{}}
	if err := a.assemble(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) assemble(ctx context.Context, opts appOptions) error {
	cfg, logger := a.cfg, a.logger
	var err error

	if opts.dryRun {
		d := backend.SuiteQLDialect
		if cfg.Backend.Dialect != "" {
			if d, err = backend.LookupDialect(cfg.Backend.Dialect); err != nil {
				return err
			}
		}
		a.recorder = backend.NewRecorder(d, nil)
		a.exec = a.recorder
	} else {
		a.exec, err = backend.Open(backend.Config{
			Driver:       cfg.Backend.Driver,
			DSN:          cfg.Backend.DSN,
			Dialect:      cfg.Backend.Dialect,
			MaxRows:      cfg.Query.PageCeiling,
			MaxOpenConns: cfg.Backend.MaxOpenConns,
			MaxIdleConns: cfg.Backend.MaxIdleConns,
		})
		if err != nil {
			return err
		}
	}

	engineOpts := []query.Option{query.WithLogger(logger)}
	if cfg.Library.Enabled() {
		if err := a.openLibrary(ctx, opts.watch); err != nil {
			return err
		}
		engineOpts = append(engineOpts, query.WithViews(a.store))
	}
	a.engine = query.NewEngine(query.Config{
		PageCeiling:   cfg.Query.PageCeiling,
		DefaultRowEnd: cfg.Query.DefaultRowEnd,
	}, a.exec, engineOpts...)

	dispatchOpts := []api.Option{
		api.WithLogger(logger),
		api.WithLibrary(a.store),
		api.WithStrictOperations(cfg.Server.StrictOperations),
	}
	if cfg.Workbooks.Enabled {
		wb, err := workbook.New(a.exec, cfg.Workbooks.Table)
		if err != nil {
			return err
		}
		dispatchOpts = append(dispatchOpts, api.WithWorkbooks(wb))
	}
	if cfg.Remote.Enabled {
		lib, err := remote.Open(ctx, remote.Config{
			Bucket:    cfg.Remote.Bucket,
			Prefix:    cfg.Remote.Prefix,
			Region:    cfg.Remote.Region,
			Endpoint:  cfg.Remote.Endpoint,
			AccessKey: cfg.Remote.AccessKey,
			SecretKey: cfg.Remote.SecretKey,
		}, logger)
		if err != nil {
			return err
		}
		dispatchOpts = append(dispatchOpts, api.WithRemote(lib))
	}

	a.dispatcher, err = api.NewDispatcher(a.engine, dispatchOpts...)
	if err != nil {
		return err
	}

	logger.System().Info("core assembled",
		"driver", cfg.Backend.Driver,
		"dialect", a.exec.Dialect().Name(),
		"dry_run", opts.dryRun,
		"library", cfg.Library.Folder,
		"workbooks", cfg.Workbooks.Enabled,
		"remote", cfg.Remote.Enabled,
	)
	return nil
}

func (a *app) openLibrary(ctx context.Context, watch bool) error {
	lc := a.cfg.Library
	if lc.Kind == "object" {
		store, err := library.OpenObject(ctx, library.ObjectConfig{
			Endpoint:        lc.Endpoint,
			AccessKeyID:     lc.AccessKey,
			SecretAccessKey: lc.SecretKey,
			UseSSL:          lc.UseSSL,
			Bucket:          lc.Folder,
			Prefix:          lc.Prefix,
		}, a.logger)
		if err != nil {
			return err
		}
		a.store = store
		return nil
	}

	store, err := library.OpenFS(lc.Folder, a.logger)
	if err != nil {
		return err
	}
	a.store = store

	if !watch && !lc.Watch {
		return nil
	}
	llog := a.logger.Library()
	w, err := library.NewWatcher(store,
		library.WithOnChange(func(name, event string) {
			llog.Info("library file "+event, "file", name)
		}),
		library.WithOnError(func(err error) {
			llog.Error("library watcher error", err)
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// Close releases everything buildApp opened.
func (a *app) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	var err error
	if a.exec != nil {
		err = a.exec.Close()
	}
	if a.logger != nil {
		a.logger.Close()
	}
	return err
}

package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	echoapi "github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/apps/container"
	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/user"
	appfs "github.com/schoolhub/schoolhub/fs"
	"github.com/schoolhub/schoolhub/storage/database"
)

type app struct {
	dig.In

	Conf      *core.Config
	Logger    core.Logger
	DB        *sqlx.DB
	Listener  *database.Listener
	Monitor   *offline.Monitor
	AutoSaver *learning.AutoSaver
	Server    *echoapi.Server
}

func main() {
	conf := core.NewConfig()
	c := container.New(conf, "API")

	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
	if err := c.Close(); err != nil {
		log.Println(err)
	}
}

func run(a app) {
	logger := a.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", a.Conf.Build))
	defer logger.Info("Application stopped")

	if a.DB != nil {
		if err := database.Migrate(a.DB); err != nil {
			logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
		}
	}

	core.ParseEmailTemplates(appfs.FS, a.Conf, logger)

	user.LoadCommonPasswords(appfs.FS, logger)

	// =========================================================================
	// Start Background Workers

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	goWorker := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			logger.Info(name + " stopped")
		}()
	}

	goWorker("autosaver", a.AutoSaver.Run)
	goWorker("login attempts cleanup", func(ctx context.Context) {
		a.Server.CleanupLoginAttempts(ctx, a.Conf.Auth.LockoutDuration)
	})
	if a.Monitor != nil {
		goWorker("connection monitor", a.Monitor.Run)
	}
	if a.Listener != nil && a.Conf.Sync.EnableRealtime {
		goWorker("database listener", func(ctx context.Context) {
			if err := a.Listener.Run(ctx); err != nil {
				logger.Error(fmt.Sprintf("database listener: %v", err), err)
			}
		})
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(a.Conf.Build)
	expvar.NewString("env").Set(a.Conf.Env)

	go func() {
		if err := http.ListenAndServe(a.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := a.Server
	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), a.Conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

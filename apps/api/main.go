package main

import (
	"context"
	"database/sql"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dig_container "github.com/trezcool/alama/apps/api/di/dig"
	echoapi "github.com/trezcool/alama/apps/api/echo"
	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/services/telemetry"
)

func main() {
	inmem := flag.Bool("inmem", false, "run on the in-memory store instead of PostgreSQL")
	adminPwd := flag.String("admin-password", "", "with -inmem, create an 'admin' user with this password")
	graph := flag.Bool("graph", false, "print the dependency graph (DOT) and exit")
	flag.Parse()

	c := dig_container.New(*inmem)
	if *graph {
		must(dig_container.Visualize(c, os.Stdout))
		return
	}

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		dbParam dig_container.DBParam,
		validate *validator.Validate,
		usrSvc user.Service,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(apiLogger)
		user.LoadCommonPasswords(apiLogger)

		shutdownTracing, err := telemetry.Setup(context.Background(), conf)
		if err != nil {
			apiLogger.Error(fmt.Sprintf("tracing disabled: %v", err), err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("flushing traces: %v", err), err)
			}
		}()

		if db := dbParam.DB; db != nil {
			dbLogger := dbLoggerParam.Logger
			defer func(db *sql.DB) {
				if err := db.Close(); err != nil {
					dbLogger.Fatal("Failed to close", err)
				}
			}(db)
		} else if *adminPwd != "" {
			seedAdmin(usrSvc, validate, *adminPwd, apiLogger)
		}
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		http.Handle("/metrics", promhttp.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

// seedAdmin makes the in-memory store usable: nobody could log in otherwise.
func seedAdmin(usrSvc user.Service, validate *validator.Validate, pwd string, logger core.Logger) {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            "Administrator",
		Username:        "admin",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{user.RoleAdmin},
	}
	if err := nu.Validate(ctx, validate, usrSvc); err != nil {
		logger.Fatal(fmt.Sprintf("seeding admin: %v", err), err)
	}
	if _, err := usrSvc.Create(ctx, nu); err != nil {
		logger.Fatal(fmt.Sprintf("seeding admin: %v", err), err)
	}
	logger.Info("created user 'admin'")
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

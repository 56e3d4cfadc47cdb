package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"

	"github.com/DavidGamba/go-getoptions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/edulens/apps/api/echo"
	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/user"
	logsvc "github.com/trezcool/edulens/services/logger"
)

type options struct {
	env         string
	noMigrate   bool
	noScheduler bool
}

func parseCommandLine() options {
	var opts options
	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&opts.env, "env", "", opt.Description("environment to load (DEV, TEST, QA, PROD); overrides $ENV"))
	opt.BoolVar(&opts.noMigrate, "no-migrate", false, opt.Description("do not run database migrations on start"))
	opt.BoolVar(&opts.noScheduler, "no-scheduler", false,
		opt.Description("do not run reminder passes in-process (use the cron endpoint instead)"))

	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}
	return opts
}

func main() {
	opts := parseCommandLine()
	if opts.env != "" {
		_ = os.Setenv("ENV", opts.env)
	}

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl, err := logsvc.NewZapLogger(conf, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	ctx := context.Background()
	deps, cleanup, err := buildDeps(ctx, conf, logger, !opts.noMigrate)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}
	defer cleanup()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Reminder Scheduler

	if conf.Reminders.Enabled && !opts.noScheduler {
		sched := reminder.NewScheduler(deps.Reminders, conf.Reminders.Schedule, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal(fmt.Sprintf("starting reminder scheduler: %v", err), err)
		}
		defer sched.Stop()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(deps)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

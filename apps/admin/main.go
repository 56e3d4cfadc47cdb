package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/user"
	emailsvc "github.com/trezcool/edulens/services/email"
	logsvc "github.com/trezcool/edulens/services/logger"
	"github.com/trezcool/edulens/storage/database"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
	sqlxrepos "github.com/trezcool/edulens/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf, "admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	rl := logsvc.NewRollbarLogger(zl, conf)
	defer rl.Sync()
	logger = rl

	cli, closeDB := newCommandLine(context.Background(), conf)
	err = cli.run(os.Args)
	closeDB()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// newCommandLine opens the configured database and builds the services the commands need.
func newCommandLine(ctx context.Context, conf *core.Config) (*commandLine, func()) {
	var (
		cli       commandLine
		notifRepo notification.Repository
		deadlines reminder.Store
	)
	closeDB := func() {}
	switch conf.Database.Engine {
	case "postgres":
		db, err := database.Open(ctx, conf)
		errAndDie(err)
		closeDB = func() { _ = db.Close() }
		repos := sqlxrepos.NewRepositories(db)
		cli.db = db.DB
		cli.usrRepo = repos.Users
		notifRepo = repos.Notifications
		deadlines = repos.Deadlines
	default:
		repos := inmemdb.NewRepositories(inmemdb.Open())
		cli.usrRepo = repos.Users
		notifRepo = repos.Notifications
		deadlines = repos.Deadlines
	}

	mailSvc := emailsvc.NewConsoleService(conf, logger)
	if conf.Email.Provider == "sendgrid" {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(cli.usrRepo, mailSvc, conf)
	notifSvc := notification.NewService(notifRepo, usrSvc, mailSvc, nil, conf, logger)
	cli.reminders = reminder.NewProcessor(deadlines, notifSvc, nil, nil, conf, logger)
	return &cli, closeDB
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

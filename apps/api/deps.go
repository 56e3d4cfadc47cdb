package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/edulens/apps/api/echo"
	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/application"
	"github.com/trezcool/edulens/core/chat"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/forum"
	"github.com/trezcool/edulens/core/marketplace"
	"github.com/trezcool/edulens/core/notification"
	"github.com/trezcool/edulens/core/profile"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/resume"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/core/waitlist"
	aisvc "github.com/trezcool/edulens/services/aiservice"
	emailsvc "github.com/trezcool/edulens/services/email"
	"github.com/trezcool/edulens/services/metrics"
	smssvc "github.com/trezcool/edulens/services/sms"
	"github.com/trezcool/edulens/storage/database"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
	sqlxrepos "github.com/trezcool/edulens/storage/database/sqlx"
	"github.com/trezcool/edulens/storage/mongodb"
	redisstore "github.com/trezcool/edulens/storage/redis"
)

// repositories groups the storage of every domain, whatever the engine.
type repositories struct {
	users         user.Repository
	profiles      profile.Repository
	applications  application.Repository
	deadlines     deadline.Repository
	notifications notification.Repository
	documents     document.Repository
	resumes       resume.Repository
	chat          chat.Repository
	waitlist      waitlist.Repository
	forum         forum.Repository
	marketplace   marketplace.Repository
}

// closers are run in reverse order on shutdown.
type closers []func()

func (cs closers) close() {
	for i := len(cs) - 1; i >= 0; i-- {
		cs[i]()
	}
}

// buildDeps opens the stores and builds every service the API server needs.
func buildDeps(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (echoapi.ServerDeps, func(), error) {
	var cs closers
	fail := func(err error) (echoapi.ServerDeps, func(), error) {
		cs.close()
		return echoapi.ServerDeps{}, nil, err
	}

	repos, err := setUpRepositories(ctx, conf, logger, migrate, &cs)
	if err != nil {
		return fail(err)
	}

	// redis is optional: without it passes are not locked across instances and events are not published
	var (
		locker    core.Locker
		publisher application.EventPublisher
	)
	if conf.Redis.URL != "" {
		client, err := redisstore.Open(ctx, conf.Redis.URL)
		if err != nil {
			return fail(errors.Wrap(err, "setting up redis"))
		}
		cs = append(cs, func() {
			if err := client.Close(); err != nil {
				logger.Error("closing redis", err)
			}
		})
		locker = redisstore.NewLocker(client)
		publisher = redisstore.NewPublisher(client)
	}

	mailSvc, smsSvc, err := setUpMessaging(ctx, conf, logger)
	if err != nil {
		return fail(err)
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	recorder := metrics.NewRecorder()
	ai := aisvc.NewClient(conf, recorder)

	usrSvc := user.NewService(repos.users, mailSvc, conf)
	notifSvc := notification.NewService(repos.notifications, usrSvc, mailSvc, smsSvc, conf, logger)
	appSvc := application.NewService(repos.applications, publisher, notifSvc, logger)
	resumeSvc := resume.NewService(repos.resumes)

	deps := echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		Metrics:         recorder,
		UserSvc:         usrSvc,
		ProfileSvc:      profile.NewService(repos.profiles),
		ApplicationSvc:  appSvc,
		DeadlineSvc:     deadline.NewService(repos.deadlines, appSvc, notifSvc),
		NotificationSvc: notifSvc,
		DocumentSvc:     document.NewService(repos.documents, ai, resumeSvc),
		ResumeSvc:       resumeSvc,
		ChatSvc:         chat.NewService(repos.chat, ai),
		WaitlistSvc:     waitlist.NewService(repos.waitlist, mailSvc),
		ForumSvc:        forum.NewService(repos.forum, notifSvc, logger),
		MarketplaceSvc:  marketplace.NewService(repos.marketplace),
		Reminders:       reminder.NewProcessor(repos.deadlines, notifSvc, locker, recorder, conf, logger),
		AI:              ai,
	}
	return deps, cs.close, nil
}

func setUpRepositories(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool, cs *closers) (repositories, error) {
	switch conf.Database.Engine {
	case "memory":
		logger.Warn("using the in-memory database: data is lost on restart")
		r := inmemdb.NewRepositories(inmemdb.Open())
		return repositories{
			users:         r.Users,
			profiles:      r.Profiles,
			applications:  r.Applications,
			deadlines:     r.Deadlines,
			notifications: r.Notifications,
			documents:     r.Documents,
			resumes:       r.Resumes,
			chat:          r.Chat,
			waitlist:      r.Waitlist,
			forum:         r.Forum,
			marketplace:   r.Marketplace,
		}, nil

	case "postgres":
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return repositories{}, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return repositories{}, errors.Wrap(err, "opening database")
		}
		*cs = append(*cs, func() {
			if err := db.Close(); err != nil {
				logger.Error("closing database", err)
			}
		})
		if migrate {
			if err := database.Migrate(db.DB, "up"); err != nil {
				return repositories{}, err
			}
		}
		r := sqlxrepos.NewRepositories(db)
		repos := repositories{
			users:         r.Users,
			profiles:      r.Profiles,
			applications:  r.Applications,
			deadlines:     r.Deadlines,
			notifications: r.Notifications,
			documents:     r.Documents,
			resumes:       r.Resumes,
			waitlist:      r.Waitlist,
			forum:         r.Forum,
			marketplace:   r.Marketplace,
		}

		// chat transcripts live in mongodb
		if conf.Mongo.URI == "" {
			logger.Warn("MONGO_URI not set: chat sessions are kept in memory")
			repos.chat = inmemdb.NewChatRepository(inmemdb.Open())
			return repos, nil
		}
		client, mdb, err := mongodb.Open(ctx, conf)
		if err != nil {
			return repositories{}, errors.Wrap(err, "opening mongodb")
		}
		*cs = append(*cs, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("disconnecting mongodb", err)
			}
		})
		chatRepo := mongodb.NewChatRepository(mdb)
		if err := chatRepo.EnsureIndexes(ctx); err != nil {
			return repositories{}, errors.Wrap(err, "creating chat indexes")
		}
		repos.chat = chatRepo
		return repos, nil

	default:
		return repositories{}, fmt.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func setUpMessaging(ctx context.Context, conf *core.Config, logger core.Logger) (core.EmailService, core.SMSService, error) {
	needsAWS := conf.Email.Provider == "ses" || conf.SMS.Provider == "sns"
	var (
		sesClient *ses.Client
		snsClient *sns.Client
	)
	if needsAWS {
		awsConf, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(conf.AWS.Region))
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading aws config")
		}
		sesClient = ses.NewFromConfig(awsConf)
		snsClient = sns.NewFromConfig(awsConf)
	}

	var mailSvc core.EmailService
	switch conf.Email.Provider {
	case "sendgrid":
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	case "ses":
		mailSvc = emailsvc.NewSESService(sesClient, conf, logger)
	case "console", "":
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	default:
		return nil, nil, fmt.Errorf("unknown email provider %q", conf.Email.Provider)
	}

	var smsSvc core.SMSService
	switch conf.SMS.Provider {
	case "sns":
		smsSvc = smssvc.NewSNSService(snsClient, conf)
	case "console", "":
		smsSvc = smssvc.NewConsoleService()
	case "none":
	default:
		return nil, nil, fmt.Errorf("unknown sms provider %q", conf.SMS.Provider)
	}
	return mailSvc, smsSvc, nil
}

package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    HTTPObserver // optional

		UserSvc         *user.Service
		ProfileSvc      *profile.Service
		ApplicationSvc  *application.Service
		DeadlineSvc     *deadline.Service
		NotificationSvc *notification.Service
		DocumentSvc     *document.Service
		ResumeSvc       *resume.Service
		ChatSvc         *chat.Service
		WaitlistSvc     *waitlist.Service
		ForumSvc        *forum.Service
		MarketplaceSvc  *marketplace.Service
		Reminders       *reminder.Processor
		AI              core.AIService
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{conf.FrontendBaseURL},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{sessionIDHeader},
	}))
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home(conf))

	g := s.app.Group("/api")
	g.GET("/health", health)

	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	d := s.deps

	registerUserAPI(g, jwt, conf, d.UserSvc, d.Validate)
	registerProfileAPI(g, jwt, d.ProfileSvc, d.Validate)
	registerApplicationAPI(g, jwt, d.ApplicationSvc, d.Validate)
	registerDeadlineAPI(g, jwt, d.DeadlineSvc, d.Validate)
	registerNotificationAPI(g, jwt, d.NotificationSvc, d.Validate)
	registerDocumentAPI(g, jwt, d.DocumentSvc, d.Validate)
	registerResumeAPI(g, jwt, d.ResumeSvc, d.Validate)
	registerChatAPI(g, jwt, d.ChatSvc, d.Validate)
	registerAIProxy(g, jwt, conf, d.AI)
	registerWaitlistAPI(g, jwt, d.WaitlistSvc, d.Validate)
	registerForumAPI(g, jwt, d.ForumSvc, d.Validate)
	registerMarketplaceAPI(g, jwt, d.MarketplaceSvc, d.Validate)
	registerCronAPI(g, conf, d.Reminders)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // a shutdown is already pending
	}
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" API!")
	}
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

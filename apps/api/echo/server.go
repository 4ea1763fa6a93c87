package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/auth"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
)

// ServerDeps holds everything the API needs. Monitor may be nil when offline mode is disabled.
type ServerDeps struct {
	Conf     *core.Config
	Logger   core.Logger
	Validate *validator.Validate
	Uni      *ut.UniversalTranslator
	I18n     *i18n.Translator
	Bus      *events.Bus

	UserSvc    user.Service
	SchoolSvc  school.Service
	ClassSvc   class.Service
	TeacherSvc teacher.Service
	StudentSvc student.Service
	MemorySvc  memory.Service

	Learning  *learning.Store
	AutoSaver *learning.AutoSaver
	Queue     *offline.Queue
	Syncer    *offline.Syncer
	Monitor   *offline.Monitor
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	jwt      middleware.JWTConfig
	rules    auth.SessionRules
	limiter  *auth.RateLimiter
	revoked  *revocations
	hub      *hub
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Uni, "Uni"),
		vala.IsNotNil(deps.I18n, "I18n"),
		vala.IsNotNil(deps.Bus, "Bus"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.SchoolSvc, "SchoolSvc"),
		vala.IsNotNil(deps.ClassSvc, "ClassSvc"),
		vala.IsNotNil(deps.TeacherSvc, "TeacherSvc"),
		vala.IsNotNil(deps.StudentSvc, "StudentSvc"),
		vala.IsNotNil(deps.MemorySvc, "MemorySvc"),
		vala.IsNotNil(deps.Learning, "Learning"),
		vala.IsNotNil(deps.AutoSaver, "AutoSaver"),
		vala.IsNotNil(deps.Queue, "Queue"),
		vala.IsNotNil(deps.Syncer, "Syncer"),
	).CheckAndPanic()

	conf := deps.Conf
	s := &Server{
		deps: deps,
		app:  echo.New(),
		jwt:  newJWTConfig(conf),
		rules: auth.SessionRules{
			Timeout:          conf.Server.JWTExpirationDelta,
			RefreshWindow:    conf.Server.JWTRefreshExpirationDelta,
			RefreshThreshold: conf.Server.JWTRefreshThreshold,
		},
		limiter:  auth.NewRateLimiter(conf.Auth.MaxLoginAttempts, conf.Auth.LockoutDuration),
		revoked:  newRevocations(),
		hub:      newHub(deps.Bus, deps.Logger),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.languageMiddleware, csrfMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	jwt := s.jwtMiddleware(s.jwt)
	v1 := s.app.Group("/v1")

	registerAuthAPI(v1, jwt, s)
	registerUserAPI(v1, jwt, s)
	// the nested resources share the `:id` school group, created once so that
	// its catch-all routes do not shadow the school detail endpoints
	schools := v1.Group("/schools", jwt)
	scoped := schools.Group("/:id", schoolScopeMiddleware)
	registerSchoolAPI(schools, scoped, s)
	registerClassAPI(scoped, s)
	registerTeacherAPI(scoped, s)
	registerStudentAPI(scoped, s)
	registerMemoryAPI(scoped, s)
	registerFormAPI(v1, s)
	registerLearningAPI(v1, jwt, s)
	registerSyncAPI(v1, jwt, s)

	// browsers cannot set headers on file links and websockets
	qjwt := s.jwt
	qjwt.TokenLookup = "query:token"
	s.app.GET("/files/:bucket/*", s.serveFile, s.jwtMiddleware(qjwt))
	v1.GET("/realtime", s.realtime, s.jwtMiddleware(qjwt))
}

// Start blocks until the server stops; the error is sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// Shutdown closes the realtime connections, then stops accepting requests and waits for the running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.app.Shutdown(ctx)
}

// CleanupLoginAttempts drops the expired login attempts every interval until ctx is done.
func (s *Server) CleanupLoginAttempts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

func (s *Server) Close() error {
	s.hub.close()
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// GenerateToken returns a fresh session token of usr.
func (s *Server) GenerateToken(usr user.User) (string, error) {
	return generateToken(s.jwt, getUserClaims(s.deps.Conf, usr))
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, s.deps.I18n.T(getLang(ctx), "system.welcome", i18n.Vars{"name": s.deps.Conf.AppName}))
}

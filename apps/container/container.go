// Package container wires the application services for the api and admin apps.
package container

import (
	"context"
	"log"
	"os"
	"path/filepath"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core"
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
	appfs "github.com/schoolhub/schoolhub/fs"
	cachesvc "github.com/schoolhub/schoolhub/services/cache"
	emailsvc "github.com/schoolhub/schoolhub/services/email"
	logsvc "github.com/schoolhub/schoolhub/services/logger"
	"github.com/schoolhub/schoolhub/storage/database"
	dummydb "github.com/schoolhub/schoolhub/storage/database/dummy"
	sqlxrepos "github.com/schoolhub/schoolhub/storage/database/sqlx"
	"github.com/schoolhub/schoolhub/storage/files"
	"github.com/schoolhub/schoolhub/storage/local"
)

// EngineDummy selects the in-memory database, for demos and local development without postgres.
const EngineDummy = "dummy"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage holds the repositories of the configured database engine.
	// DB and Listener are nil with the dummy engine.
	Storage struct {
		dig.Out

		DB       *sqlx.DB
		Listener *database.Listener
		Tx       core.Transactor
		Pinger   core.Pinger

		Users       user.Repository
		Schools     school.Repository
		Classes     class.Repository
		Assignments class.AssignmentRepository
		Teachers    teacher.Repository
		Students    student.Repository
		Memories    memory.Repository
	}

	Validation struct {
		dig.Out

		Validate *validator.Validate
		Uni      *ut.UniversalTranslator
	}

	ServiceParams struct {
		dig.In

		Conf     *core.Config
		Logger   core.Logger
		Storage  StorageParams
		Mail     core.EmailService
		Cache    core.Cache
		Local    core.LocalStore
		Files    core.FileStore
		Queue    *offline.Queue
		Syncer   *offline.Syncer
		Bus      *events.Bus
		Validate *validator.Validate
	}

	StorageParams struct {
		dig.In

		Tx          core.Transactor
		Users       user.Repository
		Schools     school.Repository
		Classes     class.Repository
		Assignments class.AssignmentRepository
		Teachers    teacher.Repository
		Students    student.Repository
		Memories    memory.Repository
	}

	Services struct {
		dig.Out

		UserSvc    user.Service
		SchoolSvc  school.Service
		ClassSvc   class.Service
		TeacherSvc teacher.Service
		StudentSvc student.Service
		MemorySvc  memory.Service
	}

	ServerParams struct {
		dig.In

		Conf      *core.Config
		Logger    core.Logger
		Validate  *validator.Validate
		Uni       *ut.UniversalTranslator
		I18n      *i18n.Translator
		Bus       *events.Bus
		Services  ServicesParams
		Learning  *learning.Store
		AutoSaver *learning.AutoSaver
		Queue     *offline.Queue
		Syncer    *offline.Syncer
		Monitor   *offline.Monitor
	}

	ServicesParams struct {
		dig.In

		UserSvc    user.Service
		SchoolSvc  school.Service
		ClassSvc   class.Service
		TeacherSvc teacher.Service
		StudentSvc student.Service
		MemorySvc  memory.Service
	}
)

// Container is a dig.Container that also releases the resources its constructors opened.
type Container struct {
	*dig.Container
	prefix  string
	closers []func() error
}

// New returns the dependency injection container of the app whose logs are prefixed with prefix.
func New(conf *core.Config, prefix string) *Container {
	c := &Container{Container: dig.New(), prefix: prefix}

	c.must(c.Provide(func() *core.Config { return conf }))
	c.must(c.Provide(c.newLogger))
	c.must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	c.must(c.Provide(c.newStorage))
	c.must(c.Provide(events.NewBus))
	c.must(c.Provide(c.newCache))
	c.must(c.Provide(c.newLocalStore))
	c.must(c.Provide(newFileStore))
	c.must(c.Provide(offline.NewQueue))
	c.must(c.Provide(newSyncer))
	c.must(c.Provide(newMonitor))
	c.must(c.Provide(emailsvc.New))
	c.must(c.Provide(newValidation))
	c.must(c.Provide(newI18n))
	c.must(c.Provide(newServices))
	c.must(c.Provide(learning.NewStore))
	c.must(c.Provide(newAutoSaver))
	c.must(c.Provide(newServer))
	return c
}

// Close releases the resources in the reverse order of their opening.
func (c *Container) Close() error {
	var errs []string
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	c.closers = nil
	if len(errs) > 0 {
		return errors.Errorf("closing container: %v", errs)
	}
	return nil
}

func (c *Container) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *Container) newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, c.prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.New(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds)
	return logsvc.New(stdLogger, conf)
}

func (c *Container) newStorage(conf *core.Config, bus *events.Bus, dbLogger DBLoggerParam) (Storage, error) {
	if conf.Database.Engine == EngineDummy {
		db := dummydb.Open()
		return Storage{
			Tx:          db,
			Pinger:      db,
			Users:       dummydb.NewUserRepository(db),
			Schools:     dummydb.NewSchoolRepository(db),
			Classes:     dummydb.NewClassRepository(db),
			Assignments: dummydb.NewAssignmentRepository(db),
			Teachers:    dummydb.NewTeacherRepository(db),
			Students:    dummydb.NewStudentRepository(db),
			Memories:    dummydb.NewMemoryRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return Storage{}, errors.Wrap(err, "setting up database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return Storage{}, errors.Wrap(err, "opening database")
	}
	c.onClose(func() error {
		if err := db.Close(); err != nil {
			dbLogger.Logger.Error("Failed to close", err)
			return err
		}
		return nil
	})

	tx := database.NewTransactor(db)
	return Storage{
		DB:          db,
		Listener:    database.NewListener(conf, bus, dbLogger.Logger),
		Tx:          tx,
		Pinger:      tx,
		Users:       sqlxrepos.NewUserRepository(db),
		Schools:     sqlxrepos.NewSchoolRepository(db),
		Classes:     sqlxrepos.NewClassRepository(db),
		Assignments: sqlxrepos.NewAssignmentRepository(db),
		Teachers:    sqlxrepos.NewTeacherRepository(db),
		Students:    sqlxrepos.NewStudentRepository(db),
		Memories:    sqlxrepos.NewMemoryRepository(db),
	}, nil
}

// newCache also keeps the cache consistent with the remote changes published on bus.
func (c *Container) newCache(conf *core.Config, bus *events.Bus, lgr core.Logger) (core.Cache, error) {
	cache, err := cachesvc.New(context.Background(), conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up cache")
	}
	off := cachesvc.Invalidate(cache, bus, lgr)
	c.onClose(func() error {
		off()
		return nil
	})
	return cache, nil
}

func (c *Container) newLocalStore(conf *core.Config) (core.LocalStore, error) {
	if conf.Local.Path != local.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(conf.Local.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating local store directory")
		}
	}
	store, err := local.Open(conf.Local.Path)
	if err != nil {
		return nil, errors.Wrap(err, "opening local store")
	}
	c.onClose(store.Close)
	return store, nil
}

func newFileStore(conf *core.Config) core.FileStore {
	return files.NewStore(conf.Local.FilesDir, "/files")
}

func newSyncer(queue *offline.Queue, store core.LocalStore, bus *events.Bus, lgr core.Logger, conf *core.Config) *offline.Syncer {
	return offline.NewSyncer(queue, store, bus, lgr, conf.Sync.RetryAttempts)
}

// newMonitor returns nil when the offline mode is disabled.
func newMonitor(pinger core.Pinger, syncer *offline.Syncer, lgr core.Logger, conf *core.Config) *offline.Monitor {
	if !conf.Sync.EnableOfflineMode {
		return nil
	}
	return offline.NewMonitor(pinger, syncer, lgr, conf.Sync.PollInterval)
}

func newValidation() Validation {
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	user.InitValidators(validate, uni)
	school.InitValidators(validate, uni)
	return Validation{Validate: validate, Uni: uni}
}

func newI18n(conf *core.Config) (*i18n.Translator, error) {
	tr, err := i18n.Load(appfs.FS, conf.I18n.DefaultLanguage)
	return tr, errors.Wrap(err, "loading translations")
}

func newServices(p ServiceParams) Services {
	repos := p.Storage

	userSvc := user.NewService(repos.Users, p.Mail, p.Conf)
	schoolSvc := school.NewService(repos.Schools, userSvc, repos.Tx, p.Cache, p.Local, p.Queue, p.Bus, p.Logger, p.Conf)
	classSvc := class.NewService(repos.Classes, repos.Assignments, repos.Tx, p.Cache, p.Logger)
	teacherSvc := teacher.NewService(repos.Teachers, repos.Assignments, userSvc, repos.Tx, p.Cache, p.Logger)
	studentSvc := student.NewService(repos.Students, classSvc, userSvc, repos.Tx, p.Cache, p.Validate, p.Logger)
	memorySvc := memory.NewService(repos.Memories, studentSvc, p.Files, p.Logger)

	studentSvc.Cascade(memorySvc)
	schoolSvc.Cascade(memorySvc, studentSvc, teacherSvc, classSvc)
	schoolSvc.RegisterSyncHandlers(p.Syncer)

	return Services{
		UserSvc:    userSvc,
		SchoolSvc:  schoolSvc,
		ClassSvc:   classSvc,
		TeacherSvc: teacherSvc,
		StudentSvc: studentSvc,
		MemorySvc:  memorySvc,
	}
}

func newAutoSaver(store *learning.Store, conf *core.Config) *learning.AutoSaver {
	return learning.NewAutoSaver(store, conf.Sync.PollInterval, conf.Sync.MinSaveGap)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Uni:        p.Uni,
		I18n:       p.I18n,
		Bus:        p.Bus,
		UserSvc:    p.Services.UserSvc,
		SchoolSvc:  p.Services.SchoolSvc,
		ClassSvc:   p.Services.ClassSvc,
		TeacherSvc: p.Services.TeacherSvc,
		StudentSvc: p.Services.StudentSvc,
		MemorySvc:  p.Services.MemorySvc,
		Learning:   p.Learning,
		AutoSaver:  p.AutoSaver,
		Queue:      p.Queue,
		Syncer:     p.Syncer,
		Monitor:    p.Monitor,
	})
}

// must exits program if err happened
func (c *Container) must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
	appfs "github.com/schoolhub/schoolhub/fs"
	"github.com/schoolhub/schoolhub/services/cache"
	"github.com/schoolhub/schoolhub/services/email"
	"github.com/schoolhub/schoolhub/services/logger"
	"github.com/schoolhub/schoolhub/storage/database/dummy"
	"github.com/schoolhub/schoolhub/storage/files"
	"github.com/schoolhub/schoolhub/storage/local"
)

// Env holds a fully wired set of services backed by the in-memory database.
type Env struct {
	Conf     *core.Config
	Logger   core.Logger
	DB       *dummydb.DB
	Cache    core.Cache
	Local    *local.Store
	Files    *files.Store
	Bus      *events.Bus
	Queue    *offline.Queue
	Syncer   *offline.Syncer
	Validate *validator.Validate

	UserRepo   user.Repository
	SchoolRepo school.Repository

	UserSvc    user.Service
	SchoolSvc  school.Service
	ClassSvc   class.Service
	TeacherSvc teacher.Service
	StudentSvc student.Service
	MemorySvc  memory.Service
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.New(log.New(io.Discard, "", 0), conf)
}

func NewValidator() *validator.Validate {
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	user.InitValidators(validate, uni)
	school.InitValidators(validate, uni)
	return validate
}

// NewEnv wires every service the way the API does; mails are sent synchronously and kept in memory.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	lgr := NewLogger(conf)
	core.ParseEmailTemplates(appfs.FS, conf, lgr)
	emailsvc.ClearSentMessages()

	store, err := local.Open(local.MemoryPath)
	if err != nil {
		t.Fatalf("local.Open(): %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env := &Env{
		Conf:     conf,
		Logger:   lgr,
		DB:       dummydb.Open(),
		Cache:    cachesvc.NewMemoryCache(conf.Cache.TTL),
		Local:    store,
		Files:    files.NewStore(t.TempDir(), "/files"),
		Bus:      events.NewBus(),
		Validate: NewValidator(),
	}
	env.Queue = offline.NewQueue(store)
	env.Syncer = offline.NewSyncer(env.Queue, store, env.Bus, lgr, conf.Sync.RetryAttempts)

	env.UserRepo = dummydb.NewUserRepository(env.DB)
	env.SchoolRepo = dummydb.NewSchoolRepository(env.DB)
	assignRepo := dummydb.NewAssignmentRepository(env.DB)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, lgr)
	env.UserSvc = user.NewServiceMock(env.UserRepo, mailSvc, conf)
	env.SchoolSvc = school.NewService(env.SchoolRepo, env.UserSvc, env.DB, env.Cache, store, env.Queue, env.Bus, lgr, conf)
	env.ClassSvc = class.NewService(dummydb.NewClassRepository(env.DB), assignRepo, env.DB, env.Cache, lgr)
	env.TeacherSvc = teacher.NewService(dummydb.NewTeacherRepository(env.DB), assignRepo, env.UserSvc, env.DB, env.Cache, lgr)
	env.StudentSvc = student.NewService(dummydb.NewStudentRepository(env.DB), env.ClassSvc, env.UserSvc, env.DB, env.Cache, env.Validate, lgr)
	env.MemorySvc = memory.NewService(dummydb.NewMemoryRepository(env.DB), env.StudentSvc, env.Files, lgr)

	env.StudentSvc.Cascade(env.MemorySvc)
	env.SchoolSvc.Cascade(env.MemorySvc, env.StudentSvc, env.TeacherSvc, env.ClassSvc)
	env.SchoolSvc.RegisterSyncHandlers(env.Syncer)
	return env
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateSchoolUser creates an account scoped to schoolID.
func CreateSchoolUser(t *testing.T, repo user.Repository, schoolID, uname, pwd, role string) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		SchoolID:  schoolID,
		Name:      uname,
		Username:  uname,
		Roles:     []string{role},
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createSchoolUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createSchoolUser() failed: %v", err)
	}
	return usr
}

func NewSchool(name string) school.NewSchool {
	return school.NewSchool{
		Name:         name,
		Type:         school.TypeBasisschool,
		BRIN:         "01AB",
		StudentCount: 120,
		Address:      "Schoolstraat 1, Utrecht",
		PostalCode:   "1234 AB",
		AdminName:    "Jan de Vries",
		AdminEmail:   "admin@" + sluggify(name) + ".nl",
		AdminPhone:   "06 12345678",
	}
}

func CreateSchool(t *testing.T, env *Env, name string) school.School {
	t.Helper()

	sch, _, err := env.SchoolSvc.Create(context.Background(), NewSchool(name))
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	return sch
}

func CreateClass(t *testing.T, env *Env, schoolID, name string, level, maxStudents int) class.Class {
	t.Helper()

	c, err := env.ClassSvc.Create(context.Background(), schoolID, class.NewClass{Name: name, Level: level, MaxStudents: maxStudents})
	if err != nil {
		t.Fatalf("createClass() failed: %v", err)
	}
	return c
}

func CreateTeacher(t *testing.T, env *Env, schoolID, firstName, lastName, email string) teacher.Teacher {
	t.Helper()

	tch, _, err := env.TeacherSvc.Create(context.Background(), schoolID, teacher.NewTeacher{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	})
	if err != nil {
		t.Fatalf("createTeacher() failed: %v", err)
	}
	return tch
}

func CreateStudent(t *testing.T, env *Env, schoolID, classID, firstName, lastName string) student.Student {
	t.Helper()

	s, _, err := env.StudentSvc.Create(context.Background(), schoolID, student.NewStudent{
		FirstName: firstName,
		LastName:  lastName,
		ClassID:   classID,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return s
}

func sluggify(s string) string {
	res := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			res = append(res, r)
		case r >= 'A' && r <= 'Z':
			res = append(res, r+'a'-'A')
		}
	}
	return string(res)
}

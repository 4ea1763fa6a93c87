package student

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/user"
)

var (
	// errors
	ErrNotFound  = errors.New("student not found")
	ErrClassFull = errors.New("class is full")
)

var defaultOrdering = []core.DBOrdering{{Field: "last_name", Ascending: true}, {Field: "first_name", Ascending: true}}

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		// QueryStudents fills Student.ClassName from the student's class.
		QueryStudents(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		DeleteSchoolStudents(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)
		CountStudents(ctx context.Context, schoolID, classID string, exec ...core.DBExecutor) (int, error)
	}

	// Cascade deletes the records belonging to a student, within the student deletion transaction.
	Cascade interface {
		DeleteByStudent(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) error
	}

	// Purger removes what a student leaves outside of the database, once its deletion is committed.
	Purger interface {
		PurgeStudent(ctx context.Context, schoolID, studentID string) error
	}

	Service interface {
		// Create returns the credentials of the student account; they are also mailed to the parent.
		Create(ctx context.Context, schoolID string, ns NewStudent) (Student, credentials.Credentials, error)
		// Import creates a student per row of rows, skipping the header row. Rows failing are reported, not fatal.
		Import(ctx context.Context, schoolID, classID string, rows [][]string) (ImportResult, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetByID(ctx context.Context, schoolID, id string) (Student, error)
		Update(ctx context.Context, schoolID, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, schoolID, id string) error
		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
		Cascade(deleters ...Cascade)
	}

	service struct {
		repo     Repository
		classSvc class.Service
		userSvc  user.Service
		tx       core.Transactor
		cache    core.Cache
		validate *validator.Validate
		logger   core.Logger
		cascades []Cascade
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	classSvc class.Service,
	userSvc user.Service,
	tx core.Transactor,
	cache core.Cache,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(classSvc, "classSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		classSvc: classSvc,
		userSvc:  userSvc,
		tx:       tx,
		cache:    cache,
		validate: validate,
		logger:   logger,
	}
}

func (svc *service) Cascade(deleters ...Cascade) {
	svc.cascades = append(svc.cascades, deleters...)
}

func (svc *service) clearCache(ctx context.Context, schoolID string) {
	core.ClearCache(ctx, svc.cache, svc.logger, core.StudentsCacheKey(schoolID), core.ClassesCacheKey(schoolID))
}

// recount stores the number of students of each given class.
func (svc *service) recount(ctx context.Context, schoolID string, exec core.DBExecutor, classIDs ...string) error {
	seen := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		n, err := svc.repo.CountStudents(ctx, schoolID, id, exec)
		if err != nil {
			return errors.Wrap(err, "counting class students")
		}
		if err = svc.classSvc.SetStudentCount(ctx, schoolID, id, n, exec); err != nil {
			return errors.Wrap(err, "updating class student count")
		}
	}
	return nil
}

func (svc *service) checkClass(ctx context.Context, schoolID, classID string) error {
	if classID == "" {
		return nil
	}
	c, err := svc.classSvc.GetByID(ctx, schoolID, classID)
	if err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return err
	}
	if c.IsFull() {
		return core.NewValidationError(ErrClassFull, core.FieldError{Field: "class_id", Error: ErrClassFull.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, schoolID string, ns NewStudent) (Student, credentials.Credentials, error) {
	if err := svc.checkClass(ctx, schoolID, ns.ClassID); err != nil {
		return Student{}, credentials.Credentials{}, err
	}

	var (
		s     Student
		creds credentials.Credentials
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		now := time.Now().UTC()
		created, err := svc.repo.CreateStudent(ctx, Student{
			SchoolID:    schoolID,
			ClassID:     ns.ClassID,
			FirstName:   ns.FirstName,
			LastName:    ns.LastName,
			BirthDate:   ns.BirthDate,
			ParentName:  ns.ParentName,
			ParentEmail: ns.ParentEmail,
			ParentPhone: ns.ParentPhone,
			Status:      StatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}

		_, creds, err = svc.userSvc.CreateWithCredentials(ctx, user.NewAccount{
			Name:     created.FullName(),
			Role:     user.RoleStudent,
			SchoolID: schoolID,
			EntityID: created.ID,
			Username: credentials.StudentUsername(created.FirstName, created.LastName),
			Password: credentials.StudentPassword(credentials.StudentPasswordLen),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating student account")
		}

		created.Username = creds.Username
		if s, err = svc.repo.UpdateStudent(ctx, created, exec); err != nil {
			return err
		}
		return svc.recount(ctx, schoolID, exec, s.ClassID)
	})
	if err != nil {
		return Student{}, credentials.Credentials{}, err
	}

	svc.clearCache(ctx, schoolID)
	svc.userSvc.MailCredentials(mail.Address{Name: s.ParentName, Address: s.ParentEmail}, user.RoleStudent, creds)
	if s, err = svc.GetByID(ctx, schoolID, s.ID); err != nil {
		return Student{}, credentials.Credentials{}, err
	}
	return s, creds, nil
}

func (svc *service) Import(ctx context.Context, schoolID, classID string, rows [][]string) (ImportResult, error) {
	res := ImportResult{Imported: make([]ImportedStudent, 0), Failed: make([]ImportError, 0)}
	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue
		}
		ns := rowToNewStudent(row, classID)
		if err := ns.Validate(svc.validate); err != nil {
			res.Failed = append(res.Failed, ImportError{Row: i + 1, Error: err.Error()})
			continue
		}

		s, creds, err := svc.Create(ctx, schoolID, ns)
		if err != nil {
			if core.IsUnavailable(err) {
				return res, err
			}
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				svc.logger.Error(fmt.Sprintf("student.Import: row %d", i+1), err)
			}
			res.Failed = append(res.Failed, ImportError{Row: i + 1, Error: err.Error()})
			continue
		}
		res.Imported = append(res.Imported, ImportedStudent{Student: s, Credentials: creds})
	}
	return res, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Search = core.CleanString(filter.Search)
	filter.ClassID = core.CleanString(filter.ClassID)
	filter.Status = core.CleanLower(filter.Status)
	ordering = core.AllowedOrderings(ordering, Orderings)

	query := func() ([]Student, error) {
		ord := ordering
		if len(ord) == 0 {
			ord = defaultOrdering
		}
		students, err := svc.repo.QueryStudents(ctx, schoolID, filter, ord)
		if err != nil {
			return nil, err
		}
		for i := range students {
			setClassName(&students[i])
		}
		return students, nil
	}

	if !filter.IsEmpty() || len(ordering) > 0 {
		return query()
	}
	return core.CachedQuery(ctx, svc.cache, svc.logger, core.StudentsCacheKey(schoolID), query)
}

func (svc *service) GetByID(ctx context.Context, schoolID, id string) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, schoolID, id)
	if err != nil {
		return Student{}, err
	}
	setClassName(&s)
	return s, nil
}

func (svc *service) Update(ctx context.Context, schoolID, id string, us UpdateStudent) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, schoolID, id)
	if err != nil {
		return Student{}, err
	}
	prevClassID := s.ClassID
	us.apply(&s)
	if s.ClassID != prevClassID {
		if err = svc.checkClass(ctx, schoolID, s.ClassID); err != nil {
			return Student{}, err
		}
	}
	s.UpdatedAt = time.Now().UTC()

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.UpdateStudent(ctx, s, exec); err != nil {
			return err
		}
		if s.ClassID == prevClassID {
			return nil
		}
		return svc.recount(ctx, schoolID, exec, prevClassID, s.ClassID)
	})
	if err != nil {
		return Student{}, err
	}
	svc.clearCache(ctx, schoolID)
	return svc.GetByID(ctx, schoolID, id)
}

// Delete removes the student with its account and the records of the registered cascades.
func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	s, err := svc.repo.GetStudent(ctx, schoolID, id)
	if err != nil {
		return err
	}
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, c := range svc.cascades {
			if err := c.DeleteByStudent(ctx, schoolID, id, exec); err != nil {
				return errors.Wrap(err, "deleting student records")
			}
		}
		if err := svc.userSvc.DeleteByEntity(ctx, []string{id}, exec); err != nil {
			return errors.Wrap(err, "deleting student account")
		}
		if err := svc.repo.DeleteStudent(ctx, schoolID, id, exec); err != nil {
			return err
		}
		return svc.recount(ctx, schoolID, exec, s.ClassID)
	})
	if err != nil {
		return err
	}

	for _, c := range svc.cascades {
		if p, ok := c.(Purger); ok {
			if err = p.PurgeStudent(ctx, schoolID, id); err != nil {
				svc.logger.Error(fmt.Sprintf("student.Delete(%s): purging", id), err)
			}
		}
	}
	svc.clearCache(ctx, schoolID)
	return nil
}

func (svc *service) DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteSchoolStudents(ctx, schoolID, exec...)
	return errors.Wrap(err, "deleting students")
}

func setClassName(s *Student) {
	if s.ClassID == "" || s.ClassName == "" {
		s.ClassName = NoClassName
	}
}

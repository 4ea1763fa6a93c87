package teacher

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("teacher not found")
)

var defaultOrdering = []core.DBOrdering{{Field: "last_name", Ascending: true}, {Field: "first_name", Ascending: true}}

type (
	Repository interface {
		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		QueryTeachers(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Teacher, error)
		GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		DeleteTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		DeleteSchoolTeachers(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		// Create returns the credentials of the teacher account; they are also mailed to the teacher.
		Create(ctx context.Context, schoolID string, nt NewTeacher) (Teacher, credentials.Credentials, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Teacher, error)
		GetByID(ctx context.Context, schoolID, id string) (Teacher, error)
		Update(ctx context.Context, schoolID, id string, ut UpdateTeacher) (Teacher, error)
		Delete(ctx context.Context, schoolID, id string) error
		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
	}

	service struct {
		repo       Repository
		assignRepo class.AssignmentRepository
		userSvc    user.Service
		tx         core.Transactor
		cache      core.Cache
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	assignRepo class.AssignmentRepository,
	userSvc user.Service,
	tx core.Transactor,
	cache core.Cache,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(assignRepo, "assignRepo"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{repo: repo, assignRepo: assignRepo, userSvc: userSvc, tx: tx, cache: cache, logger: logger}
}

func (svc *service) clearCache(ctx context.Context, schoolID string) {
	core.ClearCache(ctx, svc.cache, svc.logger, core.TeachersCacheKey(schoolID), core.ClassesCacheKey(schoolID))
}

func (svc *service) Create(ctx context.Context, schoolID string, nt NewTeacher) (Teacher, credentials.Credentials, error) {
	var (
		t     Teacher
		creds credentials.Credentials
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		now := time.Now().UTC()
		created, err := svc.repo.CreateTeacher(ctx, Teacher{
			SchoolID:       schoolID,
			FirstName:      nt.FirstName,
			LastName:       nt.LastName,
			Email:          nt.Email,
			Phone:          nt.Phone,
			Subjects:       nt.Subjects,
			Qualifications: nt.Qualifications,
			HireDate:       nt.HireDate,
			Status:         StatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating teacher")
		}

		_, creds, err = svc.userSvc.CreateWithCredentials(ctx, user.NewAccount{
			Name:     created.FullName(),
			Email:    created.Email,
			Role:     user.RoleTeacher,
			SchoolID: schoolID,
			EntityID: created.ID,
			Username: credentials.TeacherUsername(created.FirstName, created.LastName),
			Password: credentials.SecurePassword(credentials.TeacherPasswordLen),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating teacher account")
		}

		created.Username = creds.Username
		t, err = svc.repo.UpdateTeacher(ctx, created, exec)
		return err
	})
	if err != nil {
		return Teacher{}, credentials.Credentials{}, err
	}

	t.Classes = make([]AssignedClass, 0)
	svc.clearCache(ctx, schoolID)
	svc.userSvc.MailCredentials(mail.Address{Name: t.FullName(), Address: t.Email}, user.RoleTeacher, creds)
	return t, creds, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Teacher, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Search = core.CleanString(filter.Search)
	filter.Status = core.CleanLower(filter.Status)
	ordering = core.AllowedOrderings(ordering, Orderings)

	query := func() ([]Teacher, error) {
		ord := ordering
		if len(ord) == 0 {
			ord = defaultOrdering
		}
		teachers, err := svc.repo.QueryTeachers(ctx, schoolID, filter, ord)
		if err != nil {
			return nil, err
		}
		return teachers, svc.attachClasses(ctx, schoolID, teachers)
	}

	if !filter.IsEmpty() || len(ordering) > 0 {
		return query()
	}
	return core.CachedQuery(ctx, svc.cache, svc.logger, core.TeachersCacheKey(schoolID), query)
}

func (svc *service) attachClasses(ctx context.Context, schoolID string, teachers []Teacher) error {
	assignments, err := svc.assignRepo.QueryAssignments(ctx, class.AssignmentFilter{SchoolID: schoolID})
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	byTeacher := make(map[string][]AssignedClass)
	for _, a := range assignments {
		byTeacher[a.TeacherID] = append(byTeacher[a.TeacherID], AssignedClass{ID: a.ClassID, Name: a.ClassName, Role: a.Role})
	}
	for i := range teachers {
		teachers[i].Classes = byTeacher[teachers[i].ID]
		if teachers[i].Classes == nil {
			teachers[i].Classes = make([]AssignedClass, 0)
		}
	}
	return nil
}

func (svc *service) GetByID(ctx context.Context, schoolID, id string) (Teacher, error) {
	t, err := svc.repo.GetTeacher(ctx, schoolID, id)
	if err != nil {
		return Teacher{}, err
	}
	teachers := []Teacher{t}
	if err = svc.attachClasses(ctx, schoolID, teachers); err != nil {
		return Teacher{}, err
	}
	return teachers[0], nil
}

func (svc *service) Update(ctx context.Context, schoolID, id string, ut UpdateTeacher) (Teacher, error) {
	t, err := svc.repo.GetTeacher(ctx, schoolID, id)
	if err != nil {
		return Teacher{}, err
	}
	ut.apply(&t)
	t.UpdatedAt = time.Now().UTC()

	if _, err = svc.repo.UpdateTeacher(ctx, t); err != nil {
		return Teacher{}, err
	}
	svc.clearCache(ctx, schoolID)
	return svc.GetByID(ctx, schoolID, id)
}

// Delete removes the teacher with its class assignments and its account.
func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := svc.repo.GetTeacher(ctx, schoolID, id); err != nil {
		return err
	}
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.assignRepo.DeleteAssignments(ctx, class.AssignmentFilter{SchoolID: schoolID, TeacherID: id}, exec); err != nil {
			return errors.Wrap(err, "deleting teacher assignments")
		}
		if err := svc.userSvc.DeleteByEntity(ctx, []string{id}, exec); err != nil {
			return errors.Wrap(err, "deleting teacher account")
		}
		return svc.repo.DeleteTeacher(ctx, schoolID, id, exec)
	})
	if err != nil {
		return err
	}
	svc.clearCache(ctx, schoolID)
	return nil
}

func (svc *service) DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteSchoolTeachers(ctx, schoolID, exec...)
	return errors.Wrap(err, "deleting teachers")
}

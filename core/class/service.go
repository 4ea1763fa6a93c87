package class

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

var (
	// errors
	ErrNotFound           = errors.New("class not found")
	ErrTeacherNotFound    = errors.New("teacher not found")
	ErrAssignmentExists   = errors.New("teacher is already assigned to this class")
	ErrAssignmentNotFound = errors.New("assignment not found")
)

var defaultOrdering = []core.DBOrdering{{Field: "class_level", Ascending: true}, {Field: "class_name", Ascending: true}}

type (
	Repository interface {
		CreateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Class, error)
		UpdateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
		// DeleteClass detaches the students of the class before deleting it.
		DeleteClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		DeleteSchoolClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error)
	}

	AssignmentRepository interface {
		// CreateAssignment returns ErrAssignmentExists or ErrTeacherNotFound.
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, filter AssignmentFilter, exec ...core.DBExecutor) ([]Assignment, error)
		DeleteAssignments(ctx context.Context, filter AssignmentFilter, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, schoolID string, nc NewClass) (Class, error)
		Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetByID(ctx context.Context, schoolID, id string) (Class, error)
		Update(ctx context.Context, schoolID, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, schoolID, id string) error
		SetStudentCount(ctx context.Context, schoolID, id string, count int, exec ...core.DBExecutor) error
		AssignTeacher(ctx context.Context, schoolID string, na NewAssignment) (Assignment, error)
		UnassignTeacher(ctx context.Context, schoolID, classID, teacherID string) error
		Assignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
	}

	service struct {
		repo       Repository
		assignRepo AssignmentRepository
		tx         core.Transactor
		cache      core.Cache
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, assignRepo AssignmentRepository, tx core.Transactor, cache core.Cache, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(assignRepo, "assignRepo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{repo: repo, assignRepo: assignRepo, tx: tx, cache: cache, logger: logger}
}

func (svc *service) clearCache(ctx context.Context, schoolID string) {
	core.ClearCache(ctx, svc.cache, svc.logger, core.ClassesCacheKey(schoolID), core.TeachersCacheKey(schoolID), core.StudentsCacheKey(schoolID))
}

func (svc *service) Create(ctx context.Context, schoolID string, nc NewClass) (Class, error) {
	if nc.MaxStudents == 0 {
		nc.MaxStudents = DefaultMaxStudents
	}
	now := time.Now().UTC()
	c, err := svc.repo.CreateClass(ctx, Class{
		SchoolID:    schoolID,
		Name:        nc.Name,
		Level:       nc.Level,
		Year:        nc.Year,
		MaxStudents: nc.MaxStudents,
		Classroom:   nc.Classroom,
		Notes:       nc.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Class{}, err
	}
	c.Teachers = make([]AssignedTeacher, 0)
	svc.clearCache(ctx, schoolID)
	return c, nil
}

func (svc *service) Query(ctx context.Context, schoolID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	if filter == nil {
		filter = &QueryFilter{}
	}
	filter.Search = core.CleanString(filter.Search)
	ordering = core.AllowedOrderings(ordering, Orderings)

	query := func() ([]Class, error) {
		ord := ordering
		if len(ord) == 0 {
			ord = defaultOrdering
		}
		classes, err := svc.repo.QueryClasses(ctx, schoolID, filter, ord)
		if err != nil {
			return nil, err
		}
		return classes, svc.attachTeachers(ctx, schoolID, classes)
	}

	if !filter.IsEmpty() || len(ordering) > 0 {
		return query()
	}
	return core.CachedQuery(ctx, svc.cache, svc.logger, core.ClassesCacheKey(schoolID), query)
}

func (svc *service) attachTeachers(ctx context.Context, schoolID string, classes []Class) error {
	assignments, err := svc.assignRepo.QueryAssignments(ctx, AssignmentFilter{SchoolID: schoolID})
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	byClass := make(map[string][]AssignedTeacher)
	for _, a := range assignments {
		byClass[a.ClassID] = append(byClass[a.ClassID], AssignedTeacher{ID: a.TeacherID, Name: a.TeacherName, Role: a.Role})
	}
	for i := range classes {
		classes[i].Teachers = byClass[classes[i].ID]
		if classes[i].Teachers == nil {
			classes[i].Teachers = make([]AssignedTeacher, 0)
		}
	}
	return nil
}

func (svc *service) GetByID(ctx context.Context, schoolID, id string) (Class, error) {
	c, err := svc.repo.GetClass(ctx, schoolID, id)
	if err != nil {
		return Class{}, err
	}
	classes := []Class{c}
	if err = svc.attachTeachers(ctx, schoolID, classes); err != nil {
		return Class{}, err
	}
	return classes[0], nil
}

func (svc *service) Update(ctx context.Context, schoolID, id string, uc UpdateClass) (Class, error) {
	c, err := svc.repo.GetClass(ctx, schoolID, id)
	if err != nil {
		return Class{}, err
	}
	uc.apply(&c)
	c.UpdatedAt = time.Now().UTC()

	if _, err = svc.repo.UpdateClass(ctx, c); err != nil {
		return Class{}, err
	}
	svc.clearCache(ctx, schoolID)
	return svc.GetByID(ctx, schoolID, id)
}

func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	if _, err := svc.repo.GetClass(ctx, schoolID, id); err != nil {
		return err
	}
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.assignRepo.DeleteAssignments(ctx, AssignmentFilter{SchoolID: schoolID, ClassID: id}, exec); err != nil {
			return errors.Wrap(err, "deleting class assignments")
		}
		return svc.repo.DeleteClass(ctx, schoolID, id, exec)
	})
	if err != nil {
		return err
	}
	svc.clearCache(ctx, schoolID)
	return nil
}

func (svc *service) SetStudentCount(ctx context.Context, schoolID, id string, count int, exec ...core.DBExecutor) error {
	c, err := svc.repo.GetClass(ctx, schoolID, id, exec...)
	if err != nil {
		return err
	}
	c.StudentCount = count
	c.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateClass(ctx, c, exec...)
	return err
}

func (svc *service) AssignTeacher(ctx context.Context, schoolID string, na NewAssignment) (Assignment, error) {
	if _, err := svc.repo.GetClass(ctx, schoolID, na.ClassID); err != nil {
		return Assignment{}, err
	}
	a, err := svc.assignRepo.CreateAssignment(ctx, Assignment{
		SchoolID:  schoolID,
		TeacherID: na.TeacherID,
		ClassID:   na.ClassID,
		Role:      na.Role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Assignment{}, err
	}
	svc.clearCache(ctx, schoolID)
	return a, nil
}

func (svc *service) UnassignTeacher(ctx context.Context, schoolID, classID, teacherID string) error {
	n, err := svc.assignRepo.DeleteAssignments(ctx, AssignmentFilter{SchoolID: schoolID, ClassID: classID, TeacherID: teacherID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAssignmentNotFound
	}
	svc.clearCache(ctx, schoolID)
	return nil
}

func (svc *service) Assignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	return svc.assignRepo.QueryAssignments(ctx, filter)
}

func (svc *service) DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	if _, err := svc.assignRepo.DeleteAssignments(ctx, AssignmentFilter{SchoolID: schoolID}, exec...); err != nil {
		return errors.Wrap(err, "deleting assignments")
	}
	_, err := svc.repo.DeleteSchoolClasses(ctx, schoolID, exec...)
	return errors.Wrap(err, "deleting classes")
}

package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/teacher"
)

type teacherRepository struct {
	db *DB
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(db *DB) teacher.Repository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return teacher.Teacher{}, err
	}

	t.ID = uuid.New().String()
	t.Classes = nil
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *teacherRepository) QueryTeachers(ctx context.Context, schoolID string, filter *teacher.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	teachers := make([]teacher.Teacher, 0)
	for _, t := range values(repo.db.teachers) {
		if t.SchoolID == schoolID && (filter == nil || filter.Match(t)) {
			teachers = append(teachers, t)
		}
	}
	orderBy(teachers, ordering, func(t teacher.Teacher, column string) interface{} {
		switch column {
		case "first_name":
			return t.FirstName
		case "last_name":
			return t.LastName
		case "hire_date":
			return t.HireDate
		case "status":
			return t.Status
		case "created_at":
			return t.CreatedAt
		}
		return nil
	})
	return teachers, nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return teacher.Teacher{}, err
	}

	if t, ok := repo.db.teachers[id]; ok && t.SchoolID == schoolID {
		return t, nil
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return teacher.Teacher{}, err
	}

	orig, ok := repo.db.teachers[t.ID]
	if !ok || orig.SchoolID != t.SchoolID {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	t.CreatedAt = orig.CreatedAt
	t.Classes = nil
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *teacherRepository) DeleteTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return err
	}

	if t, ok := repo.db.teachers[id]; !ok || t.SchoolID != schoolID {
		return teacher.ErrNotFound
	}
	delete(repo.db.teachers, id)
	return nil
}

func (repo *teacherRepository) DeleteSchoolTeachers(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for id, t := range repo.db.teachers {
		if t.SchoolID == schoolID {
			delete(repo.db.teachers, id)
			n++
		}
	}
	return n, nil
}

package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

// withClassName must be called with the lock held.
func (repo *studentRepository) withClassName(s student.Student) student.Student {
	s.ClassName = ""
	if c, ok := repo.db.classes[s.ClassID]; ok {
		s.ClassName = c.Name
	}
	return s
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return student.Student{}, err
	}

	s.ID = uuid.New().String()
	s.ClassName = ""
	repo.db.students[s.ID] = s
	return repo.withClassName(s), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	students := make([]student.Student, 0)
	for _, s := range values(repo.db.students) {
		if s.SchoolID == schoolID && (filter == nil || filter.Match(s)) {
			students = append(students, repo.withClassName(s))
		}
	}
	orderBy(students, ordering, func(s student.Student, column string) interface{} {
		switch column {
		case "first_name":
			return s.FirstName
		case "last_name":
			return s.LastName
		case "birth_date":
			return s.BirthDate
		case "status":
			return s.Status
		case "created_at":
			return s.CreatedAt
		}
		return nil
	})
	return students, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return student.Student{}, err
	}

	if s, ok := repo.db.students[id]; ok && s.SchoolID == schoolID {
		return repo.withClassName(s), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return student.Student{}, err
	}

	orig, ok := repo.db.students[s.ID]
	if !ok || orig.SchoolID != s.SchoolID {
		return student.Student{}, student.ErrNotFound
	}
	s.CreatedAt = orig.CreatedAt
	s.ClassName = ""
	repo.db.students[s.ID] = s
	return repo.withClassName(s), nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return err
	}

	if s, ok := repo.db.students[id]; !ok || s.SchoolID != schoolID {
		return student.ErrNotFound
	}
	delete(repo.db.students, id)
	return nil
}

func (repo *studentRepository) DeleteSchoolStudents(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for id, s := range repo.db.students {
		if s.SchoolID == schoolID {
			delete(repo.db.students, id)
			n++
		}
	}
	return n, nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, schoolID, classID string, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && s.ClassID == classID {
			n++
		}
	}
	return n, nil
}

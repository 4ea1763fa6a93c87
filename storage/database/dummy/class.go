package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

func (repo *classRepository) CreateClass(ctx context.Context, c class.Class, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return class.Class{}, err
	}

	c.ID = uuid.New().String()
	c.Teachers = nil
	repo.db.classes[c.ID] = c
	return c, nil
}

func (repo *classRepository) QueryClasses(ctx context.Context, schoolID string, filter *class.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	classes := make([]class.Class, 0)
	for _, c := range values(repo.db.classes) {
		if c.SchoolID == schoolID && (filter == nil || filter.Match(c)) {
			classes = append(classes, c)
		}
	}
	orderBy(classes, ordering, func(c class.Class, column string) interface{} {
		switch column {
		case "class_name":
			return c.Name
		case "class_level":
			return c.Level
		case "student_count":
			return c.StudentCount
		case "created_at":
			return c.CreatedAt
		}
		return nil
	})
	return classes, nil
}

func (repo *classRepository) GetClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return class.Class{}, err
	}

	if c, ok := repo.db.classes[id]; ok && c.SchoolID == schoolID {
		return c, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(ctx context.Context, c class.Class, exec ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return class.Class{}, err
	}

	orig, ok := repo.db.classes[c.ID]
	if !ok || orig.SchoolID != c.SchoolID {
		return class.Class{}, class.ErrNotFound
	}
	c.CreatedAt = orig.CreatedAt
	c.Teachers = nil
	repo.db.classes[c.ID] = c
	return c, nil
}

func (repo *classRepository) DeleteClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return err
	}

	if c, ok := repo.db.classes[id]; !ok || c.SchoolID != schoolID {
		return class.ErrNotFound
	}
	delete(repo.db.classes, id)
	// ON DELETE SET NULL
	for sid, s := range repo.db.students {
		if s.ClassID == id {
			s.ClassID = ""
			repo.db.students[sid] = s
		}
	}
	return nil
}

func (repo *classRepository) DeleteSchoolClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for id, c := range repo.db.classes {
		if c.SchoolID == schoolID {
			delete(repo.db.classes, id)
			n++
		}
	}
	return n, nil
}

type assignmentRepository struct {
	db *DB
}

var _ class.AssignmentRepository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) class.AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a class.Assignment, exec ...core.DBExecutor) (class.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return class.Assignment{}, err
	}

	t, ok := repo.db.teachers[a.TeacherID]
	if !ok || t.SchoolID != a.SchoolID {
		return class.Assignment{}, class.ErrTeacherNotFound
	}
	c, ok := repo.db.classes[a.ClassID]
	if !ok || c.SchoolID != a.SchoolID {
		return class.Assignment{}, class.ErrNotFound
	}
	for _, existing := range repo.db.assignments {
		if existing.TeacherID == a.TeacherID && existing.ClassID == a.ClassID {
			return class.Assignment{}, class.ErrAssignmentExists
		}
	}

	a.ID = uuid.New().String()
	a.TeacherName, a.ClassName = "", ""
	repo.db.assignments[a.ID] = a

	a.TeacherName = t.FullName()
	a.ClassName = c.Name
	return a, nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter class.AssignmentFilter, exec ...core.DBExecutor) ([]class.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	assignments := make([]class.Assignment, 0)
	for _, a := range values(repo.db.assignments) {
		if matchAssignment(a, filter) {
			a.TeacherName = repo.db.teachers[a.TeacherID].FullName()
			a.ClassName = repo.db.classes[a.ClassID].Name
			assignments = append(assignments, a)
		}
	}
	orderBy(assignments, []core.DBOrdering{{Field: "created_at", Ascending: true}}, func(a class.Assignment, _ string) interface{} {
		return a.CreatedAt
	})
	return assignments, nil
}

func (repo *assignmentRepository) DeleteAssignments(ctx context.Context, filter class.AssignmentFilter, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for id, a := range repo.db.assignments {
		if matchAssignment(a, filter) {
			delete(repo.db.assignments, id)
			n++
		}
	}
	return n, nil
}

func matchAssignment(a class.Assignment, filter class.AssignmentFilter) bool {
	return (filter.SchoolID == "" || a.SchoolID == filter.SchoolID) &&
		(filter.ClassID == "" || a.ClassID == filter.ClassID) &&
		(filter.TeacherID == "" || a.TeacherID == filter.TeacherID)
}

package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

// withStats must be called with the lock held.
func (repo *schoolRepository) withStats(sch school.School) school.School {
	sch.Stats = school.Stats{}
	for _, s := range repo.db.students {
		if s.SchoolID == sch.ID {
			sch.Stats.Students++
		}
	}
	for _, t := range repo.db.teachers {
		if t.SchoolID == sch.ID {
			sch.Stats.Teachers++
		}
	}
	for _, c := range repo.db.classes {
		if c.SchoolID == sch.ID {
			sch.Stats.Classes++
		}
	}
	return sch
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return school.School{}, err
	}

	sch.ID = uuid.New().String()
	sch.Stats = school.Stats{}
	repo.db.schools[sch.ID] = sch
	return sch, nil
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	schools := make([]school.School, 0)
	for _, sch := range values(repo.db.schools) {
		if filter == nil || filter.Match(sch) {
			schools = append(schools, repo.withStats(sch))
		}
	}
	orderBy(schools, ordering, func(sch school.School, column string) interface{} {
		switch column {
		case "name":
			return sch.Name
		case "type":
			return sch.Type
		case "student_count":
			return sch.StudentCount
		case "status":
			return sch.Status
		case "created_at":
			return sch.CreatedAt
		case "updated_at":
			return sch.UpdatedAt
		case "last_login":
			return sch.LastLogin
		}
		return nil
	})
	return schools, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return school.School{}, err
	}

	if sch, ok := repo.db.schools[id]; ok {
		return repo.withStats(sch), nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return school.School{}, err
	}

	orig, ok := repo.db.schools[sch.ID]
	if !ok {
		return school.School{}, school.ErrNotFound
	}
	sch.CreatedAt = orig.CreatedAt
	repo.db.schools[sch.ID] = sch
	return repo.withStats(sch), nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return err
	}

	if _, ok := repo.db.schools[id]; !ok {
		return school.ErrNotFound
	}
	delete(repo.db.schools, id)
	return nil
}

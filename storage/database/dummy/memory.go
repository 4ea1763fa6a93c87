package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/memory"
)

type memoryRepository struct {
	db *DB
}

var _ memory.Repository = (*memoryRepository)(nil)

func NewMemoryRepository(db *DB) memory.Repository {
	return &memoryRepository{db: db}
}

func (repo *memoryRepository) CreateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return memory.Memory{}, err
	}

	m.ID = uuid.New().String()
	repo.db.memories[m.ID] = m
	return m, nil
}

func (repo *memoryRepository) QueryMemories(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) ([]memory.Memory, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	memories := make([]memory.Memory, 0)
	for _, m := range values(repo.db.memories) {
		if m.SchoolID == schoolID && m.StudentID == studentID {
			memories = append(memories, m)
		}
	}
	orderBy(memories, []core.DBOrdering{{Field: "memory_date"}, {Field: "created_at"}}, func(m memory.Memory, column string) interface{} {
		if column == "memory_date" {
			return m.Date
		}
		return m.CreatedAt
	})
	return memories, nil
}

func (repo *memoryRepository) GetMemory(ctx context.Context, schoolID, studentID, id string, exec ...core.DBExecutor) (memory.Memory, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return memory.Memory{}, err
	}

	if m, ok := repo.db.memories[id]; ok && m.SchoolID == schoolID && m.StudentID == studentID {
		return m, nil
	}
	return memory.Memory{}, memory.ErrNotFound
}

func (repo *memoryRepository) UpdateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return memory.Memory{}, err
	}

	orig, ok := repo.db.memories[m.ID]
	if !ok || orig.SchoolID != m.SchoolID {
		return memory.Memory{}, memory.ErrNotFound
	}
	m.CreatedAt = orig.CreatedAt
	repo.db.memories[m.ID] = m
	return m, nil
}

func (repo *memoryRepository) DeleteMemories(ctx context.Context, filter memory.DeleteFilter, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	var n int
	for id, m := range repo.db.memories {
		if m.SchoolID == filter.SchoolID &&
			(filter.StudentID == "" || m.StudentID == filter.StudentID) &&
			(filter.ID == "" || m.ID == filter.ID) {
			delete(repo.db.memories, id)
			n++
		}
	}
	return n, nil
}

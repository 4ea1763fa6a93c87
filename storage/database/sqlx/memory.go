package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/storage/database"
)

const memoryColumns = `id, student_id, school_id, title, description, memory_date, casel_skill,
	file_path, file_url, file_name, file_type, file_size, created_at, updated_at`

type memoryRow struct {
	ID          string      `db:"id"`
	StudentID   string      `db:"student_id"`
	SchoolID    string      `db:"school_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Date        null.Time   `db:"memory_date"`
	CaselSkill  null.String `db:"casel_skill"`
	FilePath    null.String `db:"file_path"`
	FileURL     null.String `db:"file_url"`
	FileName    null.String `db:"file_name"`
	FileType    null.String `db:"file_type"`
	FileSize    null.Int64  `db:"file_size"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toMemoryRow(m memory.Memory) memoryRow {
	row := memoryRow{
		ID:          m.ID,
		StudentID:   m.StudentID,
		SchoolID:    m.SchoolID,
		Title:       m.Title,
		Description: nullString(m.Description),
		Date:        nullDate(m.Date),
		CaselSkill:  nullString(m.CaselSkill),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if m.File != nil {
		row.FilePath = null.StringFrom(m.File.Path)
		row.FileURL = nullString(m.File.URL)
		row.FileName = nullString(m.File.Name)
		row.FileType = nullString(m.File.Type)
		row.FileSize = null.Int64From(m.File.Size)
	}
	return row
}

func (r memoryRow) memory() memory.Memory {
	m := memory.Memory{
		ID:          r.ID,
		StudentID:   r.StudentID,
		SchoolID:    r.SchoolID,
		Title:       r.Title,
		Description: r.Description.String,
		Date:        dateString(r.Date),
		CaselSkill:  r.CaselSkill.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.FilePath.Valid {
		m.File = &memory.File{
			Path: r.FilePath.String,
			URL:  r.FileURL.String,
			Name: r.FileName.String,
			Type: r.FileType.String,
			Size: r.FileSize.Int64,
		}
	}
	return m
}

type memoryRepository struct {
	baseRepo
}

var _ memory.Repository = (*memoryRepository)(nil)

func NewMemoryRepository(exec core.DBExecutor) *memoryRepository {
	return &memoryRepository{baseRepo{exec: exec}}
}

func (repo memoryRepository) CreateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	m.ID = uuid.New().String()
	stamp(&m.CreatedAt, &m.UpdatedAt)
	row := toMemoryRow(m)

	_, err := repo.getExec(exec).NamedExecContext(ctx, `INSERT INTO student_memories (`+memoryColumns+`) VALUES (
		:id, :student_id, :school_id, :title, :description, :memory_date, :casel_skill,
		:file_path, :file_url, :file_name, :file_type, :file_size, :created_at, :updated_at)`, row)
	if err != nil {
		return memory.Memory{}, database.CheckErr(err, "inserting memory")
	}
	return row.memory(), nil
}

func (repo memoryRepository) QueryMemories(ctx context.Context, schoolID, studentID string, exec ...core.DBExecutor) ([]memory.Memory, error) {
	if !validUUIDs(schoolID, studentID) {
		return []memory.Memory{}, nil
	}
	var rows []memoryRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, "SELECT "+memoryColumns+` FROM student_memories
		WHERE school_id = $1 AND student_id = $2 ORDER BY memory_date DESC, created_at DESC`, schoolID, studentID)
	if err != nil {
		return nil, database.CheckErr(err, "querying memories")
	}
	memories := make([]memory.Memory, 0, len(rows))
	for _, r := range rows {
		memories = append(memories, r.memory())
	}
	return memories, nil
}

func (repo memoryRepository) GetMemory(ctx context.Context, schoolID, studentID, id string, exec ...core.DBExecutor) (memory.Memory, error) {
	if !validUUIDs(schoolID, studentID, id) {
		return memory.Memory{}, memory.ErrNotFound
	}
	var row memoryRow
	err := repo.getExec(exec).GetContext(ctx, &row, "SELECT "+memoryColumns+` FROM student_memories
		WHERE id = $1 AND school_id = $2 AND student_id = $3`, id, schoolID, studentID)
	if err != nil {
		return memory.Memory{}, trapNoRowsErr(err, memory.ErrNotFound, "finding memory")
	}
	return row.memory(), nil
}

func (repo memoryRepository) UpdateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	if !validUUIDs(m.SchoolID, m.StudentID, m.ID) {
		return memory.Memory{}, memory.ErrNotFound
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	row := toMemoryRow(m)

	var updated memoryRow
	err := repo.getExec(exec).GetContext(ctx, &updated, `UPDATE student_memories SET
		title = $4, description = $5, memory_date = $6, casel_skill = $7, file_path = $8, file_url = $9,
		file_name = $10, file_type = $11, file_size = $12, updated_at = $13
		WHERE id = $1 AND school_id = $2 AND student_id = $3 RETURNING `+memoryColumns,
		row.ID, row.SchoolID, row.StudentID, row.Title, row.Description, row.Date, row.CaselSkill,
		row.FilePath, row.FileURL, row.FileName, row.FileType, row.FileSize, row.UpdatedAt)
	if err != nil {
		return memory.Memory{}, trapNoRowsErr(err, memory.ErrNotFound, "updating memory")
	}
	return updated.memory(), nil
}

// DeleteMemories deletes the memories matching all the non-empty filter fields.
func (repo memoryRepository) DeleteMemories(ctx context.Context, filter memory.DeleteFilter, exec ...core.DBExecutor) (int, error) {
	w := &where{}
	for _, cond := range []struct {
		col string
		val string
	}{
		{"school_id", filter.SchoolID},
		{"student_id", filter.StudentID},
		{"id", filter.ID},
	} {
		if cond.val == "" {
			continue
		}
		if !validUUIDs(cond.val) {
			return 0, nil
		}
		w.add(cond.col+" = ?", cond.val)
	}
	if len(w.conds) == 0 {
		return 0, nil
	}

	q, args, err := w.query("DELETE FROM student_memories" + w.String())
	if err != nil {
		return 0, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, database.CheckErr(err, "deleting memories")
	}
	return rowsAffected(res, "deleting memories")
}

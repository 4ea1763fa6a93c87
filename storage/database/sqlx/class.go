package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/storage/database"
)

const classColumns = `id, school_id, class_name, class_level, class_year, student_count, max_students,
	classroom, notes, created_at, updated_at`

type classRow struct {
	ID           string      `db:"id"`
	SchoolID     string      `db:"school_id"`
	Name         string      `db:"class_name"`
	Level        int         `db:"class_level"`
	Year         null.String `db:"class_year"`
	StudentCount int         `db:"student_count"`
	MaxStudents  int         `db:"max_students"`
	Classroom    null.String `db:"classroom"`
	Notes        null.String `db:"notes"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toClassRow(c class.Class) classRow {
	return classRow{
		ID:           c.ID,
		SchoolID:     c.SchoolID,
		Name:         c.Name,
		Level:        c.Level,
		Year:         nullString(c.Year),
		StudentCount: c.StudentCount,
		MaxStudents:  c.MaxStudents,
		Classroom:    nullString(c.Classroom),
		Notes:        nullString(c.Notes),
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (r classRow) class() class.Class {
	return class.Class{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		Name:         r.Name,
		Level:        r.Level,
		Year:         r.Year.String,
		MaxStudents:  r.MaxStudents,
		Classroom:    r.Classroom.String,
		Notes:        r.Notes.String,
		StudentCount: r.StudentCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type classRepository struct {
	baseRepo
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(exec core.DBExecutor) *classRepository {
	return &classRepository{baseRepo{exec: exec}}
}

func (repo classRepository) CreateClass(ctx context.Context, c class.Class, exec ...core.DBExecutor) (class.Class, error) {
	c.ID = uuid.New().String()
	c.Teachers = nil
	stamp(&c.CreatedAt, &c.UpdatedAt)
	row := toClassRow(c)

	_, err := repo.getExec(exec).NamedExecContext(ctx, `INSERT INTO classes (`+classColumns+`) VALUES (
		:id, :school_id, :class_name, :class_level, :class_year, :student_count, :max_students,
		:classroom, :notes, :created_at, :updated_at)`, row)
	if err != nil {
		return class.Class{}, database.CheckErr(err, "inserting class")
	}
	return row.class(), nil
}

func (repo classRepository) QueryClasses(ctx context.Context, schoolID string, filter *class.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]class.Class, error) {
	if !validUUIDs(schoolID) {
		return []class.Class{}, nil
	}
	w := &where{}
	w.add("school_id = ?", schoolID)
	if filter != nil {
		if filter.Search != "" {
			w.add("class_name ILIKE ?", "%"+filter.Search+"%")
		}
		if filter.Level != 0 {
			w.add("class_level = ?", filter.Level)
		}
	}

	q, args, err := w.query("SELECT " + classColumns + " FROM classes" + w.String() + orderClause(ordering, ""))
	if err != nil {
		return nil, err
	}
	var rows []classRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo classRepository) GetClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (class.Class, error) {
	if !validUUIDs(schoolID, id) {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		"SELECT "+classColumns+" FROM classes WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class")
	}
	return row.class(), nil
}

func (repo classRepository) UpdateClass(ctx context.Context, c class.Class, exec ...core.DBExecutor) (class.Class, error) {
	if !validUUIDs(c.SchoolID, c.ID) {
		return class.Class{}, class.ErrNotFound
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	row := toClassRow(c)

	var updated classRow
	err := repo.getExec(exec).GetContext(ctx, &updated, `UPDATE classes SET
		class_name = $3, class_level = $4, class_year = $5, student_count = $6, max_students = $7,
		classroom = $8, notes = $9, updated_at = $10
		WHERE id = $1 AND school_id = $2 RETURNING `+classColumns,
		row.ID, row.SchoolID, row.Name, row.Level, row.Year, row.StudentCount, row.MaxStudents,
		row.Classroom, row.Notes, row.UpdatedAt)
	if err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "updating class")
	}
	return updated.class(), nil
}

func (repo classRepository) DeleteClass(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validUUIDs(schoolID, id) {
		return class.ErrNotFound
	}
	exe := repo.getExec(exec)

	_, err := exe.ExecContext(ctx, "UPDATE students SET class_id = NULL WHERE class_id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return database.CheckErr(err, "detaching class students")
	}
	res, err := exe.ExecContext(ctx, "DELETE FROM classes WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return database.CheckErr(err, "deleting class")
	}
	n, err := rowsAffected(res, "deleting class")
	if err != nil {
		return err
	}
	if n == 0 {
		return class.ErrNotFound
	}
	return nil
}

func (repo classRepository) DeleteSchoolClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validUUIDs(schoolID) {
		return 0, nil
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM classes WHERE school_id = $1", schoolID)
	if err != nil {
		return 0, database.CheckErr(err, "deleting school classes")
	}
	return rowsAffected(res, "deleting school classes")
}

type assignmentRow struct {
	ID          string    `db:"id"`
	SchoolID    string    `db:"school_id"`
	TeacherID   string    `db:"teacher_id"`
	ClassID     string    `db:"class_id"`
	Role        string    `db:"role"`
	TeacherName string    `db:"teacher_name"`
	ClassName   string    `db:"class_name"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r assignmentRow) assignment() class.Assignment {
	return class.Assignment{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		TeacherID:   r.TeacherID,
		ClassID:     r.ClassID,
		Role:        r.Role,
		TeacherName: r.TeacherName,
		ClassName:   r.ClassName,
		CreatedAt:   r.CreatedAt,
	}
}

type assignmentRepository struct {
	baseRepo
}

var _ class.AssignmentRepository = (*assignmentRepository)(nil)

func NewAssignmentRepository(exec core.DBExecutor) *assignmentRepository {
	return &assignmentRepository{baseRepo{exec: exec}}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a class.Assignment, exec ...core.DBExecutor) (class.Assignment, error) {
	if !validUUIDs(a.SchoolID, a.TeacherID) {
		return class.Assignment{}, class.ErrTeacherNotFound
	}
	if !validUUIDs(a.ClassID) {
		return class.Assignment{}, class.ErrNotFound
	}
	exe := repo.getExec(exec)

	err := exe.GetContext(ctx, &a.TeacherName,
		"SELECT first_name || ' ' || last_name FROM teachers WHERE id = $1 AND school_id = $2", a.TeacherID, a.SchoolID)
	if err != nil {
		return class.Assignment{}, trapNoRowsErr(err, class.ErrTeacherNotFound, "finding assigned teacher")
	}
	err = exe.GetContext(ctx, &a.ClassName,
		"SELECT class_name FROM classes WHERE id = $1 AND school_id = $2", a.ClassID, a.SchoolID)
	if err != nil {
		return class.Assignment{}, trapNoRowsErr(err, class.ErrNotFound, "finding assigned class")
	}

	a.ID = uuid.New().String()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err = exe.ExecContext(ctx, `INSERT INTO teacher_class_assignments (id, school_id, teacher_id, class_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.SchoolID, a.TeacherID, a.ClassID, a.Role, a.CreatedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return class.Assignment{}, class.ErrAssignmentExists
		}
		return class.Assignment{}, database.CheckErr(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) filter(filter class.AssignmentFilter) (*where, bool) {
	w := &where{}
	for col, val := range map[string]string{
		"a.school_id":  filter.SchoolID,
		"a.class_id":   filter.ClassID,
		"a.teacher_id": filter.TeacherID,
	} {
		if val == "" {
			continue
		}
		if !validUUIDs(val) {
			return nil, false
		}
		w.add(col+" = ?", val)
	}
	return w, true
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, filter class.AssignmentFilter, exec ...core.DBExecutor) ([]class.Assignment, error) {
	w, ok := repo.filter(filter)
	if !ok {
		return []class.Assignment{}, nil
	}
	q, args, err := w.query(`SELECT a.id, a.school_id, a.teacher_id, a.class_id, a.role, a.created_at,
		t.first_name || ' ' || t.last_name AS teacher_name, c.class_name
		FROM teacher_class_assignments a
		JOIN teachers t ON t.id = a.teacher_id
		JOIN classes c ON c.id = a.class_id` + w.String() + " ORDER BY a.created_at ASC")
	if err != nil {
		return nil, err
	}

	var rows []assignmentRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying assignments")
	}
	assignments := make([]class.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo assignmentRepository) DeleteAssignments(ctx context.Context, filter class.AssignmentFilter, exec ...core.DBExecutor) (int, error) {
	w, ok := repo.filter(filter)
	if !ok || len(w.conds) == 0 {
		return 0, nil
	}
	q, args, err := w.query("DELETE FROM teacher_class_assignments a" + w.String())
	if err != nil {
		return 0, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, database.CheckErr(err, "deleting assignments")
	}
	return rowsAffected(res, "deleting assignments")
}

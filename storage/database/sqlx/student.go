package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/storage/database"
)

const studentColumns = `id, school_id, class_id, first_name, last_name, birth_date, parent_name, parent_email,
	parent_phone, username, status, created_at, updated_at`

const studentSelect = `SELECT s.id, s.school_id, s.class_id, s.first_name, s.last_name, s.birth_date,
	s.parent_name, s.parent_email, s.parent_phone, s.username, s.status, s.created_at, s.updated_at,
	COALESCE(c.class_name, '') AS class_name
	FROM students s
	LEFT JOIN classes c ON c.id = s.class_id`

type studentRow struct {
	ID          string      `db:"id"`
	SchoolID    string      `db:"school_id"`
	ClassID     null.String `db:"class_id"`
	ClassName   string      `db:"class_name"`
	FirstName   string      `db:"first_name"`
	LastName    string      `db:"last_name"`
	BirthDate   null.Time   `db:"birth_date"`
	ParentName  null.String `db:"parent_name"`
	ParentEmail null.String `db:"parent_email"`
	ParentPhone null.String `db:"parent_phone"`
	Username    null.String `db:"username"`
	Status      string      `db:"status"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toStudentRow(s student.Student) studentRow {
	return studentRow{
		ID:          s.ID,
		SchoolID:    s.SchoolID,
		ClassID:     nullString(s.ClassID),
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		BirthDate:   nullDate(s.BirthDate),
		ParentName:  nullString(s.ParentName),
		ParentEmail: nullString(s.ParentEmail),
		ParentPhone: nullString(s.ParentPhone),
		Username:    nullString(s.Username),
		Status:      s.Status,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		ClassID:     r.ClassID.String,
		ClassName:   r.ClassName,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		BirthDate:   dateString(r.BirthDate),
		ParentName:  r.ParentName.String,
		ParentEmail: r.ParentEmail.String,
		ParentPhone: r.ParentPhone.String,
		Username:    r.Username.String,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type studentRepository struct {
	baseRepo
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{baseRepo{exec: exec}}
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if s.ClassID != "" && !validUUIDs(s.ClassID) {
		s.ClassID = ""
	}
	s.ID = uuid.New().String()
	if s.Status == "" {
		s.Status = student.StatusActive
	}
	stamp(&s.CreatedAt, &s.UpdatedAt)
	exe := repo.getExec(exec)

	_, err := exe.NamedExecContext(ctx, `INSERT INTO students (`+studentColumns+`) VALUES (
		:id, :school_id, :class_id, :first_name, :last_name, :birth_date, :parent_name, :parent_email,
		:parent_phone, :username, :status, :created_at, :updated_at)`, toStudentRow(s))
	if err != nil {
		return student.Student{}, database.CheckErr(err, "inserting student")
	}
	return repo.GetStudent(ctx, s.SchoolID, s.ID, exe)
}

func (repo studentRepository) QueryStudents(ctx context.Context, schoolID string, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	if !validUUIDs(schoolID) {
		return []student.Student{}, nil
	}
	w := &where{}
	w.add("s.school_id = ?", schoolID)
	if filter != nil {
		// students with full name, Username or ParentName matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("s.first_name || ' ' || s.last_name ILIKE ? OR s.username ILIKE ? OR s.parent_name ILIKE ?", val, val, val)
		}
		if filter.ClassID != "" {
			if !validUUIDs(filter.ClassID) {
				return []student.Student{}, nil
			}
			w.add("s.class_id = ?", filter.ClassID)
		}
		if filter.Status != "" {
			w.add("s.status = ?", filter.Status)
		}
	}

	q, args, err := w.query(studentSelect + w.String() + orderClause(ordering, "s."))
	if err != nil {
		return nil, err
	}
	var rows []studentRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (student.Student, error) {
	if !validUUIDs(schoolID, id) {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	err := repo.getExec(exec).GetContext(ctx, &row, studentSelect+" WHERE s.id = $1 AND s.school_id = $2", id, schoolID)
	if err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return row.student(), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if !validUUIDs(s.SchoolID, s.ID) {
		return student.Student{}, student.ErrNotFound
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	exe := repo.getExec(exec)

	res, err := exe.NamedExecContext(ctx, `UPDATE students SET
		class_id = :class_id, first_name = :first_name, last_name = :last_name, birth_date = :birth_date,
		parent_name = :parent_name, parent_email = :parent_email, parent_phone = :parent_phone,
		username = :username, status = :status, updated_at = :updated_at
		WHERE id = :id AND school_id = :school_id`, toStudentRow(s))
	if err != nil {
		return student.Student{}, database.CheckErr(err, "updating student")
	}
	if n, err := rowsAffected(res, "updating student"); err != nil {
		return student.Student{}, err
	} else if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudent(ctx, s.SchoolID, s.ID, exe)
}

func (repo studentRepository) DeleteStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validUUIDs(schoolID, id) {
		return student.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM students WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return database.CheckErr(err, "deleting student")
	}
	n, err := rowsAffected(res, "deleting student")
	if err != nil {
		return err
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) DeleteSchoolStudents(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validUUIDs(schoolID) {
		return 0, nil
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM students WHERE school_id = $1", schoolID)
	if err != nil {
		return 0, database.CheckErr(err, "deleting school students")
	}
	return rowsAffected(res, "deleting school students")
}

// CountStudents counts the students of the class, or those without class when classID is empty.
func (repo studentRepository) CountStudents(ctx context.Context, schoolID, classID string, exec ...core.DBExecutor) (int, error) {
	if !validUUIDs(schoolID) || (classID != "" && !validUUIDs(classID)) {
		return 0, nil
	}
	var n int
	err := repo.getExec(exec).GetContext(ctx, &n,
		"SELECT COUNT(*) FROM students WHERE school_id = $1 AND class_id IS NOT DISTINCT FROM $2",
		schoolID, nullString(classID))
	if err != nil {
		return 0, database.CheckErr(err, "counting students")
	}
	return n, nil
}

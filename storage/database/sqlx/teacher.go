package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/storage/database"
)

const teacherColumns = `id, school_id, first_name, last_name, email, phone, subjects, qualifications,
	hire_date, username, status, created_at, updated_at`

type teacherRow struct {
	ID             string      `db:"id"`
	SchoolID       string      `db:"school_id"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	Email          null.String `db:"email"`
	Phone          null.String `db:"phone"`
	Subjects       null.String `db:"subjects"`
	Qualifications null.String `db:"qualifications"`
	HireDate       null.Time   `db:"hire_date"`
	Username       null.String `db:"username"`
	Status         string      `db:"status"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toTeacherRow(t teacher.Teacher) teacherRow {
	return teacherRow{
		ID:             t.ID,
		SchoolID:       t.SchoolID,
		FirstName:      t.FirstName,
		LastName:       t.LastName,
		Email:          nullString(t.Email),
		Phone:          nullString(t.Phone),
		Subjects:       nullString(t.Subjects),
		Qualifications: nullString(t.Qualifications),
		HireDate:       nullDate(t.HireDate),
		Username:       nullString(t.Username),
		Status:         t.Status,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}
}

func (r teacherRow) teacher() teacher.Teacher {
	return teacher.Teacher{
		ID:             r.ID,
		SchoolID:       r.SchoolID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email.String,
		Phone:          r.Phone.String,
		Subjects:       r.Subjects.String,
		Qualifications: r.Qualifications.String,
		HireDate:       dateString(r.HireDate),
		Username:       r.Username.String,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type teacherRepository struct {
	baseRepo
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(exec core.DBExecutor) *teacherRepository {
	return &teacherRepository{baseRepo{exec: exec}}
}

func (repo teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	t.ID = uuid.New().String()
	t.Classes = nil
	if t.Status == "" {
		t.Status = teacher.StatusActive
	}
	stamp(&t.CreatedAt, &t.UpdatedAt)
	row := toTeacherRow(t)

	_, err := repo.getExec(exec).NamedExecContext(ctx, `INSERT INTO teachers (`+teacherColumns+`) VALUES (
		:id, :school_id, :first_name, :last_name, :email, :phone, :subjects, :qualifications,
		:hire_date, :username, :status, :created_at, :updated_at)`, row)
	if err != nil {
		return teacher.Teacher{}, database.CheckErr(err, "inserting teacher")
	}
	return row.teacher(), nil
}

func (repo teacherRepository) QueryTeachers(ctx context.Context, schoolID string, filter *teacher.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]teacher.Teacher, error) {
	if !validUUIDs(schoolID) {
		return []teacher.Teacher{}, nil
	}
	w := &where{}
	w.add("school_id = ?", schoolID)
	if filter != nil {
		// teachers with full name, Email or Subjects matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("first_name || ' ' || last_name ILIKE ? OR email ILIKE ? OR subjects ILIKE ?", val, val, val)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
	}

	q, args, err := w.query("SELECT " + teacherColumns + " FROM teachers" + w.String() + orderClause(ordering, ""))
	if err != nil {
		return nil, err
	}
	var rows []teacherRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.teacher())
	}
	return teachers, nil
}

func (repo teacherRepository) GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (teacher.Teacher, error) {
	if !validUUIDs(schoolID, id) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	var row teacherRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		"SELECT "+teacherColumns+" FROM teachers WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return teacher.Teacher{}, trapNoRowsErr(err, teacher.ErrNotFound, "finding teacher")
	}
	return row.teacher(), nil
}

func (repo teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	if !validUUIDs(t.SchoolID, t.ID) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	row := toTeacherRow(t)

	var updated teacherRow
	err := repo.getExec(exec).GetContext(ctx, &updated, `UPDATE teachers SET
		first_name = $3, last_name = $4, email = $5, phone = $6, subjects = $7, qualifications = $8,
		hire_date = $9, username = $10, status = $11, updated_at = $12
		WHERE id = $1 AND school_id = $2 RETURNING `+teacherColumns,
		row.ID, row.SchoolID, row.FirstName, row.LastName, row.Email, row.Phone, row.Subjects,
		row.Qualifications, row.HireDate, row.Username, row.Status, row.UpdatedAt)
	if err != nil {
		return teacher.Teacher{}, trapNoRowsErr(err, teacher.ErrNotFound, "updating teacher")
	}
	return updated.teacher(), nil
}

func (repo teacherRepository) DeleteTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validUUIDs(schoolID, id) {
		return teacher.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM teachers WHERE id = $1 AND school_id = $2", id, schoolID)
	if err != nil {
		return database.CheckErr(err, "deleting teacher")
	}
	n, err := rowsAffected(res, "deleting teacher")
	if err != nil {
		return err
	}
	if n == 0 {
		return teacher.ErrNotFound
	}
	return nil
}

func (repo teacherRepository) DeleteSchoolTeachers(ctx context.Context, schoolID string, exec ...core.DBExecutor) (int, error) {
	if !validUUIDs(schoolID) {
		return 0, nil
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM teachers WHERE school_id = $1", schoolID)
	if err != nil {
		return 0, database.CheckErr(err, "deleting school teachers")
	}
	return rowsAffected(res, "deleting school teachers")
}

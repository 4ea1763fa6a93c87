package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/storage/database"
)

const schoolColumns = `id, name, type, brin, student_count, address, postal_code, admin_name, admin_email,
	admin_phone, notes, username, status, last_login, created_at, updated_at`

const schoolSelect = `SELECT ` + schoolColumns + `,
	(SELECT COUNT(*) FROM students WHERE students.school_id = schools.id) AS stats_students,
	(SELECT COUNT(*) FROM teachers WHERE teachers.school_id = schools.id) AS stats_teachers,
	(SELECT COUNT(*) FROM classes WHERE classes.school_id = schools.id) AS stats_classes
	FROM schools`

type schoolRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Type          string      `db:"type"`
	BRIN          null.String `db:"brin"`
	StudentCount  int         `db:"student_count"`
	Address       null.String `db:"address"`
	PostalCode    null.String `db:"postal_code"`
	AdminName     string      `db:"admin_name"`
	AdminEmail    string      `db:"admin_email"`
	AdminPhone    null.String `db:"admin_phone"`
	Notes         null.String `db:"notes"`
	Username      null.String `db:"username"`
	Status        string      `db:"status"`
	LastLogin     null.Time   `db:"last_login"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	StatsStudents int         `db:"stats_students"`
	StatsTeachers int         `db:"stats_teachers"`
	StatsClasses  int         `db:"stats_classes"`
}

func toSchoolRow(sch school.School) schoolRow {
	return schoolRow{
		ID:           sch.ID,
		Name:         sch.Name,
		Type:         sch.Type,
		BRIN:         nullString(sch.BRIN),
		StudentCount: sch.StudentCount,
		Address:      nullString(sch.Address),
		PostalCode:   nullString(sch.PostalCode),
		AdminName:    sch.AdminName,
		AdminEmail:   sch.AdminEmail,
		AdminPhone:   nullString(sch.AdminPhone),
		Notes:        nullString(sch.Notes),
		Username:     nullString(sch.Username),
		Status:       sch.Status,
		LastLogin:    nullTime(sch.LastLogin),
		CreatedAt:    sch.CreatedAt.UTC(),
		UpdatedAt:    sch.UpdatedAt.UTC(),
	}
}

func (r schoolRow) school() school.School {
	return school.School{
		ID:           r.ID,
		Name:         r.Name,
		Type:         r.Type,
		BRIN:         r.BRIN.String,
		StudentCount: r.StudentCount,
		Address:      r.Address.String,
		PostalCode:   r.PostalCode.String,
		AdminName:    r.AdminName,
		AdminEmail:   r.AdminEmail,
		AdminPhone:   r.AdminPhone.String,
		Notes:        r.Notes.String,
		Username:     r.Username.String,
		Status:       r.Status,
		Stats:        school.Stats{Students: r.StatsStudents, Teachers: r.StatsTeachers, Classes: r.StatsClasses},
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

type schoolRepository struct {
	baseRepo
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{baseRepo{exec: exec}}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.ID = uuid.New().String()
	if sch.Status == "" {
		sch.Status = school.StatusActive
	}
	stamp(&sch.CreatedAt, &sch.UpdatedAt)
	row := toSchoolRow(sch)

	_, err := repo.getExec(exec).NamedExecContext(ctx, `INSERT INTO schools (`+schoolColumns+`) VALUES (
		:id, :name, :type, :brin, :student_count, :address, :postal_code, :admin_name, :admin_email,
		:admin_phone, :notes, :username, :status, :last_login, :created_at, :updated_at)`, row)
	if err != nil {
		return school.School{}, database.CheckErr(err, "inserting school")
	}
	return row.school(), nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	w := &where{}
	if filter != nil {
		// schools with Name, AdminName or AdminEmail matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("name ILIKE ? OR admin_name ILIKE ? OR admin_email ILIKE ?", val, val, val)
		}
		if len(filter.Types) > 0 {
			w.add("type = ANY(?)", pq.StringArray(filter.Types))
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q, args, err := w.query(schoolSelect + w.String() + orderClause(ordering, ""))
	if err != nil {
		return nil, err
	}
	var rows []schoolRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, r := range rows {
		schools = append(schools, r.school())
	}
	return schools, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	if !validUUIDs(id) {
		return school.School{}, school.ErrNotFound
	}
	var row schoolRow
	if err := repo.getExec(exec).GetContext(ctx, &row, schoolSelect+" WHERE id = $1", id); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return row.school(), nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	if !validUUIDs(sch.ID) {
		return school.School{}, school.ErrNotFound
	}
	if sch.UpdatedAt.IsZero() {
		sch.UpdatedAt = time.Now().UTC()
	}
	exe := repo.getExec(exec)

	res, err := exe.NamedExecContext(ctx, `UPDATE schools SET
		name = :name, type = :type, brin = :brin, student_count = :student_count, address = :address,
		postal_code = :postal_code, admin_name = :admin_name, admin_email = :admin_email,
		admin_phone = :admin_phone, notes = :notes, username = :username, status = :status,
		last_login = :last_login, updated_at = :updated_at
		WHERE id = :id`, toSchoolRow(sch))
	if err != nil {
		return school.School{}, database.CheckErr(err, "updating school")
	}
	if n, err := rowsAffected(res, "updating school"); err != nil {
		return school.School{}, err
	} else if n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return repo.GetSchool(ctx, sch.ID, exe)
}

func (repo schoolRepository) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validUUIDs(id) {
		return school.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM schools WHERE id = $1", id)
	if err != nil {
		return database.CheckErr(err, "deleting school")
	}
	n, err := rowsAffected(res, "deleting school")
	if err != nil {
		return err
	}
	if n == 0 {
		return school.ErrNotFound
	}
	return nil
}

package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/storage/database"
)

const userColumns = `id, school_id, entity_id, name, username, email, is_active, roles, password_hash,
	preferences, created_at, updated_at, last_login`

type userRow struct {
	ID           string         `db:"id"`
	SchoolID     null.String    `db:"school_id"`
	EntityID     null.String    `db:"entity_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	Preferences  null.JSON      `db:"preferences"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) (userRow, error) {
	prefs, err := json.Marshal(usr.Preferences)
	if err != nil {
		return userRow{}, errors.Wrap(err, "encoding preferences")
	}
	return userRow{
		ID:           usr.ID,
		SchoolID:     nullString(usr.SchoolID),
		EntityID:     nullString(usr.EntityID),
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        nullString(usr.Email),
		IsActive:     usr.Active(),
		Roles:        usr.Roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		Preferences:  null.JSONFrom(prefs),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    nullTime(usr.LastLogin),
	}, nil
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:           r.ID,
		SchoolID:     r.SchoolID.String,
		EntityID:     r.EntityID.String,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email.String,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
	usr.SetActive(r.IsActive)
	if r.Preferences.Valid {
		_ = r.Preferences.Unmarshal(&usr.Preferences)
	}
	return usr
}

type userRepository struct {
	baseRepo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepo{exec: exec}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	if username == "" && email == "" {
		return nil
	}
	w := &where{}
	w.add("(? <> '' AND username = ?) OR (? <> '' AND email = ?)", username, username, email, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			if validUUIDs(u.ID) {
				ids = append(ids, u.ID)
			}
		}
		if len(ids) > 0 {
			w.add("id NOT IN (?)", ids)
		}
	}
	q, args, err := w.query("SELECT username, COALESCE(email, '') AS email FROM users" + w.String() + " LIMIT 1")
	if err != nil {
		return err
	}

	var found struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err = repo.getExec(exec).GetContext(ctx, &found, q, args...); err != nil {
		return trapNoRowsErr(err, nil, "checking user uniqueness")
	}
	if username != "" && found.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	stamp(&usr.CreatedAt, &usr.UpdatedAt)
	row, err := toUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	_, err = repo.getExec(exec).NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (
		:id, :school_id, :entity_id, :name, :username, :email, :is_active, :roles, :password_hash,
		:preferences, :created_at, :updated_at, :last_login)`, row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, uniqueUserErr(err)
		}
		return user.User{}, database.CheckErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	w := &where{}
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("name ILIKE ? OR username ILIKE ? OR email ILIKE ?", val, val, val)
		}
		if len(filter.Roles) > 0 {
			w.add("roles && ?", pq.StringArray(filter.Roles))
		}
		if filter.SchoolID != "" {
			if !validUUIDs(filter.SchoolID) {
				return []user.User{}, nil
			}
			w.add("school_id = ?", filter.SchoolID)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q, args, err := w.query("SELECT " + userColumns + " FROM users" + w.String() + orderClause(ordering, ""))
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, database.CheckErr(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	w := &where{}
	switch {
	case filter.ID != "":
		if !validUUIDs(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Username != "":
		w.add("username = ?", filter.Username)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case filter.EntityID != "":
		if !validUUIDs(filter.EntityID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("entity_id = ?", filter.EntityID)
	case len(filter.UsernameOrEmail) > 0:
		uname := filter.UsernameOrEmail[0]
		email := uname
		if len(filter.UsernameOrEmail) > 1 {
			email = filter.UsernameOrEmail[1]
		}
		w.add("username = ? OR email = ?", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}

	q, args, err := w.query("SELECT " + userColumns + " FROM users" + w.String() + " LIMIT 1")
	if err != nil {
		return user.User{}, err
	}
	var row userRow
	if err = repo.getExec(exec).GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !validUUIDs(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = time.Now().UTC()
	}
	row, err := toUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	var updated userRow
	err = repo.getExec(exec).GetContext(ctx, &updated, `UPDATE users SET
		school_id = $2, entity_id = $3, name = $4, username = $5, email = $6, is_active = $7, roles = $8,
		password_hash = COALESCE($9, password_hash), preferences = $10, updated_at = $11, last_login = $12
		WHERE id = $1 RETURNING `+userColumns,
		row.ID, row.SchoolID, row.EntityID, row.Name, row.Username, row.Email, row.IsActive, row.Roles,
		row.PasswordHash, row.Preferences, row.UpdatedAt, row.LastLogin)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, uniqueUserErr(err)
		}
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return updated.user(), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsers(ctx context.Context, filter user.DeleteFilter, exec ...core.DBExecutor) (int, error) {
	var conds []string
	var args []interface{}
	keep := func(ids []string) []string {
		valid := make([]string, 0, len(ids))
		for _, id := range ids {
			if validUUIDs(id) {
				valid = append(valid, id)
			}
		}
		return valid
	}
	if ids := keep(filter.IDs); len(ids) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, ids)
	}
	if ids := keep(filter.EntityIDs); len(ids) > 0 {
		conds = append(conds, "entity_id IN (?)")
		args = append(args, ids)
	}
	if filter.SchoolID != "" && validUUIDs(filter.SchoolID) {
		conds = append(conds, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if len(conds) == 0 {
		return 0, nil
	}

	// the filter fields are OR'ed
	w := &where{}
	w.add(strings.Join(conds, " OR "), args...)
	q, qArgs, err := w.query("DELETE FROM users" + w.String())
	if err != nil {
		return 0, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, qArgs...)
	if err != nil {
		return 0, database.CheckErr(err, "deleting users")
	}
	return rowsAffected(res, "deleting users")
}

// uniqueUserErr tells which of the unique user columns err violated.
func uniqueUserErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "users_email_key" {
		return user.ErrEmailExists
	}
	return user.ErrUsernameExists
}

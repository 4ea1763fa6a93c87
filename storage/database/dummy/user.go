package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return err
	}

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}
	for _, usr := range values(repo.db.users) {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return user.User{}, err
	}

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return nil, err
	}

	users := make([]user.User, 0)
	for _, usr := range values(repo.db.users) {
		if filter == nil || matchUser(usr, filter) {
			users = append(users, usr)
		}
	}
	orderBy(users, ordering, func(usr user.User, column string) interface{} {
		switch column {
		case "name":
			return usr.Name
		case "username":
			return usr.Username
		case "email":
			return usr.Email
		case "is_active":
			return usr.Active()
		case "created_at":
			return usr.CreatedAt
		case "last_login":
			return usr.LastLogin
		}
		return nil
	})
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	// search keyword matching any Name, Username or Email ?
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) &&
			!strings.Contains(strings.ToLower(usr.Name), search) {
			return false
		}
	}
	if filter.Roles != nil {
		var found bool
		for _, role := range filter.Roles {
			for _, r := range usr.Roles {
				if r == role {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
		return false
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if err := repo.db.available(); err != nil {
		return user.User{}, err
	}

	match := func(usr user.User) bool {
		switch {
		case filter.ID != "":
			return usr.ID == filter.ID
		case filter.Username != "":
			return usr.Username == filter.Username
		case filter.Email != "":
			return usr.Email == filter.Email
		case filter.EntityID != "":
			return usr.EntityID == filter.EntityID
		case len(filter.UsernameOrEmail) == 1:
			return usr.Username == filter.UsernameOrEmail[0] || usr.Email == filter.UsernameOrEmail[0]
		case len(filter.UsernameOrEmail) > 1:
			return usr.Username == filter.UsernameOrEmail[0] || usr.Email == filter.UsernameOrEmail[1]
		}
		return false
	}
	for _, usr := range values(repo.db.users) {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return user.User{}, err
	}

	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = origUsr.PasswordHash
	}
	usr.CreatedAt = origUsr.CreatedAt
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsers(ctx context.Context, filter user.DeleteFilter, exec ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	if err := repo.db.available(); err != nil {
		return 0, err
	}

	ids := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}
	entityIDs := make(map[string]bool, len(filter.EntityIDs))
	for _, id := range filter.EntityIDs {
		entityIDs[id] = true
	}

	var n int
	for id, usr := range repo.db.users {
		if ids[id] || (usr.EntityID != "" && entityIDs[usr.EntityID]) || (filter.SchoolID != "" && usr.SchoolID == filter.SchoolID) {
			delete(repo.db.users, id)
			n++
		}
	}
	return n, nil
}

package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/credentials"
)

// Roles
const (
	RoleAdmin       = "admin"
	RoleSchoolAdmin = "school_admin"
	RoleTeacher     = "teacher"
	RoleStudent     = "student"
)

var (
	AllRoles = []string{RoleAdmin, RoleSchoolAdmin, RoleTeacher, RoleStudent}

	// roleHierarchy lists the roles granted by each role.
	roleHierarchy = map[string][]string{
		RoleAdmin:       {RoleAdmin, RoleSchoolAdmin, RoleTeacher, RoleStudent},
		RoleSchoolAdmin: {RoleSchoolAdmin, RoleTeacher, RoleStudent},
		RoleTeacher:     {RoleTeacher, RoleStudent},
		RoleStudent:     {RoleStudent},
	}

	rolePriorities = map[string]int{
		RoleAdmin:       4,
		RoleSchoolAdmin: 3,
		RoleTeacher:     2,
		RoleStudent:     1,
	}

	// portals maps each role to the only path prefix it may browse.
	portals = map[string]string{
		RoleAdmin:       "/admin",
		RoleSchoolAdmin: "/school",
		RoleTeacher:     "/teacher",
		RoleStudent:     "/student",
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "School Admin", Value: RoleSchoolAdmin},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// RolesGrant reports whether any of roles grants the required role.
func RolesGrant(roles []string, required string) bool {
	for _, role := range roles {
		for _, granted := range roleHierarchy[role] {
			if granted == required {
				return true
			}
		}
	}
	return false
}

// PortalPath returns the path prefix of the highest role in roles.
func PortalPath(roles []string) string {
	var best string
	for _, role := range roles {
		if best == "" || RolePriority(role) > RolePriority(best) {
			best = role
		}
	}
	return portals[best]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Preferences are the per-user UI settings. They are stored, never interpreted.
type Preferences struct {
	Language string `json:"language,omitempty" validate:"omitempty,oneof=nl en de fr"`
	Theme    string `json:"theme,omitempty" validate:"omitempty,max=50"`
	DarkMode *bool  `json:"dark_mode,omitempty"`
}

type User struct {
	ID           string      `json:"id"`
	SchoolID     string      `json:"school_id,omitempty"`
	EntityID     string      `json:"entity_id,omitempty"` // teacher or student backing the account
	Name         string      `json:"name"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	IsActive     *bool       `json:"is_active"`
	Roles        []string    `json:"roles"`
	PasswordHash []byte      `json:"-"`
	Preferences  Preferences `json:"preferences"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
	LastLogin    time.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) HasRole(required string) bool {
	return RolesGrant(u.Roles, required)
}

func (u *User) IsAdmin() bool       { return u.HasRole(RoleAdmin) }
func (u *User) IsSchoolAdmin() bool { return u.HasRole(RoleSchoolAdmin) }
func (u *User) IsTeacher() bool     { return u.HasRole(RoleTeacher) }
func (u *User) IsStudent() bool     { return u.HasRole(RoleStudent) }
func (u *User) Portal() string      { return PortalPath(u.Roles) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	SchoolID        string   `json:"school_id"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanLower(nu.Username)
	nu.Email = core.CleanLower(nu.Email)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// NewAccount describes a generated account backing a school, teacher or student.
type NewAccount struct {
	Name     string
	Email    string
	Role     string
	SchoolID string
	EntityID string
	Username credentials.UsernameFunc
	Password string
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanLower(uu.Username)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanLower(uu.Email)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	SchoolID    string    `query:"school_id"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.SchoolID == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	for i, role := range qf.Roles {
		qf.Roles[i] = core.CleanLower(role)
	}
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	EntityID        string
	UsernameOrEmail []string // [username, email]; a single value is matched against both
}

// Orderings maps the json fields users may be ordered by to their columns.
var Orderings = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

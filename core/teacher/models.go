package teacher

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/field"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Teacher struct {
	ID             string          `json:"id"`
	SchoolID       string          `json:"school_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Subjects       string          `json:"subjects,omitempty"`
	Qualifications string          `json:"qualifications,omitempty"`
	HireDate       string          `json:"hire_date,omitempty"` // YYYY-MM-DD
	Username       string          `json:"username,omitempty"`
	Status         string          `json:"status"`
	Classes        []AssignedClass `json:"classes"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

type AssignedClass struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// NewTeacher contains information needed to create a new Teacher.
type NewTeacher struct {
	FirstName      string `json:"first_name" validate:"required,min=2,max=100,personname"`
	LastName       string `json:"last_name" validate:"required,min=2,max=100,personname"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,phonechars"`
	Subjects       string `json:"subjects" validate:"max=500"`
	Qualifications string `json:"qualifications" validate:"max=1000"`
	HireDate       string `json:"hire_date" validate:"omitempty,date"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.FirstName = core.CleanString(nt.FirstName)
	nt.LastName = core.CleanString(nt.LastName)
	nt.Email = core.CleanLower(nt.Email)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Subjects = core.CleanString(nt.Subjects)
	nt.Qualifications = core.CleanString(nt.Qualifications)
	nt.HireDate = core.CleanString(nt.HireDate)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	nt.FirstName = field.Name(nt.FirstName).Value
	nt.LastName = field.Name(nt.LastName).Value
	if nt.HireDate != "" {
		nt.HireDate = field.Date(nt.HireDate).Value
	}
	return nil
}

// UpdateTeacher defines what information may be provided to modify an existing Teacher.
type UpdateTeacher struct {
	FirstName      string `json:"first_name" validate:"omitempty,min=2,max=100,personname"`
	LastName       string `json:"last_name" validate:"omitempty,min=2,max=100,personname"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,phonechars"`
	Subjects       string `json:"subjects" validate:"max=500"`
	Qualifications string `json:"qualifications" validate:"max=1000"`
	HireDate       string `json:"hire_date" validate:"omitempty,date"`
	Status         string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	ut.FirstName = core.CleanString(ut.FirstName)
	ut.LastName = core.CleanString(ut.LastName)
	ut.Email = core.CleanLower(ut.Email)
	ut.Phone = core.CleanString(ut.Phone)
	ut.Subjects = core.CleanString(ut.Subjects)
	ut.Qualifications = core.CleanString(ut.Qualifications)
	ut.HireDate = core.CleanString(ut.HireDate)
	ut.Status = core.CleanLower(ut.Status)

	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.FirstName != "" {
		ut.FirstName = field.Name(ut.FirstName).Value
	}
	if ut.LastName != "" {
		ut.LastName = field.Name(ut.LastName).Value
	}
	if ut.HireDate != "" {
		ut.HireDate = field.Date(ut.HireDate).Value
	}
	return nil
}

func (ut UpdateTeacher) apply(t *Teacher) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.FirstName, ut.FirstName)
	set(&t.LastName, ut.LastName)
	set(&t.Email, ut.Email)
	set(&t.Phone, ut.Phone)
	set(&t.Subjects, ut.Subjects)
	set(&t.Qualifications, ut.Qualifications)
	set(&t.HireDate, ut.HireDate)
	set(&t.Status, ut.Status)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == ""
}

// Match applies the filter to a single teacher.
// Search does a case-insensitive match on one of the full name, Teacher.Email or Teacher.Subjects.
func (qf *QueryFilter) Match(t Teacher) bool {
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(t.FullName()), search) &&
			!strings.Contains(strings.ToLower(t.Email), search) &&
			!strings.Contains(strings.ToLower(t.Subjects), search) {
			return false
		}
	}
	return qf.Status == "" || t.Status == qf.Status
}

// Orderings maps the json fields teachers may be ordered by to their columns.
var Orderings = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"hire_date":  "hire_date",
	"status":     "status",
	"created_at": "created_at",
}

package student

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/field"
)

// Statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// NoClassName is shown for students not placed in a class.
const NoClassName = "Geen klas"

type Student struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	ClassID     string    `json:"class_id,omitempty"`
	ClassName   string    `json:"class_name"` // read only
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	BirthDate   string    `json:"birth_date,omitempty"` // YYYY-MM-DD
	ParentName  string    `json:"parent_name,omitempty"`
	ParentEmail string    `json:"parent_email,omitempty"`
	ParentPhone string    `json:"parent_phone,omitempty"`
	Username    string    `json:"username,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	FirstName   string `json:"first_name" validate:"required,min=2,max=100,personname"`
	LastName    string `json:"last_name" validate:"required,min=2,max=100,personname"`
	ClassID     string `json:"class_id"`
	BirthDate   string `json:"birth_date" validate:"omitempty,date"`
	ParentName  string `json:"parent_name" validate:"omitempty,min=2,max=255"`
	ParentEmail string `json:"parent_email" validate:"omitempty,email"`
	ParentPhone string `json:"parent_phone" validate:"omitempty,phonechars"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.BirthDate = core.CleanString(ns.BirthDate)
	ns.ParentName = core.CleanString(ns.ParentName)
	ns.ParentEmail = core.CleanLower(ns.ParentEmail)
	ns.ParentPhone = core.CleanString(ns.ParentPhone)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	ns.FirstName = field.Name(ns.FirstName).Value
	ns.LastName = field.Name(ns.LastName).Value
	if ns.BirthDate != "" {
		ns.BirthDate = field.Date(ns.BirthDate).Value
	}
	return nil
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// A nil ClassID keeps the class; an empty one removes the student from its class.
type UpdateStudent struct {
	FirstName   string  `json:"first_name" validate:"omitempty,min=2,max=100,personname"`
	LastName    string  `json:"last_name" validate:"omitempty,min=2,max=100,personname"`
	ClassID     *string `json:"class_id"`
	BirthDate   string  `json:"birth_date" validate:"omitempty,date"`
	ParentName  string  `json:"parent_name" validate:"omitempty,min=2,max=255"`
	ParentEmail string  `json:"parent_email" validate:"omitempty,email"`
	ParentPhone string  `json:"parent_phone" validate:"omitempty,phonechars"`
	Status      string  `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.BirthDate = core.CleanString(us.BirthDate)
	us.ParentName = core.CleanString(us.ParentName)
	us.ParentEmail = core.CleanLower(us.ParentEmail)
	us.ParentPhone = core.CleanString(us.ParentPhone)
	us.Status = core.CleanLower(us.Status)
	if us.ClassID != nil {
		id := core.CleanString(*us.ClassID)
		us.ClassID = &id
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.FirstName != "" {
		us.FirstName = field.Name(us.FirstName).Value
	}
	if us.LastName != "" {
		us.LastName = field.Name(us.LastName).Value
	}
	if us.BirthDate != "" {
		us.BirthDate = field.Date(us.BirthDate).Value
	}
	return nil
}

func (us UpdateStudent) apply(s *Student) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.FirstName, us.FirstName)
	set(&s.LastName, us.LastName)
	set(&s.BirthDate, us.BirthDate)
	set(&s.ParentName, us.ParentName)
	set(&s.ParentEmail, us.ParentEmail)
	set(&s.ParentPhone, us.ParentPhone)
	set(&s.Status, us.Status)
	if us.ClassID != nil {
		s.ClassID = *us.ClassID
	}
}

type QueryFilter struct {
	Search  string `query:"search"`
	ClassID string `query:"class_id"`
	Status  string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.ClassID == "" && qf.Status == ""
}

// Match applies the filter to a single student.
// Search does a case-insensitive match on one of the full name, Student.Username or Student.ParentName.
func (qf *QueryFilter) Match(s Student) bool {
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(s.FullName()), search) &&
			!strings.Contains(strings.ToLower(s.Username), search) &&
			!strings.Contains(strings.ToLower(s.ParentName), search) {
			return false
		}
	}
	if qf.ClassID != "" && s.ClassID != qf.ClassID {
		return false
	}
	return qf.Status == "" || s.Status == qf.Status
}

// Orderings maps the json fields students may be ordered by to their columns.
var Orderings = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"birth_date": "birth_date",
	"status":     "status",
	"created_at": "created_at",
}

type ImportedStudent struct {
	Student     Student                 `json:"student"`
	Credentials credentials.Credentials `json:"credentials"`
}

type ImportError struct {
	Row   int    `json:"row"` // 1-based, header included
	Error string `json:"error"`
}

type ImportResult struct {
	Imported []ImportedStudent `json:"imported"`
	Failed   []ImportError     `json:"failed"`
}

// ImportTemplate returns the header row of an import sheet.
func ImportTemplate() [][]string {
	return [][]string{{"Voornaam", "Achternaam", "Geboortedatum", "Naam ouder", "E-mail ouder", "Telefoon ouder"}}
}

func rowToNewStudent(row []string, classID string) NewStudent {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return NewStudent{
		FirstName:   cell(0),
		LastName:    cell(1),
		BirthDate:   cell(2),
		ParentName:  cell(3),
		ParentEmail: cell(4),
		ParentPhone: cell(5),
		ClassID:     classID,
	}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

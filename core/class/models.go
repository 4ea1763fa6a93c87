package class

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
)

const (
	DefaultMaxStudents = 30
	DefaultRole        = "Leerkracht"
)

type Class struct {
	ID           string            `json:"id"`
	SchoolID     string            `json:"school_id"`
	Name         string            `json:"class_name"`
	Level        int               `json:"class_level"`
	Year         string            `json:"class_year,omitempty"`
	MaxStudents  int               `json:"max_students"`
	Classroom    string            `json:"classroom,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	StudentCount int               `json:"student_count"`
	Teachers     []AssignedTeacher `json:"teachers"`
	CreatedAt    time.Time         `json:"created_at"` // UTC
	UpdatedAt    time.Time         `json:"updated_at"` // UTC
}

// IsFull reports whether the class reached its maximum number of students.
func (c Class) IsFull() bool {
	return c.StudentCount >= c.MaxStudents
}

type AssignedTeacher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Assignment links a teacher to a class. There is at most one per (teacher, class) pair.
type Assignment struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	TeacherID   string    `json:"teacher_id"`
	ClassID     string    `json:"class_id"`
	Role        string    `json:"role"`
	TeacherName string    `json:"teacher_name,omitempty"` // read only
	ClassName   string    `json:"class_name,omitempty"`   // read only
	CreatedAt   time.Time `json:"created_at"`             // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name        string `json:"class_name" validate:"required,min=1,max=100"`
	Level       int    `json:"class_level" validate:"required,min=1,max=12"`
	Year        string `json:"class_year" validate:"max=20"`
	MaxStudents int    `json:"max_students" validate:"omitempty,min=1,max=100"`
	Classroom   string `json:"classroom" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=2000"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Year = core.CleanString(nc.Year)
	nc.Classroom = core.CleanString(nc.Classroom)
	nc.Notes = core.CleanString(nc.Notes)
	if nc.MaxStudents == 0 {
		nc.MaxStudents = DefaultMaxStudents
	}
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class.
type UpdateClass struct {
	Name        string `json:"class_name" validate:"omitempty,min=1,max=100"`
	Level       *int   `json:"class_level" validate:"omitempty,min=1,max=12"`
	Year        string `json:"class_year" validate:"max=20"`
	MaxStudents *int   `json:"max_students" validate:"omitempty,min=1,max=100"`
	Classroom   string `json:"classroom" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=2000"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Year = core.CleanString(uc.Year)
	uc.Classroom = core.CleanString(uc.Classroom)
	uc.Notes = core.CleanString(uc.Notes)
	return validate.Struct(uc)
}

func (uc UpdateClass) apply(c *Class) {
	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.Level != nil {
		c.Level = *uc.Level
	}
	if uc.Year != "" {
		c.Year = uc.Year
	}
	if uc.MaxStudents != nil {
		c.MaxStudents = *uc.MaxStudents
	}
	if uc.Classroom != "" {
		c.Classroom = uc.Classroom
	}
	if uc.Notes != "" {
		c.Notes = uc.Notes
	}
}

type NewAssignment struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	Role      string `json:"role" validate:"max=50"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.TeacherID = core.CleanString(na.TeacherID)
	na.ClassID = core.CleanString(na.ClassID)
	na.Role = core.CleanString(na.Role)
	if na.Role == "" {
		na.Role = DefaultRole
	}
	return validate.Struct(na)
}

type QueryFilter struct {
	Search string `query:"search"`
	Level  int    `query:"level"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Level == 0
}

// Match applies the filter to a single class.
func (qf *QueryFilter) Match(c Class) bool {
	if qf.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(qf.Search)) {
		return false
	}
	return qf.Level == 0 || c.Level == qf.Level
}

// AssignmentFilter selects assignments; fields are AND'ed, empty ones ignored.
type AssignmentFilter struct {
	SchoolID  string
	ClassID   string
	TeacherID string
}

// Orderings maps the json fields classes may be ordered by to their columns.
var Orderings = map[string]string{
	"class_name":    "class_name",
	"class_level":   "class_level",
	"student_count": "student_count",
	"created_at":    "created_at",
}

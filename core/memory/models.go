package memory

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/field"
)

// MaxFileSize is the maximum size of an attachment, in bytes.
const MaxFileSize = 10 << 20

// CASEL skills
const (
	SkillSelfAwareness       = "self-awareness"
	SkillSelfManagement      = "self-management"
	SkillSocialAwareness     = "social-awareness"
	SkillRelationshipSkills  = "relationship-skills"
	SkillResponsibleDecision = "responsible-decision-making"
)

var (
	CaselSkills = []Skill{
		{Name: "Zelfbewustzijn", Value: SkillSelfAwareness},
		{Name: "Zelfmanagement", Value: SkillSelfManagement},
		{Name: "Sociaal bewustzijn", Value: SkillSocialAwareness},
		{Name: "Relatievaardigheden", Value: SkillRelationshipSkills},
		{Name: "Verantwoorde besluitvorming", Value: SkillResponsibleDecision},
	}

	allowedExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
		".pdf": true, ".doc": true, ".docx": true, ".txt": true,
		".mp3": true, ".mp4": true, ".mov": true,
	}
)

type Skill struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type File struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Memory struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	SchoolID    string    `json:"school_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Date        string    `json:"memory_date"` // YYYY-MM-DD
	CaselSkill  string    `json:"casel_skill,omitempty"`
	File        *File     `json:"file,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewMemory contains information needed to create a new Memory.
type NewMemory struct {
	Title       string `json:"title" form:"title" validate:"required,max=255"`
	Description string `json:"description" form:"description" validate:"max=5000"`
	Date        string `json:"memory_date" form:"memory_date" validate:"required,date"`
	CaselSkill  string `json:"casel_skill" form:"casel_skill" validate:"omitempty,oneof=self-awareness self-management social-awareness relationship-skills responsible-decision-making"`
}

func (nm *NewMemory) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = core.CleanString(nm.Description)
	nm.Date = core.CleanString(nm.Date)
	nm.CaselSkill = core.CleanLower(nm.CaselSkill)

	if err := validate.Struct(nm); err != nil {
		return err
	}
	nm.Date = field.Date(nm.Date).Value
	return nil
}

// UpdateMemory defines what information may be provided to modify an existing Memory.
type UpdateMemory struct {
	Title       string `json:"title" form:"title" validate:"omitempty,max=255"`
	Description string `json:"description" form:"description" validate:"max=5000"`
	Date        string `json:"memory_date" form:"memory_date" validate:"omitempty,date"`
	CaselSkill  string `json:"casel_skill" form:"casel_skill" validate:"omitempty,oneof=self-awareness self-management social-awareness relationship-skills responsible-decision-making"`
	RemoveFile  bool   `json:"remove_file" form:"remove_file"`
}

func (um *UpdateMemory) Validate(validate *validator.Validate) error {
	um.Title = core.CleanString(um.Title)
	um.Description = core.CleanString(um.Description)
	um.Date = core.CleanString(um.Date)
	um.CaselSkill = core.CleanLower(um.CaselSkill)

	if err := validate.Struct(um); err != nil {
		return err
	}
	if um.Date != "" {
		um.Date = field.Date(um.Date).Value
	}
	return nil
}

func (um UpdateMemory) apply(m *Memory) {
	if um.Title != "" {
		m.Title = um.Title
	}
	if um.Description != "" {
		m.Description = um.Description
	}
	if um.Date != "" {
		m.Date = um.Date
	}
	if um.CaselSkill != "" {
		m.CaselSkill = um.CaselSkill
	}
}

// Upload is an attachment sent along a memory.
type Upload struct {
	Name string
	Size int64
	Body io.Reader
}

func (u *Upload) ext() string {
	return strings.ToLower(path.Ext(u.Name))
}

// Check returns ErrInvalidFile when the upload is too large or of a type that is not accepted.
func (u *Upload) Check() error {
	if u.Size > MaxFileSize || !allowedExtensions[u.ext()] {
		return ErrInvalidFile
	}
	return nil
}

// DeleteFilter selects the memories to delete; fields are AND'ed. SchoolID is required.
type DeleteFilter struct {
	SchoolID  string
	StudentID string
	ID        string
}

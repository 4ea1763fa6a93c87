package school

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/field"
)

// School types
const (
	TypeBasisschool      = "basisschool"
	TypeMiddelbareSchool = "middelbare-school"
	TypeVMBO             = "vmbo"
	TypeHAVO             = "havo"
	TypeVWO              = "vwo"
	TypeMBO              = "mbo"
	TypeUniversity       = "university"
	TypeOther            = "other"
)

// Statuses
const (
	StatusActive         = "active"
	StatusInactive       = "inactive"
	StatusOfflinePending = "offline_pending"
)

// ExportVersion is the version of the schools export format.
const ExportVersion = "1.0.0"

const offlineIDPrefix = "offline_"

var (
	Types = []Type{
		{Name: "Basisschool", Value: TypeBasisschool},
		{Name: "Middelbare School", Value: TypeMiddelbareSchool},
		{Name: "VMBO", Value: TypeVMBO},
		{Name: "HAVO", Value: TypeHAVO},
		{Name: "VWO", Value: TypeVWO},
		{Name: "MBO", Value: TypeMBO},
		{Name: "Universiteit/HBO", Value: TypeUniversity},
		{Name: "Anders", Value: TypeOther},
	}

	defaultOrdering = core.DBOrdering{Field: "created_at", Ascending: false}
)

type Type struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TypeLabel returns the Dutch label of the school type, or t itself when unknown.
func TypeLabel(t string) string {
	for _, typ := range Types {
		if typ.Value == t {
			return typ.Name
		}
	}
	return t
}

func isType(t string) bool {
	for _, typ := range Types {
		if typ.Value == t {
			return true
		}
	}
	return false
}

type Stats struct {
	Students int `json:"students"`
	Teachers int `json:"teachers"`
	Classes  int `json:"classes"`
}

type School struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	BRIN         string    `json:"brin,omitempty"`
	StudentCount int       `json:"student_count"`
	Address      string    `json:"address,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	AdminName    string    `json:"admin_name"`
	AdminEmail   string    `json:"admin_email"`
	AdminPhone   string    `json:"admin_phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Username     string    `json:"username,omitempty"`
	Status       string    `json:"status"`
	IsOffline    bool      `json:"is_offline,omitempty"`
	Stats        Stats     `json:"stats"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

// IsOfflineID reports whether id was handed out to a school created while offline.
func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, offlineIDPrefix)
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Name         string `json:"name" validate:"required,min=2,max=255"`
	Type         string `json:"type" validate:"required,schooltype"`
	BRIN         string `json:"brin" validate:"omitempty,brin"`
	StudentCount int    `json:"student_count" validate:"min=0,max=10000"`
	Address      string `json:"address" validate:"max=500"`
	PostalCode   string `json:"postal_code" validate:"omitempty,postcode"`
	AdminName    string `json:"admin_name" validate:"required,min=2,max=255"`
	AdminEmail   string `json:"admin_email" validate:"required,email"`
	AdminPhone   string `json:"admin_phone" validate:"omitempty,phonechars"`
	Notes        string `json:"notes" validate:"max=2000"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Type = core.CleanLower(ns.Type)
	ns.AdminName = core.CleanString(ns.AdminName)
	ns.AdminEmail = core.CleanLower(ns.AdminEmail)
	ns.AdminPhone = core.CleanString(ns.AdminPhone)
	ns.Address = core.CleanString(ns.Address)
	ns.Notes = core.CleanString(ns.Notes)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.BRIN != "" {
		ns.BRIN = field.BRIN(ns.BRIN).Value
	}
	if ns.PostalCode != "" {
		ns.PostalCode = field.PostalCode(ns.PostalCode).Value
	}
	return nil
}

// UpdateSchool defines what information may be provided to modify an existing School.
// Zero values keep the current value.
type UpdateSchool struct {
	Name         string `json:"name" validate:"omitempty,min=2,max=255"`
	Type         string `json:"type" validate:"omitempty,schooltype"`
	BRIN         string `json:"brin" validate:"omitempty,brin"`
	StudentCount *int   `json:"student_count" validate:"omitempty,min=0,max=10000"`
	Address      string `json:"address" validate:"max=500"`
	PostalCode   string `json:"postal_code" validate:"omitempty,postcode"`
	AdminName    string `json:"admin_name" validate:"omitempty,min=2,max=255"`
	AdminEmail   string `json:"admin_email" validate:"omitempty,email"`
	AdminPhone   string `json:"admin_phone" validate:"omitempty,phonechars"`
	Notes        string `json:"notes" validate:"max=2000"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (us *UpdateSchool) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Type = core.CleanLower(us.Type)
	us.AdminName = core.CleanString(us.AdminName)
	us.AdminEmail = core.CleanLower(us.AdminEmail)
	us.AdminPhone = core.CleanString(us.AdminPhone)
	us.Address = core.CleanString(us.Address)
	us.Notes = core.CleanString(us.Notes)
	us.Status = core.CleanLower(us.Status)

	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.BRIN != "" {
		us.BRIN = field.BRIN(us.BRIN).Value
	}
	if us.PostalCode != "" {
		us.PostalCode = field.PostalCode(us.PostalCode).Value
	}
	return nil
}

func (us UpdateSchool) apply(sch *School) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&sch.Name, us.Name)
	set(&sch.Type, us.Type)
	set(&sch.BRIN, us.BRIN)
	set(&sch.Address, us.Address)
	set(&sch.PostalCode, us.PostalCode)
	set(&sch.AdminName, us.AdminName)
	set(&sch.AdminEmail, us.AdminEmail)
	set(&sch.AdminPhone, us.AdminPhone)
	set(&sch.Notes, us.Notes)
	set(&sch.Status, us.Status)
	if us.StudentCount != nil {
		sch.StudentCount = *us.StudentCount
	}
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Types       []string  `query:"type"`
	Status      string    `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Types == nil && qf.Status == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanLower(qf.Status)
	for i, t := range qf.Types {
		qf.Types[i] = core.CleanLower(t)
	}
}

// Match applies the filter to a single school.
// Search does a case-insensitive match on one of School.Name, School.AdminName or School.AdminEmail.
func (qf *QueryFilter) Match(sch School) bool {
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(sch.Name), search) &&
			!strings.Contains(strings.ToLower(sch.AdminName), search) &&
			!strings.Contains(strings.ToLower(sch.AdminEmail), search) {
			return false
		}
	}
	if qf.Types != nil {
		var found bool
		for _, t := range qf.Types {
			if sch.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.Status != "" && sch.Status != qf.Status {
		return false
	}
	if !qf.CreatedFrom.IsZero() && sch.CreatedAt.Before(qf.CreatedFrom) {
		return false
	}
	if !qf.CreatedTo.IsZero() && sch.CreatedAt.After(qf.CreatedTo) {
		return false
	}
	return true
}

// Orderings maps the json fields schools may be ordered by to their columns.
var Orderings = map[string]string{
	"name":          "name",
	"type":          "type",
	"student_count": "student_count",
	"status":        "status",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"last_login":    "last_login",
}

// sortByCreatedAt sorts the newest schools first.
func sortByCreatedAt(schools []School) {
	sort.SliceStable(schools, func(i, j int) bool { return schools[i].CreatedAt.After(schools[j].CreatedAt) })
}

type Summary struct {
	TotalSchools  int `json:"total_schools"`
	TotalStudents int `json:"total_students"`
}

// ExportData is the schools backup format.
type ExportData struct {
	Schools    []School  `json:"schools"`
	ExportDate time.Time `json:"exportDate"`
	Version    string    `json:"version"`
}

var exportHeader = []string{
	"ID", "Naam", "Type", "BRIN", "Leerlingen", "Adres", "Postcode",
	"Beheerder", "E-mail", "Telefoon", "Gebruikersnaam", "Status", "Aangemaakt",
}

// Table returns the export as a header row followed by one row per school.
func (ed ExportData) Table() [][]string {
	rows := make([][]string, 0, len(ed.Schools)+1)
	rows = append(rows, exportHeader)
	for _, sch := range ed.Schools {
		rows = append(rows, []string{
			sch.ID,
			sch.Name,
			TypeLabel(sch.Type),
			sch.BRIN,
			strconv.Itoa(sch.StudentCount),
			sch.Address,
			sch.PostalCode,
			sch.AdminName,
			sch.AdminEmail,
			sch.AdminPhone,
			sch.Username,
			sch.Status,
			sch.CreatedAt.Format("2006-01-02"),
		})
	}
	return rows
}

// DemoSchools are listed while neither the remote store nor any local copy holds schools.
func DemoSchools() []School {
	date := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	return []School{
		{
			ID:           "school_1",
			Name:         "Basisschool De Regenboog",
			Type:         TypeBasisschool,
			StudentCount: 287,
			Address:      "Schoolstraat 12, 1234 AB Amsterdam",
			AdminName:    "Mevr. van der Berg",
			AdminEmail:   "j.vandenberg@regenboog.nl",
			AdminPhone:   "06-12345678",
			Notes:        "Actieve school met moderne faciliteiten",
			Username:     "regenboog_admin",
			Status:       StatusActive,
			CreatedAt:    date("2024-01-15"),
			UpdatedAt:    date("2024-01-15"),
			LastLogin:    date("2024-01-20"),
		},
		{
			ID:           "school_2",
			Name:         "Middelbare School Het Kompas",
			Type:         TypeMiddelbareSchool,
			StudentCount: 542,
			Address:      "Leerlinglaan 45, 5678 CD Rotterdam",
			AdminName:    "Dhr. Jansen",
			AdminEmail:   "p.jansen@kompas.edu.nl",
			AdminPhone:   "010-1234567",
			Notes:        "HAVO/VWO met technische profielen",
			Username:     "kompas_admin",
			Status:       StatusActive,
			CreatedAt:    date("2024-01-10"),
			UpdatedAt:    date("2024-01-10"),
			LastLogin:    date("2024-01-19"),
		},
	}
}

// DemoNewSchools returns the demo schools as creation payloads, for seeding.
func DemoNewSchools() []NewSchool {
	demos := DemoSchools()
	res := make([]NewSchool, 0, len(demos))
	for _, sch := range demos {
		res = append(res, NewSchool{
			Name:         sch.Name,
			Type:         sch.Type,
			StudentCount: sch.StudentCount,
			Address:      sch.Address,
			AdminName:    sch.AdminName,
			AdminEmail:   sch.AdminEmail,
			AdminPhone:   sch.AdminPhone,
			Notes:        sch.Notes,
		})
	}
	return res
}

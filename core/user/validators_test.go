package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core"
)

func TestPasswordPolicy(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		attrs   []string // name, username, email
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abc 123!xyz", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg12!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Jvandenberg1!", attrs: []string{"", "j.vandenberg", ""}, wantTag: pwdAttrSimTag},
		{name: "similar to email", pwd: "Emma@school.nl1", attrs: []string{"", "", "emma@school.nl"}, wantTag: pwdAttrSimTag},
		{name: "valid", pwd: "T4fel!Kr1jt#", attrs: []string{"Emma de Vries", "emma.d12", "emma@school.nl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := append(tt.attrs, "", "", "")
			assert.Equal(t, tt.wantTag, passwordPolicyViolation(tt.pwd, attrs[0], attrs[1], attrs[2]))
		})
	}
}

func TestIsCommonPassword(t *testing.T) {
	commonPasswordsMu.Lock()
	commonPasswords = nil
	commonPasswordsMu.Unlock()
	assert.True(t, isCommonPassword("letmein"))
	assert.False(t, isCommonPassword("letmeout"))

	commonPasswordsMu.Lock()
	commonPasswords = []string{"abc123", "dragon", "letmein", "monkey"}
	commonPasswordsMu.Unlock()
	defer func() {
		commonPasswordsMu.Lock()
		commonPasswords = nil
		commonPasswordsMu.Unlock()
	}()
	assert.True(t, isCommonPassword("dragon"))
	assert.False(t, isCommonPassword("zebra"))
}

func TestUserValidators(t *testing.T) {
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	InitValidators(validate, uni)

	nu := NewUser{Name: "Jan", Password: "T4fel!Kr1jt#", PasswordConfirm: "T4fel!Kr1jt#", Roles: []string{"root"}}
	err := validate.Struct(nu)
	require.Error(t, err)

	got := make(map[string]string)
	for _, fe := range err.(validator.ValidationErrors) {
		got[fe.Field()] = fe.Translate(core.GetTranslator(uni, "en"))
	}
	assert.Equal(t, map[string]string{
		"roles":    "invalid roles",
		"username": "one of username or email is required",
		"email":    "one of username or email is required",
	}, got)

	nu = NewUser{Name: "Jan", Username: "jan_01", Password: "password", PasswordConfirm: "password", Roles: []string{RoleTeacher}}
	err = validate.Struct(nu)
	require.Error(t, err)
	fe := err.(validator.ValidationErrors)[0]
	assert.Equal(t, "password", fe.Field())
	assert.Equal(t, "wachtwoord moet minimaal 1 hoofdletter, 1 kleine letter, 1 cijfer en 1 speciaal teken bevatten",
		fe.Translate(core.GetTranslator(uni, "nl")))
}

func TestRoles(t *testing.T) {
	admin := User{Roles: []string{RoleAdmin}}
	schoolAdmin := User{Roles: []string{RoleSchoolAdmin}}
	teacher := User{Roles: []string{RoleTeacher}}
	student := User{Roles: []string{RoleStudent}}

	assert.True(t, admin.IsStudent())
	assert.True(t, admin.IsSchoolAdmin())
	assert.True(t, schoolAdmin.IsTeacher())
	assert.False(t, schoolAdmin.IsAdmin())
	assert.True(t, teacher.IsStudent())
	assert.False(t, teacher.IsSchoolAdmin())
	assert.False(t, student.IsTeacher())

	assert.Equal(t, "/admin", admin.Portal())
	assert.Equal(t, "/school", schoolAdmin.Portal())
	mixed := User{Roles: []string{RoleStudent, RoleTeacher}}
	assert.Equal(t, "/teacher", mixed.Portal())
	var none User
	assert.Equal(t, "", none.Portal())
	assert.Equal(t, 3, MaxRolePriority([]string{RoleStudent, RoleSchoolAdmin}))
}

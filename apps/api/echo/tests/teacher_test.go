package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/tests"
)

func Test_teacherApi(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	schoolToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_admin", password, user.RoleSchoolAdmin))
	teacherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_teacher", password, user.RoleTeacher))
	path := fmt.Sprintf("/v1/schools/%s/teachers", sch.ID)

	e.run(t, []httpTest{
		{
			name: "teachers cannot create", method: http.MethodPost, path: path, token: teacherToken,
			body: []byte(`{"first_name":"Anne","last_name":"Jansen"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid name", method: http.MethodPost, path: path, token: schoolToken,
			body: []byte(`{"first_name":"A","last_name":"Jansen"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid hire date", method: http.MethodPost, path: path, token: schoolToken,
			body: []byte(`{"first_name":"Anne","last_name":"Jansen","hire_date":"yesterday"}`), wantCode: http.StatusBadRequest,
		},
	})

	rec := e.do(http.MethodPost, path, schoolToken, []byte(`{"first_name":"Anne","last_name":"Jansen","email":"Anne@Regenboog.nl"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created echoapi.TeacherCreatedResponse
	unmarshal(t, rec, &created)
	assert.Equal(t, "anne@regenboog.nl", created.Teacher.Email)
	assert.Equal(t, teacher.StatusActive, created.Teacher.Status)
	assert.Equal(t, created.Teacher.Username, created.Credentials.Username)
	require.NotEmpty(t, created.Credentials.Password)

	// the account logs in to the teacher portal
	rec = e.do(http.MethodPost, loginPath, "", credsBody(t, created.Credentials.Username, created.Credentials.Password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login echoapi.LoginResponse
	unmarshal(t, rec, &login)
	assert.Equal(t, "/teacher", login.Portal)

	detail := path + "/" + created.Teacher.ID
	e.run(t, []httpTest{
		{name: "retrieve", path: detail, token: teacherToken},
		{name: "unknown", path: path + "/unknown", token: teacherToken, wantCode: http.StatusNotFound},
		{
			name: "bad status", method: http.MethodPut, path: detail, token: schoolToken,
			body: []byte(`{"status":"retired"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "deactivated", method: http.MethodPut, path: detail, token: schoolToken,
			body: []byte(`{"status":"inactive","subjects":"Rekenen"}`),
		},
	})

	t.Run("query", func(t *testing.T) {
		var teachers []teacher.Teacher
		rec := e.do(http.MethodGet, path+"?status=inactive", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, "Rekenen", teachers[0].Subjects)

		rec = e.do(http.MethodGet, path+"?search=nobody", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(http.MethodDelete, detail, schoolToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		// the account is gone with the teacher
		rec = e.do(http.MethodPost, loginPath, "", credsBody(t, created.Credentials.Username, created.Credentials.Password))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

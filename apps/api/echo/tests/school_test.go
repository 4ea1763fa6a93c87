package tests

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/services/email"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
	"github.com/schoolhub/schoolhub/tests"
)

func Test_schoolApi_create(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, e.UserRepo, "Teacher", "teacher", "teacher@test.nl", password, []string{user.RoleTeacher}, true)
	token := getToken(t, e, admin)

	invalid := testutil.NewSchool("De Regenboog")
	invalid.BRIN = "1234"

	e.run(t, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/v1/schools", token: getToken(t, e, teacher),
			body: marchallObj(t, testutil.NewSchool("De Regenboog")), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "invalid brin", method: http.MethodPost, path: "/v1/schools", token: token,
			body: marchallObj(t, invalid), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("translated field errors", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/schools", token, []byte(`{"name":"","type":"basisschool"}`))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var fldErrs map[string]string
		unmarshal(t, rec, &fldErrs)
		assert.NotEmpty(t, fldErrs)
		for fld, msg := range fldErrs {
			assert.NotEmpty(t, msg, fld)
		}
	})

	rec := e.do(http.MethodPost, "/v1/schools", token, marchallObj(t, testutil.NewSchool("De Regenboog")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp echoapi.SchoolCreatedResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.School.ID)
	assert.Equal(t, school.StatusActive, resp.School.Status)
	require.NotNil(t, resp.Credentials)
	assert.Equal(t, resp.School.Username, resp.Credentials.Username)
	assert.NotEmpty(t, resp.Credentials.Password)
	assert.Equal(t, "The login details have been sent to admin@deregenboog.nl", resp.Message)
	assert.Len(t, emailsvc.SentTo("admin@deregenboog.nl"), 1)

	// the generated account logs in to the school portal
	rec = e.do(http.MethodPost, loginPath, "", credsBody(t, resp.Credentials.Username, resp.Credentials.Password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login echoapi.LoginResponse
	unmarshal(t, rec, &login)
	assert.Equal(t, "/school", login.Portal)
}

func Test_schoolApi_createOffline(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	token := getToken(t, e, admin)

	e.DB.SetOffline(true)
	rec := e.do(http.MethodPost, "/v1/schools", token, marchallObj(t, testutil.NewSchool("De Regenboog")))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp echoapi.SchoolCreatedResponse
	unmarshal(t, rec, &resp)
	assert.True(t, resp.School.IsOffline)
	assert.Nil(t, resp.Credentials)
	assert.Equal(t, "The school will be created once the connection is restored", resp.Message)

	rec = e.do(http.MethodGet, "/v1/sync", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var status echoapi.SyncStatus
	unmarshal(t, rec, &status)
	assert.Equal(t, 1, status.Pending)

	// back online: the manual sync replays the queue
	e.DB.SetOffline(false)
	rec = e.do(http.MethodPost, "/v1/sync", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var synced echoapi.SyncResponse
	unmarshal(t, rec, &synced)
	assert.Equal(t, 1, synced.Synced)
	assert.Equal(t, 0, synced.Pending)
	assert.Equal(t, "Synchronisation completed", synced.Message)

	schools, err := e.SchoolSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "De Regenboog", schools[0].Name)
	assert.False(t, schools[0].IsOffline)
}

func Test_schoolApi_scope(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	regenboog := testutil.CreateSchool(t, e.Env, "De Regenboog")
	zonnebloem := testutil.CreateSchool(t, e.Env, "De Zonnebloem")

	schoolAdmin := testutil.CreateSchoolUser(t, e.UserRepo, regenboog.ID, "rb_admin", password, user.RoleSchoolAdmin)
	teacher := testutil.CreateSchoolUser(t, e.UserRepo, regenboog.ID, "rb_teacher", password, user.RoleTeacher)
	adminToken := getToken(t, e, admin)
	schoolToken := getToken(t, e, schoolAdmin)
	teacherToken := getToken(t, e, teacher)

	e.run(t, []httpTest{
		{name: "own school", path: "/v1/schools/" + regenboog.ID, token: teacherToken},
		{
			name: "other school", path: "/v1/schools/" + zonnebloem.ID, token: schoolToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "admin sees all", path: "/v1/schools/" + zonnebloem.ID, token: adminToken},
		{name: "unknown", path: "/v1/schools/unknown", token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "teachers cannot update", method: http.MethodPut, path: "/v1/schools/" + regenboog.ID, token: teacherToken,
			body: []byte(`{"notes":"lol"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "school admins update", method: http.MethodPut, path: "/v1/schools/" + regenboog.ID, token: schoolToken,
			body: []byte(`{"notes":"Open dag op 1 maart"}`),
		},
		{
			name: "school admins cannot deactivate", method: http.MethodPut, path: "/v1/schools/" + regenboog.ID, token: schoolToken,
			body: []byte(`{"status":"inactive"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "school admins cannot delete", method: http.MethodDelete, path: "/v1/schools/" + regenboog.ID, token: schoolToken,
			wantCode: http.StatusForbidden,
		},
		{name: "last login", method: http.MethodPost, path: "/v1/schools/" + regenboog.ID + "/last-login", token: schoolToken, wantCode: http.StatusNoContent},
		{name: "stats need admin", path: "/v1/schools/stats", token: schoolToken, wantCode: http.StatusForbidden},
		{
			name: "stats", path: "/v1/schools/stats", token: adminToken,
			wantData: marchallObj(t, school.Summary{TotalSchools: 2, TotalStudents: 240}),
		},
	})

	t.Run("list", func(t *testing.T) {
		var schools []school.School
		rec := e.do(http.MethodGet, "/v1/schools", schoolToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &schools)
		require.Len(t, schools, 1)
		assert.Equal(t, regenboog.ID, schools[0].ID)
		assert.Equal(t, "Open dag op 1 maart", schools[0].Notes)
		assert.False(t, schools[0].LastLogin.IsZero())

		rec = e.do(http.MethodGet, "/v1/schools?ordering=name", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &schools)
		require.Len(t, schools, 2)
		assert.Equal(t, []string{"De Regenboog", "De Zonnebloem"}, []string{schools[0].Name, schools[1].Name})
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(http.MethodDelete, "/v1/schools/"+zonnebloem.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = e.do(http.MethodGet, "/v1/schools/"+zonnebloem.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_schoolApi_export(t *testing.T) {
	e := setup(t)
	admin := testutil.CreateUser(t, e.UserRepo, "Admin", "admin", "admin@test.nl", password, []string{user.RoleAdmin}, true)
	testutil.CreateSchool(t, e.Env, "De Regenboog")
	testutil.CreateSchool(t, e.Env, "De Zonnebloem")
	token := getToken(t, e, admin)

	t.Run("json", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/v1/schools/export", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

		var data school.ExportData
		unmarshal(t, rec, &data)
		assert.Len(t, data.Schools, 2)
		assert.Equal(t, school.ExportVersion, data.Version)
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/v1/schools/export?format=xlsx", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

		rows, err := sheetsvc.Read(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Naam", rows[0][1])
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/v1/schools/export?format=csv", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_schoolApi_types(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.UserRepo, "Ada", "ada", "ada@test.nl", password, []string{user.RoleTeacher}, true)

	rec := e.do(http.MethodGet, "/v1/schools/types?lang=en", getToken(t, e, usr))
	require.Equal(t, http.StatusOK, rec.Code)

	var types []school.Type
	unmarshal(t, rec, &types)
	require.Len(t, types, len(school.Types))
	assert.Equal(t, school.Type{Name: "Primary school", Value: school.TypeBasisschool}, types[0])
}

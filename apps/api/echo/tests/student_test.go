package tests

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/user"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
	"github.com/schoolhub/schoolhub/tests"
)

func Test_studentApi(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	schoolToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_admin", password, user.RoleSchoolAdmin))
	teacherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_teacher", password, user.RoleTeacher))

	small := testutil.CreateClass(t, e.Env, sch.ID, "Groep 1", 1, 1)
	groep2 := testutil.CreateClass(t, e.Env, sch.ID, "Groep 2", 2, 0)
	path := fmt.Sprintf("/v1/schools/%s/students", sch.ID)
	body := func(first, last, classID string) []byte {
		return []byte(fmt.Sprintf(`{"first_name":%q,"last_name":%q,"class_id":%q,"birth_date":"14-03-2016"}`, first, last, classID))
	}

	e.run(t, []httpTest{
		{name: "teachers cannot create", method: http.MethodPost, path: path, token: teacherToken, body: body("Sven", "Bakker", ""), wantCode: http.StatusForbidden},
		{
			name: "unknown class", method: http.MethodPost, path: path, token: schoolToken, body: body("Sven", "Bakker", "unknown"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"class_id":"class not found"}`),
		},
		{name: "first in class", method: http.MethodPost, path: path, token: schoolToken, body: body("Sven", "Bakker", small.ID), wantCode: http.StatusCreated},
		{
			name: "class full", method: http.MethodPost, path: path, token: schoolToken, body: body("Lotte", "Visser", small.ID),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"class_id":"class is full"}`),
		},
	})

	rec := e.do(http.MethodPost, path, schoolToken, body("Lotte", "Visser", ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created echoapi.StudentCreatedResponse
	unmarshal(t, rec, &created)
	assert.Equal(t, "2016-03-14", created.Student.BirthDate)
	assert.Equal(t, student.NoClassName, created.Student.ClassName)
	assert.Equal(t, created.Student.Username, created.Credentials.Username)

	// the account logs in to the student portal
	rec = e.do(http.MethodPost, loginPath, "", credsBody(t, created.Credentials.Username, created.Credentials.Password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login echoapi.LoginResponse
	unmarshal(t, rec, &login)
	assert.Equal(t, "/student", login.Portal)

	detail := path + "/" + created.Student.ID
	e.run(t, []httpTest{
		{name: "retrieve", path: detail, token: teacherToken},
		{name: "unknown", path: path + "/unknown", token: teacherToken, wantCode: http.StatusNotFound},
		{
			name: "move to a full class", method: http.MethodPut, path: detail, token: schoolToken,
			body: []byte(fmt.Sprintf(`{"class_id":%q}`, small.ID)), wantCode: http.StatusBadRequest,
		},
		{name: "move", method: http.MethodPut, path: detail, token: schoolToken, body: []byte(fmt.Sprintf(`{"class_id":%q}`, groep2.ID))},
	})

	t.Run("query", func(t *testing.T) {
		var students []student.Student
		rec := e.do(http.MethodGet, path+"?class_id="+groep2.ID, teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &students)
		require.Len(t, students, 1)
		assert.Equal(t, "Groep 2", students[0].ClassName)

		rec = e.do(http.MethodGet, path+"?ordering=first_name", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &students)
		require.Len(t, students, 2)
		assert.Equal(t, []string{"Lotte", "Sven"}, []string{students[0].FirstName, students[1].FirstName})
	})

	t.Run("class counts", func(t *testing.T) {
		var got class.Class
		rec := e.do(http.MethodGet, fmt.Sprintf("/v1/schools/%s/classes/%s", sch.ID, groep2.ID), teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &got)
		assert.Equal(t, 1, got.StudentCount)
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(http.MethodDelete, detail, schoolToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = e.do(http.MethodGet, detail, schoolToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_studentApi_import(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	token := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_admin", password, user.RoleSchoolAdmin))
	c := testutil.CreateClass(t, e.Env, sch.ID, "Groep 4", 4, 0)
	path := fmt.Sprintf("/v1/schools/%s/students/import", sch.ID)

	var buf bytes.Buffer
	require.NoError(t, sheetsvc.Write(&buf, sheetsvc.Sheet{Name: "Leerlingen", Rows: [][]string{
		student.ImportTemplate()[0],
		{"Sven", "Bakker", "14-03-2016", "Eva Bakker", "eva@bakker.nl", "0612345678"},
		{},
		{"X", "Visser"},
		{"Lotte", "Visser", "2016-07-01"},
	}}))

	t.Run("no file", func(t *testing.T) {
		rec := e.serve(newMultipartRequest(t, http.MethodPost, path, token, nil, "", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not a workbook", func(t *testing.T) {
		rec := e.serve(newMultipartRequest(t, http.MethodPost, path, token, nil, "leerlingen.xlsx", []byte("lol")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := e.serve(newMultipartRequest(t, http.MethodPost, path, token, map[string]string{"class_id": c.ID}, "leerlingen.xlsx", buf.Bytes()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.ImportResponse
	unmarshal(t, rec, &resp)
	require.Len(t, resp.Imported, 2)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 4, resp.Failed[0].Row)
	assert.Equal(t, "2 students imported, 1 rows skipped", resp.Message)
	for _, imp := range resp.Imported {
		assert.Equal(t, c.ID, imp.Student.ClassID)
		assert.NotEmpty(t, imp.Credentials.Password)
	}

	students, err := e.StudentSvc.Query(context.Background(), sch.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func Test_studentApi_importTemplate(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	token := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_teacher", password, user.RoleTeacher))

	rec := e.do(http.MethodGet, fmt.Sprintf("/v1/schools/%s/students/import-template", sch.ID), token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leerlingen-import.xlsx")

	rows, err := sheetsvc.Read(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, student.ImportTemplate(), rows)
}

package tests

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/tests"
)

func Test_memoryApi(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	other := testutil.CreateSchool(t, e.Env, "De Zonnebloem")
	teacherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_teacher", password, user.RoleTeacher))
	studentToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_student", password, user.RoleStudent))
	otherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, other.ID, "zb_teacher", password, user.RoleTeacher))

	st := testutil.CreateStudent(t, e.Env, sch.ID, "", "Sven", "Bakker")
	path := fmt.Sprintf("/v1/schools/%s/students/%s/memories", sch.ID, st.ID)
	fields := map[string]string{
		"title":       "Eerste schooldag",
		"memory_date": "02-09-2024",
		"casel_skill": memory.SkillSelfAwareness,
	}

	e.run(t, []httpTest{
		{name: "skills", path: fmt.Sprintf("/v1/schools/%s/memory-skills", sch.ID), token: studentToken, wantData: marchallObj(t, memory.CaselSkills)},
		{
			name: "students cannot write", method: http.MethodPost, path: path, token: studentToken,
			body: []byte(`{"title":"lol","memory_date":"2024-09-02"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown skill", method: http.MethodPost, path: path, token: teacherToken,
			body: []byte(`{"title":"Samen spelen","memory_date":"2024-09-02","casel_skill":"juggling"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown student", method: http.MethodPost, path: fmt.Sprintf("/v1/schools/%s/students/unknown/memories", sch.ID), token: teacherToken,
			body: []byte(`{"title":"Samen spelen","memory_date":"2024-09-02"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "json", method: http.MethodPost, path: path, token: teacherToken,
			body: []byte(`{"title":"Samen spelen","memory_date":"2024-09-03"}`), wantCode: http.StatusCreated,
		},
	})

	t.Run("rejected attachment", func(t *testing.T) {
		rec := e.serve(newMultipartRequest(t, http.MethodPost, path, teacherToken, fields, "virus.exe", []byte("MZ")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := e.serve(newMultipartRequest(t, http.MethodPost, path, teacherToken, fields, "verslag.txt", []byte("Sven heeft een goede eerste dag gehad.")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m memory.Memory
	unmarshal(t, rec, &m)
	assert.Equal(t, "2024-09-02", m.Date)
	require.NotNil(t, m.File)
	assert.Equal(t, "verslag.txt", m.File.Name)

	t.Run("download", func(t *testing.T) {
		u, err := url.Parse(m.File.URL)
		require.NoError(t, err)

		tests := []struct {
			name     string
			token    string
			wantCode int
		}{
			{name: "token required", wantCode: http.StatusUnauthorized},
			{name: "other school", token: otherToken, wantCode: http.StatusForbidden},
			{name: "same school", token: studentToken, wantCode: http.StatusOK},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := e.do(http.MethodGet, u.Path+"?token="+tt.token, "")
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				if tt.wantCode == http.StatusOK {
					assert.Equal(t, "Sven heeft een goede eerste dag gehad.", rec.Body.String())
					assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
				}
			})
		}

		rec := e.do(http.MethodGet, "/files/other-bucket/"+sch.ID+"/x.txt?token="+studentToken, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	detail := path + "/" + m.ID
	e.run(t, []httpTest{
		{name: "retrieve", path: detail, token: studentToken},
		{name: "other school", path: detail, token: otherToken, wantCode: http.StatusForbidden},
		{name: "remove file", method: http.MethodPut, path: detail, token: teacherToken, body: []byte(`{"remove_file":true,"title":"Eerste dag"}`)},
	})

	t.Run("query", func(t *testing.T) {
		var memories []memory.Memory
		rec := e.do(http.MethodGet, path, studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &memories)
		require.Len(t, memories, 2)
		for _, got := range memories {
			assert.Nil(t, got.File)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := e.do(http.MethodDelete, detail, teacherToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = e.do(http.MethodGet, detail, teacherToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

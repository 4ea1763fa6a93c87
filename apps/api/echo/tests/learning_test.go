package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/tests"
)

const learningPath = "/v1/learning"

func Test_learningApi(t *testing.T) {
	e := setup(t)
	regenboog := testutil.CreateSchool(t, e.Env, "De Regenboog")
	zonnebloem := testutil.CreateSchool(t, e.Env, "De Zonnebloem")
	teacherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, regenboog.ID, "rb_teacher", password, user.RoleTeacher))
	studentToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, regenboog.ID, "rb_student", password, user.RoleStudent))
	otherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, zonnebloem.ID, "zb_teacher", password, user.RoleTeacher))

	e.run(t, []httpTest{
		{name: "auth required", path: learningPath, wantCode: http.StatusUnauthorized},
		{
			name: "students cannot write", method: http.MethodPut, path: learningPath, token: studentToken,
			body: []byte(`{"tasks":[]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "saved", method: http.MethodPut, path: learningPath, token: teacherToken,
			body:     []byte(`{"students":[{"id":1,"name":"Sven"}],"reflectionCards":{"1":{"mood":"blij"}}}`),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Data has been saved"}),
		},
	})

	get := func(t *testing.T, token string) learning.Snapshot {
		var snap learning.Snapshot
		rec := e.do(http.MethodGet, learningPath, token)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &snap)
		return snap
	}

	t.Run("working copy", func(t *testing.T) {
		snap := get(t, studentToken)
		assert.Len(t, snap.Students, 1)
		assert.Len(t, snap.ReflectionCards, 1)
		assert.NotNil(t, snap.Tasks)

		// schools never see each other's data
		assert.True(t, get(t, otherToken).IsEmpty())
	})

	t.Run("export after autosave", func(t *testing.T) {
		var exp learning.Export
		rec := e.do(http.MethodGet, learningPath+"/export", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &exp)
		assert.True(t, exp.IsEmpty(), "not saved yet")

		require.NoError(t, e.AutoSaver.Tick(context.Background()))

		rec = e.do(http.MethodGet, learningPath+"/export", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "leerdata-")
		unmarshal(t, rec, &exp)
		assert.Len(t, exp.Students, 1)
		assert.Equal(t, learning.ExportVersion, exp.Version)
		assert.NotNil(t, exp.LastSaved)
	})

	t.Run("import", func(t *testing.T) {
		rec := e.do(http.MethodPost, learningPath+"/import", teacherToken, []byte(`[1, 2]`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = e.do(http.MethodPost, learningPath+"/import", teacherToken, []byte(`{"tasks":[{"id":"t1"},{"id":"t2"}],"version":"2.0"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.ImportedLearningResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, "Data has been imported", resp.Message)
		assert.Len(t, resp.Snapshot.Tasks, 2)
		assert.Empty(t, resp.Snapshot.Students)

		snap := get(t, teacherToken)
		assert.Len(t, snap.Tasks, 2)
	})

	t.Run("import file", func(t *testing.T) {
		content := []byte(`{"milestones":[{"id":"m1"}]}`)
		rec := e.serve(newMultipartRequest(t, http.MethodPost, learningPath+"/import", teacherToken, nil, "leerdata.json", content))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		snap := get(t, teacherToken)
		assert.Len(t, snap.Milestones, 1)
		assert.Empty(t, snap.Tasks)
	})

	t.Run("import over unsaved edits", func(t *testing.T) {
		rec := e.do(http.MethodPut, learningPath, teacherToken, []byte(`{"tasks":[{"id":"stale"}]}`))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(http.MethodPost, learningPath+"/import", teacherToken, []byte(`{"groups":[{"id":"g1"}],"settings":{"theme":"dark"}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		require.NoError(t, e.AutoSaver.Tick(context.Background()))
		stored, err := e.Learning.Load(context.Background(), regenboog.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Tasks)
		assert.Len(t, stored.Groups, 1)

		snap := get(t, teacherToken)
		assert.JSONEq(t, `{"theme":"dark"}`, string(snap.Extra["settings"]))
	})

	t.Run("clear", func(t *testing.T) {
		rec := e.do(http.MethodDelete, learningPath, teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, get(t, teacherToken).IsEmpty())

		stored, err := e.Learning.Load(context.Background(), regenboog.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsEmpty())
	})
}

func Test_syncApi(t *testing.T) {
	e := setup(t)
	sch := testutil.CreateSchool(t, e.Env, "De Regenboog")
	teacherToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_teacher", password, user.RoleTeacher))
	studentToken := getToken(t, e, testutil.CreateSchoolUser(t, e.UserRepo, sch.ID, "rb_student", password, user.RoleStudent))

	status := func(t *testing.T) echoapi.SyncStatus {
		var st echoapi.SyncStatus
		rec := e.do(http.MethodGet, "/v1/sync", studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &st)
		return st
	}

	st := status(t)
	assert.True(t, st.Online)
	assert.Equal(t, "Connected", st.Message)
	assert.Zero(t, st.Pending)
	assert.Nil(t, st.LastSync)
	assert.Nil(t, st.LastDataSync)

	rec := e.do(http.MethodPost, "/v1/sync", studentToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the working copy reaches the store with the manual sync
	rec = e.do(http.MethodPut, learningPath, teacherToken, []byte(`{"groups":[{"id":"g1"}]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/v1/sync", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.SyncResponse
	unmarshal(t, rec, &resp)
	assert.Zero(t, resp.Synced)
	assert.Equal(t, "Synchronisation completed", resp.Message)

	stored, err := e.Learning.Load(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Groups, 1)

	// nothing was replayed from the queue
	st = status(t)
	assert.Nil(t, st.LastSync)
	assert.NotNil(t, st.LastDataSync)
}

package school_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/user"
	"github.com/schoolhub/schoolhub/services/email"
	"github.com/schoolhub/schoolhub/tests"
)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	var created []school.School
	env.Bus.On(events.SchoolCreated, func(p interface{}) { created = append(created, p.(school.School)) })

	sch, creds, err := env.SchoolSvc.Create(ctx, testutil.NewSchool("Het Baken"))
	require.NoError(t, err)

	assert.NotEmpty(t, sch.ID)
	assert.Equal(t, school.StatusActive, sch.Status)
	assert.Equal(t, "hetbaken_admin", creds.Username)
	assert.Equal(t, creds.Username, sch.Username)
	assert.Len(t, creds.Password, 12)
	assert.False(t, sch.IsOffline)

	usr, err := env.UserSvc.GetByUsernameOrEmail(ctx, creds.Username)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleSchoolAdmin}, usr.Roles)
	assert.Equal(t, sch.ID, usr.SchoolID)
	assert.NoError(t, usr.CheckPassword(creds.Password))

	msgs := emailsvc.SentTo("admin@hetbaken.nl")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].TextContent, creds.Password)

	require.Len(t, created, 1)
	assert.Equal(t, sch.ID, created[0].ID)

	t.Run("username collision", func(t *testing.T) {
		_, creds2, err := env.SchoolSvc.Create(ctx, testutil.NewSchool("Het Baken"))
		require.NoError(t, err)
		assert.Equal(t, "hetbaken1_admin", creds2.Username)
	})
}

func TestService_CreateOffline(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	env.DB.SetOffline(true)

	sch, creds, err := env.SchoolSvc.Create(ctx, testutil.NewSchool("De Regenboog"))
	require.NoError(t, err)
	assert.True(t, school.IsOfflineID(sch.ID))
	assert.True(t, sch.IsOffline)
	assert.Equal(t, school.StatusOfflinePending, sch.Status)
	assert.Empty(t, creds.Password)

	n, err := env.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var local []school.School
	_, err = env.Local.GetJSON(ctx, core.KeyAdminSchools, &local)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, sch.ID, local[0].ID)

	got, err := env.SchoolSvc.GetByID(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, sch.Name, got.Name)

	// back online
	env.DB.SetOffline(false)
	res, err := env.Syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 0, res.Pending)

	schools, err := env.SchoolSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "De Regenboog", schools[0].Name)
	assert.False(t, school.IsOfflineID(schools[0].ID))
	assert.Len(t, emailsvc.SentTo("admin@deregenboog.nl"), 1)

	local = nil
	_, err = env.Local.GetJSON(ctx, core.KeyAdminSchools, &local)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, schools[0].ID, local[0].ID)
}

func TestService_CreateOfflineDisabled(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Conf.Sync.EnableOfflineMode = false
	env.DB.SetOffline(true)

	_, _, err := env.SchoolSvc.Create(context.Background(), testutil.NewSchool("De Regenboog"))
	assert.True(t, core.IsUnavailable(err))
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	baken := testutil.CreateSchool(t, env, "Het Baken")
	regenboog := testutil.CreateSchool(t, env, "De Regenboog")

	schools, err := env.SchoolSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, regenboog.ID, schools[0].ID) // newest first

	tests := []struct {
		name     string
		filter   *school.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "search", filter: &school.QueryFilter{Search: "bake"}, want: []string{baken.ID}},
		{name: "search admin email", filter: &school.QueryFilter{Search: "REGENBOOG.NL"}, want: []string{regenboog.ID}},
		{name: "type", filter: &school.QueryFilter{Types: []string{school.TypeVWO}}, want: []string{}},
		{name: "ordering", ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []string{regenboog.ID, baken.ID}},
		{name: "unknown ordering", ordering: []core.DBOrdering{{Field: "lol"}}, want: []string{regenboog.ID, baken.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.SchoolSvc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, sch := range got {
				ids = append(ids, sch.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("remote unavailable", func(t *testing.T) {
		env.DB.SetOffline(true)
		defer env.DB.SetOffline(false)

		// cached
		got, err := env.SchoolSvc.Query(ctx, nil, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		// local copy
		require.NoError(t, env.Cache.Clear(ctx))
		got, err = env.SchoolSvc.Query(ctx, nil, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestService_QueryDemoSchools(t *testing.T) {
	env := testutil.NewEnv(t)
	env.DB.SetOffline(true)

	schools, err := env.SchoolSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, schools, len(school.DemoSchools()))
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Het Baken")

	count := 250
	updated, err := env.SchoolSvc.Update(ctx, sch.ID, school.UpdateSchool{Name: "Het Nieuwe Baken", StudentCount: &count})
	require.NoError(t, err)
	assert.Equal(t, "Het Nieuwe Baken", updated.Name)
	assert.Equal(t, 250, updated.StudentCount)
	assert.Equal(t, sch.AdminEmail, updated.AdminEmail)

	_, err = env.SchoolSvc.Update(ctx, "unknown", school.UpdateSchool{Name: "x"})
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	sch := testutil.CreateSchool(t, env, "Het Baken")
	other := testutil.CreateSchool(t, env, "De Regenboog")
	cls := testutil.CreateClass(t, env, sch.ID, "Groep 3", 3, 0)
	tch := testutil.CreateTeacher(t, env, sch.ID, "Anna", "Jansen", "anna@hetbaken.nl")
	st := testutil.CreateStudent(t, env, sch.ID, cls.ID, "Sven", "Bakker")
	_, err := env.ClassSvc.AssignTeacher(ctx, sch.ID, class.NewAssignment{TeacherID: tch.ID, ClassID: cls.ID, Role: class.DefaultRole})
	require.NoError(t, err)

	mem, err := env.MemorySvc.Create(ctx, sch.ID, st.ID, memory.NewMemory{Title: "Eerste schooldag", Date: "2024-09-02"},
		&memory.Upload{Name: "foto.jpg", Size: 3, Body: bytes.NewBufferString("jpg")})
	require.NoError(t, err)

	var deleted []string
	env.Bus.On(events.SchoolDeleted, func(p interface{}) { deleted = append(deleted, p.(string)) })

	require.NoError(t, env.SchoolSvc.Delete(ctx, sch.ID))
	assert.Equal(t, []string{sch.ID}, deleted)

	_, err = env.SchoolSvc.GetByID(ctx, sch.ID)
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
	_, err = env.StudentSvc.GetByID(ctx, sch.ID, st.ID)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	users, err := env.UserSvc.Query(ctx, &user.QueryFilter{SchoolID: sch.ID}, nil)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, _, err = env.Files.Open(ctx, core.BucketStudentFiles, mem.File.Path)
	assert.Error(t, err)

	schools, err := env.SchoolSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, other.ID, schools[0].ID)

	t.Run("offline school", func(t *testing.T) {
		env.DB.SetOffline(true)
		pending, _, err := env.SchoolSvc.Create(ctx, testutil.NewSchool("De Klimop"))
		require.NoError(t, err)
		env.DB.SetOffline(false)

		require.NoError(t, env.SchoolSvc.Delete(ctx, pending.ID))
		n, err := env.Queue.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		err = env.SchoolSvc.Delete(ctx, pending.ID)
		assert.Equal(t, school.ErrNotFound, errors.Cause(err))
	})
}

func TestService_StatsAndExport(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	testutil.CreateSchool(t, env, "Het Baken")
	testutil.CreateSchool(t, env, "De Regenboog")

	sum, err := env.SchoolSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, school.Summary{TotalSchools: 2, TotalStudents: 240}, sum)

	data, err := env.SchoolSvc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, school.ExportVersion, data.Version)
	assert.Len(t, data.Schools, 2)
	assert.False(t, data.ExportDate.IsZero())

	table := data.Table()
	assert.Len(t, table, 3)
}

package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/schoolhub/schoolhub/apps/api/echo"
	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/storage/database"
	"github.com/schoolhub/schoolhub/storage/local"
)

func newTestContainer(t *testing.T) *Container {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = EngineDummy
	conf.Local.Path = local.MemoryPath
	conf.Local.FilesDir = t.TempDir()

	c := New(conf, "TEST")
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func TestContainer_dummyEngine(t *testing.T) {
	c := newTestContainer(t)

	err := c.Invoke(func(db *sqlx.DB, listener *database.Listener, monitor *offline.Monitor) {
		assert.Nil(t, db)
		assert.Nil(t, listener)
		assert.NotNil(t, monitor)
	})
	require.NoError(t, err)
}

func TestContainer_services(t *testing.T) {
	c := newTestContainer(t)

	err := c.Invoke(func(schoolSvc school.Service, studentSvc student.Service, saver *learning.AutoSaver) {
		ctx := context.Background()
		sch, creds, err := schoolSvc.Create(ctx, school.NewSchool{
			Name:         "De Regenboog",
			Type:         school.TypeBasisschool,
			StudentCount: 120,
			AdminName:    "Jan de Vries",
			AdminEmail:   "admin@deregenboog.nl",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, creds.Password)

		// the school deletion cascades to its students
		_, _, err = studentSvc.Create(ctx, sch.ID, student.NewStudent{FirstName: "Sven", LastName: "Bakker"})
		require.NoError(t, err)
		require.NoError(t, schoolSvc.Delete(ctx, sch.ID))
		students, err := studentSvc.Query(ctx, sch.ID, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, students)

		assert.NotNil(t, saver)
	})
	require.NoError(t, err)
}

func TestContainer_server(t *testing.T) {
	c := newTestContainer(t)

	err := c.Invoke(func(srv *echoapi.Server) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/i18n", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	require.NoError(t, err)
}

func TestContainer_offlineModeDisabled(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = EngineDummy
	conf.Local.Path = local.MemoryPath
	conf.Sync.EnableOfflineMode = false

	c := New(conf, "TEST")
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Invoke(func(monitor *offline.Monitor) {
		assert.Nil(t, monitor)
	}))
}

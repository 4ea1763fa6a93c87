package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/user"
)

type syncApi struct {
	queue   *offline.Queue
	syncer  *offline.Syncer
	monitor *offline.Monitor
	store   *learning.Store
	saver   *learning.AutoSaver
	tr      *i18n.Translator
}

func registerSyncAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := syncApi{
		queue:   s.deps.Queue,
		syncer:  s.deps.Syncer,
		monitor: s.deps.Monitor,
		store:   s.deps.Learning,
		saver:   s.deps.AutoSaver,
		tr:      s.deps.I18n,
	}

	sg := g.Group("/sync", jwt)
	sg.GET("", api.status)
	sg.POST("", api.sync, roleMiddleware(user.RoleTeacher))
}

type (
	SyncStatus struct {
		Online        bool       `json:"online"`
		Message       string     `json:"message"`
		Pending       int        `json:"pending"`
		LastSync      *time.Time `json:"last_sync"`
		LastDataSync  *time.Time `json:"last_data_sync"`
		AutoSavePause bool       `json:"autosave_paused"`
	}

	SyncResponse struct {
		offline.Result
		Message string `json:"message"`
	}
)

func (api *syncApi) online() bool {
	return api.monitor == nil || api.monitor.Online()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (api *syncApi) status(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}

	pending, err := api.queue.Len(reqCtx)
	if err != nil {
		return errors.Wrap(err, "counting queued items")
	}
	lastSync, err := api.syncer.LastSync(reqCtx)
	if err != nil {
		return errors.Wrap(err, "reading last sync time")
	}
	lastDataSync, err := api.store.LastSync(reqCtx, scope)
	if err != nil {
		return errors.Wrap(err, "reading last data sync time")
	}

	online := api.online()
	msg := "sync.offline"
	if online {
		msg = "sync.online"
	}
	return ctx.JSON(http.StatusOK, SyncStatus{
		Online:        online,
		Message:       api.tr.T(getLang(ctx), msg),
		Pending:       pending,
		LastSync:      timePtr(lastSync),
		LastDataSync:  timePtr(lastDataSync),
		AutoSavePause: api.saver.Paused(),
	})
}

// sync replays the offline queue and saves the learning data of the user at once.
func (api *syncApi) sync(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}

	res, err := api.syncer.Sync(reqCtx)
	if err != nil {
		return errors.Wrap(err, "replaying offline queue")
	}
	if _, err = api.saver.ManualSync(reqCtx, scope); err != nil {
		return errors.Wrap(err, "syncing learning data")
	}
	return ctx.JSON(http.StatusOK, SyncResponse{
		Result:  res,
		Message: api.tr.T(getLang(ctx), "sync.completed"),
	})
}

package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/user"
)

// maxImportSize bounds the body of a learning data import.
const maxImportSize = 32 << 20

type learningApi struct {
	store *learning.Store
	saver *learning.AutoSaver
	tr    *i18n.Translator
}

func registerLearningAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := learningApi{
		store: s.deps.Learning,
		saver: s.deps.AutoSaver,
		tr:    s.deps.I18n,
	}
	teacherOnly := roleMiddleware(user.RoleTeacher)

	lg := g.Group("/learning", jwt)
	lg.GET("", api.retrieve)
	lg.PUT("", api.update, teacherOnly)
	lg.DELETE("", api.clear, teacherOnly)
	lg.GET("/export", api.export)
	lg.POST("/import", api.importData, teacherOnly)
}

// learningScope returns the school whose data the user works on. Admins work on the global blob.
func learningScope(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	if claims.IsAdmin {
		return "", nil
	}
	return claims.SchoolID, nil
}

func (api *learningApi) retrieve(ctx echo.Context) error {
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}
	snap, err := api.saver.Get(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "loading learning data")
	}
	return ctx.JSON(http.StatusOK, snap)
}

// update replaces the working copy; it reaches the store on the next autosave.
func (api *learningApi) update(ctx echo.Context) error {
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}
	var snap learning.Snapshot
	if err = ctx.Bind(&snap); err != nil {
		return errors.Wrap(err, "binding to Snapshot")
	}

	api.saver.Update(scope, snap)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: api.tr.T(getLang(ctx), "learning.saved")})
}

func (api *learningApi) clear(ctx echo.Context) error {
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}
	if err = api.store.Clear(ctx.Request().Context(), scope); err != nil {
		return errors.Wrap(err, "clearing learning data")
	}
	api.saver.Forget(scope)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: api.tr.T(getLang(ctx), "learning.cleared")})
}

func (api *learningApi) export(ctx echo.Context) error {
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}
	data, err := api.store.Export(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "exporting learning data")
	}
	filename := "leerdata-" + data.ExportDate.Format("2006-01-02") + ".json"
	ctx.Response().Header().Set(echo.HeaderContentDisposition, attachment(filename))
	return ctx.JSON(http.StatusOK, data)
}

// importData replaces the data with an export, sent as the body or as the `file` of a multipart form.
func (api *learningApi) importData(ctx echo.Context) error {
	scope, err := learningScope(ctx)
	if err != nil {
		return err
	}

	var r io.Reader = ctx.Request().Body
	if fh, err := ctx.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening import file")
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxImportSize))
	if err != nil {
		return errors.Wrap(err, "reading import")
	}

	snap, err := api.saver.Import(ctx.Request().Context(), scope, data)
	if err != nil {
		return errors.Wrap(err, "importing learning data")
	}
	return ctx.JSON(http.StatusOK, ImportedLearningResponse{
		Snapshot: snap,
		Message:  api.tr.T(getLang(ctx), "learning.imported"),
	})
}

type ImportedLearningResponse struct {
	Snapshot learning.Snapshot `json:"data"`
	Message  string            `json:"message"`
}

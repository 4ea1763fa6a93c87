package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/user"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type schoolApi struct {
	svc      school.Service
	validate *validator.Validate
	tr       *i18n.Translator
}

func registerSchoolAPI(sg, dg *echo.Group, s *Server) {
	api := schoolApi{
		svc:      s.deps.SchoolSvc,
		validate: s.deps.Validate,
		tr:       s.deps.I18n,
	}

	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/stats", api.stats, adminMiddleware())
	sg.GET("/export", api.export, adminMiddleware())
	sg.GET("/types", api.queryTypes)

	// detail endpoints
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(user.RoleSchoolAdmin))
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/last-login", api.lastLogin)
}

func (api *schoolApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin {
		sch, err := api.svc.GetByID(ctx.Request().Context(), claims.SchoolID)
		if err != nil {
			if errors.Cause(err) == school.ErrNotFound {
				return ctx.JSON(http.StatusOK, []school.School{})
			}
			return errors.Wrap(err, "finding school by ID")
		}
		return ctx.JSON(http.StatusOK, []school.School{sch})
	}

	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schools, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, creds, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}

	lang := getLang(ctx)
	if sch.IsOffline {
		return ctx.JSON(http.StatusAccepted, SchoolCreatedResponse{
			School:  sch,
			Message: api.tr.T(lang, "schools.offline_pending"),
		})
	}
	return ctx.JSON(http.StatusCreated, SchoolCreatedResponse{
		School:      sch,
		Credentials: &creds,
		Message:     api.tr.T(lang, "schools.credentials_sent", i18n.Vars{"email": sch.AdminEmail}),
	})
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// only admins (de)activate schools
	if claims, err := getContextClaims(ctx); err == nil && !claims.IsAdmin && data.Status != "" {
		return errHttpForbidden
	}

	sch, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) lastLogin(ctx echo.Context) error {
	if err := api.svc.UpdateLastLogin(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "updating school last login")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) stats(ctx echo.Context) error {
	sum, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing school stats")
	}
	return ctx.JSON(http.StatusOK, sum)
}

// export sends the backup of every school, as JSON (default) or as a spreadsheet with `?format=xlsx`.
func (api *schoolApi) export(ctx echo.Context) error {
	data, err := api.svc.Export(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "exporting schools")
	}
	filename := "scholen-" + data.ExportDate.Format("2006-01-02")

	switch ctx.QueryParam("format") {
	case "", "json":
		ctx.Response().Header().Set(echo.HeaderContentDisposition, attachment(filename+".json"))
		return ctx.JSON(http.StatusOK, data)
	case "xlsx":
		var buf bytes.Buffer
		if err = sheetsvc.Write(&buf, sheetsvc.Sheet{Name: "Scholen", Rows: data.Table()}); err != nil {
			return errors.Wrap(err, "writing schools spreadsheet")
		}
		ctx.Response().Header().Set(echo.HeaderContentDisposition, attachment(filename+".xlsx"))
		return ctx.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
	}
	return echo.NewHTTPError(http.StatusBadRequest, "unsupported export format")
}

func (api *schoolApi) queryTypes(ctx echo.Context) error {
	lang := getLang(ctx)
	types := make([]school.Type, 0, len(school.Types))
	for _, t := range school.Types {
		types = append(types, school.Type{Name: api.tr.T(lang, "school_types."+t.Value), Value: t.Value})
	}
	return ctx.JSON(http.StatusOK, types)
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

type SchoolCreatedResponse struct {
	School      school.School            `json:"school"`
	Credentials *credentials.Credentials `json:"credentials,omitempty"`
	Message     string                   `json:"message"`
}

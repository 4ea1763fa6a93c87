package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/user"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
)

type studentApi struct {
	svc      student.Service
	validate *validator.Validate
	tr       *i18n.Translator
}

func registerStudentAPI(sg *echo.Group, s *Server) {
	api := studentApi{
		svc:      s.deps.StudentSvc,
		validate: s.deps.Validate,
		tr:       s.deps.I18n,
	}
	schoolAdmin := roleMiddleware(user.RoleSchoolAdmin)

	sg.GET("/students", api.query)
	sg.POST("/students", api.create, schoolAdmin)
	sg.POST("/students/import", api.importSheet, schoolAdmin)
	sg.GET("/students/import-template", api.importTemplate)
	sg.GET("/students/:studentId", api.retrieve)
	sg.PUT("/students/:studentId", api.update, schoolAdmin)
	sg.DELETE("/students/:studentId", api.destroy, schoolAdmin)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), ctx.Param("id"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, creds, err := api.svc.Create(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, StudentCreatedResponse{Student: st, Credentials: creds})
}

// importSheet creates a student per row of the first sheet of the `file` workbook.
// The optional `class_id` form value places them all in that class.
func (api *studentApi) importSheet(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return errInvalidFile
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer f.Close()

	rows, err := sheetsvc.Read(f)
	if err != nil {
		return errInvalidFile
	}

	res, err := api.svc.Import(ctx.Request().Context(), ctx.Param("id"), ctx.FormValue("class_id"), rows)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, ImportResponse{
		ImportResult: res,
		Message: api.tr.T(getLang(ctx), "students.imported", i18n.Vars{
			"imported": len(res.Imported),
			"failed":   len(res.Failed),
		}),
	})
}

func (api *studentApi) importTemplate(ctx echo.Context) error {
	var buf bytes.Buffer
	if err := sheetsvc.Write(&buf, sheetsvc.Sheet{Name: "Leerlingen", Rows: student.ImportTemplate()}); err != nil {
		return errors.Wrap(err, "writing import template")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, attachment("leerlingen-import.xlsx"))
	return ctx.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	StudentCreatedResponse struct {
		Student     student.Student         `json:"student"`
		Credentials credentials.Credentials `json:"credentials"`
	}

	ImportResponse struct {
		student.ImportResult
		Message string `json:"message"`
	}
)

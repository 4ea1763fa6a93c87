package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/credentials"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
)

type teacherApi struct {
	svc      teacher.Service
	validate *validator.Validate
}

func registerTeacherAPI(sg *echo.Group, s *Server) {
	api := teacherApi{
		svc:      s.deps.TeacherSvc,
		validate: s.deps.Validate,
	}
	schoolAdmin := roleMiddleware(user.RoleSchoolAdmin)

	sg.GET("/teachers", api.query)
	sg.POST("/teachers", api.create, schoolAdmin)
	sg.GET("/teachers/:teacherId", api.retrieve)
	sg.PUT("/teachers/:teacherId", api.update, schoolAdmin)
	sg.DELETE("/teachers/:teacherId", api.destroy, schoolAdmin)
}

func (api *teacherApi) query(ctx echo.Context) error {
	filter := new(teacher.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []teacher.Teacher{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	teachers, err := api.svc.Query(ctx.Request().Context(), ctx.Param("id"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []teacher.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *teacherApi) create(ctx echo.Context) error {
	var data teacher.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, creds, err := api.svc.Create(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, TeacherCreatedResponse{Teacher: t, Credentials: creds})
}

func (api *teacherApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), ctx.Param("teacherId"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) update(ctx echo.Context) error {
	var data teacher.UpdateTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), ctx.Param("teacherId"), data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), ctx.Param("teacherId")); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type TeacherCreatedResponse struct {
	Teacher     teacher.Teacher         `json:"teacher"`
	Credentials credentials.Credentials `json:"credentials"`
}

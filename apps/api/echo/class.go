package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/user"
)

type classApi struct {
	svc      class.Service
	validate *validator.Validate
}

// registerClassAPI registers the class endpoints on sg, the group scoped to the `:id` school.
func registerClassAPI(sg *echo.Group, s *Server) {
	api := classApi{
		svc:      s.deps.ClassSvc,
		validate: s.deps.Validate,
	}
	schoolAdmin := roleMiddleware(user.RoleSchoolAdmin)

	sg.GET("/classes", api.query)
	sg.POST("/classes", api.create, schoolAdmin)
	sg.GET("/classes/:classId", api.retrieve)
	sg.PUT("/classes/:classId", api.update, schoolAdmin)
	sg.DELETE("/classes/:classId", api.destroy, schoolAdmin)

	sg.GET("/assignments", api.queryAssignments)
	sg.POST("/assignments", api.assign, schoolAdmin)
	sg.DELETE("/assignments", api.unassign, schoolAdmin)
}

func (api *classApi) query(ctx echo.Context) error {
	filter := new(class.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []class.Class{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.Query(ctx.Request().Context(), ctx.Param("id"), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) update(ctx echo.Context) error {
	var data class.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), ctx.Param("classId"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), ctx.Param("classId")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) queryAssignments(ctx echo.Context) error {
	assignments, err := api.svc.Assignments(ctx.Request().Context(), class.AssignmentFilter{
		SchoolID:  ctx.Param("id"),
		ClassID:   ctx.QueryParam("class_id"),
		TeacherID: ctx.QueryParam("teacher_id"),
	})
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []class.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *classApi) assign(ctx echo.Context) error {
	var data class.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.AssignTeacher(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *classApi) unassign(ctx echo.Context) error {
	classID, teacherID := ctx.QueryParam("class_id"), ctx.QueryParam("teacher_id")
	if classID == "" || teacherID == "" {
		return errHttpNotFound
	}
	if err := api.svc.UnassignTeacher(ctx.Request().Context(), ctx.Param("id"), classID, teacherID); err != nil {
		return errors.Wrap(err, "unassigning teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

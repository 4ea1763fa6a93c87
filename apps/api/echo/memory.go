package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/user"
)

type memoryApi struct {
	svc      memory.Service
	validate *validator.Validate
}

func registerMemoryAPI(sg *echo.Group, s *Server) {
	api := memoryApi{
		svc:      s.deps.MemorySvc,
		validate: s.deps.Validate,
	}

	// teachers keep the memories of their students
	teacherOnly := roleMiddleware(user.RoleTeacher)

	sg.GET("/memory-skills", api.querySkills)
	sg.GET("/students/:studentId/memories", api.query)
	sg.POST("/students/:studentId/memories", api.create, teacherOnly)
	sg.GET("/students/:studentId/memories/:memoryId", api.retrieve)
	sg.PUT("/students/:studentId/memories/:memoryId", api.update, teacherOnly)
	sg.DELETE("/students/:studentId/memories/:memoryId", api.destroy, teacherOnly)
}

func (api *memoryApi) querySkills(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, memory.CaselSkills)
}

func (api *memoryApi) query(ctx echo.Context) error {
	memories, err := api.svc.Query(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "querying memories")
	}
	if memories == nil {
		memories = []memory.Memory{}
	}
	return ctx.JSON(http.StatusOK, memories)
}

// create accepts a JSON body, or a multipart form with an optional `file` attachment.
func (api *memoryApi) create(ctx echo.Context) error {
	var data memory.NewMemory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMemory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	upload, closer, err := uploadFile(ctx, "file")
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	m, err := api.svc.Create(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"), data, upload)
	if err != nil {
		return errors.Wrap(err, "creating memory")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *memoryApi) retrieve(ctx echo.Context) error {
	m, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"), ctx.Param("memoryId"))
	if err != nil {
		return errors.Wrap(err, "finding memory by ID")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memoryApi) update(ctx echo.Context) error {
	var data memory.UpdateMemory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMemory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	upload, closer, err := uploadFile(ctx, "file")
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	m, err := api.svc.Update(
		ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"), ctx.Param("memoryId"), data, upload,
	)
	if err != nil {
		return errors.Wrap(err, "updating memory")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memoryApi) destroy(ctx echo.Context) error {
	err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentId"), ctx.Param("memoryId"))
	if err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// serveFile streams a stored attachment: /files/<bucket>/<schoolID>/<path>.
// The token may be given as `?token=` so that files can be linked to directly.
func (s *Server) serveFile(ctx echo.Context) error {
	if ctx.Param("bucket") != core.BucketStudentFiles {
		return errHttpNotFound
	}
	filePath := strings.TrimPrefix(ctx.Param("*"), "/")
	schoolID := strings.SplitN(filePath, "/", 2)[0]
	if schoolID == "" {
		return errHttpNotFound
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin && claims.SchoolID != schoolID {
		return errHttpForbidden
	}

	rc, info, err := s.deps.MemorySvc.OpenFile(ctx.Request().Context(), schoolID, filePath)
	if err != nil {
		return errors.Wrap(err, "opening memory file")
	}
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, inline(info.Name))
	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Stream(http.StatusOK, contentType, rc)
}

func inline(filename string) string {
	return strings.Replace(attachment(filename), "attachment", "inline", 1)
}

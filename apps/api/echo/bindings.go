package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/memory"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=a,-b`: a ascending, then b descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// uploadFile returns the multipart file of the form field name, or nil when none was sent.
// The caller closes the returned file.
func uploadFile(ctx echo.Context, name string) (*memory.Upload, io.Closer, error) {
	fh, err := ctx.FormFile(name)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(err, "reading form file")
	}
	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*memory.Upload, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening form file")
	}
	return &memory.Upload{Name: fh.Filename, Size: fh.Size, Body: f}, f, nil
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

package echoapi

import (
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/class"
	"github.com/schoolhub/schoolhub/core/learning"
	"github.com/schoolhub/schoolhub/core/memory"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/student"
	"github.com/schoolhub/schoolhub/core/teacher"
	"github.com/schoolhub/schoolhub/core/user"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
	"github.com/schoolhub/schoolhub/storage/files"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errSessionExpired       = echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errCSRFInvalid          = echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
	errInvalidFile          = echo.NewHTTPError(http.StatusBadRequest, "invalid file")

	// httpErrKeys maps our HTTP errors to their i18n message.
	httpErrKeys = map[*echo.HTTPError]string{
		errUnauthorized:         "auth.unauthorized",
		errAuthenticationFailed: "auth.invalid_credentials",
		errAccountDeactivated:   "auth.account_deactivated",
		errRefreshExpired:       "auth.refresh_expired",
		errSessionExpired:       "auth.session_expired",
		errHttpForbidden:        "auth.forbidden",
		errHttpNotFound:         "errors.not_found",
		errCSRFInvalid:          "auth.csrf_invalid",
		errInvalidFile:          "errors.invalid_file",
	}

	notFoundErrs = []error{
		user.ErrNotFound,
		school.ErrNotFound,
		class.ErrNotFound,
		class.ErrAssignmentNotFound,
		teacher.ErrNotFound,
		student.ErrNotFound,
		memory.ErrNotFound,
		files.ErrInvalidPath,
	}
)

func isNotFound(cause error) bool {
	for _, nfErr := range notFoundErrs {
		if errors.Is(cause, nfErr) {
			return true
		}
	}
	return os.IsNotExist(cause)
}

// toHTTPError converts the domain errors the handlers let through.
func toHTTPError(err error) (*echo.HTTPError, bool) {
	cause := errors.Cause(err)
	switch {
	case isNotFound(cause):
		return errHttpNotFound, true
	case cause == memory.ErrInvalidFile, cause == sheetsvc.ErrNoSheet:
		return errInvalidFile, true
	case cause == learning.ErrInvalidImport:
		return echo.NewHTTPError(http.StatusBadRequest, cause.Error()), true
	case cause == offline.ErrSyncInProgress, cause == learning.ErrReloadInProgress:
		return echo.NewHTTPError(http.StatusConflict, cause.Error()), true
	}
	return nil, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a *core.ShutdownError is caught.
func newAppHTTPErrorHandler(deps ServerDeps, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}
		lang := getLang(ctx)

		if herr, ok := toHTTPError(err); ok {
			err = herr
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
			if key, ok := httpErrKeys[origErr]; ok {
				message = deps.I18n.T(lang, key)
			}
		case validator.ValidationErrors:
			trans := core.GetTranslator(deps.Uni, lang)
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(trans)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if fldErrs := origErr.FieldMap(); fldErrs != nil {
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch {
			case origErr == class.ErrAssignmentExists, origErr == class.ErrTeacherNotFound:
				code = http.StatusBadRequest
				message = map[string]string{"teacher_id": origErr.Error()}
			case core.IsUnavailable(err):
				code = http.StatusServiceUnavailable
				message = deps.I18n.T(lang, "errors.unavailable")
				deps.Logger.Warn("remote store unavailable", err)
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = deps.I18n.T(lang, "errors.internal")

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				deps.Logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/auth"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/user"
)

const (
	contextLangKey = "lang"

	csrfCookie = "csrf_token"
	csrfHeader = "X-CSRF-Token"

	headerAcceptLanguage = "Accept-Language"
)

// roleMiddleware lets through the users whose roles grant role.
func roleMiddleware(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if user.RolesGrant(claims.Roles, role) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

// schoolScopeMiddleware restricts the `:id` school to admins and the users of that school.
func schoolScopeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin || (claims.SchoolID != "" && claims.SchoolID == ctx.Param("id")) {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// languageMiddleware picks the response language from `?lang=`, then Accept-Language.
func (s *Server) languageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		lang := strings.ToLower(ctx.QueryParam("lang"))
		if !s.deps.I18n.Supported(lang) {
			lang = s.deps.I18n.Detect(ctx.Request().Header.Get(headerAcceptLanguage))
		}
		ctx.Set(contextLangKey, lang)
		return next(ctx)
	}
}

func getLang(ctx echo.Context) string {
	if lang, ok := ctx.Get(contextLangKey).(string); ok && lang != "" {
		return lang
	}
	return i18n.DefaultLanguage
}

// csrfMiddleware checks the double submitted token of the unsafe requests carrying the csrf cookie.
func csrfMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		switch ctx.Request().Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return next(ctx)
		}
		cookie, err := ctx.Cookie(csrfCookie)
		if err != nil {
			return next(ctx)
		}
		if !auth.CompareTokens(ctx.Request().Header.Get(csrfHeader), cookie.Value) {
			return errCSRFInvalid
		}
		return next(ctx)
	}
}

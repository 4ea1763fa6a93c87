package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core/field"
	"github.com/schoolhub/schoolhub/core/i18n"
)

type formApi struct {
	tr *i18n.Translator
}

// registerFormAPI registers the public endpoints used by the forms of the frontend.
func registerFormAPI(g *echo.Group, s *Server) {
	api := formApi{tr: s.deps.I18n}

	g.POST("/validate/:field", api.validateField)
	g.GET("/i18n", api.languages)
	g.GET("/i18n/:lang", api.pack)
}

type (
	ValidateRequest struct {
		Value string `json:"value"`
	}

	ValidateResponse struct {
		field.Result
		Strength *PasswordStrength `json:"strength,omitempty"`
	}

	PasswordStrength struct {
		field.Strength
		Text string `json:"text"`
	}

	LanguagesResponse struct {
		Languages []string `json:"languages"`
		Default   string   `json:"default"`
	}
)

// validateField runs the named check on `{"value": ...}`; passwords also get a strength meter.
func (api *formApi) validateField(ctx echo.Context) error {
	name := ctx.Param("field")
	rule, found := field.Check(name)
	if !found {
		return errHttpNotFound
	}

	var data ValidateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ValidateRequest")
	}

	resp := ValidateResponse{Result: rule(data.Value)}
	if name == "password" {
		strength := field.PasswordStrength(data.Value)
		resp.Strength = &PasswordStrength{
			Strength: strength,
			Text:     api.tr.T(getLang(ctx), "password.strength."+strength.Label),
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *formApi) languages(ctx echo.Context) error {
	langs := make([]string, 0, len(i18n.Languages))
	for _, lang := range i18n.Languages {
		if api.tr.Supported(lang) {
			langs = append(langs, lang)
		}
	}
	return ctx.JSON(http.StatusOK, LanguagesResponse{Languages: langs, Default: i18n.DefaultLanguage})
}

func (api *formApi) pack(ctx echo.Context) error {
	pack := api.tr.Pack(ctx.Param("lang"))
	if pack == nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, pack)
}

package school

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/schoolhub/schoolhub/core"
)

var (
	schoolTypeTag   = "schooltype"
	schoolTypeTexts = core.Texts{"en": "invalid school type", "nl": "ongeldig schooltype"}
)

// InitValidators registers the school validators and their translations.
func InitValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = validate.RegisterValidation(schoolTypeTag, schoolTypeValidation)
	core.RegisterCustomTranslation(validate, uni, schoolTypeTag, schoolTypeTexts)
}

// schoolTypeValidation checks that the school type is one of Types
func schoolTypeValidation(fl validator.FieldLevel) bool {
	return isType(fl.Field().String())
}

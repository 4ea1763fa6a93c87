package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/nl"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	fr_translations "github.com/go-playground/validator/v10/translations/fr"
	nl_translations "github.com/go-playground/validator/v10/translations/nl"

	"github.com/schoolhub/schoolhub/core/field"
)

// Languages lists the supported languages, default first.
var Languages = []string{"nl", "en", "de", "fr"}

// Texts holds the text of a validation message per language. "en" is the fallback.
type Texts map[string]string

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w.]+$`)
	alphaNumUnderTexts = Texts{
		"en": "only alphanumeric characters, dots and underscores are allowed",
		"nl": "alleen letters, cijfers, punten en underscores zijn toegestaan",
	}

	brinTag   = "brin"
	brinTexts = Texts{"en": "must be 2 digits followed by 2 letters (e.g. 01AB)", "nl": field.MsgBRIN}

	postcodeTag   = "postcode"
	postcodeTexts = Texts{"en": "must be 4 digits followed by 2 letters (e.g. 1234 AB)", "nl": field.MsgPostalCode}

	nlPhoneTag   = "nlphone"
	nlPhoneTexts = Texts{"en": "invalid phone number", "nl": field.MsgPhone}

	phoneCharsTag   = "phonechars"
	phoneCharsRegex = regexp.MustCompile(`^[0-9\-\+\s\(\)]+$`)
	phoneCharsTexts = Texts{
		"en": "may only contain digits, spaces and + - ( )",
		"nl": "mag alleen cijfers, spaties en + - ( ) bevatten",
	}

	personNameTag   = "personname"
	personNameTexts = Texts{"en": "may only contain letters, spaces, apostrophes and hyphens", "nl": field.MsgNameChars}

	dateTag   = "date"
	dateTexts = Texts{"en": "must be a valid date (DD-MM-YYYY or YYYY-MM-DD)", "nl": field.MsgDate}

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredTexts   = Texts{"en": "this field is required", "nl": "dit veld is verplicht"}
)

// NewUniversalTranslator returns the translator holding every supported language. Dutch is the fallback.
func NewUniversalTranslator() *ut.UniversalTranslator {
	_nl := nl.New()
	return ut.New(_nl, _nl, en.New(), de.New(), fr.New())
}

// GetTranslator returns the translator of lang, falling back to the default language.
func GetTranslator(uni *ut.UniversalTranslator, lang string) ut.Translator {
	trans, _ := uni.GetTranslator(lang)
	return trans
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = nl_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, "nl"))
	_ = en_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, "en"))
	_ = en_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, "de"))
	_ = fr_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, "fr"))

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, uni, alphaNumUnderTag, alphaNumUnderTexts)

	_ = validate.RegisterValidation(brinTag, fieldCheckValidation(field.BRIN))
	RegisterCustomTranslation(validate, uni, brinTag, brinTexts)

	_ = validate.RegisterValidation(postcodeTag, fieldCheckValidation(field.PostalCode))
	RegisterCustomTranslation(validate, uni, postcodeTag, postcodeTexts)

	_ = validate.RegisterValidation(nlPhoneTag, fieldCheckValidation(field.Phone))
	RegisterCustomTranslation(validate, uni, nlPhoneTag, nlPhoneTexts)

	_ = validate.RegisterValidation(phoneCharsTag, phoneCharsValidation)
	RegisterCustomTranslation(validate, uni, phoneCharsTag, phoneCharsTexts)

	_ = validate.RegisterValidation(personNameTag, fieldCheckValidation(field.Name))
	RegisterCustomTranslation(validate, uni, personNameTag, personNameTexts)

	_ = validate.RegisterValidation(dateTag, fieldCheckValidation(field.Date))
	RegisterCustomTranslation(validate, uni, dateTag, dateTexts)

	RegisterCustomTranslation(validate, uni, requiredTag, requiredTexts, true)
	RegisterCustomTranslation(validate, uni, requiredWithTag, requiredTexts, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag in every language.
func RegisterCustomTranslation(validate *validator.Validate, uni *ut.UniversalTranslator, tag string, texts Texts, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	for _, lang := range Languages {
		text, ok := texts[lang]
		if !ok {
			text = texts["en"]
		}
		_ = validate.RegisterTranslation(
			tag, GetTranslator(uni, lang),
			func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			},
		)
	}
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters, dots and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// phoneCharsValidation only allows the characters found in a written phone number.
func phoneCharsValidation(fl validator.FieldLevel) bool {
	return phoneCharsRegex.MatchString(fl.Field().String())
}

// fieldCheckValidation adapts a field check to a validator func.
func fieldCheckValidation(check func(string) field.Result) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return check(fl.Field().String()).Valid
	}
}

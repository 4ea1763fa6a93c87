package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/schoolhub/schoolhub/core"
)

var (
	allRolesTag   = "allroles"
	allRolesTexts = core.Texts{"en": "invalid roles", "nl": "ongeldige rollen"}

	usernameOrEmailTag   = "username_or_email"
	usernameOrEmailTexts = core.Texts{
		"en": "one of username or email is required",
		"nl": "gebruikersnaam of e-mailadres is verplicht",
	}

	// password policy
	pwdMinLen      = 8
	pwdMinLenTag   = "pwdminlen"
	pwdMinLenTexts = core.Texts{
		"en": fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
		"nl": fmt.Sprintf("wachtwoord moet minimaal %d karakters bevatten", pwdMinLen),
	}

	pwdNoSpaceTag   = "pwdnospace"
	pwdNoSpaceTexts = core.Texts{"en": "password must not contain whitespace", "nl": "wachtwoord mag geen spaties bevatten"}

	pwdNotAllNumTag   = "pwdnotallnum"
	pwdNotAllNumTexts = core.Texts{"en": "password cannot be entirely numeric", "nl": "wachtwoord mag niet alleen uit cijfers bestaan"}

	pwdComplexityTag   = "pwdcplx"
	pwdComplexityTexts = core.Texts{
		"en": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		"nl": "wachtwoord moet minimaal 1 hoofdletter, 1 kleine letter, 1 cijfer en 1 speciaal teken bevatten",
	}
	specialRegex = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim       = .7
	pwdAttrSimTag   = "pwdtoosim"
	pwdAttrSimTexts = core.Texts{
		"en": "password cannot be similar to user attributes",
		"nl": "wachtwoord lijkt te veel op de gebruikersgegevens",
	}

	pwdNoCommonTag   = "pwdnocommon"
	pwdNoCommonTexts = core.Texts{"en": "password is too common", "nl": "wachtwoord is te algemeen"}

	commonPasswordsPath = "assets/common-passwords.txt.gz"
	commonPasswords     []string
	commonPasswordsMu   sync.RWMutex
	builtinCommon       = []string{
		"password", "123456", "123456789", "qwerty", "abc123",
		"password123", "admin", "letmein", "welcome", "1234567890",
	}
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, uni, allRolesTag, allRolesTexts)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, uni, usernameOrEmailTag, usernameOrEmailTexts)
	core.RegisterCustomTranslation(validate, uni, pwdMinLenTag, pwdMinLenTexts)
	core.RegisterCustomTranslation(validate, uni, pwdNoSpaceTag, pwdNoSpaceTexts)
	core.RegisterCustomTranslation(validate, uni, pwdNotAllNumTag, pwdNotAllNumTexts)
	core.RegisterCustomTranslation(validate, uni, pwdComplexityTag, pwdComplexityTexts)
	core.RegisterCustomTranslation(validate, uni, pwdAttrSimTag, pwdAttrSimTexts)
	core.RegisterCustomTranslation(validate, uni, pwdNoCommonTag, pwdNoCommonTexts)
}

// LoadCommonPasswords loads the gzipped common passwords list found in fsys.
// The built-in list is always loaded.
func LoadCommonPasswords(fsys fs.FS, logger core.Logger) {
	pwds := make([]string, 0, 20000)
	pwds = append(pwds, builtinCommon...)

	if file, err := fsys.Open(commonPasswordsPath); err == nil {
		//goland:noinspection GoUnhandledErrorResult
		defer file.Close()
		if gzRdr, err := gzip.NewReader(file); err == nil {
			scanner := bufio.NewScanner(gzRdr)
			for scanner.Scan() {
				if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
					pwds = append(pwds, strings.ToLower(pwd))
				}
			}
			if err = scanner.Err(); err != nil {
				logger.Error(fmt.Sprintf("user.LoadCommonPasswords: %v", err), err)
			}
		} else {
			logger.Error(fmt.Sprintf("user.LoadCommonPasswords: %v", err), err)
		}
	} else {
		logger.Warn(fmt.Sprintf("user.LoadCommonPasswords: %v", err))
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()

	list := commonPasswords
	if list == nil {
		list = builtinCommon
		for _, common := range list {
			if pwd == common {
				return true
			}
		}
		return false
	}
	if idx := sort.SearchStrings(list, pwd); idx < len(list) {
		return list[idx] == pwd
	}
	return false
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		for _, role := range roles {
			if _, found := rolePriorities[role]; !found {
				return false
			}
		}
		return true
	}
	return false
}

// userStructValidation does struct level validation on NewUser, UpdateUser and ResetUserPassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validateUsernameAndEmail(usr, sl)
		validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
		}
	case ResetUserPassword:
		if usr.Password != "" {
			validatePassword(usr.Password, "", "", "", sl)
		}
	}
}

// validateUsernameAndEmail checks that one of Username or Email is provided
func validateUsernameAndEmail(nu NewUser, sl validator.StructLevel) {
	if len(nu.Username) == 0 && len(nu.Email) == 0 {
		sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	if tag := passwordPolicyViolation(pwd, name, uname, email); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// passwordPolicyViolation returns the tag of the first violated password rule, or "".
func passwordPolicyViolation(pwd, name, uname, email string) string {
	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	chars := []rune(pwd)
	pwdLen := len(chars)
	if pwdLen < pwdMinLen {
		return pwdMinLenTag
	}
	for _, char := range chars {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		return pwdNotAllNumTag
	}

	hasSpecial := specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && digitCount > 0 && hasSpecial) {
		return pwdComplexityTag
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(strings.ToLower(usrAttr), "")).QuickRatio()
	}
	if getRatio(pwd, name) >= pwdMaxSim ||
		getRatio(pwd, uname) >= pwdMaxSim ||
		getRatio(pwd, email) >= pwdMaxSim {
		return pwdAttrSimTag
	}

	if isCommonPassword(strings.ToLower(pwd)) {
		return pwdNoCommonTag
	}
	return ""
}

var pwdRuleTexts = map[string]core.Texts{
	pwdMinLenTag:     pwdMinLenTexts,
	pwdNoSpaceTag:    pwdNoSpaceTexts,
	pwdNotAllNumTag:  pwdNotAllNumTexts,
	pwdComplexityTag: pwdComplexityTexts,
	pwdAttrSimTag:    pwdAttrSimTexts,
	pwdNoCommonTag:   pwdNoCommonTexts,
}

// CheckPasswordPolicy returns the first password rule pwd breaks for usr, in English, or nil.
func CheckPasswordPolicy(pwd string, usr User) error {
	tag := passwordPolicyViolation(pwd, usr.Name, usr.Username, usr.Email)
	if tag == "" {
		return nil
	}
	return errors.New(pwdRuleTexts[tag]["en"])
}

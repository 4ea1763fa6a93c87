package field

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	PasswordMinLen = 8
	PasswordMaxLen = 128
)

var passwordSpecialRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

// Strength labels, lowest first. They are i18n keys under `password.strength`.
var StrengthLabels = []string{"very_weak", "weak", "fair", "strong", "very_strong"}

type Strength struct {
	Score      int    `json:"score"` // 0 - 5
	Percentage int    `json:"percentage"`
	Label      string `json:"label"`
}

// PasswordStrength scores a password: one point per satisfied rule
// (length, uppercase, lowercase, digit, special character).
func PasswordStrength(pwd string) Strength {
	var score int
	if utf8.RuneCountInString(pwd) >= PasswordMinLen {
		score++
	}
	if strings.IndexFunc(pwd, unicode.IsUpper) >= 0 {
		score++
	}
	if strings.IndexFunc(pwd, unicode.IsLower) >= 0 {
		score++
	}
	if strings.IndexFunc(pwd, unicode.IsDigit) >= 0 {
		score++
	}
	if passwordSpecialRegex.MatchString(pwd) {
		score++
	}

	idx := score - 1
	if idx < 0 {
		idx = 0
	}
	return Strength{
		Score:      score,
		Percentage: score * 100 / 5,
		Label:      StrengthLabels[idx],
	}
}

// Password checks the length and complexity of a password.
func Password(pwd string) Result {
	if pwd == "" {
		return fail(MsgRequired)
	}
	n := utf8.RuneCountInString(pwd)
	if n < PasswordMinLen {
		return fail(MsgPasswordMin)
	}
	if n > PasswordMaxLen {
		return fail(MsgPasswordMax)
	}
	if PasswordStrength(pwd).Score < 5 {
		return fail(MsgPasswordWeak)
	}
	return Result{Valid: true}
}

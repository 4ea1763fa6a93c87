// Package field holds the form field checks shared by the API and the validator tags:
// BRIN numbers, Dutch postal codes and phone numbers, e-mail addresses, names, passwords and dates.
package field

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Result is the outcome of a check. Value holds the normalised input.
type Result struct {
	Valid      bool   `json:"valid"`
	Value      string `json:"value,omitempty"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func ok(value string) Result        { return Result{Valid: true, Value: value} }
func fail(msg string) Result        { return Result{Message: msg} }
func failWith(v, msg string) Result { return Result{Value: v, Message: msg} }

var (
	brinRegex       = regexp.MustCompile(`^[0-9]{2}[A-Z]{2}$`)
	postalCodeRegex = regexp.MustCompile(`^[1-9][0-9]{3}[A-Z]{2}$`)
	emailRegex      = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	nameRegex       = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s'-]+$`)
	digitsRegex     = regexp.MustCompile(`\D`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	emailTypos = map[string]string{
		"gmai.com":    "gmail.com",
		"gmial.com":   "gmail.com",
		"yahooo.com":  "yahoo.com",
		"hotmial.com": "hotmail.com",
	}
)

// Messages
const (
	MsgRequired     = "Dit veld is verplicht"
	MsgBRIN         = "BRIN nummer moet bestaan uit 2 cijfers gevolgd door 2 letters (bijv. 01AB)"
	MsgPostalCode   = "Postcode moet bestaan uit 4 cijfers gevolgd door 2 letters (bijv. 1234 AB)"
	MsgPhone        = "Ongeldig telefoonnummer"
	MsgEmail        = "Ongeldig e-mailadres"
	MsgNameLength   = "Naam moet tussen 2 en 50 karakters lang zijn"
	MsgNameChars    = "Naam mag alleen letters, spaties, apostroffen en koppeltekens bevatten"
	MsgDate         = "Ongeldige datum (gebruik DD-MM-JJJJ of JJJJ-MM-DD)"
	MsgURL          = "Ongeldige URL"
	MsgNumber       = "Ongeldig getal"
	MsgNoDecimals   = "Decimalen zijn niet toegestaan"
	MsgPasswordMin  = "Wachtwoord moet minimaal 8 karakters lang zijn"
	MsgPasswordMax  = "Wachtwoord mag maximaal 128 karakters lang zijn"
	MsgPasswordWeak = "Wachtwoord moet een hoofdletter, kleine letter, cijfer en speciaal teken bevatten"
)

// Required fails on empty or whitespace-only input.
func Required(s string) Result {
	s = strings.TrimSpace(s)
	if s == "" {
		return fail(MsgRequired)
	}
	return ok(s)
}

// BRIN validates a Dutch school registration number: 2 digits followed by 2 letters.
func BRIN(s string) Result {
	v := strings.ToUpper(whitespaceRegex.ReplaceAllString(s, ""))
	if v == "" {
		return fail(MsgRequired)
	}
	if !brinRegex.MatchString(v) {
		return failWith(v, MsgBRIN)
	}
	return ok(v)
}

// PostalCode validates a Dutch postal code and formats it as "1234 AB".
func PostalCode(s string) Result {
	v := strings.ToUpper(whitespaceRegex.ReplaceAllString(s, ""))
	if v == "" {
		return fail(MsgRequired)
	}
	if !postalCodeRegex.MatchString(v) {
		return failWith(v, MsgPostalCode)
	}
	return ok(v[:4] + " " + v[4:])
}

// Phone validates a Dutch phone number and formats it.
//   - 0031 or 31 followed by 9 digits: "+31 X XXXX XXXX"
//   - mobile (06 + 8 digits): "06 XXXX XXXX"
//   - landline (0 + 9 digits): "0XX XXX XXXX"
func Phone(s string) Result {
	digits := digitsRegex.ReplaceAllString(s, "")
	if digits == "" {
		return fail(MsgRequired)
	}

	international := func(national string) Result {
		return ok(fmt.Sprintf("+31 %s %s %s", national[:1], national[1:5], national[5:]))
	}
	switch {
	case strings.HasPrefix(digits, "0031") && len(digits) == 13:
		return international(digits[4:])
	case strings.HasPrefix(digits, "31") && len(digits) == 11:
		return international(digits[2:])
	case strings.HasPrefix(digits, "06") && len(digits) == 10:
		return ok(fmt.Sprintf("06 %s %s", digits[2:6], digits[6:]))
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return ok(fmt.Sprintf("%s %s %s", digits[:3], digits[3:6], digits[6:]))
	}
	return failWith(digits, MsgPhone)
}

// Email validates an e-mail address, lowercases it and suggests a fix for common domain typos.
func Email(s string) Result {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return fail(MsgRequired)
	}
	if !emailRegex.MatchString(v) {
		return failWith(v, MsgEmail)
	}
	res := ok(v)
	if at := strings.LastIndex(v, "@"); at > 0 {
		if fix, found := emailTypos[v[at+1:]]; found {
			res.Suggestion = v[:at+1] + fix
		}
	}
	return res
}

// Name validates a person name (2-50 characters) and title-cases it.
func Name(s string) Result {
	v := whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
	if v == "" {
		return fail(MsgRequired)
	}
	if n := utf8.RuneCountInString(v); n < 2 || n > 50 {
		return failWith(v, MsgNameLength)
	}
	if !nameRegex.MatchString(v) {
		return failWith(v, MsgNameChars)
	}
	return ok(titleCase(v))
}

func titleCase(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range strings.ToLower(s) {
		if upperNext && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
		if r == ' ' || r == '-' {
			upperNext = true
		}
	}
	return b.String()
}

// URL validates an absolute http(s) URL.
func URL(s string) Result {
	v := strings.TrimSpace(s)
	if v == "" {
		return fail(MsgRequired)
	}
	u, err := url.ParseRequestURI(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failWith(v, MsgURL)
	}
	return ok(v)
}

// Number validates a number within [min, max].
func Number(s string, min, max float64, allowDecimals bool) Result {
	v := strings.TrimSpace(s)
	if v == "" {
		return fail(MsgRequired)
	}
	n, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return failWith(v, MsgNumber)
	}
	if !allowDecimals && n != math.Trunc(n) {
		return failWith(v, MsgNoDecimals)
	}
	if n < min {
		return failWith(v, fmt.Sprintf("Waarde moet minimaal %s zijn", strconv.FormatFloat(min, 'f', -1, 64)))
	}
	if n > max {
		return failWith(v, fmt.Sprintf("Waarde mag maximaal %s zijn", strconv.FormatFloat(max, 'f', -1, 64)))
	}
	return ok(strconv.FormatFloat(n, 'f', -1, 64))
}

var dateLayouts = []string{"02-01-2006", "2006-01-02"}

// Date validates a DD-MM-YYYY or YYYY-MM-DD date. The normalised value is YYYY-MM-DD.
// Out of range days (31-02-2024) are rejected.
func Date(s string) Result {
	v := strings.TrimSpace(s)
	if v == "" {
		return fail(MsgRequired)
	}
	if t, err := ParseDate(v); err == nil {
		return ok(t.Format("2006-01-02"))
	}
	return failWith(v, MsgDate)
}

// ParseDate parses a DD-MM-YYYY or YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

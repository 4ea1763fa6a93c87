package auth

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

const (
	maxInputLen    = 255
	minPasswordLen = 6
)

var (
	ErrIdentifierRequired = errors.New("username or email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")

	htmlReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"/", "&#x2F;",
	)
)

// Credentials is a login attempt.
type Credentials struct {
	Username string `json:"username"` // username or email
	Password string `json:"password"`
}

// Sanitize trims the identifier, removes angle brackets, caps it at 255 characters and lowers it.
// The password is left untouched.
func (c *Credentials) Sanitize() {
	c.Username = strings.ToLower(CleanInput(c.Username))
}

// Validate returns a *core.ValidationError listing every invalid field.
func (c Credentials) Validate() error {
	var flds []core.FieldError
	if c.Username == "" {
		flds = append(flds, core.FieldError{Field: "username", Error: ErrIdentifierRequired.Error()})
	}
	switch {
	case c.Password == "":
		flds = append(flds, core.FieldError{Field: "password", Error: ErrPasswordRequired.Error()})
	case utf8.RuneCountInString(c.Password) < minPasswordLen:
		flds = append(flds, core.FieldError{Field: "password", Error: ErrPasswordTooShort.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// CleanInput trims s, removes '<' and '>' and cuts it at 255 runes.
func CleanInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	if utf8.RuneCountInString(s) > maxInputLen {
		s = string([]rune(s)[:maxInputLen])
	}
	return s
}

// SanitizeInput HTML-escapes s.
func SanitizeInput(s string) string {
	return htmlReplacer.Replace(s)
}

// LockoutMessage tells the user how long to wait, in minutes rounded up.
func LockoutMessage(wait time.Duration) string {
	minutes := int(math.Ceil(wait.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Too many login attempts. Try again in %d minutes.", minutes)
}

// FormatDuration renders d with its two most significant units: "2d 3h", "1h 5m", "4m 10s", "9s".
func FormatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Initials returns the upper-cased first letters of the first two words of name, or of email when name is empty.
func Initials(name, email string) string {
	src := strings.TrimSpace(name)
	if src == "" {
		src = strings.TrimSpace(email)
	}
	var b strings.Builder
	for _, word := range strings.Fields(src) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteString(strings.ToUpper(string(r)))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	return b.String()
}

// DisplayName returns name, or the local part of email.
func DisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

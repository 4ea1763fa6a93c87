// Package credentials generates the login credentials handed out when a school, teacher or student is created.
package credentials

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

const (
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower   = "abcdefghijklmnopqrstuvwxyz"
	digits  = "0123456789"
	symbols = "!@#$%"

	SchoolPasswordLen  = 12
	TeacherPasswordLen = 10
	StudentPasswordLen = 8
)

var (
	nonAlphaNumRegex = regexp.MustCompile(`[^a-z0-9]`)
	nonAlphaRegex    = regexp.MustCompile(`[^a-z]`)
)

// Credentials are returned in plain text exactly once, right after creation.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

// UsernameFunc generates a candidate username. attempt is 0 on the first call and grows on every collision.
type UsernameFunc func(attempt int) string

// SchoolUsername returns `<name>_admin` where name is the first 8 alphanumeric characters of the school name.
// Collisions append the attempt number to the name.
func SchoolUsername(schoolName string) UsernameFunc {
	clean := truncate(nonAlphaNumRegex.ReplaceAllString(strings.ToLower(schoolName), ""), 8)
	if clean == "" {
		clean = "school"
	}
	return func(attempt int) string {
		if attempt == 0 {
			return clean + "_admin"
		}
		return clean + strconv.Itoa(attempt) + "_admin"
	}
}

// TeacherUsername returns `<first initial>.<last name><1-99>`; every attempt re-rolls the number.
func TeacherUsername(firstName, lastName string) UsernameFunc {
	first := truncate(nonAlphaRegex.ReplaceAllString(strings.ToLower(firstName), ""), 1)
	last := truncate(nonAlphaRegex.ReplaceAllString(strings.ToLower(lastName), ""), 8)
	return func(int) string {
		return first + "." + last + strconv.Itoa(randInt(99)+1)
	}
}

// StudentUsername returns `<first name>.<last initial><1-999>`; every attempt re-rolls the number.
func StudentUsername(firstName, lastName string) UsernameFunc {
	first := truncate(nonAlphaRegex.ReplaceAllString(strings.ToLower(firstName), ""), 8)
	last := truncate(nonAlphaRegex.ReplaceAllString(strings.ToLower(lastName), ""), 1)
	return func(int) string {
		return first + "." + last + strconv.Itoa(randInt(999)+1)
	}
}

// SecurePassword returns a shuffled password of length n holding at least one upper, lower, digit and symbol.
func SecurePassword(n int) string {
	return generate(n, upper+lower+digits+symbols, upper, lower, digits, symbols)
}

// StudentPassword returns a shuffled alphanumeric password of length n holding at least one upper, lower and digit.
func StudentPassword(n int) string {
	return generate(n, upper+lower+digits, upper, lower, digits)
}

func generate(n int, charset string, required ...string) string {
	if n < len(required) {
		n = len(required)
	}
	pwd := make([]byte, 0, n)
	for _, set := range required {
		pwd = append(pwd, set[randInt(len(set))])
	}
	for len(pwd) < n {
		pwd = append(pwd, charset[randInt(len(charset))])
	}

	// Fisher-Yates
	for i := len(pwd) - 1; i > 0; i-- {
		j := randInt(i + 1)
		pwd[i], pwd[j] = pwd[j], pwd[i]
	}
	return string(pwd)
}

// randInt returns a uniform random int in [0, max).
func randInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return int(n.Int64())
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

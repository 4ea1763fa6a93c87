package core

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// CleanString trims the surrounding whitespace of s and drops the control characters it holds,
// line breaks and tabs excepted.
func CleanString(s string) string {
	s = strings.TrimSpace(s)
	if strings.IndexFunc(s, isStrayControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrayControl(r) {
			return -1
		}
		return r
	}, s)
}

// CleanLower is CleanString for identifiers compared case-insensitively: usernames, e-mails, enum values.
func CleanLower(s string) string {
	return strings.ToLower(CleanString(s))
}

func isStrayControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
}

// ProjectRoot returns the first directory holding a go.mod, from the working directory up.
// Without one, the working directory itself is returned. go test runs inside the package directory.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "getting working directory")
	}
	for dir := wd; ; {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

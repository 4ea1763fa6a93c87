package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// ResetTokens signs the password reset links. A token is bound to the account state it was issued for:
// changing the password, the e-mail or logging in invalidates it.
type ResetTokens struct {
	key     []byte
	timeout time.Duration
	now     func() time.Time
}

func NewResetTokens(secretKey string, timeout time.Duration) *ResetTokens {
	key := sha256.Sum256([]byte("schoolhub/password-reset/" + secretKey))
	return &ResetTokens{key: key[:], timeout: timeout, now: time.Now}
}

// Make returns the token of usr: `<issue minute in base 36>.<signature>`.
func (rt *ResetTokens) Make(usr User) string {
	issued := rt.now().Unix() / 60
	return strconv.FormatInt(issued, 36) + "." + rt.sign(usr, issued)
}

func (rt *ResetTokens) Verify(usr User, token string) error {
	stamp, sig, ok := strings.Cut(token, ".")
	if !ok || stamp == "" || sig == "" {
		return errInvalidToken
	}
	issued, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(rt.sign(usr, issued))) {
		return errInvalidToken
	}

	age := time.Duration(rt.now().Unix()/60-issued) * time.Minute
	switch {
	case age < 0:
		return errInvalidToken
	case age > rt.timeout:
		return errTokenExpired
	}
	return nil
}

func (rt *ResetTokens) sign(usr User, issued int64) string {
	h := hmac.New(sha256.New, rt.key)
	for _, part := range [][]byte{
		[]byte(usr.ID),
		[]byte(usr.Email),
		usr.PasswordHash,
		[]byte(usr.LastLogin.UTC().Format(time.RFC3339Nano)),
		[]byte(strconv.FormatInt(issued, 10)),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// LinkUID is the user part of a reset link.
func LinkUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func parseLinkUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil || len(id) == 0 {
		return "", errInvalidToken
	}
	return string(id), nil
}

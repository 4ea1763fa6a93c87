package echoapi

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/auth"
	"github.com/schoolhub/schoolhub/core/events"
	"github.com/schoolhub/schoolhub/core/i18n"
	"github.com/schoolhub/schoolhub/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"

	// headerTokenRefresh tells clients their token expires soon and should be refreshed.
	headerTokenRefresh = "X-Token-Refresh"
)

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt  int64    `json:"oriat,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	SchoolID      string   `json:"school_id,omitempty"`
	IsStudent     bool     `json:"is_student,omitempty"`      // -> STUDENT PORTAL
	IsTeacher     bool     `json:"is_teacher,omitempty"`      // -> TEACHER PORTAL
	IsSchoolAdmin bool     `json:"is_school_admin,omitempty"` // -> SCHOOL PORTAL
	IsAdmin       bool     `json:"is_admin,omitempty"`        // -> ADMIN PORTAL
	Roles         []string `json:"roles,omitempty"`
}

func getUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  "SchoolHub",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:  oriat,
		Username:      usr.Username,
		Email:         usr.Email,
		SchoolID:      usr.SchoolID,
		IsStudent:     usr.IsStudent(),
		IsTeacher:     usr.IsTeacher(),
		IsSchoolAdmin: usr.IsSchoolAdmin(),
		IsAdmin:       usr.IsAdmin(),
		Roles:         usr.Roles,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func generateToken(cfg middleware.JWTConfig, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(cfg.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// jwtMiddleware validates the token, rejects logged out sessions and flags the ones due for a refresh.
func (s *Server) jwtMiddleware(cfg middleware.JWTConfig) echo.MiddlewareFunc {
	jwtAuth := middleware.JWTWithConfig(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtAuth(func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if s.revoked.has(claims.Id) {
				return errSessionExpired
			}
			if s.rules.ShouldRefresh(time.Unix(claims.ExpiresAt, 0), time.Now()) {
				ctx.Response().Header().Set(headerTokenRefresh, "true")
			}
			return next(ctx)
		})
	}
}

// authenticate counts the attempt against the login rate limiter, then checks the credentials
// against the user store. A successful login clears the attempts.
func (s *Server) authenticate(ctx context.Context, lang string, creds auth.Credentials) (user.User, error) {
	key := creds.Username
	if !s.limiter.Allow(key) {
		wait := s.limiter.TimeUntilReset(key)
		s.deps.Logger.Warn(auth.LockoutMessage(wait), key)
		s.deps.Bus.Emit(events.AuthLockout, key)

		minutes := int(math.Ceil(wait.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		return user.User{}, echo.NewHTTPError(http.StatusTooManyRequests, s.deps.I18n.T(lang, "auth.lockout", i18n.Vars{"count": minutes}))
	}

	svc := s.deps.UserSvc
	usr, err := svc.GetByUsernameOrEmail(ctx, creds.Username)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	s.limiter.Clear(key)
	if !usr.Active() {
		return user.User{}, errAccountDeactivated
	}

	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	if usr.SchoolID != "" && usr.IsSchoolAdmin() {
		if err = s.deps.SchoolSvc.UpdateLastLogin(ctx, usr.SchoolID); err != nil {
			s.deps.Logger.Warn("updating school last login", err)
		}
	}
	s.deps.Bus.Emit(events.AuthLogin, usr.ID)
	return usr, nil
}

func (s *Server) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, s.deps.UserSvc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.Active() {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	if !s.rules.CanRefresh(time.Unix(claims.OrigIssuedAt, 0), time.Now()) {
		return "", errRefreshExpired
	}

	token, err := generateToken(s.jwt, getUserClaims(s.deps.Conf, usr, claims.OrigIssuedAt))
	if err != nil {
		return "", errors.Wrap(err, "generating token")
	}
	s.revoked.add(claims.Id, time.Unix(claims.ExpiresAt, 0))
	s.deps.Bus.Emit(events.SessionRefreshed, usr.ID)
	return token, nil
}

func (s *Server) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	s.revoked.add(claims.Id, time.Unix(claims.ExpiresAt, 0))
	s.deps.Bus.Emit(events.AuthLogout, claims.Subject)
	return nil
}

// revocations remembers the IDs of the logged out and refreshed tokens until they expire.
type revocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func newRevocations() *revocations {
	return &revocations{ids: make(map[string]time.Time)}
}

func (r *revocations) add(id string, exp time.Time) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for k, e := range r.ids {
		if now.After(e) {
			delete(r.ids, k)
		}
	}
	r.ids[id] = exp
}

func (r *revocations) has(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/credentials"
)

const maxUsernameAttempts = 10

var (
	// errors
	ErrNotFound          = errors.New("user not found")
	ErrEmailExists       = errors.New("a user with this email already exists")
	ErrUsernameExists    = errors.New("a user with this username already exists")
	ErrUsernameExhausted = errors.New("could not generate a unique username")
	ErrInvalidResetLink  = errors.New("invalid password reset link")
)

type (
	// DeleteFilter selects the users to delete; fields are OR'ed.
	DeleteFilter struct {
		IDs       []string
		EntityIDs []string
		SchoolID  string
	}

	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists. Empty values are not checked.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsers(ctx context.Context, filter DeleteFilter, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		// CreateWithCredentials creates the account backing a school, teacher or student.
		// The returned credentials hold the only plain text copy of the password.
		CreateWithCredentials(ctx context.Context, acc NewAccount, exec ...core.DBExecutor) (User, credentials.Credentials, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEntity(ctx context.Context, entityID string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPreferences(ctx context.Context, usr User, prefs Preferences) (User, error)
		Delete(ctx context.Context, ids ...string) error
		DeleteByEntity(ctx context.Context, entityIDs []string, exec ...core.DBExecutor) error
		DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		MailCredentials(to mail.Address, role string, creds credentials.Credentials)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		tokens  *ResetTokens

		// sends the reset mails inline instead of in the background
		syncMails bool
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		tokens:  NewResetTokens(conf.SecretKey, conf.Auth.PasswordResetTimeoutDelta),
	}
}

// NewServiceMock returns a Service whose password reset mails are sent before RequestPasswordReset returns.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	svc := NewService(repo, mailSvc, conf).(*service)
	svc.syncMails = true
	return svc
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		SchoolID:  nu.SchoolID,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) CreateWithCredentials(ctx context.Context, acc NewAccount, exec ...core.DBExecutor) (User, credentials.Credentials, error) {
	email := core.CleanLower(acc.Email)
	if email != "" {
		// one address may administer several schools: only the first account gets it
		if _, err := svc.repo.GetUser(ctx, GetFilter{Email: email}, exec...); err == nil {
			email = ""
		} else if errors.Cause(err) != ErrNotFound {
			return User{}, credentials.Credentials{}, errors.Wrap(err, "finding user by email")
		}
	}

	var uname string
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		candidate := acc.Username(attempt)
		err := svc.repo.CheckUsernameUniqueness(ctx, candidate, "", nil, exec...)
		if err == nil {
			uname = candidate
			break
		}
		if errors.Cause(err) != ErrUsernameExists {
			return User{}, credentials.Credentials{}, errors.Wrap(err, "checking username uniqueness")
		}
	}
	if uname == "" {
		return User{}, credentials.Credentials{}, ErrUsernameExhausted
	}

	now := time.Now().UTC()
	usr := User{
		SchoolID:  acc.SchoolID,
		EntityID:  acc.EntityID,
		Name:      acc.Name,
		Username:  uname,
		Email:     email,
		Roles:     []string{acc.Role},
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(acc.Password); err != nil {
		return User{}, credentials.Credentials{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr, exec...)
	if err != nil {
		return User{}, credentials.Credentials{}, errors.Wrap(err, "creating account")
	}
	return usr, credentials.Credentials{Username: uname, Password: acc.Password}, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.AllowedOrderings(ordering, Orderings))
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEntity(ctx context.Context, entityID string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{EntityID: entityID})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{core.CleanLower(uname)}})
}

func (svc *service) getByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanLower(email)})
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.SetActive(*uu.IsActive)
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPreferences(ctx context.Context, usr User, prefs Preferences) (User, error) {
	if prefs.Language != "" {
		usr.Preferences.Language = prefs.Language
	}
	if prefs.Theme != "" {
		usr.Preferences.Theme = prefs.Theme
	}
	if prefs.DarkMode != nil {
		usr.Preferences.DarkMode = prefs.DarkMode
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsers(ctx, DeleteFilter{IDs: ids})
	return err
}

func (svc *service) DeleteByEntity(ctx context.Context, entityIDs []string, exec ...core.DBExecutor) error {
	if len(entityIDs) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteUsers(ctx, DeleteFilter{EntityIDs: entityIDs}, exec...)
	return err
}

func (svc *service) DeleteBySchool(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteUsers(ctx, DeleteFilter{SchoolID: schoolID}, exec...)
	return err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if svc.syncMails {
		svc.sendPasswordResetMail(usr)
	} else {
		go svc.sendPasswordResetMail(usr)
	}
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Wachtwoord herstellen",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   LinkUID(usr),
			"Token": svc.tokens.Make(usr),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uid, err := parseLinkUID(data.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrInvalidResetLink)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.Verify(usr, data.Token); err != nil {
		return core.NewValidationError(fmt.Errorf("%s: %v", ErrInvalidResetLink, err))
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) MailCredentials(to mail.Address, role string, creds credentials.Credentials) {
	if to.Address == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Je inloggegevens",
		TemplateName: "credentials",
		TemplateData: map[string]string{
			"Name":     to.Name,
			"Role":     role,
			"Username": creds.Username,
			"Password": creds.Password,
			"Portal":   PortalPath([]string{role}),
		},
	})
}

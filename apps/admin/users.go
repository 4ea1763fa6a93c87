package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/user"
)

// saveUser checks pwd against the password policy, sets it on usr and stores usr.
func (cli *commandLine) saveUser(ctx context.Context, usr user.User, pwd string, create bool) (user.User, error) {
	if err := user.CheckPasswordPolicy(pwd, usr); err != nil {
		return usr, errors.Wrap(err, "password rejected")
	}
	if err := usr.SetPassword(pwd); err != nil {
		return usr, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if create {
		return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	}
	return cli.usrRepo.UpdateUser(ctx, usr)
}

// addUser creates the user, or updates the one owning uname or email. A new user is a teacher unless isAdmin.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname, email = core.CleanLower(uname), core.CleanLower(email)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			Roles:     []string{user.RoleTeacher},
			CreatedAt: time.Now().UTC(),
		}
	case err != nil:
		return err
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)

	if usr, err = cli.saveUser(ctx, usr, pwd, true); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (%s)\n", usr.Username, user.PortalPath(usr.Roles))
	return nil
}

// resetPassword sets the password of the user owning login, a username or an e-mail address.
func (cli *commandLine) resetPassword(login, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{core.CleanLower(login)}})
	if err != nil {
		return err
	}
	if usr, err = cli.saveUser(ctx, usr, pwd, false); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %q updated\n", usr.Username)
	return nil
}

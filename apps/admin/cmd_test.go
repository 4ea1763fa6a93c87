package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/user"
	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
	"github.com/schoolhub/schoolhub/tests"
)

type testCLI struct {
	*commandLine
	env *testutil.Env
	out *bytes.Buffer
}

func setup(t *testing.T) testCLI {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)

	// start CLI
	return testCLI{
		commandLine: &commandLine{
			db:        new(sql.DB), // the goose runner is mocked
			usrRepo:   env.UserRepo,
			schoolSvc: env.SchoolSvc,
			syncer:    env.Syncer,
			out:       out,
		},
		env: env,
		out: out,
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "attendance", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}

	t.Run("output", func(t *testing.T) {
		cli.out.Reset()
		require.NoError(t, cli.run([]string{"admin", "migrate", "up-to", "2"}))
		assert.Equal(t, "migrate up-to 2: done\n", cli.out.String())
	})

	t.Run("no database", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usrRepo := cli.env.UserRepo

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.nl", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "Klaslokaal7!"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", " AWE@test.nl"}, extra: extra{pwd: "Schoolplein8?"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("weak password", func(t *testing.T) {
		mockPassword("12345678")
		err := cli.run([]string{"admin", "resetpassword", "-username", usr.Username})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password rejected: password cannot be entirely numeric")
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	mockPassword("")
	assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-username", "beheer"}), "email required")
	assert.Equal(t, errHelp, cli.run([]string{"admin", "adduser", "-username", "beheer", "-email", "beheer@test.nl"}), "password required")

	mockPassword("Secret123!")
	require.NoError(t, cli.run([]string{"admin", "adduser", "-username", " Beheer ", "-email", "Beheer@Test.nl", "-admin"}))

	usr, err := cli.env.UserRepo.GetUser(ctx, user.GetFilter{Username: "beheer"})
	require.NoError(t, err)
	assert.Equal(t, "beheer@test.nl", usr.Email)
	assert.True(t, usr.Active())
	assert.ElementsMatch(t, user.AllRoles, usr.Roles)
	assert.NoError(t, usr.CheckPassword("Secret123!"))
	assert.Contains(t, cli.out.String(), `user "beheer" saved (/admin)`)

	// an existing user is updated
	mockPassword("Other456?")
	require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "beheer", "-email", "beheer@test.nl"}))
	updated, err := cli.env.UserRepo.GetUser(ctx, user.GetFilter{Username: "beheer"})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, updated.ID)
	assert.NoError(t, updated.CheckPassword("Other456?"))
	assert.ElementsMatch(t, user.AllRoles, updated.Roles)
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run([]string{"admin", "seed"}))
	schools, err := cli.env.SchoolSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, schools, len(school.DemoNewSchools()))
	assert.Contains(t, cli.out.String(), "password")

	// seeding twice creates nothing
	cli.out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seed"}))
	schools, err = cli.env.SchoolSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, schools, len(school.DemoNewSchools()))
	assert.Contains(t, cli.out.String(), "0 schools created")
}

func Test_commandLine_sync(t *testing.T) {
	cli := setup(t)

	cli.env.DB.SetOffline(true)
	_, _, err := cli.env.SchoolSvc.Create(context.Background(), testutil.NewSchool("De Regenboog"))
	require.NoError(t, err)
	cli.env.DB.SetOffline(false)

	require.NoError(t, cli.run([]string{"admin", "sync"}))
	assert.Equal(t, "synced: 1, failed: 0, dropped: 0, pending: 0\n", cli.out.String())

	schools, err := cli.env.SchoolSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.False(t, schools[0].IsOffline)
}

func Test_commandLine_export(t *testing.T) {
	cli := setup(t)
	testutil.CreateSchool(t, cli.env, "De Regenboog")
	testutil.CreateSchool(t, cli.env, "De Zonnebloem")
	dir := t.TempDir()

	assert.Equal(t, errHelp, cli.run([]string{"admin", "export"}))
	assert.Equal(t, errExportFormat, cli.run([]string{"admin", "export", "-o", filepath.Join(dir, "scholen.csv")}))

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(dir, "scholen.xlsx")
		require.NoError(t, cli.run([]string{"admin", "export", "-o", path}))

		file, err := os.Open(path)
		require.NoError(t, err)
		defer file.Close()
		rows, err := sheetsvc.Read(file)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "scholen.json")
		require.NoError(t, cli.run([]string{"admin", "export", "-o", path}))

		file, err := os.Open(path)
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)

		var data school.ExportData
		require.NoError(t, json.Unmarshal(content, &data))
		assert.Len(t, data.Schools, 2)
		assert.Equal(t, "1.0.0", data.Version)
	})
}

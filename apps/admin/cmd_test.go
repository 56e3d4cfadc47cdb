package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/user"
	inmemdb "github.com/trezcool/edulens/storage/database/inmem"
)

var usrRepo user.Repository

type fakeReminders struct {
	sum   reminder.Summary
	err   error
	calls int
}

func (f *fakeReminders) RunOnce(context.Context) (reminder.Summary, error) {
	f.calls++
	return f.sum, f.err
}

func setup(t *testing.T) *commandLine {
	t.Helper()
	// set up DB & repos
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())

	// start CLI
	return &commandLine{
		db:        &sql.DB{}, // never used: migrateFunc is mocked
		usrRepo:   usrRepo,
		reminders: &fakeReminders{},
	}
}

func createUser(t *testing.T, name, uname, email, pwd string, roles []string) user.User {
	t.Helper()
	usr := user.User{Name: name, Username: uname, Email: email, IsActive: true, Roles: roles}
	require.NoError(t, usr.SetPassword(pwd))
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
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

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if pwd, ok := tt.extra.(string); ok {
				mockPassword(pwd)
			} else {
				mockPassword("")
			}
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if errors.Cause(err) != tt.wantErr && err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			case check != nil:
				check(t, tt)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
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

	runCLITests(t, cli, []cliTest{
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
		{name: "create", args: []string{"migrate", "create", "scholarship", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}, nil)

	t.Run("in-memory engine", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := createUser(t, "User", "awe_user", "awe@test.cd", "mdr", user.StudentRoles)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: "lmao"},
	}, func(t *testing.T, tt cliTest) {
		refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash), "failed to update new password")
		assert.NoError(t, refreshed.CheckPassword(tt.extra.(string)))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	existing := createUser(t, "Existing", "existing", "existing@test.cd", "old-pwd", user.StudentRoles)

	runCLITests(t, cli, []cliTest{
		{name: "no identity", args: []string{"adduser"}, extra: "pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "boss_man"}, wantErr: errHelp},
		{
			name:       "unknown role",
			args:       []string{"adduser", "-username", "boss_man", "-role", "king"},
			extra:      "pwd",
			wantErrStr: core.NewChoiceError("role", "king", user.AllRoles).Error(),
		},
		{name: "create admin", args: []string{"adduser", "-username", "Boss_Man", "-email", "boss@test.cd", "-name", "Boss"}, extra: "s3cret"},
		{name: "promote existing", args: []string{"adduser", "-email", "existing@test.cd", "-role", user.RoleCounselor}, extra: "n3w"},
	}, nil)

	boss, err := usrRepo.GetUserByUsernameOrEmail(context.Background(), "boss_man")
	require.NoError(t, err)
	assert.Equal(t, "Boss", boss.Name)
	assert.Equal(t, []string{user.RoleAdminOwner}, boss.Roles)
	assert.True(t, boss.IsActive)
	assert.NoError(t, boss.CheckPassword("s3cret"))

	promoted, err := usrRepo.GetUserByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Existing", promoted.Name)
	assert.Equal(t, []string{user.RoleCounselor}, promoted.Roles)
	assert.NoError(t, promoted.CheckPassword("n3w"))
}

func Test_commandLine_remind(t *testing.T) {
	cli := setup(t)
	runner := cli.reminders.(*fakeReminders)

	runner.sum = reminder.Summary{Claimed: 2, Sent: 1, Failed: 1}
	require.NoError(t, cli.run([]string{"admin", "remind"}))
	assert.Equal(t, 1, runner.calls)

	runner.err = errors.New("db down")
	assert.EqualError(t, cli.run([]string{"admin", "remind"}), "db down")
}

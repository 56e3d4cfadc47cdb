package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"syscall"

	"github.com/DavidGamba/go-getoptions"
	"golang.org/x/term"

	"github.com/trezcool/edulens/core/reminder"
	"github.com/trezcool/edulens/core/user"
	"github.com/trezcool/edulens/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

// reminderRunner runs one reminder pass.
type reminderRunner interface {
	RunOnce(ctx context.Context) (reminder.Summary, error)
}

type commandLine struct {
	db        *sql.DB // nil with the in-memory engine
	usrRepo   user.Repository
	reminders reminderRunner
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                                   - run a goose command (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-role ROLE] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL                   - reset user's password")
	fmt.Println("  remind                                                   - run one reminder pass")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		var uname, email, name, role string
		opt := getoptions.New()
		opt.StringVar(&uname, "username", "", opt.Description("The user's username."))
		opt.StringVar(&email, "email", "", opt.Description("The user's email."))
		opt.StringVar(&name, "name", "", opt.Description("The user's full name."))
		opt.StringVar(&role, "role", user.RoleAdminOwner, opt.Description("The user's role."))
		if _, err := opt.Parse(args[2:]); err != nil {
			return err
		}
		if uname == "" && email == "" {
			fmt.Print(opt.Help(getoptions.HelpSynopsis))
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			fmt.Print(opt.Help(getoptions.HelpSynopsis))
			return errHelp
		}
		return cli.addUser(name, uname, email, pwd, role)

	case "resetpassword":
		var uname string
		opt := getoptions.New()
		opt.StringVar(&uname, "username", "", opt.Description("The user's username or email. The password will be prompted next."))
		if _, err := opt.Parse(args[2:]); err != nil {
			return err
		}
		if uname == "" {
			fmt.Print(opt.Help(getoptions.HelpSynopsis))
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			fmt.Print(opt.Help(getoptions.HelpSynopsis))
			return errHelp
		}
		return cli.resetPassword(uname, pwd)

	case "remind":
		return cli.remind()

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

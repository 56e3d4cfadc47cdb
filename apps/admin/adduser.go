package main

import (
	"context"
	"fmt"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/user"
)

// addUser updates or creates an active user.User with the given role.
func (cli *commandLine) addUser(name, uname, email, pwd, role string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if !core.StringInSlice(role, user.AllRoles) {
		return core.NewChoiceError("role", role, user.AllRoles)
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, lookup)
	exists := err == nil
	if err != nil && !core.IsNotFound(err) {
		return err
	}

	now := core.NowFunc()
	if !exists {
		if err := cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email); err != nil {
			return err
		}
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = uname
	}
	usr.Roles = []string{role}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err == nil {
		fmt.Printf("user %q saved\n", lookup)
	}
	return err
}

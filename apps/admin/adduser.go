package main

import (
	"context"
	"fmt"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	usr, err := cli.usrSvc.SaveUser(context.Background(), name, email, pwd, isAdmin)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (%s)\n", usr.Email, usr.Role)
	return nil
}

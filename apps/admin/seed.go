package main

import (
	"context"
	"fmt"

	"github.com/schoolhub/schoolhub/core/school"
)

// seed creates the demo schools that do not exist yet and prints the credentials of their admins.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	existing, err := cli.schoolSvc.Query(ctx, nil, nil)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, sch := range existing {
		names[sch.Name] = true
	}

	created := 0
	for _, ns := range school.DemoNewSchools() {
		if names[ns.Name] {
			fmt.Fprintf(cli.out, "%s: already exists\n", ns.Name)
			continue
		}
		sch, creds, err := cli.schoolSvc.Create(ctx, ns)
		if err != nil {
			return err
		}
		created++
		fmt.Fprintf(cli.out, "%s: created (username %s, password %s)\n", sch.Name, creds.Username, creds.Password)
	}
	fmt.Fprintf(cli.out, "%d schools created\n", created)
	return nil
}

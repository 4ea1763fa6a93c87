package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	appfs "github.com/schoolhub/schoolhub/fs"
)

var (
	gooseRunFunc = goose.RunFS // mockable

	errNoDatabase = errors.New("migrations need the postgres engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	command, rest := args[0], args[1:]
	if err := gooseRunFunc(command, cli.db, appfs.FS, "migrations", rest...); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "migrate %s: done\n", strings.TrimSpace(command+" "+strings.Join(rest, " ")))
	return nil
}

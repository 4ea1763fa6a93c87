package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	"github.com/schoolhub/schoolhub/apps/container"
	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/offline"
	"github.com/schoolhub/schoolhub/core/school"
	"github.com/schoolhub/schoolhub/core/user"
	appfs "github.com/schoolhub/schoolhub/fs"
)

type deps struct {
	dig.In

	Conf      *core.Config
	Logger    core.Logger
	DB        *sqlx.DB
	UsrRepo   user.Repository
	SchoolSvc school.Service
	Syncer    *offline.Syncer
}

func main() {
	conf := core.NewConfig()
	c := container.New(conf, "ADMIN")

	code := 0
	err := c.Invoke(func(d deps) {
		core.ParseEmailTemplates(appfs.FS, d.Conf, d.Logger)

		cli := commandLine{
			usrRepo:   d.UsrRepo,
			schoolSvc: d.SchoolSvc,
			syncer:    d.Syncer,
			out:       os.Stdout,
		}
		if d.DB != nil {
			cli.db = d.DB.DB
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				fmt.Printf("\nerror: %s\n", err)
			}
			code = 1
		}
	})
	if cerr := c.Close(); cerr != nil {
		log.Println(cerr)
	}
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

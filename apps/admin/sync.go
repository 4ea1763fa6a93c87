package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) sync() error {
	res, err := cli.syncer.Sync(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "synced: %d, failed: %d, dropped: %d, pending: %d\n", res.Synced, res.Failed, res.Dropped, res.Pending)
	return nil
}

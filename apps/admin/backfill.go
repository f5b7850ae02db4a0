package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) backfill() error {
	n, err := cli.enrSvc.BackfillMissingExpiries(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%d enrollment(s) updated\n", n)
	return nil
}

// Command bootstrap runs operator account commands against the configured
// database:
//
//	bootstrap admin [-email E] [-name N]        create a super admin
//	bootstrap status [-kind K] -email E -active=BOOL -approved=BOOL
//
// Server config flags, the JSON config file and the environment apply as
// for the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/domainx/internal/operator"
	"github.com/dmitrijs2005/domainx/internal/server"
	"github.com/dmitrijs2005/domainx/internal/server/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	if err := config.LoadDotEnv(""); err != nil {
		return err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	app, err := server.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	lookup := func(kind string) operator.Accounts {
		if svc := app.Service(kind); svc != nil {
			return svc
		}
		return nil
	}
	return operator.Run(ctx, os.Args[1:], lookup, os.Stdin, os.Stdout)
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[lnoffers] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "lnoffers"
	app.Usage = "inspect bolt12 offers, invoice requests and invoices"
	app.Commands = []cli.Command{
		decodeCommand,
		offerIDCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

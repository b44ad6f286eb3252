package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"factorlab/internal/config"
)

const version = "0.1.0"

var configPath string

func main() {
	app := cli.NewApp()
	app.Name = "factorlab"
	app.Version = version
	app.Usage = "backtest a moving-average crossover strategy on daily bars"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       config.DefaultPath,
			EnvVars:     []string{"FACTORLAB_CONFIG"},
			Usage:       "path to the YAML config file; missing files fall back to defaults",
			Destination: &configPath,
		},
	}
	app.Action = demoAction
	app.Commands = []*cli.Command{
		runCommand,
		fetchCommand,
		runsCommand,
		versionCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the factorlab version",
	Action: func(c *cli.Context) error {
		fmt.Fprintf(c.App.Writer, "factorlab %s\n", version)
		return nil
	},
}

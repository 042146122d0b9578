package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/monphare/monphare/internal/config"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write an annotated starter monphare.yaml",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
		},
		Action: func(c *cli.Context) error {
			path := config.DefaultFileName
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return cli.Exit(fmt.Sprintf("%s already exists (use --force to overwrite)", path), 1)
			}
			if err := os.WriteFile(path, []byte(config.Starter), 0o644); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a configuration file",
		ArgsUsage: "[FILE]",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				path = config.DefaultFileName
			}
			if _, err := config.Load(path, true); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}
}

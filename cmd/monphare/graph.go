package main

import (
	"github.com/urfave/cli/v2"

	"github.com/monphare/monphare/internal/graph"
	"github.com/monphare/monphare/internal/hclscan"
)

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Export the module/provider dependency graph",
		ArgsUsage: "<paths...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "dot", Usage: "Graph format: dot, json or mermaid"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the graph to a file instead of stdout"},
			&cli.BoolFlag{Name: "modules-only", Usage: "Keep only module nodes"},
			&cli.BoolFlag{Name: "providers-only", Usage: "Keep only provider nodes"},
			&cli.StringFlag{Name: "filter", Usage: "Keep only nodes whose source contains this string"},
		},
		Action: runGraph,
	}
}

func runGraph(c *cli.Context) error {
	if c.Bool("modules-only") && c.Bool("providers-only") {
		return cli.Exit("--modules-only and --providers-only are mutually exclusive", 1)
	}
	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	scanner := hclscan.NewScanner(hclscan.Options{
		ExcludePatterns: cfg.Scan.ExcludePatterns,
		MaxDepth:        cfg.Scan.MaxDepth,
		ContinueOnError: true,
	})

	var inventories []*hclscan.Inventory
	for _, path := range paths {
		inv, err := scanner.Scan(c.Context, path, "")
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		inventories = append(inventories, inv)
	}

	g := graph.NewBuilder().Build(inventories...)
	kind := graph.NodeKind("")
	if c.Bool("modules-only") {
		kind = graph.KindModule
	}
	if c.Bool("providers-only") {
		kind = graph.KindProvider
	}
	if kind != "" || c.String("filter") != "" {
		g = g.Filter(kind, c.String("filter"))
	}

	rendered, err := g.Export(graph.Format(c.String("format")))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	out, closeFn, err := openOutput(c.String("output"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closeFn()
	if _, err := out.Write([]byte(rendered)); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/cloradar/cloradar/pkg/index"
	"github.com/urfave/cli/v3"
)

// OptimizeCommand creates the optimize command
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Index maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run integrity checks on the index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "quick",
						Usage: "Skip the FTS5 consistency check",
						Value: false,
					},
				},
				Action: withIndex(func(ctx context.Context, idx *index.Index, c *cli.Command) error {
					fmt.Print("Checking index... ")
					if err := idx.IntegrityCheck(ctx, !c.Bool("quick")); err != nil {
						fmt.Printf("✗ FAILED - %v\n", err)
						fmt.Println("To fix FTS index corruption, run: cloradar optimize fts-rebuild")
						return err
					}
					fmt.Println("✓ OK")
					return nil
				}),
			},
			{
				Name:  "fts-rebuild",
				Usage: "Rebuild the issues full text index",
				Action: withIndex(func(ctx context.Context, idx *index.Index, c *cli.Command) error {
					fmt.Print("Rebuilding FTS5 index... ")
					if err := idx.RebuildFTS(ctx); err != nil {
						fmt.Printf("✗ FAILED - %v\n", err)
						return err
					}
					fmt.Println("✓ OK")
					return nil
				}),
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the index",
				Action: withIndex(func(ctx context.Context, idx *index.Index, c *cli.Command) error {
					fmt.Println("Running VACUUM, this may take a while for large indexes...")
					if err := idx.Vacuum(ctx); err != nil {
						return err
					}
					fmt.Println("✓ VACUUM completed")
					return nil
				}),
			},
			{
				Name:  "all",
				Usage: "Run PRAGMA optimize, ANALYZE, FTS5 optimize and a WAL checkpoint",
				Action: withIndex(func(ctx context.Context, idx *index.Index, c *cli.Command) error {
					if err := idx.Optimize(ctx); err != nil {
						return err
					}
					fmt.Println("All optimization operations completed successfully")
					return nil
				}),
			},
		},
	}
}

func withIndex(fn func(ctx context.Context, idx *index.Index, c *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		env, err := openEnvironment(c.String("config"))
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(ctx, env.index(), c)
	}
}

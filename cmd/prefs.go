package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/urfave/cli/v3"
)

// PrefsCommand creates the prefs command
func PrefsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Show or change the stored preferences",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the current preferences",
				Action: func(ctx context.Context, c *cli.Command) error {
					env, err := openEnvironment(c.String("config"))
					if err != nil {
						return err
					}
					defer env.Close()
					fmt.Print(formatPreferences(env.prefs.Get()))
					return nil
				},
			},
			{
				Name:  "set",
				Usage: "Change preferences",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Results per page (10, 20, 40, 60)",
					},
					&cli.StringFlag{
						Name:  "sort",
						Usage: "Sort order (relevance, most_recent)",
					},
					&cli.StringFlag{
						Name:  "theme",
						Usage: "Theme (automatic, light, dark)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					env, err := openEnvironment(c.String("config"))
					if err != nil {
						return err
					}
					defer env.Close()
					return setPreferences(os.Stdout, env.prefs, c.Int("limit"), c.String("sort"), c.String("theme"))
				},
			},
		},
	}
}

// setPreferences validates and stores the given values. Zero values are
// left unchanged.
func setPreferences(w io.Writer, store *prefs.Store, limit int, sort, theme string) error {
	var updates []func(prefs.Preferences) prefs.Preferences

	if limit != 0 {
		if !slices.Contains(prefs.Limits, limit) {
			return fmt.Errorf("unsupported limit %d (want one of %v)", limit, prefs.Limits)
		}
		updates = append(updates, prefs.WithLimit(limit))
	}
	if sort != "" {
		by, ok := core.ParseSortBy(sort)
		if !ok {
			return fmt.Errorf("unknown sort %q (want one of %v)", sort, core.SortOptions)
		}
		updates = append(updates, prefs.WithSort(by))
	}
	if theme != "" {
		if !slices.Contains(prefs.Themes, theme) {
			return fmt.Errorf("unknown theme %q (want one of %v)", theme, prefs.Themes)
		}
		updates = append(updates, prefs.WithTheme(theme))
	}
	if len(updates) == 0 {
		return fmt.Errorf("nothing to set, use --limit, --sort or --theme")
	}

	p, err := store.Update(func(p prefs.Preferences) prefs.Preferences {
		for _, fn := range updates {
			p = fn(p)
		}
		return p
	})
	if err != nil {
		return err
	}
	fmt.Fprint(w, formatPreferences(p))
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search contribution opportunities",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "text",
				Usage: "Free text to search for",
			},
			&cli.StringSliceFlag{
				Name:  "foundation",
				Usage: "Foundation filter (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "maturity",
				Usage: "Maturity filter (repeatable)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort order (relevance, most_recent), defaults to the stored preference",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Results per page (10, 20, 40, 60), defaults to the stored preference",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts := searchOptions{
				state: urlstate.SearchFilters{
					PageNumber: c.Int("page"),
					Text:       urlstate.Text(c.String("text")),
					Filters: core.Filters{
						core.FilterFoundation: c.StringSlice("foundation"),
						core.FilterMaturity:   c.StringSlice("maturity"),
					},
				},
				sort:  c.String("sort"),
				limit: c.Int("limit"),
			}

			env, err := openEnvironment(c.String("config"))
			if err != nil {
				return err
			}
			defer env.Close()

			searcher, _ := newSearcher(env.cfg, env.db)
			return runSearch(ctx, os.Stdout, searcher, env.prefs.Get(), opts)
		},
	}
}

type searchOptions struct {
	state urlstate.SearchFilters
	sort  string
	limit int
}

// overrides applies the sort and limit flags to p without persisting them.
func (o searchOptions) overrides(p prefs.Preferences) (prefs.Preferences, error) {
	if o.sort != "" {
		by, ok := core.ParseSortBy(o.sort)
		if !ok {
			return p, fmt.Errorf("unknown sort %q (want one of %v)", o.sort, core.SortOptions)
		}
		p = prefs.WithSort(by)(p)
	}
	if o.limit != 0 {
		if !slices.Contains(prefs.Limits, o.limit) {
			return p, fmt.Errorf("unsupported limit %d (want one of %v)", o.limit, prefs.Limits)
		}
		p = prefs.WithLimit(o.limit)(p)
	}
	return p, nil
}

// runSearch performs one navigation to the requested state and prints the
// resulting view.
func runSearch(ctx context.Context, w io.Writer, searcher searchapi.Searcher, stored prefs.Preferences, opts searchOptions) error {
	p, err := opts.overrides(stored)
	if err != nil {
		return err
	}
	backend := &prefs.MemoryBackend{}
	if err := backend.Save(p); err != nil {
		return err
	}
	store := prefs.NewStore(backend)

	rawQuery := urlstate.EncodeString(opts.state)
	ctrl, _ := controller.NewWithHistory(searcher, store, rawQuery)
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = ctrl.Run(ctx)
	}()

	ctrl.URLChanged(controller.Navigation{RawQuery: rawQuery})
	v, err := ctrl.WaitIdle(ctx)
	if err != nil {
		return err
	}

	fmt.Fprint(w, formatView(v))
	if v.State == controller.Failed {
		return errors.New("search failed")
	}
	fmt.Fprintln(w, metaStyle.Render("Share: "+urlstate.Path("/search", v.Filters)))
	return nil
}

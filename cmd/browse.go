package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/cloradar/cloradar/pkg/controller"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/filters"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
	"github.com/cloradar/cloradar/pkg/urlstate"
	"github.com/urfave/cli/v3"
)

const browseHelp = `Commands:
  q <text>            search for text (empty to clear)
  f <kind> <value>    toggle a filter (kinds: foundation, maturity)
  reset               clear the filters
  page <n>, next, prev
  sort <by>           relevance or most_recent
  limit <n>           10, 20, 40 or 60
  back, forward       move through the history
  url                 print the current address
  help, quit`

// BrowseCommand creates the browse command
func BrowseCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Browse issues interactively",
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := openEnvironment(c.String("config"))
			if err != nil {
				return err
			}
			defer env.Close()

			searcher, _ := newSearcher(env.cfg, env.db)
			return runBrowse(ctx, os.Stdin, os.Stdout, searcher, env.prefs)
		},
	}
}

// runBrowse reads commands from in until EOF or quit. Every command is an
// action on the controller; the view is printed once it settles.
func runBrowse(ctx context.Context, in io.Reader, out io.Writer, searcher searchapi.Searcher, store *prefs.Store) error {
	ctrl, history := controller.NewWithHistory(searcher, store, "")
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = ctrl.Run(ctx)
	}()

	ctrl.URLChanged(controller.Navigation{})
	if err := printSettled(ctx, out, ctrl); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(out, browseHelp)
			continue
		case "url":
			fmt.Fprintln(out, urlStyle.Render(urlstate.Path("/search", urlstate.Parse(history.Current()))))
			continue
		}

		if err := browseAction(ctrl, history, cmd, arg); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}
		if err := printSettled(ctx, out, ctrl); err != nil {
			return err
		}
	}
}

func browseAction(ctrl *controller.Controller, history *controller.History, cmd, arg string) error {
	current := ctrl.Snapshot().Filters

	switch cmd {
	case "q":
		ctrl.Search(arg)
	case "f":
		kindName, value, _ := strings.Cut(arg, " ")
		kind, ok := core.ParseFilterKind(kindName)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return fmt.Errorf("usage: f <foundation|maturity> <value>")
		}
		ctrl.ToggleFilter(kind, value, !filters.NewEditor(current.Filters).IsSelected(kind, value))
	case "reset":
		ctrl.ResetFilters()
	case "page":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return fmt.Errorf("usage: page <n>")
		}
		ctrl.ChangePage(n)
	case "next":
		ctrl.ChangePage(max(current.PageNumber, 1) + 1)
	case "prev":
		if current.PageNumber <= 1 {
			return fmt.Errorf("already on the first page")
		}
		ctrl.ChangePage(current.PageNumber - 1)
	case "sort":
		by, ok := core.ParseSortBy(arg)
		if !ok {
			return fmt.Errorf("unknown sort %q (want one of %v)", arg, core.SortOptions)
		}
		ctrl.ChangeSort(by)
	case "limit":
		n, err := strconv.Atoi(arg)
		if err != nil || !slices.Contains(prefs.Limits, n) {
			return fmt.Errorf("usage: limit <n>, one of %v", prefs.Limits)
		}
		ctrl.ChangeLimit(n)
	case "back":
		if !history.Back() {
			return fmt.Errorf("no previous page")
		}
	case "forward":
		if !history.Forward() {
			return fmt.Errorf("no next page")
		}
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func printSettled(ctx context.Context, out io.Writer, ctrl *controller.Controller) error {
	v, err := ctrl.WaitIdle(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatView(v))
	fmt.Fprintln(out, metaStyle.Render(urlstate.Path("/search", v.Filters)))
	return nil
}

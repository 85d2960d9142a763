package cmd

import (
	"context"
	"fmt"

	"github.com/cloradar/cloradar/pkg/config"
	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/index"
	"github.com/cloradar/cloradar/pkg/log"
	"github.com/cloradar/cloradar/pkg/tracker"
	"github.com/urfave/cli/v3"
)

// TrackCommand creates the track command
func TrackCommand() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Sync the local index with the issues of the configured GitHub repositories",
		Action: func(ctx context.Context, c *cli.Command) error {
			env, err := openEnvironment(c.String("config"))
			if err != nil {
				return err
			}
			defer env.Close()

			idx := env.index()
			if err := registerProjects(ctx, idx, env.cfg.Tracker.Projects); err != nil {
				return err
			}

			t, err := tracker.New(idx, tracker.NewGitHubClient(), tracker.Options{
				Tokens:            env.cfg.Tracker.GitHubTokens,
				Concurrency:       env.cfg.Tracker.Concurrency,
				RepositoryTimeout: env.cfg.Tracker.RepositoryTimeout.Duration,
			})
			if err != nil {
				return err
			}

			stats, err := t.Run(ctx)
			fmt.Printf("Tracked %d repositories: %d updated, %d issues registered, %d unregistered, %d failed\n",
				stats.Repositories, stats.Updated, stats.Registered, stats.Unregistered, stats.Failed)
			return err
		},
	}
}

// registerProjects adds the configured projects and their repositories to
// the index. Known entries are left as they are.
func registerProjects(ctx context.Context, idx *index.Index, projects []config.ProjectConfig) error {
	logger := log.ForService("track")
	for _, p := range projects {
		err := idx.AddProject(ctx, core.Project{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Description: p.Description,
			Foundation:  p.Foundation,
			Maturity:    p.Maturity,
		})
		if err != nil {
			return err
		}
		for _, url := range p.Repositories {
			repo, err := idx.AddRepository(ctx, p.Name, url)
			if err != nil {
				return fmt.Errorf("registering %s: %w", url, err)
			}
			logger.Debugf("%s: repository %s registered", p.Name, repo.URL)
		}
	}
	return nil
}

package cmd

import (
	"database/sql"
	"fmt"

	"github.com/cloradar/cloradar/pkg/config"
	"github.com/cloradar/cloradar/pkg/db"
	"github.com/cloradar/cloradar/pkg/index"
	"github.com/cloradar/cloradar/pkg/prefs"
	"github.com/cloradar/cloradar/pkg/searchapi"
)

// environment is what most commands need: the configuration, the database
// and the preferences stored in it.
type environment struct {
	cfg   *config.Config
	db    *sql.DB
	prefs *prefs.Store
}

// openEnvironment loads the configuration and opens the database it points
// to.
func openEnvironment(configPath string) (*environment, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	conn, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &environment{
		cfg:   cfg,
		db:    conn,
		prefs: prefs.NewStore(prefs.NewSQLiteBackend(conn)),
	}, nil
}

func (e *environment) Close() error {
	return e.db.Close()
}

// index returns the local index stored in the environment database.
func (e *environment) index() *index.Index {
	return index.New(e.db)
}

// newSearcher builds the search backend selected by cfg. The local index
// is returned as well when it is the backend.
func newSearcher(cfg *config.Config, conn *sql.DB) (searchapi.Searcher, *index.Index) {
	if cfg.Search.Backend == config.BackendLocal {
		idx := index.New(conn)
		return idx, idx
	}
	return searchapi.NewClient(cfg.Search.APIURL, searchapi.WithTimeout(cfg.Search.Timeout.Duration)), nil
}

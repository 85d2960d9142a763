package prefs

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloradar/cloradar/pkg/core"
	"github.com/cloradar/cloradar/pkg/db"
)

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore(&MemoryBackend{})
	p := s.Get()
	if p.Search.Limit != 20 || p.Search.Sort.By != core.SortRelevance {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.Theme.Configured != ThemeAutomatic || p.Theme.Effective != ThemeLight {
		t.Fatalf("unexpected theme defaults: %+v", p.Theme)
	}
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	backend := &MemoryBackend{}
	s := NewStore(backend)

	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	p, err := s.Update(WithSort(core.SortMostRecent))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Search.Sort.By != core.SortMostRecent {
		t.Fatalf("expected most_recent, got %s", p.Search.Sort.By)
	}
	if len(changes) != 1 || changes[0].Old.Search.Sort.By != core.SortRelevance {
		t.Fatalf("unexpected changes: %+v", changes)
	}

	stored, found, _ := backend.Load()
	if !found || stored.Search.Sort.By != core.SortMostRecent {
		t.Fatalf("expected change persisted, got %+v", stored)
	}

	unsubscribe()
	if _, err := s.Update(WithLimit(40)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("unsubscribed callback still called")
	}
}

func TestUpdateNoChangeSkipsSave(t *testing.T) {
	backend := &MemoryBackend{}
	s := NewStore(backend)
	called := false
	s.Subscribe(func(Change) { called = true })

	if _, err := s.Update(WithLimit(DefaultLimit)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if called || backend.Saves != 0 {
		t.Fatalf("expected no save or notification for identical preferences")
	}
}

func TestUpdateNormalizes(t *testing.T) {
	s := NewStore(&MemoryBackend{})
	p, err := s.Update(func(p Preferences) Preferences {
		p.Search.Limit = 33
		p.Search.Sort.By = "stars"
		p.Theme.Configured = ThemeDark
		return p
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Search.Limit != DefaultLimit || p.Search.Sort.By != core.DefaultSortBy {
		t.Fatalf("expected invalid values normalized, got %+v", p.Search)
	}
	if p.Theme.Effective != ThemeDark {
		t.Fatalf("expected effective dark theme, got %q", p.Theme.Effective)
	}
}

type failingBackend struct{ MemoryBackend }

func (f *failingBackend) Save(Preferences) error { return errors.New("disk full") }

func TestUpdateSaveFailureKeepsPrevious(t *testing.T) {
	s := NewStore(&failingBackend{})
	if _, err := s.Update(WithLimit(60)); err == nil {
		t.Fatalf("expected save error")
	}
	if s.Get().Search.Limit != DefaultLimit {
		t.Fatalf("in-memory preferences changed despite failed save")
	}
}

func TestSQLiteBackend(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer conn.Close()

	backend := NewSQLiteBackend(conn)
	if _, found, err := backend.Load(); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	s := NewStore(backend)
	if _, err := s.Update(WithLimit(60)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Update(WithSort(core.SortMostRecent)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded := NewStore(NewSQLiteBackend(conn)).Get()
	if reloaded.Search.Limit != 60 || reloaded.Search.Sort.By != core.SortMostRecent {
		t.Fatalf("preferences not persisted: %+v", reloaded)
	}
}

func TestSQLiteBackendCorruptValueFallsBack(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Exec("INSERT INTO preferences (key, value, updated_at) VALUES ('preferences', '{not json', '')"); err != nil {
		t.Fatal(err)
	}

	if got := NewStore(NewSQLiteBackend(conn)).Get(); got != Default() {
		t.Fatalf("expected defaults for corrupt value, got %+v", got)
	}
}

func TestConcurrentUpdatesNotifyInCommitOrder(t *testing.T) {
	s := NewStore(&MemoryBackend{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu      sync.Mutex
		changes []Change
	)
	s.Subscribe(func(c Change) {
		if c.New.Search.Limit == 40 {
			close(entered)
			<-release
		}
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Update(WithLimit(40)); err != nil {
			t.Error(err)
		}
	}()
	<-entered
	go func() {
		defer wg.Done()
		if _, err := s.Update(WithLimit(60)); err != nil {
			t.Error(err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].New.Search.Limit != 40 || changes[1].New.Search.Limit != 60 {
		t.Errorf("delivered limits %d then %d", changes[0].New.Search.Limit, changes[1].New.Search.Limit)
	}
	if changes[1].Old != changes[0].New || changes[1].Version <= changes[0].Version {
		t.Errorf("changes out of order: %+v", changes)
	}
	if last := changes[len(changes)-1].New; last != s.Get() {
		t.Errorf("last delivered %+v, store holds %+v", last, s.Get())
	}
}

package main

import (
	"os"
	"path/filepath"

	"github.com/aleksaelezovic/mediakg/internal/config"
	"github.com/aleksaelezovic/mediakg/internal/dictionary"
	"github.com/aleksaelezovic/mediakg/internal/storage"
	"github.com/aleksaelezovic/mediakg/internal/storage/sqlite"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/hybrid"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// openStore builds the configured store: a primary store, and unless
// search is disabled, a hybrid composition with a search store.
func (a *app) openStore() (*hybrid.Store, error) {
	primary, err := a.openPrimary()
	if err != nil {
		return nil, err
	}

	var search store.MutableQuadSet
	switch a.cfg.Search.Backend {
	case config.BackendSQLite:
		search, err = a.openSQLite(a.cfg.Search.Path)
	case config.BackendMemory:
		search = store.NewBasicMutableQuadSet()
	case config.BackendNone:
		// a primary that cannot search answers with store.ErrUnsupported
		search = primary
	}
	if err != nil {
		if c, ok := primary.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, err
	}

	a.logger.Debug("store opened", "primary", a.cfg.Primary.Backend, "search", a.cfg.Search.Backend)
	if search == primary {
		return hybrid.New(primary, readOnlyMirror{primary}, a.logger), nil
	}
	return hybrid.New(primary, search, a.logger), nil
}

func (a *app) openPrimary() (store.MutableQuadSet, error) {
	switch a.cfg.Primary.Backend {
	case config.BackendBadger:
		if err := os.MkdirAll(a.cfg.Primary.Path, 0o750); err != nil {
			return nil, kgerr.Wrap(err, kgerr.CodeStoreOpenFailure, "creating data directory", kgerr.FieldPath(a.cfg.Primary.Path))
		}
		kv, err := storage.OpenBadger(a.cfg.Primary.Path, a.logger)
		if err != nil {
			return nil, kgerr.Wrap(err, kgerr.CodeStoreOpenFailure, "opening badger", kgerr.FieldPath(a.cfg.Primary.Path))
		}
		return a.quadStore(kv)
	case config.BackendSQLite:
		return a.openSQLite(a.cfg.Primary.Path)
	default:
		return store.NewIndexedQuadSet(), nil
	}
}

func (a *app) openSQLite(path string) (*dictionary.QuadStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, kgerr.Wrap(err, kgerr.CodeStoreOpenFailure, "creating data directory", kgerr.FieldPath(dir))
		}
	}
	db, err := sqlite.Open(path, a.logger)
	if err != nil {
		return nil, err
	}
	return a.quadStore(db)
}

func (a *app) quadStore(backend store.Backend) (*dictionary.QuadStore, error) {
	s, err := dictionary.NewQuadStore(backend, dictionary.Options{
		CacheSize: a.cfg.Store.CacheSize,
		Logger:    a.logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return s, nil
}

// readOnlyMirror stands in for the search store when search is disabled.
// Writes are dropped since the primary already holds every quad, and
// searches go to the primary.
type readOnlyMirror struct {
	store.MutableQuadSet
}

func (readOnlyMirror) Add(model.Quad) (bool, error)         { return false, nil }
func (readOnlyMirror) AddAll([]model.Quad) (bool, error)    { return false, nil }
func (readOnlyMirror) Remove(model.Quad) (bool, error)      { return false, nil }
func (readOnlyMirror) RemoveAll([]model.Quad) (bool, error) { return false, nil }
func (readOnlyMirror) RetainAll([]model.Quad) (bool, error) { return false, nil }
func (readOnlyMirror) Clear() error                         { return nil }

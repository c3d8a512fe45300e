// Package vectordb is the top-level registry: a named set of
// collections, opened once per process, optionally backed by a
// directory on disk. It is the Go counterpart of the original crate's
// VectorDb/VectorDbInner pair, reworked around a sync.RWMutex-guarded
// map instead of an async scc::HashMap, and around the teacher's
// daemon.CompactionManager lifecycle (context/cancel/WaitGroup/
// sync.Once) for its background auto-persist loop.
package vectordb

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ares-vector/vdb/internal/collection"
	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/persistence"
	"github.com/ares-vector/vdb/internal/vdberrors"
	"github.com/ares-vector/vdb/pkg/distance"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
)

// Database owns every collection in a process. Safe for concurrent use.
type Database struct {
	cfg config.Config

	mu          sync.RWMutex
	collections map[string]*collection.Collection

	fileLock *flock.Flock

	persistWg     sync.WaitGroup
	persistCancel context.CancelFunc
	stopOnce      sync.Once
}

// Open creates or opens a database for cfg. When cfg.IsPersistent,
// existing collections under cfg.DataPath are loaded (in parallel, one
// goroutine per collection, capped at GOMAXPROCS) and a directory lock
// is acquired to prevent two processes from opening the same store.
func Open(cfg config.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, vdberrors.New(vdberrors.Configuration, "invalid configuration", err)
	}

	db := &Database{
		cfg:         cfg,
		collections: make(map[string]*collection.Collection),
	}

	if !cfg.IsPersistent() {
		return db, nil
	}

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return nil, vdberrors.New(vdberrors.Io, "failed to create data directory", err)
	}

	lock := flock.New(cfg.DataPath + "/.lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, vdberrors.New(vdberrors.Io, "failed to acquire database lock", err)
	}
	if !locked {
		return nil, vdberrors.New(vdberrors.Io, "database is locked by another process", nil)
	}
	db.fileLock = lock

	if err := db.loadCollections(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	if cfg.AutoPersist {
		db.startAutoPersist()
	}

	return db, nil
}

func (db *Database) loadCollections() error {
	names, err := persistence.ReadManifest(db.cfg.DataPath)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var mu sync.Mutex
	for _, name := range names {
		name := name
		g.Go(func() error {
			c, err := persistence.LoadCollection(db.cfg.DataPath, name)
			if err != nil {
				slog.Warn("failed to load collection, skipping", slog.String("name", name), slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			db.collections[name] = c
			mu.Unlock()
			slog.Info("loaded collection", slog.String("name", name))
			return nil
		})
	}
	return g.Wait()
}

// CreateCollection registers a new, empty collection. Fails with
// vdberrors.CollectionExists if name is already registered.
func (db *Database) CreateCollection(name string, dim int, metric distance.Metric) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; exists {
		return vdberrors.New(vdberrors.CollectionExists, "collection already exists: "+name, nil)
	}

	c := collection.New(name, dim, metric, db.cfg.HNSW, db.cfg.MaxVectors, db.cfg.Compaction.TombstoneThreshold)
	db.collections[name] = c

	if db.cfg.IsPersistent() {
		if err := db.persistManifestLocked(); err != nil {
			delete(db.collections, name)
			return err
		}
	}
	return nil
}

// persistManifestLocked writes collections.json; caller holds db.mu.
func (db *Database) persistManifestLocked() error {
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	return persistence.WriteManifest(db.cfg.DataPath, names)
}

// DeleteCollection removes a collection and, if persistent, its files.
func (db *Database) DeleteCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; !exists {
		return vdberrors.New(vdberrors.CollectionNotFound, "collection not found: "+name, nil)
	}
	delete(db.collections, name)

	if db.cfg.IsPersistent() {
		if err := persistence.DeleteCollectionFiles(db.cfg.DataPath, name); err != nil {
			return err
		}
		if err := db.persistManifestLocked(); err != nil {
			return err
		}
	}
	return nil
}

// CollectionExists reports whether name is registered.
func (db *Database) CollectionExists(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.collections[name]
	return ok
}

// ListCollections returns every registered collection name, in an
// unspecified order.
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	return names
}

// GetCollection returns the named collection.
func (db *Database) GetCollection(name string) (*collection.Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.collections[name]
	if !ok {
		return nil, vdberrors.New(vdberrors.CollectionNotFound, "collection not found: "+name, nil)
	}
	return c, nil
}

// Count returns the number of live vectors in a collection.
func (db *Database) Count(name string) (int, error) {
	c, err := db.GetCollection(name)
	if err != nil {
		return 0, err
	}
	return c.Len(), nil
}

// CollectionStats returns a collection's current statistics.
func (db *Database) CollectionStats(name string) (collection.Stats, error) {
	c, err := db.GetCollection(name)
	if err != nil {
		return collection.Stats{}, err
	}
	return c.Stats(), nil
}

// Compact rebuilds a collection's index, discarding tombstones.
func (db *Database) Compact(name string) error {
	c, err := db.GetCollection(name)
	if err != nil {
		return err
	}
	c.Compact()
	return nil
}

// CompactAll compacts every collection whose tombstone fraction has
// crossed its configured threshold.
func (db *Database) CompactAll(ctx context.Context) error {
	for _, name := range db.ListCollections() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c, err := db.GetCollection(name)
		if err != nil {
			continue
		}
		if c.ShouldCompact() {
			c.Compact()
		}
	}
	return nil
}

// Persist writes every collection to disk. A no-op for an in-memory
// database, matching the original's "skip persist" behavior.
func (db *Database) Persist(ctx context.Context) error {
	if !db.cfg.IsPersistent() {
		return nil
	}

	db.mu.RLock()
	toPersist := make([]*collection.Collection, 0, len(db.collections))
	for _, c := range db.collections {
		toPersist = append(toPersist, c)
	}
	db.mu.RUnlock()

	for _, c := range toPersist {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := persistence.SaveCollection(db.cfg.DataPath, c); err != nil {
			return err
		}
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.persistManifestLocked()
}

// startAutoPersist runs a background ticker that persists the whole
// database every PersistIntervalSecs, in the lifecycle shape of the
// teacher's daemon.CompactionManager: a cancelable context, a
// WaitGroup Stop waits on, and a sync.Once guarding shutdown.
func (db *Database) startAutoPersist() {
	ctx, cancel := context.WithCancel(context.Background())
	db.persistCancel = cancel

	interval := time.Duration(db.cfg.PersistIntervalSecs) * time.Second
	db.persistWg.Add(1)
	go func() {
		defer db.persistWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.Persist(ctx); err != nil {
					slog.Warn("auto-persist failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Close stops the auto-persist loop (if running), performs a final
// persist, and releases the directory lock.
func (db *Database) Close(ctx context.Context) error {
	var err error
	db.stopOnce.Do(func() {
		if db.persistCancel != nil {
			db.persistCancel()
		}
		db.persistWg.Wait()

		err = db.Persist(ctx)

		if db.fileLock != nil {
			_ = db.fileLock.Unlock()
		}
	})
	return err
}

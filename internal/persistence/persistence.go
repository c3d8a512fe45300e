// Package persistence lays out a Database's on-disk directory and
// implements the atomic save/load protocol for a single collection's
// three files. The directory looks like:
//
//	<root>/collections.json       manifest: []string of collection names
//	<root>/<name>/meta.bin        dimensions, metric, HNSW params (gob)
//	<root>/<name>/vectors.bin     vecstore row snapshot (gob)
//	<root>/<name>/graph.bin       HNSW graph snapshot (gob)
//
// Every write goes to a ".tmp" sibling first and is renamed into place,
// the same atomic-save protocol the teacher's internal/store.HNSWStore
// uses for its own index/meta files.
package persistence

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ares-vector/vdb/internal/collection"
	"github.com/ares-vector/vdb/internal/config"
	"github.com/ares-vector/vdb/internal/hnsw"
	"github.com/ares-vector/vdb/internal/vdberrors"
	"github.com/ares-vector/vdb/internal/vecstore"
	"github.com/ares-vector/vdb/pkg/distance"
)

const (
	manifestFile = "collections.json"
	metaFile     = "meta.bin"
	vectorsFile  = "vectors.bin"
	graphFile    = "graph.bin"
)

// collectionMeta is the gob-encoded contents of meta.bin: everything
// needed to reconstruct an empty collection.Collection before its rows
// and graph are imported into it.
type collectionMeta struct {
	Name                string
	Dim                 int
	Metric              distance.Metric
	HNSW                config.HNSWConfig
	MaxVectors          int
	CompactionThreshold float64
}

// ReadManifest returns the collection names recorded at root, or an
// empty slice if root or the manifest file does not yet exist.
func ReadManifest(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vdberrors.Wrap(vdberrors.Io, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, vdberrors.New(vdberrors.Persistence, "failed to parse "+manifestFile, err)
	}
	return names, nil
}

// WriteManifest atomically overwrites the manifest with names.
func WriteManifest(root string, names []string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return vdberrors.New(vdberrors.Persistence, "failed to serialize "+manifestFile, err)
	}
	return atomicWrite(filepath.Join(root, manifestFile), data)
}

// SaveCollection writes a collection's meta, rows, and graph to
// <root>/<name>/, each via its own tmp+rename step.
func SaveCollection(root string, c *collection.Collection) error {
	dir := filepath.Join(root, c.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vdberrors.Wrap(vdberrors.Io, err)
	}

	meta := collectionMeta{
		Name:   c.Name,
		Dim:    c.Dim,
		Metric: c.Metric,
		HNSW: config.HNSWConfig{
			M:              c.HNSWParams.M,
			MMax:           c.HNSWParams.MMax,
			EfConstruction: c.HNSWParams.EfConstruction,
			EfSearch:       c.HNSWParams.EfSearch,
		},
		MaxVectors:          c.MaxVectors(),
		CompactionThreshold: c.CompactionThreshold(),
	}
	if err := saveGob(filepath.Join(dir, metaFile), &meta); err != nil {
		return fmt.Errorf("save %s meta: %w", c.Name, err)
	}

	store := c.StoreForPersistence()

	var rowsBuf, graphBuf bytes.Buffer
	if err := store.ExportRows(&rowsBuf); err != nil {
		return vdberrors.New(vdberrors.Persistence, "export rows for "+c.Name, err)
	}
	if err := atomicWrite(filepath.Join(dir, vectorsFile), rowsBuf.Bytes()); err != nil {
		return fmt.Errorf("save %s vectors: %w", c.Name, err)
	}

	if err := store.Graph().Export(&graphBuf); err != nil {
		return vdberrors.New(vdberrors.Persistence, "export graph for "+c.Name, err)
	}
	if err := atomicWrite(filepath.Join(dir, graphFile), graphBuf.Bytes()); err != nil {
		return fmt.Errorf("save %s graph: %w", c.Name, err)
	}

	return nil
}

// LoadCollection reconstructs a collection.Collection from
// <root>/<name>/. The graph's entry point is repaired via
// ReplaceEntryPoint if the persisted one happens to have been
// tombstoned (best-effort liveness guarantee on load).
func LoadCollection(root, name string) (*collection.Collection, error) {
	dir := filepath.Join(root, name)

	var meta collectionMeta
	if err := loadGob(filepath.Join(dir, metaFile), &meta); err != nil {
		return nil, fmt.Errorf("load %s meta: %w", name, err)
	}

	c := collection.New(meta.Name, meta.Dim, meta.Metric, meta.HNSW, meta.MaxVectors, meta.CompactionThreshold)

	distFn := func(a, b []float32) float32 { return distance.Distance(a, b, meta.Metric) }
	graph := hnsw.New(c.HNSWParams, distFn)

	store := vecstore.NewWithGraph(graph)
	rowsData, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := store.ImportRows(bytes.NewReader(rowsData)); err != nil {
		return nil, vdberrors.New(vdberrors.Persistence, "import rows for "+name, err)
	}

	graphData, err := os.ReadFile(filepath.Join(dir, graphFile))
	if err != nil {
		return nil, vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := graph.Import(bytes.NewReader(graphData)); err != nil {
		return nil, vdberrors.New(vdberrors.Persistence, "import graph for "+name, err)
	}

	repairEntryPoint(graph, store)

	c.ReplaceStoreFromLoad(store)
	return c, nil
}

// repairEntryPoint replaces the graph's entry point with an arbitrary
// live internal id (not necessarily one on the top layer) if the current
// entry point was tombstoned between the last export and a crash. This mirrors the liveness guarantee Stats/Search already give
// at runtime, just re-established once at load time.
func repairEntryPoint(graph *hnsw.Graph, store *vecstore.Store) {
	ep, ok := graph.EntryPoint()
	if !ok || store.IsLiveInternalID(ep) {
		return
	}
	if internal, ok := store.AnyLiveInternalID(); ok {
		graph.ReplaceEntryPoint(internal)
	}
}

// DeleteCollectionFiles removes <root>/<name>/ entirely.
func DeleteCollectionFiles(root, name string) error {
	if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	return nil
}

func saveGob(path string, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return vdberrors.New(vdberrors.Persistence, "encode "+filepath.Base(path), err)
	}
	return atomicWrite(path, buf.Bytes())
}

func loadGob(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return vdberrors.New(vdberrors.Persistence, "decode "+filepath.Base(path), err)
	}
	return nil
}

// atomicWrite writes data to path via a ".tmp" sibling, fsyncs it, and
// renames it into place — the teacher's HNSWStore.Save tmp-then-rename
// pattern plus an fsync before the rename, so a crash between the write and the
// rename never leaves path pointing at a partially-written file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return vdberrors.Wrap(vdberrors.Io, err)
	}
	return nil
}

package vecstore

import (
	"encoding/gob"
	"io"
)

// rowSnapshot is the on-disk shape of one internal id's row, written by
// internal/persistence into vectors.bin. ExternalID is empty for a
// tombstoned row (its external mapping has already been released).
type rowSnapshot struct {
	InternalID uint64
	ExternalID string
	Vector     []float32
	Metadata   Metadata
	Tombstone  bool
}

type storeSnapshot struct {
	NextID uint64
	Rows   []rowSnapshot
}

// ExportRows gob-encodes every row (including tombstoned ones, so that
// compaction's "holes preserved until compact" contract survives a
// restart) to w.
func (s *Store) ExportRows(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := storeSnapshot{
		NextID: s.nextID,
		Rows:   make([]rowSnapshot, 0, len(s.rows)),
	}
	for internal, r := range s.rows {
		snap.Rows = append(snap.Rows, rowSnapshot{
			InternalID: internal,
			ExternalID: s.keyMap[internal],
			Vector:     r.vector,
			Metadata:   r.metadata,
			Tombstone:  r.tombstone,
		})
	}
	return gob.NewEncoder(w).Encode(&snap)
}

// ImportRows replaces the store's row table and id maps from a
// previously exported snapshot. The graph itself is restored
// separately, from graph.bin, via Store.Graph().Import.
func (s *Store) ImportRows(r io.Reader) error {
	var snap storeSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = snap.NextID
	s.rows = make(map[uint64]*row, len(snap.Rows))
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)

	for _, rs := range snap.Rows {
		s.rows[rs.InternalID] = &row{
			vector:    rs.Vector,
			metadata:  rs.Metadata,
			tombstone: rs.Tombstone,
		}
		if !rs.Tombstone && rs.ExternalID != "" {
			s.idMap[rs.ExternalID] = rs.InternalID
			s.keyMap[rs.InternalID] = rs.ExternalID
		}
	}
	return nil
}

package store

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/hashicorp/go-memdb"
	"github.com/togglecache/togglecache/core/pkg/model"
)

const togglesTable = "toggles"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		togglesTable: {
			Name: togglesTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: slugIndex{},
				},
				"enabled": {
					Name:    "enabled",
					Unique:  false,
					Indexer: &memdb.BoolFieldIndex{Field: "Enabled"},
				},
			},
		},
	},
}

var empty = &Snapshot{}

// slugIndex keys toggles by slug with ASCII letters lowered. Unlike
// memdb.StringFieldIndex it does not apply Unicode case mapping.
type slugIndex struct{}

func (slugIndex) FromObject(raw interface{}) (bool, []byte, error) {
	toggle, ok := raw.(model.ToggleDefinition)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object %T", raw)
	}
	if toggle.Slug == "" {
		return false, nil, nil
	}
	return true, slugKey(toggle.Slug), nil
}

func (slugIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	slug, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	return slugKey(slug), nil
}

func slugKey(slug string) []byte {
	return append([]byte(model.LowerASCII(slug)), 0)
}

// Snapshot is an immutable view of a feature manifest together with the
// fingerprint the source reported for it. A Snapshot is never modified after
// construction and is safe for concurrent use.
type Snapshot struct {
	toggles     []model.ToggleDefinition
	fingerprint []byte
	db          *memdb.MemDB
	skipped     int
}

// Empty returns the snapshot used before a manifest was ever retrieved. It has
// no toggles and a zero-length fingerprint.
func Empty() *Snapshot {
	return empty
}

// NewSnapshot indexes the toggles by slug, ignoring ASCII case. Toggles without
// a slug are dropped and the first toggle wins when slugs collide.
func NewSnapshot(toggles []model.ToggleDefinition, fingerprint []byte) (*Snapshot, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("unable to create toggle index: %w", err)
	}

	s := &Snapshot{
		fingerprint: bytes.Clone(fingerprint),
		db:          db,
	}

	txn := db.Txn(true)
	defer txn.Abort()

	for _, toggle := range toggles {
		if toggle.Slug == "" {
			s.skipped++
			continue
		}
		existing, err := txn.First(togglesTable, "id", toggle.Slug)
		if err != nil {
			return nil, fmt.Errorf("unable to index toggle %s: %w", toggle.Slug, err)
		}
		if existing != nil {
			s.skipped++
			continue
		}

		toggle.Segments = slices.Clone(toggle.Segments)
		if err := txn.Insert(togglesTable, toggle); err != nil {
			return nil, fmt.Errorf("unable to index toggle %s: %w", toggle.Slug, err)
		}
		s.toggles = append(s.toggles, toggle)
	}
	txn.Commit()

	return s, nil
}

// Get looks a toggle up by slug, ignoring ASCII case. The returned
// definition does not share memory with the snapshot.
func (s *Snapshot) Get(slug string) (model.ToggleDefinition, bool) {
	if s.db == nil || slug == "" {
		return model.ToggleDefinition{}, false
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(togglesTable, "id", slug)
	if err != nil || raw == nil {
		return model.ToggleDefinition{}, false
	}

	toggle, ok := raw.(model.ToggleDefinition)
	if !ok {
		return model.ToggleDefinition{}, false
	}
	toggle.Segments = slices.Clone(toggle.Segments)
	return toggle, true
}

// Enabled returns the slugs of all enabled toggles.
func (s *Snapshot) Enabled() []string {
	if s.db == nil {
		return nil
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(togglesTable, "enabled", true)
	if err != nil {
		return nil
	}

	var slugs []string
	for obj := it.Next(); obj != nil; obj = it.Next() {
		slugs = append(slugs, obj.(model.ToggleDefinition).Slug)
	}
	slices.Sort(slugs)
	return slugs
}

// All returns a deep copy of the toggles in manifest order.
func (s *Snapshot) All() []model.ToggleDefinition {
	if s.toggles == nil {
		return nil
	}
	toggles := make([]model.ToggleDefinition, len(s.toggles))
	for i, toggle := range s.toggles {
		toggle.Segments = slices.Clone(toggle.Segments)
		toggles[i] = toggle
	}
	return toggles
}

func (s *Snapshot) Len() int {
	return len(s.toggles)
}

// Skipped is the number of manifest entries that were not indexed.
func (s *Snapshot) Skipped() int {
	return s.skipped
}

// Fingerprint returns a copy of the content hash reported by the source.
func (s *Snapshot) Fingerprint() []byte {
	return bytes.Clone(s.fingerprint)
}

// IsEmpty reports whether the snapshot was never populated from a source.
func (s *Snapshot) IsEmpty() bool {
	return len(s.fingerprint) == 0 && len(s.toggles) == 0
}

// SameFingerprint reports whether fp matches the snapshot fingerprint.
func (s *Snapshot) SameFingerprint(fp []byte) bool {
	return len(s.fingerprint) > 0 && bytes.Equal(s.fingerprint, fp)
}

// Package store persists completed scan snapshots as JSON files, one
// per scan kind, so results and baselines survive restarts.
//
// The store is the durable collaborator of the scan manager: it is
// written through the manager's completion hook and read once at
// process start. It holds no logic of its own.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"prefscan/internal/model"
	"prefscan/internal/scan"
)

// ErrNotFound indicates no snapshot exists for the scan kind.
var ErrNotFound = errors.New("no snapshot stored")

// Store reads and writes per-kind snapshot files under one directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory as needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(kind model.ScanKind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_history.json", kind))
}

// Save writes a snapshot for kind. The write goes through a temp file
// and a rename so a crash mid-write cannot corrupt the previous
// snapshot.
func (s *Store) Save(kind model.ScanKind, snap scan.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	tmp := s.path(kind) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := os.Rename(tmp, s.path(kind)); err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}

	log.Debug().Stringer("kind", kind).Int("results", len(snap.Results)).Msg("snapshot saved")
	return nil
}

// Load reads the snapshot for kind, or ErrNotFound when none was ever
// saved.
func (s *Store) Load(kind model.ScanKind) (scan.Snapshot, error) {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return scan.Snapshot{}, ErrNotFound
		}
		return scan.Snapshot{}, fmt.Errorf("snapshot read: %w", err)
	}

	var snap scan.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return scan.Snapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.broadcasts.json      (per-network snapshot map, atomic rewrite)
//   - <prefix>.transitions.jsonl    (append-only JSON Lines, size-capped)
//
// The transitions journal is trimmed in place once it grows past
// journalMaxLines; only the newest half is kept.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journalFile  *os.File

	snapshots map[string]networkSnapshot

	journalWrites int
}

const journalMaxLines = 10000

type networkSnapshot struct {
	SavedAt    time.Time                      `json:"saved_at"`
	Broadcasts []broadcast.ScheduledBroadcast `json:"broadcasts"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".broadcasts.json"
	journalPath := prefix + ".transitions.jsonl"

	snapshots := map[string]networkSnapshot{}
	if f, err := os.Open(snapPath); err == nil {
		_ = json.NewDecoder(f).Decode(&snapshots)
		_ = f.Close()
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalPath:  journalPath,
		journalFile:  jf,
		snapshots:    snapshots,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile != nil {
		err := s.journalFile.Close()
		s.journalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) SaveBroadcasts(ctx context.Context, networkID string, items []broadcast.ScheduledBroadcast) error {
	_ = ctx
	networkID = strings.TrimSpace(networkID)
	if networkID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshots == nil {
		s.snapshots = map[string]networkSnapshot{}
	}
	s.snapshots[networkID] = networkSnapshot{
		SavedAt:    time.Now().UTC(),
		Broadcasts: append([]broadcast.ScheduledBroadcast(nil), items...),
	}
	return s.writeSnapshotLocked()
}

func (s *fileStore) LoadBroadcasts(ctx context.Context, networkID string) ([]broadcast.ScheduledBroadcast, time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[strings.TrimSpace(networkID)]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	items := append([]broadcast.ScheduledBroadcast(nil), snap.Broadcasts...)
	return items, snap.SavedAt, true, nil
}

func (s *fileStore) AppendTransition(ctx context.Context, e TransitionEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("transitions journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(e); err != nil {
		return err
	}
	s.journalWrites++
	if s.journalWrites%1000 == 0 {
		if err := s.trimJournalLocked(); err != nil {
			s.log.Debug("transitions journal trim failed", logx.Err(err))
		}
	}
	return nil
}

// writeSnapshotLocked rewrites the snapshot atomically (tmp + rename).
func (s *fileStore) writeSnapshotLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.snapshots); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

// trimJournalLocked keeps the newest half of the journal once it exceeds
// journalMaxLines.
func (s *fileStore) trimJournalLocked() error {
	b, err := os.ReadFile(s.journalPath)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) <= journalMaxLines {
		return nil
	}
	keep := lines[len(lines)/2:]

	if err := s.journalFile.Close(); err != nil {
		return err
	}
	tmp := s.journalPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(keep, "\n")+"\n"), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.journalPath); err != nil {
		return err
	}
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.journalFile = jf
	return nil
}

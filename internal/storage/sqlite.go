//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount   atomic.Uint64
	trimEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, trimEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveBroadcasts(ctx context.Context, networkID string, items []broadcast.ScheduledBroadcast) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	networkID = strings.TrimSpace(networkID)
	if networkID == "" {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(network_id, saved_at, broadcasts) VALUES(?,?,?)
		 ON CONFLICT(network_id) DO UPDATE SET saved_at=excluded.saved_at, broadcasts=excluded.broadcasts`,
		networkID, time.Now().UTC().Format(time.RFC3339Nano), string(payload),
	)
	return err
}

func (s *sqliteStore) LoadBroadcasts(ctx context.Context, networkID string) ([]broadcast.ScheduledBroadcast, time.Time, bool, error) {
	if s == nil || s.db == nil {
		return nil, time.Time{}, false, ErrDisabled
	}
	var savedAt, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at, broadcasts FROM snapshots WHERE network_id = ?`, strings.TrimSpace(networkID),
	).Scan(&savedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var items []broadcast.ScheduledBroadcast
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, time.Time{}, false, err
	}
	t, _ := time.Parse(time.RFC3339Nano, savedAt)
	return items, t, true, nil
}

func (s *sqliteStore) AppendTransition(ctx context.Context, e TransitionEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions(at, broadcast_id, network_id, title, from_status, to_status, sending)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.BroadcastID, e.NetworkID, nullStr(e.Title), e.From, e.To, e.Sending,
	)
	if err == nil && s.opCount.Add(1)%s.trimEvery == 0 {
		tctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.trimTransitions(tctx)
		cancel()
	}
	return err
}

// trimTransitions keeps the journal bounded; the newest rows win.
func (s *sqliteStore) trimTransitions(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transitions WHERE id NOT IN (SELECT id FROM transitions ORDER BY id DESC LIMIT 10000)`)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

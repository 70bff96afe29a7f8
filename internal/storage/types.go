package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot JSON + JSONL journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TransitionEntry journals one observed broadcast lifecycle change.
// Keep it compact and schema-stable.
type TransitionEntry struct {
	At          time.Time `json:"at"`
	BroadcastID string    `json:"broadcast_id"`
	NetworkID   string    `json:"network_id"`
	Title       string    `json:"title,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Sending     bool      `json:"sending,omitempty"`
}

// Store caches the last successfully fetched broadcast list per network and
// journals observed transitions. The tracker's pending-ack set is
// deliberately NOT persisted; a restart resets it.
type Store interface {
	SaveBroadcasts(ctx context.Context, networkID string, items []broadcast.ScheduledBroadcast) error
	// LoadBroadcasts returns the cached list and when it was saved.
	// ok is false when no snapshot exists for the network.
	LoadBroadcasts(ctx context.Context, networkID string) (items []broadcast.ScheduledBroadcast, savedAt time.Time, ok bool, err error)
	AppendTransition(ctx context.Context, e TransitionEntry) error
	Close() error
}

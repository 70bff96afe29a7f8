package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
	"github.com/Stratiform-Networking/cartographer-sub000/internal/eventbus"
	logx "github.com/Stratiform-Networking/cartographer-sub000/pkg/logx"
)

// Config controls one tracker instance. A tracker follows exactly one
// network; open several instances to follow several networks.
type Config struct {
	NetworkID string

	// TickInterval drives the local countdown recompute (no network call).
	// PollInterval drives the conditional list refresh.
	// Both default to 1s and are floored at 1s.
	TickInterval time.Duration
	PollInterval time.Duration

	// SentDisplayWindow bounds how long a seen "sent" broadcast stays
	// visible. Defaults to SentDisplayWindow.
	SentDisplayWindow time.Duration

	// IncludeCompleted asks the backend for already-delivered broadcasts
	// too; the visibility window still applies client-side.
	IncludeCompleted bool
}

// BroadcastSource lists the scheduled broadcasts for a network.
// *api.Client satisfies it.
type BroadcastSource interface {
	ListScheduled(ctx context.Context, networkID string, includeCompleted bool) ([]broadcast.ScheduledBroadcast, error)
}

// SnapshotSink receives the last successfully fetched list so a restart can
// render immediately while the first poll is in flight. Best-effort.
type SnapshotSink interface {
	SaveBroadcasts(ctx context.Context, networkID string, items []broadcast.ScheduledBroadcast) error
}

// Entry is one visible broadcast plus its derived display state.
type Entry struct {
	Broadcast broadcast.ScheduledBroadcast
	Display   Display
	// TimeLeft is the remaining time until scheduled delivery (0 once due).
	TimeLeft time.Duration
	// Sending is true for pending broadcasts whose scheduled time has
	// passed but whose delivery the backend has not confirmed yet.
	Sending bool
}

// Transition describes an observed lifecycle change. From == To with
// Sending=true marks the local pending->"sending" display flip, which is not
// a backend status change.
type Transition struct {
	ID        string
	Title     string
	NetworkID string
	Priority  broadcast.Priority
	From      broadcast.Status
	To        broadcast.Status
	Sending   bool
	// UsersNotified is populated for transitions into sent.
	UsersNotified int
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	src    BroadcastSource
	marker SeenMarker
	sink   SnapshotSink
	log    logx.Logger
	bus    eventbus.Bus

	acks *AckSet

	stateMu     sync.RWMutex
	entries     []Entry
	statuses    map[string]broadcast.Status
	sending     map[string]bool
	refreshed   bool
	lastRefresh time.Time
	lastErr     error

	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when
	// both loops fully exit.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	loopWG    sync.WaitGroup
}

// Snapshot is a point-in-time copy of the tracker's visible set for render
// layers. Entries preserve the backend list order.
type Snapshot struct {
	NetworkID   string
	Entries     []Entry
	LastRefresh time.Time
	LastError   string
	PendingAcks int
}

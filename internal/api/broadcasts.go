package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

// ListScheduled fetches the scheduled broadcasts for one network.
func (c *Client) ListScheduled(ctx context.Context, networkID string, includeCompleted bool) ([]broadcast.ScheduledBroadcast, error) {
	q := url.Values{}
	q.Set("network_id", networkID)
	if includeCompleted {
		q.Set("include_completed", "true")
	}
	var out struct {
		Broadcasts []broadcast.ScheduledBroadcast `json:"broadcasts"`
	}
	if err := c.do(ctx, http.MethodGet, "/scheduled-broadcasts?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Broadcasts, nil
}

// MarkSeen acknowledges that this client displayed a sent broadcast and
// returns the backend-assigned seen_at. The backend sets seen_at at most
// once; repeated calls return the original timestamp.
//
// Not retried here: the tracker's acknowledgement coordinator retries by
// omission on the next poll cycle.
func (c *Client) MarkSeen(ctx context.Context, id string) (time.Time, error) {
	var out struct {
		SeenAt string `json:"seen_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/scheduled-broadcasts/"+url.PathEscape(id)+"/seen", nil, &out, false); err != nil {
		return time.Time{}, err
	}
	t, ok := broadcast.ParseTimestampUTC(out.SeenAt)
	if !ok {
		return time.Time{}, fmt.Errorf("api: mark seen %s: unparseable seen_at %q", id, out.SeenAt)
	}
	return t, nil
}

// Cancel requests cancellation of a pending broadcast.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/scheduled-broadcasts/"+url.PathEscape(id)+"/cancel", nil, nil, false)
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Title       *string              `json:"title,omitempty"`
	Message     *string              `json:"message,omitempty"`
	EventType   *broadcast.EventType `json:"event_type,omitempty"`
	Priority    *broadcast.Priority  `json:"priority,omitempty"`
	ScheduledAt *time.Time           `json:"scheduled_at,omitempty"`
	Timezone    *string              `json:"timezone,omitempty"`
}

// Update applies a partial edit to a scheduled broadcast.
func (c *Client) Update(ctx context.Context, id string, p Patch) (broadcast.ScheduledBroadcast, error) {
	var out broadcast.ScheduledBroadcast
	if err := c.do(ctx, http.MethodPatch, "/scheduled-broadcasts/"+url.PathEscape(id), p, &out, false); err != nil {
		return broadcast.ScheduledBroadcast{}, err
	}
	return out, nil
}

// Draft is the creation payload for a new scheduled broadcast.
type Draft struct {
	NetworkID   string              `json:"network_id"`
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	EventType   broadcast.EventType `json:"event_type"`
	Priority    broadcast.Priority  `json:"priority"`
	ScheduledAt time.Time           `json:"scheduled_at"`
	Timezone    string              `json:"timezone,omitempty"`
	// IdempotencyKey lets the composer retry creations safely; the backend
	// deduplicates on it.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Create schedules a new broadcast and returns the backend record.
// Safe to retry when d.IdempotencyKey is set.
func (c *Client) Create(ctx context.Context, d Draft) (broadcast.ScheduledBroadcast, error) {
	var out broadcast.ScheduledBroadcast
	if err := c.do(ctx, http.MethodPost, "/scheduled-broadcasts", d, &out, d.IdempotencyKey != ""); err != nil {
		return broadcast.ScheduledBroadcast{}, err
	}
	return out, nil
}

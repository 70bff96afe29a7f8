package tracker

import (
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

// SentDisplayWindow bounds how long a sent-and-acknowledged broadcast stays
// in the visible set, so the current viewer gets a chance to notice the
// "Sent" badge before it disappears from subsequent polls.
const SentDisplayWindow = 5 * time.Second

// PartitionVisible applies the visibility rules to a remote list already
// filtered to one network and returns, order preserved:
//
//   - visible: pending and failed items unconditionally; sent items without
//     seen_at (this cycle still shows them); sent items with seen_at only
//     while now-seen_at < window. Cancelled items never appear.
//   - needAck: IDs of sent items without seen_at that are not already in
//     flight in acks. The caller triggers the acknowledgements concurrently;
//     this function never blocks on them.
//
// A sent item whose seen_at exists but fails to parse is kept visible
// (fail-open): hiding a legitimately sent notification is worse than showing
// it slightly too long.
//
// Pure with respect to the inputs: running it twice with the same list,
// clock and ack state yields the same result.
func PartitionVisible(items []broadcast.ScheduledBroadcast, now time.Time, window time.Duration, acks *AckSet) (visible []broadcast.ScheduledBroadcast, needAck []string) {
	if window <= 0 {
		window = SentDisplayWindow
	}
	visible = make([]broadcast.ScheduledBroadcast, 0, len(items))
	for _, b := range items {
		switch b.Status {
		case broadcast.StatusPending, broadcast.StatusFailed:
			visible = append(visible, b)

		case broadcast.StatusSent:
			if !b.Seen() {
				visible = append(visible, b)
				if acks == nil || !acks.Contains(b.ID) {
					needAck = append(needAck, b.ID)
				}
				continue
			}
			seenAt, ok := b.SeenTime()
			if !ok {
				// fail-open
				visible = append(visible, b)
				continue
			}
			if now.Sub(seenAt) < window {
				visible = append(visible, b)
			}

		default:
			// cancelled (and anything unknown) stays hidden
		}
	}
	return visible, needAck
}

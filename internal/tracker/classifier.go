package tracker

import (
	"fmt"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

// Display is the render descriptor for one broadcast: what badge to show and
// how to style it. It carries no behavior; render layers map StyleClass/Icon
// to whatever visual system they use.
type Display struct {
	Label      string
	StyleClass string
	Icon       string
}

const (
	IconCheck     = "check"
	IconCross     = "cross"
	IconHourglass = "hourglass"
	IconClock     = "clock"
)

// Classify maps a broadcast plus the current wall-clock time to its display
// descriptor. Pure: identical inputs always produce identical output.
//
// Cancelled broadcasts are filtered out before classification and never
// reach this function.
func Classify(b *broadcast.ScheduledBroadcast, now time.Time) Display {
	switch {
	case b.Status == broadcast.StatusSent:
		label := "Sent"
		if b.UsersNotified > 0 {
			label = fmt.Sprintf("Sent to %d users", b.UsersNotified)
		}
		return Display{Label: label, StyleClass: "status-sent", Icon: IconCheck}

	case b.Status == broadcast.StatusFailed:
		return Display{Label: "Failed", StyleClass: "status-failed", Icon: IconCross}

	case !b.ScheduledAt.After(now):
		// Pending and past due: the backend hasn't confirmed delivery yet.
		return Display{Label: "Sending...", StyleClass: "status-sending", Icon: IconHourglass}

	default:
		label := "Scheduled"
		if cd := FormatCountdown(b.ScheduledAt.Sub(now)); cd != "" {
			label = "in " + cd
		}
		return Display{Label: label, StyleClass: "status-scheduled", Icon: IconClock}
	}
}

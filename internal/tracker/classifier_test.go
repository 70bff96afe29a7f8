package tracker

import (
	"testing"
	"time"

	"github.com/Stratiform-Networking/cartographer-sub000/internal/broadcast"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		b    broadcast.ScheduledBroadcast
		want Display
	}{
		{
			name: "sent with recipient count",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusSent, UsersNotified: 12},
			want: Display{Label: "Sent to 12 users", StyleClass: "status-sent", Icon: IconCheck},
		},
		{
			name: "sent without recipient count",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusSent},
			want: Display{Label: "Sent", StyleClass: "status-sent", Icon: IconCheck},
		},
		{
			name: "failed",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusFailed},
			want: Display{Label: "Failed", StyleClass: "status-failed", Icon: IconCross},
		},
		{
			name: "pending past due",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusPending, ScheduledAt: now.Add(-time.Second)},
			want: Display{Label: "Sending...", StyleClass: "status-sending", Icon: IconHourglass},
		},
		{
			name: "pending exactly due",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusPending, ScheduledAt: now},
			want: Display{Label: "Sending...", StyleClass: "status-sending", Icon: IconHourglass},
		},
		{
			name: "pending with countdown",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusPending, ScheduledAt: now.Add(90 * time.Second)},
			want: Display{Label: "in 1m 30s", StyleClass: "status-scheduled", Icon: IconClock},
		},
		{
			name: "pending sub-second remainder",
			b:    broadcast.ScheduledBroadcast{Status: broadcast.StatusPending, ScheduledAt: now.Add(400 * time.Millisecond)},
			want: Display{Label: "Scheduled", StyleClass: "status-scheduled", Icon: IconClock},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(&tc.b, now); got != tc.want {
				t.Fatalf("Classify() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	now := time.Now()
	b := broadcast.ScheduledBroadcast{Status: broadcast.StatusPending, ScheduledAt: now.Add(time.Hour)}
	first := Classify(&b, now)
	for i := 0; i < 3; i++ {
		if got := Classify(&b, now); got != first {
			t.Fatalf("Classify() not stable: %+v vs %+v", got, first)
		}
	}
}

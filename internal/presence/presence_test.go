package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_MarkOnline_Idempotent(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()

	tracker.MarkOnline("user-a")
	tracker.MarkOnline("user-a")

	req.Equal([]string{"user-a"}, tracker.Snapshot())
}

func TestTracker_MarkOffline(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()

	tracker.MarkOnline("user-a")
	tracker.MarkOnline("user-b")
	tracker.MarkOffline("user-a")

	req.Equal([]string{"user-b"}, tracker.Snapshot())

	// Marking an absent user offline is a no-op
	tracker.MarkOffline("user-a")
	req.Equal([]string{"user-b"}, tracker.Snapshot())
}

func TestTracker_Snapshot_Sorted(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()

	tracker.MarkOnline("user-c")
	tracker.MarkOnline("user-a")
	tracker.MarkOnline("user-b")

	req.Equal([]string{"user-a", "user-b", "user-c"}, tracker.Snapshot())
}

func TestTracker_Snapshot_IsACopy(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()

	tracker.MarkOnline("user-a")
	snap := tracker.Snapshot()

	// A later change must not leak into the earlier snapshot
	tracker.MarkOnline("user-b")
	req.Equal([]string{"user-a"}, snap)
}

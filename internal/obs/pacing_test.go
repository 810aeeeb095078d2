package obs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacingCountsWithinWindow(t *testing.T) {
	p := NewPacing(200, 60)
	now := time.Now()
	for range 7 {
		p.ObserveRequest(now)
	}
	p.IncBackoff()
	p.IncBackoff()
	p.IncRetry()

	snap := p.Snapshot()
	assert.Equal(t, 7, snap.RPM)
	assert.EqualValues(t, 2, snap.BackoffEvents)
	assert.EqualValues(t, 1, snap.Retries)
	assert.Equal(t, 200, snap.MaxRPM)
	assert.Equal(t, 60, snap.WindowSeconds)
}

func TestPacingRollsElapsedWindows(t *testing.T) {
	p := NewPacing(100, 1)
	start := p.windowStart

	p.ObserveRequest(start)
	p.ObserveRequest(start.Add(200 * time.Millisecond))
	// Next observation lands two windows later: one window closes with 2,
	// one closes empty.
	p.ObserveRequest(start.Add(2100 * time.Millisecond))

	p.mu.Lock()
	history := append([]int(nil), p.history...)
	current := p.current
	p.mu.Unlock()

	require.Len(t, history, 2)
	assert.Equal(t, []int{2, 0}, history)
	assert.Equal(t, 1, current)
}

func TestPacingHistoryBounded(t *testing.T) {
	p := NewPacing(100, 1)
	start := p.windowStart
	for i := range 90 {
		p.ObserveRequest(start.Add(time.Duration(i) * time.Second))
	}

	p.mu.Lock()
	n := len(p.history)
	p.mu.Unlock()
	assert.LessOrEqual(t, n, 60)
}

func TestSnapshotWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pacing.json")
	want := PacingSnapshot{
		RPM:           12,
		BackoffEvents: 3,
		Retries:       1,
		MaxRPM:        200,
		WindowSeconds: 60,
		History:       []int{4, 9, 12},
	}

	require.NoError(t, WritePacingSnapshot(path, want))
	got := ReadPacingSnapshot(path)
	assert.Equal(t, want, got)
}

func TestReadSnapshotMissingFile(t *testing.T) {
	got := ReadPacingSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, PacingSnapshot{}, got)
}

func TestReadSnapshotCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacing.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	got := ReadPacingSnapshot(path)
	assert.Equal(t, PacingSnapshot{}, got)
}

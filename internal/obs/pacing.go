// Package obs collects pacing telemetry for the dispatch queue and
// publishes it as a JSON snapshot external dashboards can poll.
package obs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

const defaultWindowSeconds = 60

// Pacing tracks request throughput against the broker's rate window.
type Pacing struct {
	backoffEvents atomic.Uint64
	retries       atomic.Uint64

	mu            sync.Mutex
	windowSeconds int
	maxRPM        int
	windowStart   time.Time
	current       int
	history       []int
}

// PacingSnapshot is a point-in-time view for external observability.
type PacingSnapshot struct {
	RPM           int    `json:"rpm"`
	BackoffEvents uint64 `json:"backoff_events"`
	Retries       uint64 `json:"retries"`
	MaxRPM        int    `json:"max_rpm"`
	WindowSeconds int    `json:"window_seconds"`
	History       []int  `json:"history"`
}

// NewPacing allocates a tracker. maxRPM is the externally-imposed ceiling
// reported in snapshots; windowSeconds <= 0 defaults to one minute.
func NewPacing(maxRPM, windowSeconds int) *Pacing {
	if windowSeconds <= 0 {
		windowSeconds = defaultWindowSeconds
	}
	return &Pacing{
		windowSeconds: windowSeconds,
		maxRPM:        maxRPM,
		windowStart:   time.Now(),
	}
}

// ObserveRequest counts one outbound broker call.
func (p *Pacing) ObserveRequest(now time.Time) {
	p.mu.Lock()
	p.roll(now)
	p.current++
	p.mu.Unlock()
}

// IncBackoff records one quota-exhausted wait.
func (p *Pacing) IncBackoff() {
	p.backoffEvents.Add(1)
}

// IncRetry records one caller-initiated resubmission.
func (p *Pacing) IncRetry() {
	p.retries.Add(1)
}

// Snapshot captures the current pacing values.
func (p *Pacing) Snapshot() PacingSnapshot {
	p.mu.Lock()
	p.roll(time.Now())
	history := make([]int, len(p.history))
	copy(history, p.history)
	snap := PacingSnapshot{
		RPM:           p.current,
		MaxRPM:        p.maxRPM,
		WindowSeconds: p.windowSeconds,
		History:       history,
	}
	p.mu.Unlock()
	snap.BackoffEvents = p.backoffEvents.Load()
	snap.Retries = p.retries.Load()
	return snap
}

// roll closes out elapsed windows. Caller holds mu.
func (p *Pacing) roll(now time.Time) {
	window := time.Duration(p.windowSeconds) * time.Second
	for now.Sub(p.windowStart) >= window {
		p.history = append(p.history, p.current)
		const keep = 60
		if len(p.history) > keep {
			p.history = p.history[len(p.history)-keep:]
		}
		p.current = 0
		p.windowStart = p.windowStart.Add(window)
	}
}

// Publish writes a snapshot to path at every interval until ctx is done.
func (p *Pacing) Publish(ctx context.Context, path string, interval time.Duration) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := WritePacingSnapshot(path, p.Snapshot()); err != nil {
				logs.Errorf("write pacing snapshot, err: %+v", err)
			}
		}
	}
}

// WritePacingSnapshot writes a snapshot to disk as JSON.
func WritePacingSnapshot(path string, snap PacingSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPacingSnapshot loads a snapshot from disk. Missing or malformed
// files yield zeroed defaults, never an error: the reader must not crash
// because the writer has not run yet.
func ReadPacingSnapshot(path string) PacingSnapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		return PacingSnapshot{}
	}
	var snap PacingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return PacingSnapshot{}
	}
	return snap
}

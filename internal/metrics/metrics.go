// Package metrics aggregates process-wide traffic counters and exposes them
// to the stats reporter and the Prometheus collector.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counters holds monotonic traffic totals. All fields are safe for
// concurrent update from the forwarder and session goroutines.
type Counters struct {
	DatagramsIn        atomic.Uint64
	DatagramsForwarded atomic.Uint64
	DatagramsDropped   atomic.Uint64
	BytesForwarded     atomic.Uint64
	TextMessages       atomic.Uint64
	Joins              atomic.Uint64
	Leaves             atomic.Uint64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	DatagramsIn        uint64
	DatagramsForwarded uint64
	DatagramsDropped   uint64
	BytesForwarded     uint64
	TextMessages       uint64
	Joins              uint64
	Leaves             uint64
}

// Snapshot copies the current totals.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DatagramsIn:        c.DatagramsIn.Load(),
		DatagramsForwarded: c.DatagramsForwarded.Load(),
		DatagramsDropped:   c.DatagramsDropped.Load(),
		BytesForwarded:     c.BytesForwarded.Load(),
		TextMessages:       c.TextMessages.Load(),
		Joins:              c.Joins.Load(),
		Leaves:             c.Leaves.Load(),
	}
}

// StateProvider reports current registry occupancy.
type StateProvider interface {
	ParticipantCount() int
	RoomCount() int
}

// RunReporter logs traffic deltas every interval until ctx is canceled.
// Intervals with no participants and no datagrams are skipped.
func RunReporter(ctx context.Context, counters *Counters, state StateProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := counters.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := counters.Snapshot()
			participants := state.ParticipantCount()
			datagrams := cur.DatagramsIn - last.DatagramsIn
			if participants == 0 && datagrams == 0 {
				last = cur
				continue
			}
			rate := float64(cur.BytesForwarded-last.BytesForwarded) / interval.Seconds()
			slog.Info("traffic stats",
				"participants", participants,
				"rooms", state.RoomCount(),
				"datagrams_in", datagrams,
				"forwarded", cur.DatagramsForwarded-last.DatagramsForwarded,
				"dropped", cur.DatagramsDropped-last.DatagramsDropped,
				"text", cur.TextMessages-last.TextMessages,
				"throughput", humanize.Bytes(uint64(rate))+"/s",
			)
			last = cur
		}
	}
}

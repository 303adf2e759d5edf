package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	emissionInterval  = 200 * time.Millisecond
	emissionByteDelta = 24 * 1024
	ewmaAlpha         = 0.6
)

// Snapshot is one point-in-time reading of a handle's aggregate progress.
// ChunkIndex names the fetcher whose byte delta triggered this emission,
// even though BytesDownloaded is the sum across every chunk.
type Snapshot struct {
	BytesDownloaded uint64
	TotalBytes      *uint64
	ChunkIndex      uint32
	BytesPerSecond  *float64
	RemainingBytes  *uint64
	Percent         *float64
}

// Aggregator accumulates byte deltas reported by concurrently running chunk
// fetchers into one handle-level progress stream, throttled so listeners
// aren't flooded: it emits on a 150-250ms cadence, a 16-32KB byte delta, or
// immediately at 100%, whichever comes first. Rate is EWMA-smoothed so a
// momentary stall in one chunk doesn't make the reported speed jump.
type Aggregator struct {
	mu sync.Mutex

	downloaded uint64 // atomic
	total      *uint64
	rate       float64
	rateSet    bool

	lastEmit       time.Time
	lastEmitBytes  uint64
	lastChunkIndex uint32

	emit func(Snapshot)
}

// NewAggregator builds an Aggregator seeded with startOffset — the bytes a
// handle already had on disk before this Aggregator's lifetime began (e.g.
// from a resumed PausedSnapshot) — that invokes emit on each throttled
// progress update. emit must not block.
func NewAggregator(startOffset uint64, emit func(Snapshot)) *Aggregator {
	return &Aggregator{downloaded: startOffset, emit: emit}
}

// SetTotal records the handle's total byte count, once known. Calling it
// again with a different value is a no-op: the first known value wins for
// the lifetime of this aggregator, per the set-once total semantics.
func (a *Aggregator) SetTotal(total uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total != nil {
		return
	}
	t := total
	a.total = &t
}

// AddBytes reports a byte delta from chunk chunkIndex and, if throttling
// allows, emits an updated Snapshot.
func (a *Aggregator) AddBytes(n int, chunkIndex uint32) {
	if n <= 0 {
		return
	}
	downloaded := atomic.AddUint64(&a.downloaded, uint64(n))

	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeEmit(downloaded, chunkIndex, false)
}

// Flush forces an emission regardless of throttling, used when a session
// transitions state (e.g. completion) and listeners need the final figure.
func (a *Aggregator) Flush() {
	downloaded := atomic.LoadUint64(&a.downloaded)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maybeEmit(downloaded, a.lastChunkIndex, true)
}

// maybeEmit must be called with a.mu held.
func (a *Aggregator) maybeEmit(downloaded uint64, chunkIndex uint32, force bool) {
	now := time.Now()
	elapsed := now.Sub(a.lastEmit)

	var percentDone bool
	if a.total != nil && *a.total > 0 && downloaded >= *a.total {
		percentDone = true
	}

	delta := downloaded - a.lastEmitBytes
	due := force || percentDone || a.lastEmit.IsZero() || a.total == nil ||
		elapsed >= emissionInterval || delta >= emissionByteDelta
	if !due {
		return
	}

	if !a.lastEmit.IsZero() && elapsed > 0 {
		instant := float64(delta) / elapsed.Seconds()
		if !a.rateSet {
			a.rate = instant
			a.rateSet = true
		} else {
			a.rate = ewmaAlpha*instant + (1-ewmaAlpha)*a.rate
		}
	}

	a.lastEmit = now
	a.lastEmitBytes = downloaded
	a.lastChunkIndex = chunkIndex

	snap := Snapshot{BytesDownloaded: downloaded, ChunkIndex: chunkIndex}
	if a.total != nil {
		total := *a.total
		snap.TotalBytes = &total
		var remaining uint64
		if downloaded < total {
			remaining = total - downloaded
		}
		snap.RemainingBytes = &remaining
		var pct float64
		if total > 0 {
			pct = float64(downloaded) / float64(total) * 100
			if pct > 100 {
				pct = 100
			}
		}
		snap.Percent = &pct
	}
	if a.rateSet {
		rate := a.rate
		snap.BytesPerSecond = &rate
	}

	if a.emit != nil {
		a.emit(snap)
	}
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/mirajabi/dlengine/internal/model"
	"github.com/mirajabi/dlengine/internal/progress"
)

// reason distinguishes why a session's context was cancelled, decided
// before the cancellation signal propagates so the retry driver's Cancelled
// handler can tell a pause from a stop.
type reason int

const (
	reasonRunning reason = iota
	reasonPauseRequested
	reasonStopRequested
)

// Session is the in-memory state for one active handle, owned by the
// Engine. Every exported accessor is safe for concurrent use: chunkStates is
// written by at most one fetcher goroutine per index, but read from the
// checkpoint flusher and the pause handler.
type Session struct {
	Handle     model.Handle
	Request    model.Request
	Resolution model.StorageResolution
	Config     model.Config

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	reason      reason
	chunkStates map[uint32]model.ChunkState
	totalBytes  *uint64

	Aggregator *progress.Aggregator

	checkpointMu   sync.Mutex
	lastCheckpoint time.Time
	flushPending   int32
}

// newSession constructs the in-memory state for a handle. startOffset is the
// handle's already-completed byte count at session start (zero for a fresh
// Enqueue, a PausedSnapshot's CompletedBytes for a Resume) and seeds the
// Aggregator so BytesDownloaded/Percent stay cumulative across a resume.
func newSession(handle model.Handle, req model.Request, resolution model.StorageResolution, cfg model.Config, startOffset uint64, emit func(progress.Snapshot)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		Handle:      handle,
		Request:     req,
		Resolution:  resolution,
		Config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
		chunkStates: make(map[uint32]model.ChunkState),
		Aggregator:  progress.NewAggregator(startOffset, emit),
	}
}

func (s *Session) setReason(r reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = r
}

func (s *Session) getReason() reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) setChunkState(cs model.ChunkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkStates[cs.Index] = cs
}

func (s *Session) chunkStatesSnapshot() []model.ChunkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChunkState, 0, len(s.chunkStates))
	for _, cs := range s.chunkStates {
		out = append(out, cs.Clone())
	}
	return out
}

func (s *Session) setTotalBytes(total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalBytes != nil {
		return
	}
	t := total
	s.totalBytes = &t
}

func (s *Session) totalBytesSnapshot() *uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalBytes == nil {
		return nil
	}
	t := *s.totalBytes
	return &t
}

func (s *Session) completedBytes() uint64 {
	return model.TotalCompletedBytes(s.chunkStatesSnapshot())
}

// buildSnapshot takes a consistent-enough point-in-time PausedSnapshot from
// the session's current state, per §5's "snapshot need not be globally
// atomic across slots" allowance.
func (s *Session) buildSnapshot() model.PausedSnapshot {
	states := s.chunkStatesSnapshot()
	return model.PausedSnapshot{
		HandleID:       s.Handle.ID,
		Request:        s.Request,
		Resolution:     s.Resolution,
		CompletedBytes: model.TotalCompletedBytes(states),
		ChunkStates:    states,
	}
}

func (s *Session) currentProgress() model.Progress {
	downloaded := s.completedBytes()
	p := model.Progress{BytesDownloaded: downloaded}
	if total := s.totalBytesSnapshot(); total != nil {
		p.TotalBytes = total
		var remaining uint64
		if downloaded < *total {
			remaining = *total - downloaded
		}
		p.RemainingBytes = &remaining
		pct := float64(0)
		if *total > 0 {
			pct = float64(downloaded) / float64(*total) * 100
		}
		p.Percent = &pct
	}
	return p
}

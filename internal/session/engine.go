// Package session implements the Session Manager: the orchestrator that
// owns every active handle, runs the retry driver described in the
// teacher's classify-backoff-retry shape (internal/http/retry.go),
// generalized from a single-operation retry to a resumable multi-attempt
// chunked download, and fans lifecycle events out through model.Listener.
package session

import (
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirajabi/dlengine/internal/checkpoint"
	"github.com/mirajabi/dlengine/internal/fetch"
	"github.com/mirajabi/dlengine/internal/integrity"
	"github.com/mirajabi/dlengine/internal/model"
	"github.com/mirajabi/dlengine/internal/planner"
	"github.com/mirajabi/dlengine/internal/progress"
	"github.com/mirajabi/dlengine/internal/scheduler"
	"github.com/mirajabi/dlengine/internal/storage"
	"github.com/mirajabi/dlengine/internal/transport"
)

const checkpointMinInterval = 100 * time.Millisecond

// Engine owns every active Session, the shared transport, checkpoint store,
// and storage resolver, and dispatches listener callbacks.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg         model.Config
	resolver    *storage.Resolver
	checkpoints *checkpoint.Store
	transport   *transport.Adapter
	scheduler   scheduler.Scheduler
	verifier    integrity.SignatureVerifier
}

// EngineOption configures optional Engine collaborators not carried by
// model.Config (itself a pure, JSON-persistable value with no room for a
// host-supplied interface).
type EngineOption func(*Engine)

// WithSignatureVerifier installs the host-provided hook the Integrity
// Verifier delegates to when a request's IntegrityConfig.VerifySignature is
// enabled. Without this option, enabling VerifySignature always fails fast
// (no verifier to delegate to) rather than silently skipping the check.
func WithSignatureVerifier(v integrity.SignatureVerifier) EngineOption {
	return func(e *Engine) { e.verifier = v }
}

// NewEngine builds an Engine ready to accept enqueue/pause/resume/stop
// calls. cfg supplies defaults for every session unless a future per-request
// override is introduced. A scheduler collaborator is always installed: the
// core forwards schedule/cancelScheduled to it but has no opinion on how
// triggers are timed or persisted.
func NewEngine(cfg model.Config, resolver *storage.Resolver, checkpoints *checkpoint.Store, adapter *transport.Adapter, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		resolver:    resolver,
		checkpoints: checkpoints,
		transport:   adapter,
	}
	e.scheduler = scheduler.New(func(req model.Request) { e.Enqueue(req) })
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schedule forwards req to the scheduler collaborator, to be enqueued at or
// after when. The core does not time anything itself.
func (e *Engine) Schedule(req model.Request, when time.Time) string {
	return e.scheduler.Schedule(req, when)
}

// CancelScheduled forwards to the scheduler collaborator.
func (e *Engine) CancelScheduled(id string) {
	e.scheduler.CancelScheduled(id)
}

// Enqueue resolves storage synchronously, loads a matching paused snapshot
// if one exists, and spawns the retry driver in the background.
func (e *Engine) Enqueue(req model.Request) model.Handle {
	handle := model.Handle{ID: req.ID, SourceURL: req.URL}
	e.dispatch(func(l model.Listener) {
		if l.OnQueued != nil {
			l.OnQueued(handle)
		}
	})

	resolution, resolveErr := e.resolver.Resolve(e.cfg.Storage, req, false)
	if resolveErr != nil {
		e.dispatch(func(l model.Listener) {
			if l.OnFailed != nil {
				l.OnFailed(handle, resolveErr)
			}
		})
		return handle
	}

	var startOffset uint64
	var priorStates []model.ChunkState
	if snap := e.checkpoints.LoadPausedSnapshot(req.ID); snap != nil {
		startOffset = snap.CompletedBytes
		priorStates = snap.ChunkStates
	}

	s := e.spawn(handle, req, resolution, startOffset)
	go e.runDownloadWithRetry(s, startOffset, priorStates, true)
	return handle
}

// Pause cancels the session's in-flight work, persists a resumable
// snapshot from its current chunk states, and emits onPaused. The reason
// is recorded before cancellation so the driver's Cancelled handler returns
// silently instead of emitting onCancelled.
func (e *Engine) Pause(id string) {
	s := e.getSession(id)
	if s == nil {
		return
	}
	s.setReason(reasonPauseRequested)
	snap := s.buildSnapshot()
	s.cancel()
	e.transport.CancelAll(id)
	e.checkpoints.SavePausedSnapshot(snap)
	e.dispatch(func(l model.Listener) {
		if l.OnPaused != nil {
			l.OnPaused(s.Handle)
		}
	})
}

// Resume loads the persisted snapshot for id and spawns a fresh retry
// driver starting from its recorded offset and chunk states. A second
// Resume while one is already running is a no-op: the engine looks up the
// existing in-memory session and returns without spawning a duplicate
// fetcher set racing the first over the same file handle.
func (e *Engine) Resume(id string) {
	if e.getSession(id) != nil {
		return
	}
	snap := e.checkpoints.LoadPausedSnapshot(id)
	if snap == nil {
		return
	}
	handle := model.Handle{ID: snap.HandleID, SourceURL: snap.Request.URL}
	s := e.spawn(handle, snap.Request, snap.Resolution, snap.CompletedBytes)
	e.dispatch(func(l model.Listener) {
		if l.OnResumed != nil {
			l.OnResumed(handle)
		}
	})
	// onStarted already fired during this handle's original Enqueue, so
	// the resumed attempt does not re-fire it.
	go e.runDownloadWithRetry(s, snap.CompletedBytes, snap.ChunkStates, false)
}

// Stop marks the session StopRequested, cancels it, and deletes its
// snapshot. onCancelled is emitted by the driver's Cancelled handler, which
// sees StopRequested and treats it as a genuine cancellation. For a handle
// with no in-memory session (e.g. one paused in an earlier process), Stop
// only deletes its snapshot; no listener event is emitted.
func (e *Engine) Stop(id string) {
	s := e.getSession(id)
	if s == nil {
		e.checkpoints.RemovePausedSnapshot(id)
		return
	}
	s.setReason(reasonStopRequested)
	e.checkpoints.RemovePausedSnapshot(id)
	s.cancel()
	e.transport.CancelAll(id)
}

// PreviewDestination runs the Storage Resolver in dry-run mode, performing
// every validation without touching the filesystem destructively.
func (e *Engine) PreviewDestination(req model.Request) (model.StorageResolution, *model.EngineError) {
	return e.resolver.Resolve(e.cfg.Storage, req, true)
}

// ListSessions returns the handles of every currently active session.
func (e *Engine) ListSessions() []model.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Handle, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.Handle)
	}
	return out
}

// Status reports the live progress of an active handle. ok is false when
// the handle is not currently active (never enqueued, or already terminal).
func (e *Engine) Status(id string) (model.Status, bool) {
	s := e.getSession(id)
	if s == nil {
		return model.Status{}, false
	}
	return model.RunningStatus(s.currentProgress()), true
}

func (e *Engine) spawn(handle model.Handle, req model.Request, resolution model.StorageResolution, startOffset uint64) *Session {
	s := newSession(handle, req, resolution, e.cfg, startOffset, func(snap progress.Snapshot) {
		e.dispatch(func(l model.Listener) {
			if l.OnProgress != nil {
				l.OnProgress(handle, model.Progress{
					BytesDownloaded: snap.BytesDownloaded,
					TotalBytes:      snap.TotalBytes,
					ChunkIndex:      snap.ChunkIndex,
					BytesPerSecond:  snap.BytesPerSecond,
					RemainingBytes:  snap.RemainingBytes,
					Percent:         snap.Percent,
				})
			}
		})
	})

	e.mu.Lock()
	e.sessions[handle.ID] = s
	e.mu.Unlock()
	return s
}

func (e *Engine) getSession(id string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

func (e *Engine) removeSession(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

func (e *Engine) dispatch(fn func(model.Listener)) {
	model.Dispatch(e.cfg.Listeners, fn)
}

// runDownloadWithRetry is the retry driver: one goroutine per active handle,
// following the attempt/classify/backoff loop from the error-handling
// table. emitStarted is false on resume, since onStarted fires at most once
// per handle's overall lifecycle.
func (e *Engine) runDownloadWithRetry(s *Session, startOffset uint64, priorStates []model.ChunkState, emitStarted bool) {
	attempt := 1
	delayMs := s.Config.Retry.InitialDelayMs
	offset := startOffset
	states := priorStates

	if emitStarted {
		e.dispatch(func(l model.Listener) {
			if l.OnStarted != nil {
				l.OnStarted(s.Handle)
			}
		})
	}

	for {
		err := e.runAttempt(s, offset, states)

		if err == nil {
			s.Aggregator.Flush()
			e.checkpoints.RemovePausedSnapshot(s.Handle.ID)
			e.removeSession(s.Handle.ID)
			e.dispatch(func(l model.Listener) {
				if l.OnCompleted != nil {
					l.OnCompleted(s.Handle)
				}
			})
			return
		}

		switch err.Kind {
		case model.ErrorCancelled:
			e.handleCancellation(s)
			return

		case model.ErrorIntegrity:
			_ = os.Remove(s.Resolution.File)
			states = nil
			offset = 0
			if attempt >= s.Config.Retry.MaxAttempts {
				e.fail(s, model.Promote(err))
				return
			}

		case model.ErrorNetwork:
			states = s.chunkStatesSnapshot()
			if attempt >= s.Config.Retry.MaxAttempts {
				e.fail(s, model.Promote(err))
				return
			}

		default: // Permanent, Storage: not retried
			e.fail(s, err)
			return
		}

		attemptNum := attempt
		e.dispatch(func(l model.Listener) {
			if l.OnRetry != nil {
				l.OnRetry(s.Handle, attemptNum)
			}
		})

		select {
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		case <-s.ctx.Done():
			e.handleCancellation(s)
			return
		}
		delayMs = int64(math.Max(1000, float64(delayMs)*s.Config.Retry.BackoffMultiplier))
		attempt++
	}
}

// handleCancellation retires the session and, unless it was cancelled for a
// pause (which returns silently so the paused snapshot stands undisturbed),
// emits onCancelled.
func (e *Engine) handleCancellation(s *Session) {
	reason := s.getReason()
	e.removeSession(s.Handle.ID)
	if reason == reasonPauseRequested {
		return
	}
	e.dispatch(func(l model.Listener) {
		if l.OnCancelled != nil {
			l.OnCancelled(s.Handle)
		}
	})
}

func (e *Engine) fail(s *Session, err *model.EngineError) {
	e.removeSession(s.Handle.ID)
	e.dispatch(func(l model.Listener) {
		if l.OnFailed != nil {
			l.OnFailed(s.Handle, err)
		}
	})
}

// runAttempt executes one full pass: open the target file, probe length
// when the total is not yet known, plan chunks, run the fetchers, and
// verify integrity.
func (e *Engine) runAttempt(s *Session, offset uint64, states []model.ChunkState) *model.EngineError {
	f, openErr := os.OpenFile(s.Resolution.File, os.O_RDWR|os.O_CREATE, 0o644)
	if openErr != nil {
		return model.NewStorageError("failed to open target file", openErr)
	}
	defer f.Close()

	total := s.totalBytesSnapshot()
	if total == nil {
		head, headErr := e.transport.Head(s.ctx, s.Handle.ID, s.Request.URL, s.Request.Headers)
		if headErr != nil {
			return headErr
		}
		if !head.LengthUnknown && head.Length != nil {
			t := uint64(*head.Length)
			total = &t
			s.setTotalBytes(t)
			s.Aggregator.SetTotal(t)
		}
	}

	plans := planner.Plan(total, s.Config.Chunking, offset, states)

	runner := fetch.NewRunner(e.transport, f)
	fetchErr := runner.Run(s.ctx, s.Handle.ID, s.Request.URL, s.Request.Headers, plans,
		s.Config.Chunking.PreferParallel, s.Config.Chunking.ChunkCount,
		fetch.ChunkObserver{
			OnBytes: func(chunkIndex uint32, n int) {
				s.Aggregator.AddBytes(n, chunkIndex)
			},
			OnState: func(cs model.ChunkState) {
				s.setChunkState(cs)
				e.maybeCheckpoint(s)
			},
			OnTotalKnown: func(t uint64) {
				s.setTotalBytes(t)
				s.Aggregator.SetTotal(t)
			},
		})
	if fetchErr != nil {
		return fetchErr
	}

	s.Aggregator.Flush()

	var expectedSize *int64
	if total := s.totalBytesSnapshot(); total != nil {
		sz := int64(*total)
		expectedSize = &sz
	}

	result := integrity.Verify(s.Config.Integrity, integrity.Input{
		Path:              s.Resolution.File,
		ExpectedSize:      expectedSize,
		ExpectedChecksum:  s.Request.ExpectedChecksum,
		ChecksumAlgorithm: s.Request.ChecksumAlgorithm,
		Verifier:          e.verifier,
	})
	if !result.OK {
		if result.Permanent {
			return model.NewPermanentError(strings.Join(result.Errors, "; "), nil)
		}
		return model.NewIntegrityError(result.Errors)
	}
	return nil
}

// maybeCheckpoint coalesces checkpoint writes: at most one in-flight flush
// at a time, and it skips the write if the last one landed under 100ms ago.
// The in-memory chunkStates map (read via buildSnapshot) is always current
// regardless of how stale the persisted copy is.
func (e *Engine) maybeCheckpoint(s *Session) {
	if !atomic.CompareAndSwapInt32(&s.flushPending, 0, 1) {
		return
	}
	go func() {
		defer atomic.StoreInt32(&s.flushPending, 0)

		s.checkpointMu.Lock()
		elapsed := time.Since(s.lastCheckpoint)
		s.checkpointMu.Unlock()
		if !s.lastCheckpoint.IsZero() && elapsed < checkpointMinInterval {
			return
		}

		snap := s.buildSnapshot()
		if e.checkpoints.SavePausedSnapshot(snap) {
			s.checkpointMu.Lock()
			s.lastCheckpoint = time.Now()
			s.checkpointMu.Unlock()
		}
	}()
}

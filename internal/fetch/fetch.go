// Package fetch implements the Range Fetcher: one goroutine per chunk plan,
// each issuing a single GET (optionally ranged), streaming the body into a
// positional write against the shared target file, and reporting byte
// deltas and checkpoint updates as it goes. Grounded on the teacher's
// worker-pool chunked download (job channel + WriteAt + first-error-wins
// cancellation).
package fetch

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mirajabi/dlengine/internal/model"
	"github.com/mirajabi/dlengine/internal/planner"
	"github.com/mirajabi/dlengine/internal/transport"
)

const readBufferSize = 16 * 1024

// ChunkObserver receives per-chunk events as a fetcher makes progress.
// OnBytes reports a byte delta for the aggregator; OnState reports the
// chunk's updated checkpoint; OnTotalKnown fires at most once, when the
// total length becomes known from a response.
type ChunkObserver struct {
	OnBytes      func(chunkIndex uint32, n int)
	OnState      func(model.ChunkState)
	OnTotalKnown func(total uint64)
}

// Runner executes a set of chunk plans against a single open file handle.
type Runner struct {
	Adapter *transport.Adapter
	File    *os.File
}

func NewRunner(adapter *transport.Adapter, file *os.File) *Runner {
	return &Runner{Adapter: adapter, File: file}
}

// Run executes every plan, gated by a semaphore of K permits when
// preferParallel is true and there is more than one plan; otherwise plans
// run one at a time. It returns the first error encountered across all
// fetchers (first-error-wins), after cancelling the rest.
func (r *Runner) Run(ctx context.Context, handleID, url string, headers map[string]string, plans []planner.ChunkPlan, preferParallel bool, maxParallel int, observer ChunkObserver) *model.EngineError {
	if len(plans) == 0 {
		return nil
	}

	permits := 1
	if preferParallel && len(plans) > 1 {
		permits = maxParallel
		if permits > len(plans) {
			permits = len(plans)
		}
		if permits < 1 {
			permits = 1
		}
	}

	sem := make(chan struct{}, permits)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr *model.EngineError
	var mu sync.Mutex

	setErr := func(err *model.EngineError) {
		once.Do(func() {
			mu.Lock()
			firstErr = err
			mu.Unlock()
			cancel()
		})
	}

	for _, plan := range plans {
		plan := plan
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }()

			if err := r.runOne(runCtx, handleID, url, headers, plan, observer); err != nil {
				setErr(err)
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

// runOne executes a single chunk plan to completion or failure.
func (r *Runner) runOne(ctx context.Context, handleID, url string, headers map[string]string, plan planner.ChunkPlan, observer ChunkObserver) *model.EngineError {
	var rng *transport.Range
	if plan.EndInclusive != nil {
		end := *plan.EndInclusive
		rng = &transport.Range{Start: plan.ResumeOffset, End: &end}
	} else if plan.ResumeOffset > 0 {
		rng = &transport.Range{Start: plan.ResumeOffset}
	}

	resp, err := r.Adapter.Get(ctx, handleID, url, headers, rng)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if plan.Start == 0 && observer.OnTotalKnown != nil {
		if total, ok := transport.ParseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			observer.OnTotalKnown(total)
		} else if cl := resp.Header.Get("Content-Length"); cl != "" && rng == nil {
			if n, parseErr := strconv.ParseUint(cl, 10, 64); parseErr == nil {
				observer.OnTotalKnown(n)
			}
		}
	}

	// A ranged request answered with 200 instead of 206 means the origin
	// ignored Range: restart this chunk from its own start, skipping the
	// full body's bytes that precede it.
	restart := rng != nil && resp.StatusCode == 200

	position := plan.ResumeOffset
	if restart {
		position = plan.Start
		if plan.Start > 0 {
			if _, skipErr := io.CopyN(io.Discard, resp.Body, int64(plan.Start)); skipErr != nil {
				return model.NewNetworkError("short read before EOF", skipErr)
			}
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			writeLen := n
			if plan.EndInclusive != nil {
				limit := *plan.EndInclusive + 1
				if position+uint64(writeLen) > limit {
					writeLen = int(limit - position)
				}
			}
			if writeLen > 0 {
				if _, werr := r.File.WriteAt(buf[:writeLen], int64(position)); werr != nil {
					return model.NewNetworkError("write failed", werr)
				}
				position += uint64(writeLen)
				if observer.OnBytes != nil {
					observer.OnBytes(plan.Index, writeLen)
				}
				if observer.OnState != nil {
					observer.OnState(stateFor(plan, position))
				}
			}
			if plan.EndInclusive != nil && position >= *plan.EndInclusive+1 {
				break
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if strings.Contains(readErr.Error(), "context canceled") {
				return model.NewCancelledError()
			}
			return model.NewNetworkError("short read before EOF", readErr)
		}
	}

	if observer.OnState != nil {
		if plan.EndInclusive != nil {
			observer.OnState(stateFor(plan, *plan.EndInclusive+1))
		} else {
			observer.OnState(stateFor(plan, position))
		}
	}

	return nil
}

func stateFor(plan planner.ChunkPlan, nextOffset uint64) model.ChunkState {
	var end *uint64
	if plan.EndInclusive != nil {
		e := *plan.EndInclusive
		end = &e
	}
	return model.ChunkState{Index: plan.Index, Start: plan.Start, EndInclusive: end, NextOffset: nextOffset}
}

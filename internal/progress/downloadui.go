package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// MultiBar renders one live bar per active chunk-fetcher inside a single
// download session, for the CLI's watch mode. It is the concurrent
// counterpart to CLIProgress, which renders one bar for a whole handle.
type MultiBar struct {
	progress   *mpb.Progress
	bars       sync.Map // chunk index -> *ChunkBar
	isTerminal bool
	handleID   string
	targetPath string
	chunkCount int
	completed  int32
}

// ChunkBar is the live bar for one chunk fetcher.
type ChunkBar struct {
	bar        *mpb.Bar
	ui         *MultiBar
	index      uint32
	size       int64
	retries    int32
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewMultiBar prepares a multi-bar view for handleID's download into
// targetPath, expected to host chunkCount concurrent chunk bars.
func NewMultiBar(handleID, targetPath string, chunkCount int) *MultiBar {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &MultiBar{
		progress:   p,
		isTerminal: isTerminal,
		handleID:   handleID,
		targetPath: targetPath,
		chunkCount: chunkCount,
	}
}

// AddChunkBar creates a new live bar for the chunk at the given index,
// covering size bytes.
func (u *MultiBar) AddChunkBar(index uint32, size int64) *ChunkBar {
	destPath := truncatePath(u.targetPath, 2)

	cb := &ChunkBar{
		ui:         u,
		index:      index,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		cb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					retries := atomic.LoadInt32(&cb.retries)
					base := fmt.Sprintf("[chunk %d/%d] %s", index, u.chunkCount, destPath)
					if retries > 0 {
						return fmt.Sprintf("%s (retry %d)", base, retries)
					}
					return base
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Any(func(s decor.Statistics) string {
					pct := float64(0)
					if s.Total > 0 {
						pct = float64(s.Current) / float64(s.Total) * 100
					}
					return fmt.Sprintf("%6.2f%%", pct)
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Printf("Downloading %s: chunk %d/%d (%.1f MiB)\n",
			destPath, index, u.chunkCount, float64(size)/(1024*1024))
	}

	u.bars.Store(index, cb)
	return cb
}

// UpdateBytes reports an absolute cumulative byte count for the chunk,
// letting mpb's EWMA decorators derive speed and ETA from elapsed time.
func (c *ChunkBar) UpdateBytes(current int64) {
	if c.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(c.lastUpdate)
	const updateInterval = 300 * time.Millisecond
	if elapsed < updateInterval {
		return
	}

	delta := current - c.lastBytes
	c.bar.EwmaIncrBy(int(delta), elapsed)
	c.lastBytes = current
	c.lastUpdate = now
}

// SetRetry records a retry attempt against this chunk and marks the bar.
func (c *ChunkBar) SetRetry(count int) {
	atomic.StoreInt32(&c.retries, int32(count))
	if c.bar != nil && count > 0 {
		c.bar.SetRefill(c.lastBytes)
	}
}

// Complete marks the chunk bar finished, successfully or not.
func (c *ChunkBar) Complete(err error) {
	if err == nil {
		if c.bar != nil {
			c.bar.SetCurrent(c.size)
			c.bar.SetTotal(c.size, true)
		}
	} else if c.bar != nil {
		c.bar.Abort(false)
	}
	atomic.AddInt32(&c.ui.completed, 1)
}

// Wait blocks until every chunk bar has been marked complete.
func (u *MultiBar) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// LogWriter returns a writer that prints above the live bars without
// corrupting their redraw.
func (u *MultiBar) LogWriter() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// Completed reports how many chunk bars have finished.
func (u *MultiBar) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// IsTerminal reports whether output is attached to a terminal.
func (u *MultiBar) IsTerminal() bool {
	return u.isTerminal
}

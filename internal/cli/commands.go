package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirajabi/dlengine/internal/model"
	"github.com/mirajabi/dlengine/internal/progress"
	"github.com/mirajabi/dlengine/internal/session"
)

// filepathBase infers a file name from a URL's path component, falling
// back to a fixed name for a URL with no path segments (e.g. a bare host).
func filepathBase(rawURL string) string {
	trimmed := strings.SplitN(rawURL, "?", 2)[0]
	if i := strings.Index(trimmed, "://"); i >= 0 {
		rest := trimmed[i+len("://"):]
		if j := strings.Index(rest, "/"); j >= 0 {
			trimmed = rest[j:]
		} else {
			trimmed = ""
		}
	}
	base := path.Base(trimmed)
	if base == "" || base == "." || base == "/" {
		return "download.bin"
	}
	return base
}

// uiMode selects which progress.Reporter backs a foreground watcher.
type uiMode int

const (
	// uiRich renders one live mpb bar per handle, with retry-count
	// decoration; the default for an interactive terminal.
	uiRich uiMode = iota
	// uiSimple renders a single schollz/progressbar line, for scripted or
	// log-captured invocations that don't want mpb's ANSI redraw.
	uiSimple
	// uiQuiet renders nothing; only the final outcome is returned.
	uiQuiet
)

// multiBarReporter adapts a MultiBar/ChunkBar pair to the progress.Reporter
// interface, so foregroundWatcher can drive any reporter uniformly.
type multiBarReporter struct {
	ui  *progress.MultiBar
	bar *progress.ChunkBar
}

func (r *multiBarReporter) Start(total int64, description string) {
	r.bar = r.ui.AddChunkBar(0, total)
}
func (r *multiBarReporter) Update(current int64) {
	if r.bar != nil {
		r.bar.UpdateBytes(current)
	}
}
func (r *multiBarReporter) Finish() {
	if r.bar != nil {
		r.bar.Complete(nil)
	}
}
func (r *multiBarReporter) Error(err error) {
	if r.bar != nil {
		r.bar.Complete(err)
	}
}
func (r *multiBarReporter) SetDescription(desc string) {}
func (r *multiBarReporter) SetRetry(attempt int) {
	if r.bar != nil {
		r.bar.SetRetry(attempt)
	}
}
func (r *multiBarReporter) Wait() { r.ui.Wait() }

// retryReporter is implemented by reporters that can surface a retry count;
// progress.CLIProgress and progress.NoOpProgress don't, so OnRetry is a
// type-asserted best-effort hook rather than part of progress.Reporter.
type retryReporter interface {
	SetRetry(attempt int)
}

// waiter is implemented by reporters that need a final flush/drain before
// the foreground command returns (MultiBar owns an mpb.Progress goroutine).
type waiter interface {
	Wait()
}

// foregroundWatcher drives one progress.Reporter for one handle's lifetime.
// The engine's Listener reports aggregate bytes (no per-chunk breakdown), so
// the reporter is started lazily, once, as soon as the total length is
// known, and tracks the aggregate the same way a one-chunk download would.
type foregroundWatcher struct {
	mu       sync.Mutex
	reporter progress.Reporter
	started  bool
	done     chan struct{}
	err      error
}

func newForegroundWatcher(handleID, targetPath string, mode uiMode) *foregroundWatcher {
	var reporter progress.Reporter
	switch mode {
	case uiSimple:
		reporter = progress.NewCLIProgress()
	case uiQuiet:
		reporter = progress.NewNoOpProgress()
	default:
		reporter = &multiBarReporter{ui: progress.NewMultiBar(handleID, targetPath, 1)}
	}
	return &foregroundWatcher{reporter: reporter, done: make(chan struct{})}
}

func (w *foregroundWatcher) listener() model.Listener {
	return model.Listener{
		OnProgress: func(h model.Handle, p model.Progress) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if !w.started && p.TotalBytes != nil {
				w.reporter.Start(int64(*p.TotalBytes), h.ID)
				w.started = true
			}
			if w.started {
				w.reporter.Update(int64(p.BytesDownloaded))
			}
		},
		OnRetry: func(h model.Handle, attempt int) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if rr, ok := w.reporter.(retryReporter); ok {
				rr.SetRetry(attempt)
			}
		},
		OnCompleted: func(h model.Handle) { w.finish(nil) },
		OnCancelled: func(h model.Handle) { w.finish(fmt.Errorf("cancelled")) },
		OnFailed: func(h model.Handle, err *model.EngineError) {
			w.finish(err)
		},
	}
}

func (w *foregroundWatcher) finish(err error) {
	w.mu.Lock()
	if err != nil {
		w.reporter.Error(err)
	} else {
		w.reporter.Finish()
	}
	w.err = err
	w.mu.Unlock()
	close(w.done)
}

func (w *foregroundWatcher) wait() error {
	<-w.done
	if wv, ok := w.reporter.(waiter); ok {
		wv.Wait()
	}
	return w.err
}

// interruptPauses forwards SIGINT/SIGTERM to engine.Pause(handleID) so a
// Ctrl+C during a foreground enqueue/resume checkpoints cleanly instead of
// abandoning the in-flight write. The returned func stops the forwarding.
func interruptPauses(engine *session.Engine, handleID string) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			logger.Info().Str("handle", handleID).Msg("interrupt received, pausing")
			engine.Pause(handleID)
		}
	}()
	return func() { signal.Stop(sigCh) }
}

func newEnqueueCmd() *cobra.Command {
	var (
		fileName  string
		checksum  string
		algo      string
		customDir string
		simple    bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Start a new resumable download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if fileName == "" {
				fileName = filepathBase(url)
			}

			opts := []model.RequestOption{}
			if checksum != "" {
				opts = append(opts, model.WithExpectedChecksum(checksum, model.ChecksumAlgorithm(algo)))
			}
			if customDir != "" {
				opts = append(opts, model.WithDestination(model.CustomDestination(customDir)))
			}
			req := model.NewRequest(url, fileName, opts...)

			watcher := newForegroundWatcher(req.ID, fileName, uiModeFromFlags(simple, quiet))
			engine, err := buildEngine(watcher.listener())
			if err != nil {
				return err
			}

			handle := engine.Enqueue(req)
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s -> %s\n", handle.ID, fileName)

			stop := interruptPauses(engine, handle.ID)
			defer stop()

			if waitErr := watcher.wait(); waitErr != nil {
				return waitErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fileName, "filename", "", "target file name (default: inferred from the URL)")
	cmd.Flags().StringVar(&checksum, "checksum", "", "expected hex digest to verify after download")
	cmd.Flags().StringVar(&algo, "checksum-algo", string(model.SHA256), "checksum algorithm: MD5, SHA256, or SHA512")
	cmd.Flags().StringVar(&customDir, "dest", "", "custom destination directory (default: platform downloads folder)")
	cmd.Flags().BoolVar(&simple, "simple", false, "render one plain progress line instead of the live mpb bar")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "report nothing until the download finishes")
	return cmd
}

// uiModeFromFlags resolves the --simple/--quiet flag pair to a uiMode;
// --quiet takes precedence if both are set.
func uiModeFromFlags(simple, quiet bool) uiMode {
	switch {
	case quiet:
		return uiQuiet
	case simple:
		return uiSimple
	default:
		return uiRich
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause an in-flight download",
		Long: `Pause only has an effect while the handle's enqueue/resume is running in
the foreground of another dlenginectl invocation: this process has no
visibility into another process's in-memory session. Prefer Ctrl+C on the
running invocation, which pauses cleanly. This command exists for hosts that
embed the engine in a single long-lived process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			engine.Pause(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "pause requested for %s\n", args[0])
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	var simple, quiet bool

	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused download from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handleID := args[0]
			watcher := newForegroundWatcher(handleID, handleID, uiModeFromFlags(simple, quiet))
			engine, err := buildEngine(watcher.listener())
			if err != nil {
				return err
			}

			engine.Resume(handleID)
			stop := interruptPauses(engine, handleID)
			defer stop()

			if waitErr := watcher.wait(); waitErr != nil {
				return waitErr
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&simple, "simple", false, "render one plain progress line instead of the live mpb bar")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "report nothing until the download finishes")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a download and discard its resumable checkpoint",
		Long: `Stop removes the persisted checkpoint for id so a later resume is no
longer possible. The partial file itself is left on disk; cleaning it up is
the caller's responsibility.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			engine.Stop(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Report the live progress of a handle running in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}

			if status, ok := engine.Status(args[0]); ok {
				printStatus(cmd, args[0], status)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: no active session (not running in this process)\n", args[0])
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, id string, status model.Status) {
	out := cmd.OutOrStdout()
	switch status.Kind {
	case model.StatusRunning:
		fmt.Fprintf(out, "%s: running, %d bytes downloaded", id, status.Progress.BytesDownloaded)
		if status.Progress.Percent != nil {
			fmt.Fprintf(out, " (%.1f%%)", *status.Progress.Percent)
		}
		fmt.Fprintln(out)
	case model.StatusCompleted:
		fmt.Fprintf(out, "%s: completed -> %s\n", id, status.Path)
	case model.StatusFailed:
		fmt.Fprintf(out, "%s: failed: %v\n", id, status.Err)
	case model.StatusCancelled:
		fmt.Fprintf(out, "%s: cancelled\n", id)
	default:
		fmt.Fprintf(out, "%s: queued\n", id)
	}
}

func newPreviewCmd() *cobra.Command {
	var fileName string

	cmd := &cobra.Command{
		Use:   "preview <url>",
		Short: "Resolve where a download would land, without creating or deleting the target file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if fileName == "" {
				fileName = filepathBase(url)
			}
			req := model.NewRequest(url, fileName)

			engine, err := buildEngine()
			if err != nil {
				return err
			}

			resolution, resolveErr := engine.PreviewDestination(req)
			if resolveErr != nil {
				return fmt.Errorf("cannot resolve destination: %w", resolveErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "directory: %s\nfile:      %s\noverwrite: %v\n",
				resolution.Directory, resolution.File, resolution.OverwroteExisting)
			return nil
		},
	}
	cmd.Flags().StringVar(&fileName, "filename", "", "target file name (default: inferred from the URL)")
	return cmd
}

package progress

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// truncatePath shortens a path to its last N components for compact display
// next to a chunk bar. Example: truncatePath("/a/b/c/d/file.bin", 2) → "…/d/file.bin".
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows so mpb's
// ANSI cursor/color sequences render correctly; a no-op everywhere else.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}

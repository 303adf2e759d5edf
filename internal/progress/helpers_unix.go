//go:build !windows
// +build !windows

package progress

import "os"

// enableWindowsANSI is a no-op on non-Windows platforms; ANSI escape
// sequences work natively in Unix terminals.
func enableWindowsANSI(f *os.File) {
}

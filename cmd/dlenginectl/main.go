// dlenginectl is a thin operator/demo CLI over an in-process download
// engine: it enqueues, pauses, resumes, stops, and inspects handles against
// a checkpoint store on disk, so downloads started in one invocation can be
// paused and resumed from a later one.
package main

import (
	"fmt"
	"os"

	"github.com/mirajabi/dlengine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command writer runs the run-state/append-writer stage: it consumes
// aggregated frames, sample-environment logs, run logs, alarms, and
// run start/stop control messages, and appends them into per-run NeXus
// files under internal/runengine.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

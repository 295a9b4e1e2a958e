// Command aggregator runs the frame-aggregation stage: it consumes
// per-digitiser event contributions from the digitiser_event topic,
// correlates them by frame identity in internal/framecache, and publishes
// complete-or-expired frames to the frame_event topic.
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

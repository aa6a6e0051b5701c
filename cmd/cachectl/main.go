// Command cachectl is an operational CLI around a single in-process engine
// instance: flush a cache region, print cache statistics, or warm the cache
// with a canned batch of cell requests. It wires the in-memory reference
// SqlExecutor and SegmentCache (internal/demo), never a real warehouse
// connection, so it also doubles as a smoke test for the full
// C5->C4->C6->C7 path.
package main

import (
	"fmt"
	"os"

	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
)

func main() {
	defer logutil.Sync()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command storekit resolves selectors, dispatches actions and runs
// conformance scenarios against a configured site.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/storekit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// Command loopexit runs scheduling scenarios and inspects stored decision
// traces of the loop-exit state scheduler.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/loopexit/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Commands report their own failures; only cobra's usage errors
		// are left to print.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}

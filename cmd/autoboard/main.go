// Command autoboard runs board automation rules.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/autoboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

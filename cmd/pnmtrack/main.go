// Command pnmtrack runs the recruitment check-in kiosk, candidate
// registration, and the gateway proxy.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pnmtrack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

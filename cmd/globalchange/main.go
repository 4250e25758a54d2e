// Command globalchange applies one transformation to many repository
// documents under lock, with a rehearsal mode and a SQLite run ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/globalchange/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own ExitErrors in the selected format.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}

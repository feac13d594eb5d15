// Command rstore runs store scenarios and inspects their change journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/restrictedstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

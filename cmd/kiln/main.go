// Command kiln builds and watches static sites.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/kiln/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "kiln:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

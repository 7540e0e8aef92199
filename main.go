// Command verify-links checks every link in a built static site and exits
// non-zero when broken links are found.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jestress/verifylinks/cmd"
)

// Version is injected at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := cmd.NewRootCmd()
	root.Version = Version
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, cmd.ErrBrokenLinks) {
		fmt.Fprintf(os.Stderr, "verify-links: %v\n", err)
	}
	os.Exit(cmd.ExitCode(err))
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/drblury/hubflow/internal/cmd/cli"
	"github.com/drblury/hubflow/internal/runtime"
)

func main() {
	root := cli.NewRoot(runtime.ServiceDependencies{})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "hubflow:", err)
		os.Exit(1)
	}
}

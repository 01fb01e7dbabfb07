package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dusk-indust/blueprint/internal/status"
)

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	report, err := status.Scan(ctx, root)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, report.Format())
	return nil
}

// Package cli implements the nim-recall command line.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Error carries the process exit code for a failed run.
type Error struct {
	Code    int
	Message string
}

// Run parses argv and runs the selected command.
func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "nim-recall",
		Usage: "Personal memory recall assistant",
		Commands: []*cli.Command{
			serveCommand(),
			replCommand(),
			askCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

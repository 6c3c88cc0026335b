package cli

import (
	"os"

	"github.com/spf13/cobra"

	"prepbot/internal/app"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, if enabled, the pipeline worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := open(ctx, os.Stdout)
			if err != nil {
				return err
			}
			defer rt.Close()

			a, err := app.New(rt.cfg, rt.deps, rt.svc, rt.logger, rt.metrics)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}


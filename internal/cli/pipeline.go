package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prepbot/internal/state"
)

func ScanCmd() *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Extract chunks from corpus files not processed before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				if last {
					return printLastScan(cmd, rt.cfg.ScanOutputPath())
				}
				res, err := rt.svc.Runner.Scan(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "files: %d extracted: %d skipped: %d unsupported: %d failed: %d chunks: %d\n",
					res.Files, res.Extracted, res.Skipped, res.Unsupported, res.Failed, len(res.Chunks))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "list the chunks added by the latest scan instead of scanning")
	return cmd
}

func printLastScan(cmd *cobra.Command, path string) error {
	chunks, err := state.ReadScanOutput(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "No scan output yet.")
		return nil
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range chunks {
		fmt.Fprintf(out, "%s %s", c.ID, c.Metadata.Source)
		if c.Metadata.PageSlide != "" {
			fmt.Fprintf(out, " (%s)", c.Metadata.PageSlide)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "chunks: %d\n", len(chunks))
	return nil
}

func EmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Embed every pending chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				res, err := rt.svc.Runner.Embed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "embedded: %d already embedded: %d\n", len(res.Items), res.AlreadyEmbedded)
				return nil
			})
		},
	}
}

func IndexCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Add embedded chunks not yet saved to the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				var n int
				var err error
				if from != "" {
					n, err = rt.svc.Runner.IndexFrom(ctx, from)
				} else {
					n, err = rt.svc.Runner.Index(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed: %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "index the items of an exported embedded file instead of the ledger")
	return cmd
}

func UpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Scan, embed and index in one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				r, err := rt.svc.Runner.Update(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "files: %d skipped: %d unsupported: %d failed: %d\n",
					r.FilesSeen, r.FilesSkipped, r.FilesUnsupported, r.FilesFailed)
				fmt.Fprintf(out, "chunks extracted: %d embedded: %d already embedded: %d indexed: %d\n",
					r.ChunksExtracted, r.ChunksEmbedded, r.AlreadyEmbedded, r.RecordsIndexed)
				return nil
			})
		},
	}
}

func ExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every embedded chunk as a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				records, err := rt.deps.Ledger.Records(ctx)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = rt.cfg.EmbeddedOutputPath()
				}
				items := state.EmbeddedItems(records)
				if err := state.WriteEmbeddedOutput(path, items); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d items to %s\n", len(items), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default <STATE_DIR>/embedded_chunks.json)")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const previewLen = 80

func RetrieveCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Print the chunks nearest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				docs, err := rt.svc.Retriever.Retrieve(ctx, query, k)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No results found.")
					return nil
				}
				for i, d := range docs {
					fmt.Fprintf(out, "[%d] %s %s", i+1, d.ID, d.Metadata.Source)
					if d.Metadata.PageSlide != "" {
						fmt.Fprintf(out, " (%s)", d.Metadata.PageSlide)
					}
					fmt.Fprintf(out, " distance=%.4f\n", d.Distance)
					fmt.Fprintf(out, "    %s\n", preview(d.Document))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of results (default search_top_k)")
	return cmd
}

func AskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the retrieved passages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withSession(cmd, func(ctx context.Context, rt *session) error {
				answer, err := rt.svc.Generator.Answer(ctx, query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			})
		},
	}
}

func preview(doc string) string {
	s := strings.Join(strings.Fields(doc), " ")
	r := []rune(s)
	if len(r) > previewLen {
		return string(r[:previewLen]) + "..."
	}
	return s
}

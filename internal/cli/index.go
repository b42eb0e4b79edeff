package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperloom/internal/domain"
	"paperloom/internal/ports"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and query the vector index",
	}
	cmd.AddCommand(newIndexBuildCmd(), newIndexSearchCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed stored papers and insert them into the vector index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.Pipeline().IndexPapers(cmd.Context(), a.Embedder(), a.VectorIndex(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d papers\n", count)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of papers to index (0 = all)")
	return cmd
}

func newIndexSearchCmd() *cobra.Command {
	var (
		topK       int
		categories []string
		fromDate   string
		toDate     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the papers most similar to a query text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(categories, fromDate, toDate)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			papers, err := a.Pipeline().SimilarPapers(cmd.Context(), a.Embedder(), a.VectorIndex(), args[0], topK, filter)
			if err != nil {
				return err
			}
			for _, p := range papers {
				printPaper(cmd, p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results")
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "restrict to papers in any of these categories (repeatable)")
	cmd.Flags().StringVar(&fromDate, "from-date", "", "inclusive lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to-date", "", "inclusive upper bound (YYYY-MM-DD)")
	return cmd
}

func buildFilter(categories []string, fromDate, toDate string) (*ports.SearchFilter, error) {
	from, err := parseDateFlag(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := parseDateFlag(toDate)
	if err != nil {
		return nil, err
	}

	ids := make([]domain.CategoryID, 0, len(categories))
	for _, s := range categories {
		id, err := domain.ParseCategoryID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 && from == nil && to == nil {
		return nil, nil
	}
	return &ports.SearchFilter{Categories: ids, PublishedAfter: from, PublishedBefore: to}, nil
}

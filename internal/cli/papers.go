package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperloom/internal/domain"
)

func newPapersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "papers",
		Short: "Ingest and manage papers",
	}
	cmd.AddCommand(newPapersLatestCmd(), newPapersHistoricalCmd(), newPapersListCmd(), newPapersDeleteCmd())
	return cmd
}

func newPapersLatestCmd() *cobra.Command {
	var (
		categories []string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Fetch the latest papers from the RSS feed",
		Long: "Fetch the latest papers from the RSS feed and persist them.\n" +
			"With --all the feed is queried for every archive-level category.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			requested, err := requestedCategories(categories, all)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			papers, err := a.Pipeline().IngestLatest(cmd.Context(), a.FeedSource(), requested)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d papers\n", len(papers))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "category identifier (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "ingest every archive-level category")
	return cmd
}

// requestedCategories keeps the choice between a concrete category set and
// "everything" explicit, so a forgotten -c cannot trigger a full ingestion.
func requestedCategories(categories []string, all bool) ([]string, error) {
	switch {
	case all && len(categories) > 0:
		return nil, fmt.Errorf("--all and -c are mutually exclusive")
	case all:
		return nil, nil
	case len(categories) == 0:
		return nil, fmt.Errorf("specify categories with -c or pass --all")
	default:
		return categories, nil
	}
}

func newPapersHistoricalCmd() *cobra.Command {
	var (
		categories []string
		all        bool
		inputFile  string
		fromDate   string
		toDate     string
	)

	cmd := &cobra.Command{
		Use:   "historical",
		Short: "Ingest papers from a bulk JSON-lines dump",
		RunE: func(cmd *cobra.Command, _ []string) error {
			requested, err := requestedCategories(categories, all)
			if err != nil {
				return err
			}
			from, err := parseDateFlag(fromDate)
			if err != nil {
				return err
			}
			to, err := parseDateFlag(toDate)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			papers, err := a.Pipeline().IngestHistorical(cmd.Context(), a.DumpSource(inputFile), requested, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d papers\n", len(papers))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "category identifier (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "ingest every archive-level category")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "path to the JSON-lines dump")
	cmd.Flags().StringVar(&fromDate, "from-date", "", "inclusive lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to-date", "", "inclusive upper bound (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("input-file")
	return cmd
}

func newPapersListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored papers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			papers, err := a.Pipeline().ListPapers(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, p := range papers {
				printPaper(cmd, p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of papers (0 = all)")
	return cmd
}

func newPapersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <arxiv-id>...",
		Short: "Delete papers by arxiv id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Pipeline().DeletePapers(cmd.Context(), args); err != nil {
				return err
			}
			if err := a.VectorIndex().Delete(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d papers\n", len(args))
			return nil
		},
	}
}

func printPaper(cmd *cobra.Command, p domain.Paper) {
	ids := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		ids[i] = c.ID.String()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t[%s]\n",
		p.ArxivID, p.PublishedAt.Format(dateLayout), p.Title, strings.Join(ids, " "))
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paperloom/internal/app"
	"paperloom/internal/config"
)

const dateLayout = "2006-01-02"

// Execute runs the command tree.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "paperloom",
		Short:         "Ingest and search ArXiv paper metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newCategoriesCmd(), newPapersCmd(), newIndexCmd())
	return cmd
}

func openApp() (*app.Application, error) {
	return app.New(config.Load(), nil)
}

func parseDateFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return &t, nil
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/mementer/internal/ir"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show replica statistics",
		Long: `Show what the local replica holds: record counts, the anchor hash and
the number of discoverable aggregates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ids, err := s.engine.ListAggregates(cmd.Context())
			if err != nil {
				return s.out.Fail("list aggregates", err)
			}
			counts, err := s.store.Counts(cmd.Context())
			if err != nil {
				return s.out.Fail("count records", err)
			}
			return s.out.Success(inspectView{
				Database:      rootOpts.cfg.Database,
				Anchor:        s.engine.Anchor(),
				Aggregates:    len(ids),
				Counts:        counts,
				FormatVersion: ir.FormatVersion,
				ToolVersion:   ir.ToolVersion,
			})
		},
	}
	return cmd
}

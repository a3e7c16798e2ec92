package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/mementer/internal/engine"
)

// ContentOptions holds the flags that supply entry content.
type ContentOptions struct {
	*RootOptions
	Inline string
	File   string
}

func (o *ContentOptions) bind(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringVar(&o.Inline, name, "", usage+" as a JSON object")
	cmd.Flags().StringVarP(&o.File, "file", "f", "", usage+" from a YAML or JSON file")
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an aggregate",
		Long: `Create an aggregate with initial settings.

Writes the settings entry, the aggregate identity, and the links that make
the aggregate discoverable and resolvable.

Example:
  mementer create --settings '{"title":"Morning pages","small_slices":12}'
  mementer create -f settings.yaml --at 1700000000000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}
	opts.bind(cmd, "settings", "initial settings")
	return cmd
}

func runCreate(opts *ContentOptions, cmd *cobra.Command) error {
	content, err := readContent(opts.Inline, opts.File)
	if err != nil {
		return newFormatter(opts.RootOptions, cmd).Invalid(err)
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	created, err := s.engine.CreateAggregate(cmd.Context(), content)
	if err != nil {
		return s.out.Fail("create aggregate", err)
	}
	return s.out.Success(createdView{Aggregate: created.Aggregate, Revision: created.Revision})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List aggregates with their current settings",
		Long: `List every aggregate discoverable from the anchor, with its current
settings. Aggregates without a resolvable revision are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			aggs, err := s.engine.Aggregates(cmd.Context())
			if err != nil {
				return s.out.Fail("list aggregates", err)
			}
			views := make(aggregateList, len(aggs))
			for i, a := range aggs {
				views[i] = newAggregateView(a)
			}
			return s.out.Success(views)
		},
	}
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <aggregate-id>",
		Short: "Show the current settings of an aggregate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHash(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Invalid(err)
			}

			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			agg, err := s.engine.GetAggregate(cmd.Context(), id)
			if err != nil {
				return s.out.Fail("get aggregate", err)
			}
			return s.out.Success(newAggregateView(agg))
		},
	}
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <aggregate-id>",
		Short: "Record a new revision of an aggregate",
		Long: `Record a new revision of an aggregate.

The revision is appended without reading the current state. Whether it
becomes current is decided when the aggregate is read: the revision with the
greatest (timestamp, action hash) wins.

Example:
  mementer update 3f1c... --settings '{"title":"Evening pages"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}
	opts.bind(cmd, "settings", "new settings")
	return cmd
}

func runUpdate(opts *ContentOptions, arg string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	id, err := parseHash(arg)
	if err != nil {
		return out.Invalid(err)
	}
	content, err := readContent(opts.Inline, opts.File)
	if err != nil {
		return out.Invalid(err)
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ref, err := s.engine.RecordRevision(cmd.Context(), id, content)
	if err != nil {
		return s.out.Fail("record revision", err)
	}
	return s.out.Success(revisionRefView{Aggregate: id, RevisionRef: ref})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <aggregate-id>",
		Short: "Show every resolvable revision, newest first",
		Long: `Show every resolvable revision of an aggregate in last-write-wins
order. The first line, marked with *, is the current revision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHash(args[0])
			if err != nil {
				return newFormatter(rootOpts, cmd).Invalid(err)
			}

			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			revs, err := s.engine.History(cmd.Context(), id)
			if err != nil {
				return s.out.Fail("read history", err)
			}
			views := make(historyView, len(revs))
			for i, r := range revs {
				views[i] = newAggregateView(engine.Aggregate{ID: id, Settings: r.Settings, Revision: r})
			}
			return s.out.Success(views)
		},
	}
	return cmd
}

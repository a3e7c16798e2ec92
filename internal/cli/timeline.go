package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/mementer/internal/engine"
)

// NewAttachCommand creates the attach command.
func NewAttachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attach <aggregate-id>",
		Short: "Attach a timeline item to an aggregate",
		Long: `Attach a timeline item to an aggregate.

Attachments are unordered; give them an integer "timestamp" field to sort
them with 'timeline --sort timestamp'.

Example:
  mementer attach 3f1c... --content '{"text":"wrote 300 words","timestamp":1700000000}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			id, err := parseHash(args[0])
			if err != nil {
				return out.Invalid(err)
			}
			content, err := readContent(opts.Inline, opts.File)
			if err != nil {
				return out.Invalid(err)
			}

			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ref, err := s.engine.CreateAttachment(cmd.Context(), id, content)
			if err != nil {
				return s.out.Fail("create attachment", err)
			}
			return s.out.Success(attachmentRefView(ref))
		},
	}
	opts.bind(cmd, "content", "attachment content")
	return cmd
}

// TimelineOptions holds flags for the timeline command.
type TimelineOptions struct {
	*RootOptions
	Sort string
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TimelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeline <aggregate-id>",
		Short: "List the attachments of an aggregate",
		Long: `List every resolvable attachment of an aggregate.

Without --sort, attachments come in link order. With --sort FIELD they are
ordered by that integer field of their own content; items without it go last.`,
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

			atts, err := s.engine.ListAttachments(cmd.Context(), id)
			if err != nil {
				return s.out.Fail("list attachments", err)
			}
			if opts.Sort != "" {
				engine.SortChronological(atts, opts.Sort)
			}
			return s.out.Success(newTimelineView(atts))
		},
	}
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort by this integer content field (e.g. timestamp)")
	return cmd
}

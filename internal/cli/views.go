package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/mementer/internal/engine"
	"github.com/roach88/mementer/internal/ir"
	"github.com/roach88/mementer/internal/store"
)

// Response payloads. JSON output encodes them as-is; text output uses their
// String methods.

type createdView struct {
	Aggregate ir.Hash            `json:"aggregate"`
	Revision  engine.RevisionRef `json:"revision"`
}

func (v createdView) String() string {
	return fmt.Sprintf("created %s (revision %s)", v.Aggregate, v.Revision.Entry.Short())
}

type aggregateView struct {
	ID        ir.Hash   `json:"id"`
	Settings  ir.Object `json:"settings"`
	Entry     ir.Hash   `json:"entry"`
	Author    string    `json:"author"`
	Timestamp int64     `json:"timestamp"`
}

func newAggregateView(a engine.Aggregate) aggregateView {
	return aggregateView{
		ID:        a.ID,
		Settings:  a.Settings,
		Entry:     a.Revision.Entry,
		Author:    a.Revision.Action.Author,
		Timestamp: a.Revision.Action.Timestamp,
	}
}

func (v aggregateView) String() string {
	return fmt.Sprintf("%s  %s", v.ID, display(v.Settings))
}

type aggregateList []aggregateView

func (l aggregateList) String() string {
	if len(l) == 0 {
		return "no aggregates"
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

type revisionRefView struct {
	Aggregate ir.Hash `json:"aggregate"`
	engine.RevisionRef
}

func (v revisionRefView) String() string {
	return fmt.Sprintf("recorded revision %s of %s", v.Entry.Short(), v.Aggregate.Short())
}

type attachmentRefView engine.AttachmentRef

func (v attachmentRefView) String() string {
	return fmt.Sprintf("attached %s to %s", v.Entry.Short(), v.Aggregate.Short())
}

type attachmentView struct {
	Entry     ir.Hash   `json:"entry"`
	Content   ir.Object `json:"content"`
	Author    string    `json:"author"`
	Timestamp int64     `json:"timestamp"`
}

type timelineView []attachmentView

func newTimelineView(atts []engine.Attachment) timelineView {
	out := make(timelineView, len(atts))
	for i, a := range atts {
		out[i] = attachmentView{
			Entry:     a.Entry,
			Content:   a.Content,
			Author:    a.Action.Author,
			Timestamp: a.Action.Timestamp,
		}
	}
	return out
}

func (l timelineView) String() string {
	if len(l) == 0 {
		return "no attachments"
	}
	lines := make([]string, len(l))
	for i, a := range l {
		lines[i] = fmt.Sprintf("%s  %s", a.Entry.Short(), display(a.Content))
	}
	return strings.Join(lines, "\n")
}

type historyView []aggregateView

func (l historyView) String() string {
	lines := make([]string, len(l))
	for i, v := range l {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		lines[i] = fmt.Sprintf("%s %d  %s  %s  %s", marker, v.Timestamp, v.Entry.Short(), v.Author, display(v.Settings))
	}
	return strings.Join(lines, "\n")
}

type inspectView struct {
	Database      string       `json:"database"`
	Anchor        ir.Hash      `json:"anchor"`
	Aggregates    int          `json:"aggregates"`
	Counts        store.Counts `json:"counts"`
	FormatVersion string       `json:"format_version"`
	ToolVersion   string       `json:"tool_version"`
}

func (v inspectView) String() string {
	return fmt.Sprintf(`database:   %s
anchor:     %s
aggregates: %d
entries:    %d
actions:    %d
links:      %d
format:     v%s (mementer %s)`,
		v.Database, v.Anchor, v.Aggregates,
		v.Counts.Entries, v.Counts.Actions, v.Counts.Links,
		v.FormatVersion, v.ToolVersion)
}

type syncView struct {
	Pulled int `json:"pulled"`
	Pushed int `json:"pushed"`
}

func (v syncView) String() string {
	return fmt.Sprintf("pulled %d records, pushed %d records", v.Pulled, v.Pushed)
}

// display renders content as compact JSON for text output.
func display(obj ir.Object) string {
	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/mementer/internal/engine"
	"github.com/roach88/mementer/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Replica  string // Replica the assertion read, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Replica != "" {
		fmt.Fprintf(&buf, " on %s", e.Replica)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s\n", e.Expected, e.Actual)
	return buf.String()
}

// evaluateAssertions evaluates all assertions and returns failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertCurrent:
			err = h.assertCurrent(ctx, a)
		case AssertNotFound:
			err = h.assertNotFound(ctx, a)
		case AssertHistory:
			err = h.assertHistory(ctx, a)
		case AssertTimeline:
			err = h.assertTimeline(ctx, a)
		case AssertAggregates:
			err = h.assertAggregates(ctx, a)
		case AssertConverged:
			err = h.assertConverged(ctx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func (h *Harness) assertCurrent(ctx context.Context, a Assertion) error {
	rev, err := h.reader(h.replicas[a.Replica]).ResolveCurrent(ctx, h.labels[a.Aggregate])
	if err != nil {
		return &AssertionError{
			Type:     AssertCurrent,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%s resolves", a.Aggregate),
			Actual:   err.Error(),
		}
	}

	want, err := toObject(a.Expect)
	if err != nil {
		return fmt.Errorf("current: expect %w", err)
	}
	for _, k := range want.SortedKeys() {
		got, ok := rev.Settings[k]
		if !ok || !valuesEqual(got, want[k]) {
			return &AssertionError{
				Type:     AssertCurrent,
				Replica:  a.Replica,
				Expected: fmt.Sprintf("%s.%s = %s", a.Aggregate, k, render(want[k])),
				Actual:   fmt.Sprintf("settings %s", render(rev.Settings)),
			}
		}
	}
	return nil
}

func (h *Harness) assertNotFound(ctx context.Context, a Assertion) error {
	_, err := h.reader(h.replicas[a.Replica]).ResolveCurrent(ctx, h.labels[a.Aggregate])
	if engine.IsNotFound(err) {
		return nil
	}
	actual := "resolved"
	if err != nil {
		actual = err.Error()
	}
	return &AssertionError{
		Type:     AssertNotFound,
		Replica:  a.Replica,
		Expected: fmt.Sprintf("%s not found", a.Aggregate),
		Actual:   actual,
	}
}

func (h *Harness) assertHistory(ctx context.Context, a Assertion) error {
	revs, err := h.reader(h.replicas[a.Replica]).History(ctx, h.labels[a.Aggregate])
	if err != nil && !engine.IsNotFound(err) {
		return fmt.Errorf("history on %s: %w", a.Replica, err)
	}
	if len(revs) != *a.Count {
		return &AssertionError{
			Type:     AssertHistory,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%d resolvable revisions of %s", *a.Count, a.Aggregate),
			Actual:   fmt.Sprintf("%d", len(revs)),
		}
	}
	return nil
}

func (h *Harness) assertTimeline(ctx context.Context, a Assertion) error {
	atts, err := h.reader(h.replicas[a.Replica]).ListAttachments(ctx, h.labels[a.Aggregate])
	if err != nil {
		return fmt.Errorf("timeline on %s: %w", a.Replica, err)
	}
	if a.Count != nil && len(atts) != *a.Count {
		return &AssertionError{
			Type:     AssertTimeline,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%d attachments on %s", *a.Count, a.Aggregate),
			Actual:   fmt.Sprintf("%d", len(atts)),
		}
	}
	if a.Key == "" {
		return nil
	}

	engine.SortChronological(atts, "timestamp")
	got := make([]string, len(atts))
	for i, att := range atts {
		if v, ok := att.Content[a.Key]; ok {
			got[i] = render(v)
		} else {
			got[i] = "<missing>"
		}
	}
	want := make([]string, len(a.Values))
	for i, v := range a.Values {
		conv, err := ir.FromGo(v)
		if err != nil {
			return fmt.Errorf("timeline: values[%d]: %w", i, err)
		}
		want[i] = render(conv)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		return &AssertionError{
			Type:     AssertTimeline,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%s values %v", a.Key, want),
			Actual:   fmt.Sprintf("(-want +got)\n%s", diff),
		}
	}
	return nil
}

func (h *Harness) assertAggregates(ctx context.Context, a Assertion) error {
	aggs, err := h.reader(h.replicas[a.Replica]).Aggregates(ctx)
	if err != nil {
		return fmt.Errorf("aggregates on %s: %w", a.Replica, err)
	}
	if len(aggs) != *a.Count {
		return &AssertionError{
			Type:     AssertAggregates,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%d aggregates", *a.Count),
			Actual:   fmt.Sprintf("%d", len(aggs)),
		}
	}
	return nil
}

// assertConverged compares each listed replica's snapshot with the first.
func (h *Harness) assertConverged(ctx context.Context, a Assertion) error {
	names := a.Replicas
	if len(names) == 0 {
		names = h.order
	}
	if len(names) < 2 {
		return nil
	}

	first, err := h.snapshot(ctx, h.replicas[names[0]])
	if err != nil {
		return fmt.Errorf("converged: snapshot %s: %w", names[0], err)
	}
	for _, name := range names[1:] {
		view, err := h.snapshot(ctx, h.replicas[name])
		if err != nil {
			return fmt.Errorf("converged: snapshot %s: %w", name, err)
		}
		if diff := cmp.Diff(first, view); diff != "" {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s observes the same state as %s", name, names[0]),
				Actual:   fmt.Sprintf("(-%s +%s)\n%s", names[0], name, diff),
			}
		}
	}
	return nil
}

// valuesEqual compares two values by their canonical encoding.
func valuesEqual(a, b ir.Value) bool {
	ea, errA := ir.MarshalCanonical(a)
	eb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && bytes.Equal(ea, eb)
}

func render(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mementer/internal/ir"
	"github.com/roach88/mementer/internal/memstore"
	"github.com/roach88/mementer/internal/testutil"
)

func TestResolveCurrent_T1T2T3(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.create(t, 100, title("T1"))
	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("T1"), rev.Settings)

	// Older revision does not win.
	f.revise(t, id, 50, title("T2"))
	rev, err = f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("T1"), rev.Settings)
	assert.Equal(t, 2, rev.Candidates)

	// Newer revision does.
	ref := f.revise(t, id, 200, title("T3"))
	rev, err = f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("T3"), rev.Settings)
	assert.Equal(t, ref.Entry, rev.Entry)
	assert.Equal(t, ref.LinkAction, rev.Action.Hash)
	assert.Equal(t, id, rev.Aggregate)
	assert.Equal(t, int64(200), rev.Action.Timestamp)
}

func TestResolveCurrent_SharedActionHashConverges(t *testing.T) {
	ctx := context.Background()

	// Two different edges claim one action hash. Whichever a replica stores
	// first, neither may decide the winner.
	one := ir.Entry{Kind: ir.KindSettings, Content: title("one")}
	two := ir.Entry{Kind: ir.KindSettings, Content: title("two")}

	resolve := func(t *testing.T, first, second ir.Entry, firstTS, secondTS int64) Revision {
		f := newFixture(t)
		id := f.create(t, 10, title("genuine"))
		a := f.putEntry(t, first)
		b := f.putEntry(t, second)
		f.putLink(t, forgedLink("zzz", firstTS, id, a, ir.LinkRevision))
		f.putLink(t, forgedLink("zzz", secondTS, id, b, ir.LinkRevision))

		rev, err := f.engine.ResolveCurrent(ctx, id)
		require.NoError(t, err)
		return rev
	}

	forward := resolve(t, one, two, 100, 200)
	reverse := resolve(t, two, one, 200, 100)

	assert.Equal(t, title("genuine"), forward.Settings)
	assert.Equal(t, title("genuine"), reverse.Settings)
	assert.Equal(t, 1, forward.Candidates)
	if diff := cmp.Diff(forward, reverse); diff != "" {
		t.Errorf("arrival order changed the result (-forward +reverse):\n%s", diff)
	}
}

func TestResolveCurrent_TieBreakRealHashes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 10, title("start"))

	// Two writers, same timestamp.
	refA := f.revise(t, id, 100, title("A"))
	other := New(f.faults, testutil.NewManualClock("writer-b", 100))
	refB, err := other.RecordRevision(ctx, id, title("B"))
	require.NoError(t, err)
	require.NotEqual(t, refA.LinkAction, refB.LinkAction)

	want := title("A")
	if refB.LinkAction > refA.LinkAction {
		want = title("B")
	}

	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, rev.Settings)
}

func TestResolveCurrent_ConvergesUnderPermutation(t *testing.T) {
	ctx := context.Background()

	var entries [][]byte
	var links []ir.Link
	id := ir.HashEntry([]byte("aggregate"))
	timestamps := []int64{100, 300, 200, 300, 50, 300, 250, 100}
	for i, ts := range timestamps {
		data, err := ir.Entry{Kind: ir.KindSettings, Content: ir.Obj(ir.P("n", ir.Int(i)))}.Encode()
		require.NoError(t, err)
		entries = append(entries, data)
		l, err := ir.NewLink(fmt.Sprintf("writer-%d", i), ts, id, ir.HashEntry(data), ir.LinkRevision, "")
		require.NoError(t, err)
		links = append(links, l)
	}

	// Independent oracle: max (timestamp, action hash).
	winner := links[0]
	for _, l := range links[1:] {
		if ir.CompareLinks(l, winner) > 0 {
			winner = l
		}
	}

	rng := rand.New(rand.NewSource(42))
	var first *Revision
	for round := 0; round < 25; round++ {
		mem := memstore.New()
		for _, data := range entries {
			_, err := mem.Put(ctx, data)
			require.NoError(t, err)
		}
		perm := rng.Perm(len(links))
		for _, i := range perm {
			require.NoError(t, mem.PutLink(ctx, links[i]))
		}

		rev, err := New(mem, testutil.NewManualClock("reader", 0)).ResolveCurrent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, winner.ID(), rev.Action.Hash, "round %d perm %v", round, perm)

		if first == nil {
			first = &rev
			continue
		}
		if diff := cmp.Diff(*first, rev); diff != "" {
			t.Fatalf("round %d resolved differently (-first +got):\n%s", round, diff)
		}
	}
}

func TestResolveCurrent_MonotonicVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("v1"))

	f.revise(t, id, 99, title("older"))
	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("v1"), rev.Settings)

	f.revise(t, id, 101, title("newer"))
	rev, err = f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("newer"), rev.Settings)
}

func TestResolveCurrent_MissingWinnerFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("first"))
	f.revise(t, id, 200, title("second"))
	winner := f.revise(t, id, 300, title("third"))

	f.faults.Hide(winner.Entry)
	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("second"), rev.Settings)
	assert.Equal(t, 3, rev.Candidates)

	// Once the entry replicates, it wins.
	f.faults.Reveal(winner.Entry)
	rev, err = f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("third"), rev.Settings)
}

func TestResolveCurrent_SkipsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("good"))

	notJSON, err := f.mem.Put(ctx, []byte("not json"))
	require.NoError(t, err)
	wrongKind := f.putEntry(t, ir.Entry{Kind: ir.KindAttachment, Content: title("attachment")})

	for i, target := range []ir.Hash{notJSON, wrongKind} {
		l, err := ir.NewLink("writer-x", int64(200+i), id, target, ir.LinkRevision, "")
		require.NoError(t, err)
		f.putLink(t, l)
	}

	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("good"), rev.Settings)
}

func TestResolveCurrent_IgnoresForeignLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("good"))
	evil := f.putEntry(t, ir.Entry{Kind: ir.KindSettings, Content: title("evil")})

	// Action claims a different target.
	mismatched := forgedLink("f1", 900, id, evil, ir.LinkRevision)
	mismatched.Action.Target = "elsewhere"
	// Action is not a link action.
	wrongKind := forgedLink("f2", 901, id, evil, ir.LinkRevision)
	wrongKind.Action.Kind = ir.ActionCreateEntry
	// Action carries no hash.
	unhashed := forgedLink("", 902, id, evil, ir.LinkRevision)
	unhashed.Action.Hash = ""
	unhashed.Action.Tag = "x"
	// Action describes an attachment link.
	wrongType := forgedLink("f4", 903, id, evil, ir.LinkRevision)
	wrongType.Action.LinkType = ir.LinkAttachment

	for _, l := range []ir.Link{mismatched, wrongKind, wrongType} {
		f.putLink(t, l)
	}
	assert.False(t, unhashed.WellFormed())

	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, title("good"), rev.Settings)
	assert.Equal(t, 1, rev.Candidates)
}

func TestResolveCurrent_NoLinks(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ResolveCurrent(context.Background(), ir.HashEntry([]byte("nobody")))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResolveCurrent_AllCandidatesAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("one"))
	ref := f.revise(t, id, 200, title("two"))

	rev, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	f.faults.Hide(rev.Entry)
	f.faults.Hide(ref.Entry)
	links, err := f.mem.Links(ctx, id, ir.LinkRevision)
	require.NoError(t, err)
	for _, l := range links {
		f.faults.Hide(l.Target)
	}

	_, err = f.engine.ResolveCurrent(ctx, id)
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestResolveCurrent_AllCandidatesMalformed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.putEntry(t, ir.AggregateEntry("x"))
	bad, err := f.mem.Put(ctx, []byte(`{"kind":"settings"}`))
	require.NoError(t, err)
	l, err := ir.NewLink("w", 1, id, bad, ir.LinkRevision, "")
	require.NoError(t, err)
	f.putLink(t, l)

	_, err = f.engine.ResolveCurrent(ctx, id)
	require.Error(t, err)
	assert.True(t, IsMalformed(err), "got %v", err)
	assert.False(t, IsNotFound(err))
}

func TestResolveCurrent_AbsentAndMalformedIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.putEntry(t, ir.AggregateEntry("x"))
	bad, err := f.mem.Put(ctx, []byte("garbage"))
	require.NoError(t, err)

	for i, target := range []ir.Hash{bad, ir.HashEntry([]byte("never stored"))} {
		l, err := ir.NewLink("w", int64(i), id, target, ir.LinkRevision, "")
		require.NoError(t, err)
		f.putLink(t, l)
	}

	_, err = f.engine.ResolveCurrent(ctx, id)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestResolveCurrent_OnlyForeignLinksIsMalformed(t *testing.T) {
	f := newFixture(t)
	id := f.putEntry(t, ir.AggregateEntry("x"))
	l := forgedLink("f", 1, id, "t", ir.LinkRevision)
	l.Action.Kind = "delete_link"
	f.putLink(t, l)

	_, err := f.engine.ResolveCurrent(context.Background(), id)
	assert.True(t, IsMalformed(err), "got %v", err)
}

func TestResolveCurrent_StoreUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("link query", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t, 1, title("x"))
		f.faults.FailQueries(true)

		_, err := f.engine.ResolveCurrent(ctx, id)
		require.Error(t, err)
		assert.True(t, IsStoreUnavailable(err))
		assert.True(t, errors.Is(err, testutil.ErrInjected))
	})

	t.Run("entry read is not skipped", func(t *testing.T) {
		f := newFixture(t)
		id := f.create(t, 1, title("old"))
		ref := f.revise(t, id, 2, title("new"))
		f.faults.FailGet(ref.Entry)

		_, err := f.engine.ResolveCurrent(ctx, id)
		require.Error(t, err)
		assert.True(t, IsStoreUnavailable(err))
	})
}

func TestResolveCurrentBatch_MatchesIndividual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []ir.Hash
	for i := 0; i < 6; i++ {
		id := f.create(t, int64(100+i), title(fmt.Sprintf("agg-%d", i)))
		f.revise(t, id, int64(50+i), title("stale"))
		if i%2 == 0 {
			f.revise(t, id, int64(500+i), title(fmt.Sprintf("fresh-%d", i)))
		}
		ids = append(ids, id)
	}
	// Unresolvable: all targets hidden.
	hidden := f.create(t, 999, title("hidden"))
	links, err := f.mem.Links(ctx, hidden, ir.LinkRevision)
	require.NoError(t, err)
	for _, l := range links {
		f.faults.Hide(l.Target)
	}
	// Unknown id.
	unknown := ir.HashEntry([]byte("unknown"))
	ids = append(ids, hidden, unknown, ids[0])

	want := map[ir.Hash]Revision{}
	for _, id := range ids {
		rev, err := f.engine.ResolveCurrent(ctx, id)
		if err != nil {
			require.True(t, IsNotFound(err) || IsMalformed(err), "unexpected %v", err)
			continue
		}
		want[id] = rev
	}

	before := f.faults.BatchCalls()
	linksBefore := f.faults.LinksCalls()
	got, err := f.engine.ResolveCurrentBatch(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.faults.BatchCalls())
	assert.Equal(t, linksBefore, f.faults.LinksCalls())

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("batch differs from individual resolution (-want +got):\n%s", diff)
	}
	assert.NotContains(t, got, hidden)
	assert.NotContains(t, got, unknown)
	assert.Len(t, got, 6)
}

func TestResolveCurrentBatch_Empty(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.ResolveCurrentBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, f.faults.BatchCalls())
}

func TestResolveCurrentBatch_StoreUnavailableFailsBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, 1, title("a"))
	b := f.create(t, 2, title("b"))

	rev, err := f.engine.ResolveCurrent(ctx, b)
	require.NoError(t, err)
	f.faults.FailGet(rev.Entry)

	_, err = f.engine.ResolveCurrentBatch(ctx, []ir.Hash{a, b})
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))

	f.faults.FailQueries(true)
	_, err = f.engine.ResolveCurrentBatch(ctx, []ir.Hash{a})
	assert.True(t, IsStoreUnavailable(err))
}

func TestHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.create(t, 100, title("T1"))
	f.revise(t, id, 50, title("T2"))
	missing := f.revise(t, id, 150, title("gone"))
	f.revise(t, id, 200, title("T3"))
	f.faults.Hide(missing.Entry)

	revs, err := f.engine.History(ctx, id)
	require.NoError(t, err)
	var titles []ir.Object
	for _, r := range revs {
		titles = append(titles, r.Settings)
		assert.Equal(t, 4, r.Candidates)
	}
	assert.Equal(t, []ir.Object{title("T3"), title("T1"), title("T2")}, titles)

	current, err := f.engine.ResolveCurrent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, current, revs[0])
}

func TestHistory_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.History(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/mementer/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustEntry(t *testing.T, e ir.Entry) []byte {
	t.Helper()
	data, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return data
}

func mustLink(t *testing.T, ts int64, base, target ir.Hash, typ ir.LinkType, tag string) ir.Link {
	t.Helper()
	l, err := ir.NewLink("author-a", ts, base, target, typ, tag)
	if err != nil {
		t.Fatalf("NewLink() failed: %v", err)
	}
	return l
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"entries", "actions", "links"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() succeeded on a newer schema version")
	}
}

func TestClose_NilSafe(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("Close() on zero Store = %v", err)
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	data := mustEntry(t, ir.AnchorEntry())
	h, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if h != ir.HashEntry(data) {
		t.Errorf("Put() hash = %s, want %s", h, ir.HashEntry(data))
	}

	got, ok, err := s.Get(ctx, h)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != string(data) {
		t.Errorf("Get() = %s, want %s", got, data)
	}

	// Second put is a no-op.
	h2, err := s.Put(ctx, data)
	if err != nil || h2 != h {
		t.Errorf("second Put() = %s, %v", h2, err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Entries != 1 {
		t.Errorf("Entries = %d, want 1", counts.Entries)
	}
}

func TestGet_Missing(t *testing.T) {
	s := openTestStore(t)

	data, ok, err := s.Get(context.Background(), ir.HashEntry([]byte("nope")))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || data != nil {
		t.Errorf("Get() = %q, %v; want nil, false", data, ok)
	}
}

func TestPut_AcceptsNonEntryBytes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	h, err := s.Put(ctx, []byte("not json"))
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, ok, err := s.Get(ctx, h)
	if err != nil || !ok || string(got) != "not json" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
}

func TestAppendAction_ReadAction(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, err := ir.NewEntryAction("author-a", 100, ir.HashEntry([]byte("x")))
	if err != nil {
		t.Fatalf("NewEntryAction() failed: %v", err)
	}
	if err := s.AppendAction(ctx, a); err != nil {
		t.Fatalf("AppendAction() failed: %v", err)
	}
	if err := s.AppendAction(ctx, a); err != nil {
		t.Fatalf("duplicate AppendAction() failed: %v", err)
	}

	got, ok, err := s.ReadAction(ctx, a.Hash)
	if err != nil || !ok {
		t.Fatalf("ReadAction() = %v, %v", ok, err)
	}
	if got != a {
		t.Errorf("ReadAction() = %+v, want %+v", got, a)
	}

	_, ok, err = s.ReadAction(ctx, ir.HashEntry([]byte("missing")))
	if err != nil || ok {
		t.Errorf("ReadAction(missing) = %v, %v", ok, err)
	}
}

func TestAppendAction_RejectsLinkAction(t *testing.T) {
	s := openTestStore(t)
	l := mustLink(t, 1, "base", "target", ir.LinkRevision, "")

	if err := s.AppendAction(context.Background(), l.Action); err == nil {
		t.Error("AppendAction() accepted a create_link action")
	}
}

func TestLinks_OrderedByTimestampThenHash(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := ir.HashEntry([]byte("base"))
	l1 := mustLink(t, 300, base, ir.HashEntry([]byte("t1")), ir.LinkRevision, "")
	l2 := mustLink(t, 100, base, ir.HashEntry([]byte("t2")), ir.LinkRevision, "")
	l3 := mustLink(t, 200, base, ir.HashEntry([]byte("t3")), ir.LinkRevision, "")
	other := mustLink(t, 50, base, ir.HashEntry([]byte("t4")), ir.LinkAttachment, "")

	for _, l := range []ir.Link{l1, l2, l3, other, l1} {
		if err := s.PutLink(ctx, l); err != nil {
			t.Fatalf("PutLink() failed: %v", err)
		}
	}

	links, err := s.Links(ctx, base, ir.LinkRevision)
	if err != nil {
		t.Fatalf("Links() failed: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("Links() returned %d links, want 3", len(links))
	}
	want := []ir.Hash{l2.ID(), l3.ID(), l1.ID()}
	for i, l := range links {
		if l.ID() != want[i] {
			t.Errorf("links[%d] = %s, want %s", i, l.ID().Short(), want[i].Short())
		}
		if !l.WellFormed() {
			t.Errorf("links[%d] not well formed after round trip", i)
		}
	}
}

func TestLinks_Empty(t *testing.T) {
	s := openTestStore(t)

	links, err := s.Links(context.Background(), "nothing", ir.LinkRevision)
	if err != nil {
		t.Fatalf("Links() failed: %v", err)
	}
	if links == nil || len(links) != 0 {
		t.Errorf("Links() = %v, want empty non-nil slice", links)
	}
}

func TestLinks_UndecodableActionIsNotWellFormed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := s.db.Exec(`
		INSERT INTO links (action_hash, base, target, type, tag, author, timestamp, action)
		VALUES ('bad', 'base', 'target', 'revision', '', 'x', 1, 'not json')
	`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	links, err := s.Links(ctx, "base", ir.LinkRevision)
	if err != nil {
		t.Fatalf("Links() failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("Links() returned %d links, want 1", len(links))
	}
	if links[0].WellFormed() {
		t.Error("link with undecodable action reported well formed")
	}
	if !strings.Contains(logs.String(), "link action does not decode") {
		t.Errorf("decode failure not logged, got %q", logs.String())
	}
}

func TestLinksBatch_GroupsByBase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.compiler.MaxParams = 2 // force several statements

	var bases []ir.Hash
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		base := ir.HashEntry([]byte(name))
		bases = append(bases, base)
		if name == "c" {
			continue
		}
		l := mustLink(t, int64(i), base, ir.HashEntry([]byte(name+"-target")), ir.LinkRevision, "")
		if err := s.PutLink(ctx, l); err != nil {
			t.Fatalf("PutLink() failed: %v", err)
		}
	}

	got, err := s.LinksBatch(ctx, bases, ir.LinkRevision)
	if err != nil {
		t.Fatalf("LinksBatch() failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("LinksBatch() returned %d bases, want 4", len(got))
	}
	if _, ok := got[bases[2]]; ok {
		t.Error("base without links present in batch result")
	}
	for _, b := range []ir.Hash{bases[0], bases[1], bases[3], bases[4]} {
		if len(got[b]) != 1 || got[b][0].Base != b {
			t.Errorf("LinksBatch()[%s] = %v", b.Short(), got[b])
		}
	}
}

func TestExport_StreamsEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	data := mustEntry(t, ir.AnchorEntry())
	h, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	a, err := ir.NewEntryAction("author-a", 1, h)
	if err != nil {
		t.Fatalf("NewEntryAction() failed: %v", err)
	}
	if err := s.AppendAction(ctx, a); err != nil {
		t.Fatalf("AppendAction() failed: %v", err)
	}
	if err := s.PutLink(ctx, mustLink(t, 2, h, h, ir.LinkMembership, "")); err != nil {
		t.Fatalf("PutLink() failed: %v", err)
	}

	var kinds []ir.RecordKind
	err = s.Export(ctx, func(r ir.Record) error {
		if err := r.Validate(); err != nil {
			t.Errorf("exported invalid record: %v", err)
		}
		kinds = append(kinds, r.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	want := []ir.RecordKind{ir.RecordEntry, ir.RecordAction, ir.RecordLink}
	if len(kinds) != len(want) {
		t.Fatalf("Export() kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestExport_StopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.Put(ctx, mustEntry(t, ir.AnchorEntry())); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	stop := errors.New("stop")
	if err := s.Export(ctx, func(ir.Record) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Export() error = %v, want %v", err, stop)
	}
}

package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gocloud.dev/pubsub"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mementer/internal/engine"
	"github.com/roach88/mementer/internal/gossip"
	"github.com/roach88/mementer/internal/ir"
	"github.com/roach88/mementer/internal/store"
)

// session is one opened replica plus the engine and formatter a command
// needs.
type session struct {
	store  *store.Store
	engine *engine.Engine
	out    *OutputFormatter
}

// openSession opens the configured database, publishing its writes when
// replication.publish is set. The caller must close it.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	st, err := store.Open(opts.cfg.Database)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var backend engine.Backend = st
	if opts.cfg.Replication.Publish {
		// Not shut down, see transfer.
		topic, err := pubsub.OpenTopic(cmd.Context(), opts.cfg.Replication.Topic)
		if err != nil {
			st.Close()
			_ = out.Error(ErrCodeStore, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "failed to open replication topic", err)
		}
		backend = gossip.NewPublisher(st, topic, slog.Default())
		out.VerboseLog("publishing writes to %s", opts.cfg.Replication.Topic)
	}

	eng := engine.New(backend, opts.signer(),
		engine.WithLogger(slog.Default()),
		engine.WithFetchConcurrency(opts.cfg.FetchConcurrency),
	)
	return &session{store: st, engine: eng, out: out}, nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// signer returns the wall clock, or a pinned clock when --at is set.
func (o *RootOptions) signer() engine.Signer {
	if o.At != 0 {
		return pinnedClock{author: o.cfg.Author, at: o.At}
	}
	return engine.NewWallClock(o.cfg.Author)
}

// pinnedClock stamps every action with the same timestamp.
type pinnedClock struct {
	author string
	at     int64
}

func (c pinnedClock) Author() string { return c.author }
func (c pinnedClock) Now() int64     { return c.at }

// parseHash validates an aggregate id argument.
func parseHash(arg string) (ir.Hash, error) {
	h, err := ir.ParseHash(arg)
	if err != nil {
		return "", fmt.Errorf("invalid aggregate id: %w", err)
	}
	return h, nil
}

// readContent builds entry content from a JSON string or a YAML file.
// Exactly one must be given.
func readContent(inline, file string) (ir.Object, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("give either inline JSON or a file, not both")
	case inline != "":
		obj, err := ir.UnmarshalObject([]byte(inline))
		if err != nil {
			return nil, fmt.Errorf("invalid JSON content: %w", err)
		}
		return obj, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read content file: %w", err)
		}
		return decodeYAMLObject(data)
	default:
		return nil, fmt.Errorf("content is required")
	}
}

// decodeYAMLObject parses a YAML mapping into an Object. JSON is valid YAML,
// so JSON files work too.
func decodeYAMLObject(data []byte) (ir.Object, error) {
	var raw map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid YAML content: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("content must be a mapping")
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	return v.(ir.Object), nil
}

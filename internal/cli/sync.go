package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/roach88/mementer/internal/config"
	"github.com/roach88/mementer/internal/gossip"
	"github.com/roach88/mementer/internal/store"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Push   bool
	Follow bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <peer-db>",
		Short: "Merge records from another replica",
		Long: `Merge every record of another replica's database into the local one.

Records travel over the configured replication topic. Merging is idempotent
and order-independent, so after syncing in both directions (--push) the two
replicas resolve every aggregate identically.

With --follow the command keeps applying records arriving on the topic until
interrupted. Writers with replication.publish set send every write there.

Example:
  mementer sync ../laptop/mementer.db --push
  mementer sync ../laptop/mementer.db --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Push, "push", false, "also send local records to the peer")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep applying published records until interrupted")
	return cmd
}

func runSync(opts *SyncOptions, peerPath string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	local, err := store.Open(opts.cfg.Database)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer local.Close()

	peer, err := store.Open(peerPath)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open peer database", err)
	}
	defer peer.Close()

	out.VerboseLog("replicating over %s", opts.cfg.Replication.Topic)

	var view syncView
	view.Pulled, err = transfer(ctx, opts.cfg.Replication, peer, local)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to pull from peer", err)
	}
	if opts.Push {
		view.Pushed, err = transfer(ctx, opts.cfg.Replication, local, peer)
		if err != nil {
			_ = out.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to push to peer", err)
		}
	}

	if opts.Follow {
		out.VerboseLog("following %s", opts.cfg.Replication.Topic)
		if err := follow(ctx, opts.cfg.Replication, local); err != nil {
			_ = out.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to follow topic", err)
		}
	}

	slog.Info("sync complete", "peer", peerPath, "pulled", view.Pulled, "pushed", view.Pushed)
	return out.Success(view)
}

// follow applies records received on the topic to dst until ctx is done.
func follow(ctx context.Context, rc config.Replication, dst gossip.Target) error {
	sub, err := subscribe(ctx, rc)
	if err != nil {
		return err
	}
	defer sub.Shutdown(context.WithoutCancel(ctx))

	return gossip.NewReplicator(sub, dst, slog.Default()).Run(ctx)
}

// transfer broadcasts every record of src on the topic and applies them to
// dst through a subscription opened before the first send.
//
// The topic is not shut down: mem:// topics are shared by the whole process
// and Send has already delivered every record when Broadcast returns.
func transfer(ctx context.Context, rc config.Replication, src gossip.Source, dst gossip.Target) (int, error) {
	topic, err := pubsub.OpenTopic(ctx, rc.Topic)
	if err != nil {
		return 0, fmt.Errorf("open topic: %w", err)
	}

	sub, err := subscribe(ctx, rc)
	if err != nil {
		return 0, err
	}
	defer sub.Shutdown(ctx)

	n, err := gossip.Broadcast(ctx, src, topic)
	if err != nil {
		return 0, fmt.Errorf("broadcast: %w", err)
	}
	if err := gossip.NewReplicator(sub, dst, slog.Default()).Drain(ctx, n); err != nil {
		return 0, err
	}
	return n, nil
}

// subscribe opens the subscription records are received from. For mem://
// topics the topic must already be open in this process.
func subscribe(ctx context.Context, rc config.Replication) (*pubsub.Subscription, error) {
	subURL, err := subscriptionURL(rc)
	if err != nil {
		return nil, err
	}
	sub, err := pubsub.OpenSubscription(ctx, subURL)
	if err != nil {
		return nil, fmt.Errorf("open subscription: %w", err)
	}
	return sub, nil
}

// subscriptionURL returns the configured subscription, or for mem:// topics
// the topic URL carrying the ack deadline.
func subscriptionURL(rc config.Replication) (string, error) {
	if rc.Subscription != "" {
		return rc.Subscription, nil
	}
	u, err := url.Parse(rc.Topic)
	if err != nil {
		return "", fmt.Errorf("parse topic url: %w", err)
	}
	if u.Scheme != "mem" {
		return "", fmt.Errorf("replication.subscription is required for %s topics", u.Scheme)
	}
	q := u.Query()
	q.Set("ackdeadline", rc.Deadline().String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

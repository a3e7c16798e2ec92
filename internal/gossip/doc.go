// Package gossip replicates records between replicas over gocloud.dev/pubsub.
//
// A replica publishes every record it writes (Publisher) or its whole
// contents (Broadcast). Peers consume the topic with a Replicator, which
// applies each record to the local backend. Application is idempotent and
// order-independent: entries are keyed by their own hash and links by their
// action hash, so receiving a record twice, or a link before its target,
// leaves the replica in the same state as in-order delivery. Resolution
// converges once two replicas hold the same links.
//
// Delivery is at-least-once. A message is acknowledged only after its record
// is durably applied.
package gossip

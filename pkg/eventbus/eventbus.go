// Package eventbus publishes dataset lifecycle events — signal computed,
// signal deleted, manifest committed — over NATS so downstream consumers
// (search re-indexers, cache invalidators) can react without polling the
// dataset store. Publication is best-effort: a bus with no connection
// degrades to a no-op rather than failing the write path it's attached to.
package eventbus

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lilacdata/lilac/pkg/natsutil"
)

const (
	SubjectSignalComputed    = "lilac.signal.computed"
	SubjectSignalDeleted     = "lilac.signal.deleted"
	SubjectManifestCommitted = "lilac.manifest.committed"
)

// SignalComputedEvent announces that a signal finished writing a shard.
type SignalComputedEvent struct {
	Dataset    string    `json:"dataset"`
	SignalName string    `json:"signal_name"`
	Path       string    `json:"path"`
	RowCount   int       `json:"row_count"`
	At         time.Time `json:"at"`
}

// SignalDeletedEvent announces that a signal's subtree was removed.
type SignalDeletedEvent struct {
	Dataset    string    `json:"dataset"`
	SignalName string    `json:"signal_name"`
	Path       string    `json:"path"`
	At         time.Time `json:"at"`
}

// ManifestCommittedEvent announces a new manifest version for a dataset.
type ManifestCommittedEvent struct {
	Dataset string    `json:"dataset"`
	Version int       `json:"version"`
	At      time.Time `json:"at"`
}

// Bus publishes lifecycle events. A nil *nats.Conn makes every Publish*
// call a no-op, so callers can construct a Bus unconditionally and rely
// on eventing being optional in tests and single-process deployments.
type Bus struct {
	nc *nats.Conn
}

// New wraps an existing NATS connection. Passing nil yields a no-op bus.
func New(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) PublishSignalComputed(ctx context.Context, ev SignalComputedEvent) error {
	if b == nil || b.nc == nil {
		return nil
	}
	return natsutil.Publish(ctx, b.nc, SubjectSignalComputed, ev)
}

func (b *Bus) PublishSignalDeleted(ctx context.Context, ev SignalDeletedEvent) error {
	if b == nil || b.nc == nil {
		return nil
	}
	return natsutil.Publish(ctx, b.nc, SubjectSignalDeleted, ev)
}

func (b *Bus) PublishManifestCommitted(ctx context.Context, ev ManifestCommittedEvent) error {
	if b == nil || b.nc == nil {
		return nil
	}
	return natsutil.Publish(ctx, b.nc, SubjectManifestCommitted, ev)
}

// Package feed turns live collection subscriptions into recomputed ledger
// aggregates.
package feed

import (
	"context"
	"time"

	"cajadiaria/backend/internal/domain"
)

// Sink receives the complete current contents of a collection every time any
// document in it changes.
type Sink interface {
	Snapshot(source domain.Source, docs []domain.Document)
}

// Filter narrows a subscription. Since applies to createdAt on order
// collections only; expenses carry their date in several fields.
type Filter struct {
	Since time.Time
}

// Subscriber delivers full snapshots for one collection to sink until ctx is
// cancelled, returning nil, or the subscription breaks, returning the error.
type Subscriber interface {
	Subscribe(ctx context.Context, source domain.Source, filter Filter, sink Sink) error
}

// Notifier is told about subscription failures so they can be surfaced.
type Notifier interface {
	SourceFailed(source domain.Source, err error)
}

type NotifierFunc func(source domain.Source, err error)

func (f NotifierFunc) SourceFailed(source domain.Source, err error) {
	f(source, err)
}

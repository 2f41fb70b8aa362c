// Package memory is an in-process change feed for development and tests.
package memory

import (
	"context"
	"sync"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/feed"
	"cajadiaria/backend/internal/reconcile"
)

type subscription struct {
	sink   feed.Sink
	filter feed.Filter
	errc   chan error
}

// Feed keeps the current documents of every collection and pushes the full
// set to subscribers on each Publish.
type Feed struct {
	mu        sync.Mutex
	docs      map[domain.Source][]domain.Document
	published map[domain.Source]bool
	subs      map[domain.Source][]*subscription
}

func New() *Feed {
	return &Feed{
		docs:      make(map[domain.Source][]domain.Document),
		published: make(map[domain.Source]bool),
		subs:      make(map[domain.Source][]*subscription),
	}
}

func (f *Feed) Subscribe(ctx context.Context, source domain.Source, filter feed.Filter, sink feed.Sink) error {
	sub := &subscription{sink: sink, filter: filter, errc: make(chan error, 1)}

	f.mu.Lock()
	f.subs[source] = append(f.subs[source], sub)
	initial, ok := f.docs[source], f.published[source]
	f.mu.Unlock()
	defer f.remove(source, sub)

	if ok {
		sink.Snapshot(source, applyFilter(source, initial, filter))
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-sub.errc:
		return err
	}
}

// Publish replaces the whole collection and notifies current subscribers
// before returning.
func (f *Feed) Publish(source domain.Source, docs []domain.Document) {
	copied := make([]domain.Document, len(docs))
	for i, d := range docs {
		d.Source = source
		copied[i] = d
	}

	f.mu.Lock()
	f.docs[source] = copied
	f.published[source] = true
	subs := append([]*subscription(nil), f.subs[source]...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.sink.Snapshot(source, applyFilter(source, copied, sub.filter))
	}
}

// Fail breaks every current subscription to source with err.
func (f *Feed) Fail(source domain.Source, err error) {
	f.mu.Lock()
	subs := append([]*subscription(nil), f.subs[source]...)
	f.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.errc <- err:
		default:
		}
	}
}

func (f *Feed) Subscribers(source domain.Source) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[source])
}

func (f *Feed) remove(source domain.Source, sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[source]
	for i, s := range subs {
		if s == sub {
			f.subs[source] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func applyFilter(source domain.Source, docs []domain.Document, filter feed.Filter) []domain.Document {
	if filter.Since.IsZero() || source == domain.SourceExpenses {
		return docs
	}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if at, ok := reconcile.CreatedAt(d.Fields); ok && !at.Before(filter.Since) {
			out = append(out, d)
		}
	}
	return out
}

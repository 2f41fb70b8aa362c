// Package firestore subscribes to the restaurant's Firestore collections.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cajadiaria/backend/internal/domain"
	"cajadiaria/backend/internal/feed"
)

// NewClient connects to projectID, using credentialsFile when given and the
// ambient application credentials otherwise.
func NewClient(ctx context.Context, projectID string, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return client, nil
}

// Subscriber maps each source onto the collection of the same name.
type Subscriber struct {
	client *firestore.Client
}

func NewSubscriber(client *firestore.Client) *Subscriber {
	return &Subscriber{client: client}
}

func (s *Subscriber) Subscribe(ctx context.Context, source domain.Source, filter feed.Filter, sink feed.Sink) error {
	query := s.client.Collection(string(source)).Query
	if !filter.Since.IsZero() && source != domain.SourceExpenses {
		query = query.Where("createdAt", ">=", filter.Since)
	}

	it := query.Snapshots(ctx)
	defer it.Stop()

	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("listen %s: %w", source, err)
		}

		snaps, err := qs.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("read %s snapshot: %w", source, err)
		}
		docs := make([]domain.Document, 0, len(snaps))
		for _, snap := range snaps {
			docs = append(docs, domain.Document{
				ID:     snap.Ref.ID,
				Source: source,
				Fields: snap.Data(),
			})
		}
		sink.Snapshot(source, docs)
	}
}

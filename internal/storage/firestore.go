package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	historyCollection  = "listing_history"
	listingsCollection = "listings"
)

// FirestoreStore keeps history and summaries in Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

func (c *FirestoreStore) Close() error {
	return c.client.Close()
}

type historyDoc struct {
	EntityID   string    `firestore:"entityID"`
	Payload    string    `firestore:"payload"`
	RecordedAt time.Time `firestore:"recordedAt"`
}

type listingDoc struct {
	Title     string    `firestore:"title"`
	Brand     string    `firestore:"brand"`
	URL       string    `firestore:"url"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Record adds a history document with an auto-generated ID.
func (c *FirestoreStore) Record(ctx context.Context, entityID string, payload []byte) error {
	_, _, err := c.client.Collection(historyCollection).Add(ctx, historyDoc{
		EntityID:   entityID,
		Payload:    string(payload),
		RecordedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record history for %s: %w", entityID, err)
	}
	return nil
}

// Upsert creates the listing document, or updates its fields when another
// run already created it.
func (c *FirestoreStore) Upsert(ctx context.Context, entityID, title, brand, url string) error {
	docRef := c.client.Collection(listingsCollection).Doc(entityID)
	now := c.now()

	_, err := docRef.Create(ctx, listingDoc{Title: title, Brand: brand, URL: url, UpdatedAt: now})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to create listing %s: %w", entityID, err)
	}

	_, err = docRef.Update(ctx, []firestore.Update{
		{Path: "title", Value: title},
		{Path: "brand", Value: brand},
		{Path: "url", Value: url},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", entityID, err)
	}
	return nil
}

// TrimHistory deletes the oldest history documents (by recordedAt) beyond
// maxEntries.
func (c *FirestoreStore) TrimHistory(ctx context.Context, maxEntries int) error {
	collectionRef := c.client.Collection(historyCollection)

	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get history count for trimming: %w", err)
	}
	countValue, ok := countSnapshot["all"]
	if !ok {
		return fmt.Errorf("count aggregation result for trimming was invalid: 'all' key missing")
	}
	current, err := countFromAggregation(countValue)
	if err != nil {
		return err
	}
	if current <= int64(maxEntries) {
		return nil
	}

	numToDelete := int(current) - maxEntries
	slog.Info("Trimming listing history", "current", current, "max", maxEntries, "deleting", numToDelete)

	iter := collectionRef.
		OrderBy("recordedAt", firestore.Asc).
		Limit(numToDelete).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate history for trimming: %w", err)
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Failed to queue history delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		bulkWriter.Flush()
		slog.Info("Trimmed listing history", "backend", "firestore", "deleted", deleted)
	}
	return nil
}

// countFromAggregation reads a count aggregation value, which the client
// library returns either as a protobuf value or a plain integer.
func countFromAggregation(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	default:
		return 0, fmt.Errorf("count aggregation result for trimming has unexpected type %T", v)
	}
}

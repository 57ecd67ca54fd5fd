// Package history records what went on air. The Mongo-backed recorder is
// optional; without a configured URI the station runs with the no-op one.
package history

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mradio/internal/domain"
)

// Connect opens a Mongo client for the history backend.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	return mongo.Connect(ctx, opts...)
}

type playDoc struct {
	Title       string `bson:"title"`
	RequestedBy string `bson:"requestedBy"`
	Source      string `bson:"source"`
	StartedAt   int64  `bson:"startedAt"`
}

// Repository persists play records in the "plays" collection.
type Repository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewRepository(client *mongo.Client, dbName string, logger *slog.Logger) *Repository {
	return &Repository{
		collection: client.Database(dbName).Collection("plays"),
		logger:     logger,
	}
}

// EnsureIndexes creates the startedAt index ListRecent sorts on.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "startedAt", Value: -1}},
	})
	return err
}

// Record inserts one play. Failures are logged, never bubbled: history
// must not interfere with playback.
func (r *Repository) Record(ctx context.Context, rec domain.PlayRecord) {
	doc := playDoc{
		Title:       rec.Title,
		RequestedBy: rec.RequestedBy,
		Source:      string(rec.Source),
		StartedAt:   rec.StartedAt.Unix(),
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Warn("play history insert failed",
			slog.String("title", rec.Title), slog.String("error", err.Error()))
	}
}

// ListRecent returns the newest plays, most recent first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.PlayRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []playDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.PlayRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, domain.PlayRecord{
			Title:       doc.Title,
			RequestedBy: doc.RequestedBy,
			Source:      domain.SourceType(doc.Source),
			StartedAt:   time.Unix(doc.StartedAt, 0).UTC(),
		})
	}
	return records, nil
}

// Noop discards records; used when no history backend is configured.
type Noop struct{}

func (Noop) Record(ctx context.Context, rec domain.PlayRecord) {}

func (Noop) ListRecent(ctx context.Context, limit int) ([]domain.PlayRecord, error) {
	return nil, nil
}

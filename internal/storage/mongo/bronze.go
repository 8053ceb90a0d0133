// Package mongo implements the bronze raw-capture repository on MongoDB.
// Documents are keyed by the external job id, so re-harvesting the same
// listing converges to the latest payload instead of duplicating it.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/jobs"
)

const defaultQueryTimeout = 10 * time.Second

// BronzeStore implements jobs.BronzeStore.
type BronzeStore struct {
	client       *mongo.Client
	collection   *mongo.Collection
	queryTimeout time.Duration
	logger       *zap.Logger
}

// New connects to MongoDB, verifies connectivity, and returns a store bound
// to the given database and collection.
func New(ctx context.Context, uri, database, collection string, queryTimeout time.Duration, logger *zap.Logger) (*BronzeStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if queryTimeout == 0 {
		queryTimeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BronzeStore{
		client:       client,
		collection:   client.Database(database).Collection(collection),
		queryTimeout: queryTimeout,
		logger:       logger,
	}, nil
}

// UpsertBatch replaces each document by _id with upsert, unordered so one bad
// document does not block the rest of the batch. Partial failures surface in
// the summary and the returned error; applied writes stay applied.
func (s *BronzeStore) UpsertBatch(ctx context.Context, docs []jobs.RawJobDocument) (jobs.WriteSummary, error) {
	if len(docs) == 0 {
		s.logger.Warn("bronze upsert called with an empty batch")
		return jobs.WriteSummary{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.JobID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	result, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))

	var summary jobs.WriteSummary
	if result != nil {
		summary.Matched = int(result.MatchedCount)
		summary.Upserted = int(result.UpsertedCount)
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		summary.Failed = len(bulkErr.WriteErrors)
		s.logger.Warn("bronze batch completed with errors",
			zap.Int("matched", summary.Matched),
			zap.Int("upserted", summary.Upserted),
			zap.Int("failed", summary.Failed),
		)
		return summary, fmt.Errorf("bronze bulk write: %d of %d documents failed: %w", summary.Failed, len(docs), err)
	}
	if err != nil {
		return summary, fmt.Errorf("bronze bulk write: %w", err)
	}

	s.logger.Info("bronze batch applied",
		zap.Int("matched", summary.Matched),
		zap.Int("upserted", summary.Upserted),
	)
	return summary, nil
}

// Select returns documents whose header.jobName matches the filter
// case-insensitively. An empty filter returns everything. The query is
// bounded by the configured timeout so a stuck cursor fails instead of
// appearing empty.
func (s *BronzeStore) Select(ctx context.Context, query jobs.BronzeQuery) ([]jobs.RawJobDocument, error) {
	filter := bson.M{}
	if query.JobNameFilter != "" {
		filter["header.jobName"] = bson.M{"$regex": query.JobNameFilter, "$options": "i"}
	}

	opts := options.Find().SetMaxTime(s.queryTimeout)
	if !query.Projection.IsZero() {
		projection, err := projectionDoc(query.Projection)
		if err != nil {
			return nil, err
		}
		opts.SetProjection(projection)
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("bronze select: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []jobs.RawJobDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("bronze select decode: %w", err)
	}
	s.logger.Debug("bronze select completed",
		zap.String("filter", query.JobNameFilter),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

// projectionDoc renders a field allow/deny list as a find projection. Mixing
// inclusion and exclusion is rejected up front because the server would
// refuse the query anyway.
func projectionDoc(p jobs.Projection) (bson.D, error) {
	if len(p.Include) > 0 && len(p.Exclude) > 0 {
		return nil, fmt.Errorf("bronze projection cannot both include and exclude fields")
	}
	doc := bson.D{}
	for _, field := range p.Include {
		doc = append(doc, bson.E{Key: field, Value: 1})
	}
	for _, field := range p.Exclude {
		doc = append(doc, bson.E{Key: field, Value: 0})
	}
	return doc, nil
}

// Close disconnects the underlying client.
func (s *BronzeStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}

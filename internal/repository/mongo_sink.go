package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/timmy/sentiscope/internal/domain"
)

const (
	RunsCollection    = "harvest_runs"
	RecordsCollection = "harvest_records"
)

type runDocument struct {
	Run      domain.HarvestRun         `bson:"run"`
	ID       string                    `bson:"_id"`
	UserID   string                    `bson:"user_id"`
	Outcomes []domain.CommunityOutcome `bson:"outcomes"`
	SavedAt  time.Time                 `bson:"saved_at"`
}

type recordDocument struct {
	JobID     string            `bson:"job_id"`
	Key       string            `bson:"key"`
	Seq       int               `bson:"seq"`
	Type      domain.RecordType `bson:"type"`
	Community string            `bson:"community"`
	Post      *domain.Post      `bson:"post,omitempty"`
	Comment   *domain.Comment   `bson:"comment,omitempty"`
}

// newRunDocument builds the run document; a run without a creation time is
// stamped with now.
func newRunDocument(run domain.HarvestRun, outcomes []domain.CommunityOutcome, now time.Time) runDocument {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	return runDocument{Run: run, ID: run.ID, UserID: run.UserID, Outcomes: outcomes, SavedAt: now}
}

// newRecordDocuments keys every record by job and corpus identity; Seq
// keeps the harvest order for GetCorpus.
func newRecordDocuments(jobID string, records []domain.CorpusRecord) []recordDocument {
	docs := make([]recordDocument, 0, len(records))
	for i, r := range records {
		docs = append(docs, recordDocument{
			JobID:     jobID,
			Key:       r.Key(),
			Seq:       i,
			Type:      r.Type,
			Community: r.Community(),
			Post:      r.Post,
			Comment:   r.Comment,
		})
	}
	return docs
}

func (d recordDocument) record() domain.CorpusRecord {
	return domain.CorpusRecord{Type: d.Type, Post: d.Post, Comment: d.Comment}
}

// MongoSink stores harvests as documents: one per run and one per record.
type MongoSink struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoSink connects to MongoDB and prepares the indexes.
// Parameters:
//   - ctx: context bounding connect, ping and index creation.
//   - uri: MongoDB connection URI.
//   - databaseName: database holding the harvest collections.
// Returns:
//   - *MongoSink: connected sink.
//   - error: non-nil if the server is unreachable or indexes fail.
func NewMongoSink(ctx context.Context, uri, databaseName string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	sink := &MongoSink{client: client, database: client.Database(databaseName)}
	if err := sink.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return sink, nil
}

func (s *MongoSink) createIndexes(ctx context.Context) error {
	runIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "run.createdat", Value: -1}}},
	}
	if _, err := s.database.Collection(RunsCollection).Indexes().CreateMany(ctx, runIndexes); err != nil {
		return err
	}

	recordIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "seq", Value: 1}}},
	}
	_, err := s.database.Collection(RecordsCollection).Indexes().CreateMany(ctx, recordIndexes)
	return err
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveCorpus appends a run and its records. Existing documents are kept.
func (s *MongoSink) SaveCorpus(ctx context.Context, run domain.HarvestRun, records []domain.CorpusRecord, outcomes []domain.CommunityOutcome) error {
	doc := newRunDocument(run, outcomes, time.Now())
	_, err := s.database.Collection(RunsCollection).UpdateOne(ctx,
		bson.M{"_id": run.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(records))
	for _, d := range newRecordDocuments(run.ID, records) {
		docs = append(docs, d)
	}
	_, err = s.database.Collection(RecordsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs of a user, newest first.
func (s *MongoSink) ListRuns(ctx context.Context, userID string, limit int) ([]domain.HarvestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "run.createdat", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.database.Collection(RunsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	runs := []domain.HarvestRun{}
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		runs = append(runs, doc.Run)
	}
	return runs, cursor.Err()
}

// GetRun returns a run with its outcomes.
func (s *MongoSink) GetRun(ctx context.Context, userID, jobID string) (*domain.HarvestRun, []domain.CommunityOutcome, error) {
	var doc runDocument
	err := s.database.Collection(RunsCollection).FindOne(ctx, bson.M{"_id": jobID, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &doc.Run, doc.Outcomes, nil
}

// GetCorpus loads the records of a run in harvest order.
func (s *MongoSink) GetCorpus(ctx context.Context, jobID string) ([]domain.CorpusRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := s.database.Collection(RecordsCollection).Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []domain.CorpusRecord
	for cursor.Next(ctx) {
		var doc recordDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.record())
	}
	return out, cursor.Err()
}

// onlyDuplicates reports whether an unordered bulk insert failed solely on
// duplicate keys, which append-only saves treat as success.
func onlyDuplicates(err error) bool {
	var bulk mongo.BulkWriteException
	if !errors.As(err, &bulk) {
		return mongo.IsDuplicateKeyError(err)
	}
	if bulk.WriteConcernError != nil {
		return false
	}
	for _, we := range bulk.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

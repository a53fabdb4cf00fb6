// Package docstore is the document store: a load sink, an integrity
// inspector and reporting aggregations over MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/loader"
	"github.com/scorecast/scorecast/internal/schema"
)

// Store implements the document sink using the MongoDB driver.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	database string
	schema   *schema.Schema
	logger   *slog.Logger
}

// Open connects to MongoDB and pings it.
func Open(ctx context.Context, connectionString, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, apperrors.Unavailable("connecting to MongoDB", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperrors.Unavailable("pinging MongoDB", err)
	}
	return &Store{
		client:   client,
		db:       client.Database(database),
		database: database,
		schema:   schema.Normalized(),
		logger:   logger.With("store", "document"),
	}, nil
}

// Name identifies the store as a load sink.
func (s *Store) Name() string { return "document" }

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureCollections creates the four collections with a $jsonSchema
// validator. Existing collections are left alone.
func (s *Store) EnsureCollections(ctx context.Context) error {
	for _, t := range s.schema.Tables {
		opts := options.CreateCollection().
			SetValidator(bson.D{{Key: "$jsonSchema", Value: JSONSchema(t)}}).
			SetValidationAction("error")
		if err := s.db.CreateCollection(ctx, t.Name, opts); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return apperrors.Unavailable("creating collection "+t.Name, err)
			}
		}
	}
	s.logger.Info("collections ensured", "database", s.database)
	return nil
}

// DropCollections drops the named collections.
func (s *Store) DropCollections(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return apperrors.Unavailable("dropping collection "+name, err)
		}
	}
	return nil
}

// JSONSchema derives the collection validator for a table: bson types per
// column, enum values, numeric bounds, and required keys.
func JSONSchema(t schema.Table) bson.M {
	props := bson.M{}
	required := bson.A{}
	for _, c := range t.Columns {
		if c.Name == t.PrimaryKey && c.Name != "student_id" {
			// dependents are keyed by student_id in the document store
			continue
		}
		prop := bson.M{}
		switch c.Type {
		case "integer":
			prop["bsonType"] = bson.A{"int", "long"}
		case "float":
			prop["bsonType"] = bson.A{"double", "int", "long"}
		case "timestamp":
			prop["bsonType"] = "date"
		default:
			prop["bsonType"] = "string"
		}
		if c.Nullable {
			prop["bsonType"] = appendNull(prop["bsonType"])
		}
		if len(c.Enum) > 0 {
			enum := bson.A{}
			for _, v := range c.Enum {
				enum = append(enum, v)
			}
			prop["enum"] = enum
		}
		if c.Min != nil {
			prop["minimum"] = *c.Min
		}
		if c.Max != nil {
			prop["maximum"] = *c.Max
		}
		props[c.Name] = prop

		if c.Name == "student_id" || c.Required {
			required = append(required, c.Name)
		}
	}
	return bson.M{
		"bsonType":   "object",
		"required":   required,
		"properties": props,
	}
}

func appendNull(bsonType any) bson.A {
	switch v := bsonType.(type) {
	case bson.A:
		return append(v, "null")
	default:
		return bson.A{v, "null"}
	}
}

// WriteBatch inserts records unordered so one rejected document does not stop
// the rest. Returned ids are the records' student ids.
func (s *Store) WriteBatch(ctx context.Context, table string, records []schema.Record) (*loader.BatchResult, error) {
	docs := make([]any, len(records))
	res := &loader.BatchResult{IDs: make([]int64, len(records))}
	for i, rec := range records {
		if rec.TableName() != table {
			return nil, fmt.Errorf("record for %s in a %s batch", rec.TableName(), table)
		}
		docs[i] = rec
		res.IDs[i] = rec.OwnerID()
	}
	if len(docs) == 0 {
		return res, nil
	}

	_, err := s.db.Collection(table).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return res, nil
	}
	failures, ok := writeFailures(err)
	if !ok {
		return nil, apperrors.Unavailable("inserting into "+table, err)
	}
	for _, f := range failures {
		if f.Index >= 0 && f.Index < len(res.IDs) {
			res.IDs[f.Index] = 0
		}
	}
	res.Failures = failures
	return res, nil
}

// writeFailures extracts per-document failures from a bulk write error. It
// returns false when the error is not confined to individual documents.
func writeFailures(err error) ([]loader.RecordFailure, bool) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return nil, false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return nil, false
	}
	failures := make([]loader.RecordFailure, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		failures = append(failures, loader.RecordFailure{
			Index: we.Index,
			Err:   fmt.Errorf("write error %d: %s", we.Code, we.Message),
		})
	}
	return failures, true
}

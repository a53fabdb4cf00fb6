package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/scorecast/scorecast/internal/apperrors"
)

// IndexDefinition describes a single MongoDB index.
type IndexDefinition struct {
	Keys   []IndexKey `yaml:"keys"`
	Name   string     `yaml:"name"`
	Unique bool       `yaml:"unique,omitempty"`
}

// IndexKey is a single field in a compound index.
type IndexKey struct {
	Field string `yaml:"field"`
	Order int    `yaml:"order"` // 1 or -1
}

// CollectionIndex pairs a collection name with an index definition.
type CollectionIndex struct {
	Collection string          `yaml:"collection"`
	Index      IndexDefinition `yaml:"index"`
}

func indexModel(index IndexDefinition) mongo.IndexModel {
	keys := bson.D{}
	for _, k := range index.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: k.Order})
	}
	opts := options.Index()
	if index.Name != "" {
		opts.SetName(index.Name)
	}
	if index.Unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// CreateIndex creates a single index on a collection.
func (s *Store) CreateIndex(ctx context.Context, collection string, index IndexDefinition) error {
	if _, err := s.db.Collection(collection).Indexes().CreateOne(ctx, indexModel(index)); err != nil {
		return apperrors.Unavailable("creating index on "+collection, err)
	}
	return nil
}

// CreateIndexes creates multiple indexes across collections.
func (s *Store) CreateIndexes(ctx context.Context, indexes []CollectionIndex) error {
	for _, ci := range indexes {
		if err := s.CreateIndex(ctx, ci.Collection, ci.Index); err != nil {
			return err
		}
		s.logger.Debug("index created", "collection", ci.Collection, "name", ci.Index.Name)
	}
	return nil
}

// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package docstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// FindOptions bounds and shapes a find.
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Limit      int64
}

// Database is the slice of a document database the store needs.
type Database interface {
	Name() string
	Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.D, error)
	Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error)
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)
	EstimatedCount(ctx context.Context, collection string) (int64, error)
	CollectionNames(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (bson.M, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// MongoDatabase is Database over the official mongo driver.
type MongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

// DefaultConnectTimeout bounds server selection during Dial.
const DefaultConnectTimeout = 10 * time.Second

// Dial connects to uri and pings the primary. Reads use a secondary-preferred
// read preference.
func Dial(ctx context.Context, uri, database string) (*MongoDatabase, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(DefaultConnectTimeout).
		SetReadPreference(readpref.SecondaryPreferred()).
		SetAppName("querygate")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MongoDatabase{client: client, db: client.Database(database)}, nil
}

func (m *MongoDatabase) Name() string { return m.db.Name() }

func (m *MongoDatabase) Find(ctx context.Context, collection string, filter bson.D, o FindOptions) ([]bson.D, error) {
	fo := options.Find()
	if o.Limit > 0 {
		fo.SetLimit(o.Limit)
	}
	if len(o.Projection) > 0 {
		fo.SetProjection(o.Projection)
	}
	if len(o.Sort) > 0 {
		fo.SetSort(o.Sort)
	}
	if filter == nil {
		filter = bson.D{}
	}

	cur, err := m.db.Collection(collection).Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	docs := []bson.D{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *MongoDatabase) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error) {
	cur, err := m.db.Collection(collection).Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, err
	}
	docs := []bson.D{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *MongoDatabase) Count(ctx context.Context, collection string, filter bson.D) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	return m.db.Collection(collection).CountDocuments(ctx, filter)
}

func (m *MongoDatabase) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	return m.db.Collection(collection).EstimatedDocumentCount(ctx)
}

func (m *MongoDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	return m.db.ListCollectionNames(ctx, bson.D{})
}

func (m *MongoDatabase) Stats(ctx context.Context) (bson.M, error) {
	var out bson.M
	err := m.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&out)
	return out, err
}

func (m *MongoDatabase) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.PrimaryPreferred())
}

func (m *MongoDatabase) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"querygate/cli/internal/docquery"
)

type findCall struct {
	collection string
	filter     bson.D
	opts       FindOptions
}

type aggregateCall struct {
	collection string
	pipeline   []bson.D
}

type fakeDB struct {
	collections []string
	docs        map[string][]bson.D
	stats       bson.M
	pingErr     error

	finds      []findCall
	aggregates []aggregateCall
	counts     []string
}

func (f *fakeDB) Name() string { return "analytics_db" }

func (f *fakeDB) Find(_ context.Context, coll string, filter bson.D, opts FindOptions) ([]bson.D, error) {
	f.finds = append(f.finds, findCall{collection: coll, filter: filter, opts: opts})
	docs := f.docs[coll]
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

func (f *fakeDB) Aggregate(_ context.Context, coll string, pipeline []bson.D) ([]bson.D, error) {
	f.aggregates = append(f.aggregates, aggregateCall{collection: coll, pipeline: pipeline})
	return f.docs[coll], nil
}

func (f *fakeDB) Count(_ context.Context, coll string, _ bson.D) (int64, error) {
	f.counts = append(f.counts, coll)
	return int64(len(f.docs[coll])), nil
}

func (f *fakeDB) EstimatedCount(_ context.Context, coll string) (int64, error) {
	return int64(len(f.docs[coll])), nil
}

func (f *fakeDB) CollectionNames(context.Context) ([]string, error) { return f.collections, nil }
func (f *fakeDB) Stats(context.Context) (bson.M, error)             { return f.stats, nil }
func (f *fakeDB) Ping(context.Context) error                        { return f.pingErr }
func (f *fakeDB) Close(context.Context) error                       { return nil }

func newFake() *fakeDB {
	return &fakeDB{
		collections: []string{"customers", "orders", "products", "system.views"},
		docs: map[string][]bson.D{
			"customers": {
				{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "Ada"}, {Key: "age", Value: int32(36)}},
				{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "Grace"}, {Key: "age", Value: int32(45)}},
			},
			"orders": {
				{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "total", Value: 12.5}},
			},
		},
		stats: bson.M{"collections": int32(3), "objects": int32(3), "dataSize": 1024.0, "storageSize": 4096.0, "indexes": int32(3), "ok": 1.0},
	}
}

func TestRun_FindDefaults(t *testing.T) {
	db := newFake()
	s := New(db)

	cmd, err := docquery.Parse(`{"find":"customers","filter":{"age":{"$gt":40}},"sort":{"age":-1}}`)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), &cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "customers", res.Collection)
	assert.False(t, res.Fallback)

	require.Len(t, db.finds, 1)
	call := db.finds[0]
	assert.Equal(t, int64(DefaultFindLimit), call.opts.Limit)
	assert.Equal(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int32(40)}}}}, call.filter)
	assert.Equal(t, bson.D{{Key: "age", Value: int32(-1)}}, call.opts.Sort)
}

func TestRun_FindExtendedJSON(t *testing.T) {
	db := newFake()
	s := New(db)

	cmd, err := docquery.Parse(`{"find":"orders","filter":{"_id":{"$oid":"64b7f0c2a1b2c3d4e5f60718"}},"limit":1}`)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), &cmd, "")
	require.NoError(t, err)

	want, _ := primitive.ObjectIDFromHex("64b7f0c2a1b2c3d4e5f60718")
	require.Len(t, db.finds, 1)
	assert.Equal(t, bson.D{{Key: "_id", Value: want}}, db.finds[0].filter)
	assert.Equal(t, int64(1), db.finds[0].opts.Limit)
}

func TestRun_PipelineGetsLimit(t *testing.T) {
	db := newFake()
	s := New(db)

	cmd, err := docquery.Parse(`[{"$match":{"status":"paid"}}]`)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), &cmd, "")
	require.NoError(t, err)

	require.Len(t, db.aggregates, 1)
	call := db.aggregates[0]
	assert.Equal(t, docquery.DefaultCollection, call.collection)
	require.Len(t, call.pipeline, 2)
	assert.Equal(t, bson.D{{Key: "$limit", Value: PipelineLimit}}, call.pipeline[1])
}

func TestRun_PipelineKeepsOwnLimit(t *testing.T) {
	db := newFake()
	s := New(db)

	cmd, err := docquery.Parse(`{"aggregate":"customers","pipeline":[{"$sort":{"age":1}},{"$limit":5}]}`)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), &cmd, "")
	require.NoError(t, err)

	require.Len(t, db.aggregates, 1)
	assert.Equal(t, "customers", db.aggregates[0].collection)
	assert.Len(t, db.aggregates[0].pipeline, 2)
}

func TestRun_Fallbacks(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantColl  string
		wantCount bool
	}{
		{"object naming a collection", `{"products": {}}`, "products", false},
		{"customer keyword", "show me the customers", "customers", false},
		{"count keyword", "count all orders", "orders", true},
		{"nothing recognizable", "hello there", docquery.DefaultCollection, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFake()
			s := New(db)

			res, err := s.Run(context.Background(), nil, tt.text)
			require.NoError(t, err)
			assert.True(t, res.Fallback)
			assert.Equal(t, tt.wantColl, res.Collection)
			if tt.wantCount {
				require.NotNil(t, res.Count)
				assert.Equal(t, []string{tt.wantColl}, db.counts)
				return
			}
			require.Len(t, db.finds, 1)
			assert.Equal(t, int64(FallbackLimit), db.finds[0].opts.Limit)
		})
	}
}

func TestRun_DefaultCollectionOption(t *testing.T) {
	db := newFake()
	s := New(db, WithDefaultCollection("customers"))

	res, err := s.Run(context.Background(), nil, "anything")
	require.NoError(t, err)
	assert.Equal(t, "customers", res.Collection)
}

func TestRun_BadExtendedJSON(t *testing.T) {
	s := New(newFake())
	cmd := docquery.Find("orders", []byte(`{"_id":{"$oid":"nope"}}`), 1)

	_, err := s.Run(context.Background(), &cmd, "")
	assert.Error(t, err)
}

func TestCollections(t *testing.T) {
	s := New(newFake())

	infos, err := s.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "customers", infos[0].Name)
	assert.Equal(t, int64(2), infos[0].DocumentCount)
	assert.Equal(t, []FieldInfo{
		{Name: "_id", Type: "objectId"},
		{Name: "name", Type: "string"},
		{Name: "age", Type: "int"},
	}, infos[0].Fields)
	assert.Equal(t, "products", infos[2].Name)
	assert.Empty(t, infos[2].Fields)
}

func TestHealth(t *testing.T) {
	s := New(newFake())

	details, err := s.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "analytics_db", details["database"])
	assert.Equal(t, int32(3), details["collections"])
	assert.Equal(t, 4096.0, details["storageSize"])
	assert.NotContains(t, details, "ok")
}

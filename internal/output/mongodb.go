// internal/output/mongodb.go - MongoDB record store
package output

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valpere/CarScrapexter/internal/dedup"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

var mongoLogger = utils.NewComponentLogger("mongodb-store")

// urlKeyField holds the canonical source URL next to the record fields.
const urlKeyField = "url_key"

// MongoStore keeps one document per vehicle, upserted by canonical source URL.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	config     MongoDBOptions
}

// MongoDBOptions defines MongoDB-specific configuration options
type MongoDBOptions struct {
	ConnectionString string
	Database         string
	Collection       string
	Timeout          time.Duration
	MaxPoolSize      int
}

// NewMongoStore connects, pings and ensures the unique index on the URL key.
func NewMongoStore(ctx context.Context, opts MongoDBOptions) (*MongoStore, error) {
	if opts.ConnectionString == "" {
		return nil, fmt.Errorf("MongoDB connection string is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("MongoDB database name is required")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("MongoDB collection name is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = 100
	}

	clientOptions := options.Client().
		ApplyURI(opts.ConnectionString).
		SetMaxPoolSize(uint64(opts.MaxPoolSize)).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(10 * time.Minute).
		SetServerSelectionTimeout(opts.Timeout).
		SetRetryWrites(true)

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		config:     opts,
	}
	if err := store.createIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	mongoLogger.Infof("connected to MongoDB database %s, collection %s", opts.Database, opts.Collection)
	return store, nil
}

// createIndexes creates the unique URL key index and the query indexes
func (s *MongoStore) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: urlKeyField, Value: 1}}, Options: options.Index().SetUnique(true).SetName("url_key_unique")},
		{Keys: bson.D{{Key: "make", Value: 1}, {Key: "model", Value: 1}}, Options: options.Index().SetName("make_model")},
		{Keys: bson.D{{Key: "dealer.name", Value: 1}}, Options: options.Index().SetName("dealer_name")},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Upsert writes rec under its canonical source URL. discovered_at is only
// set when the document is created.
func (s *MongoStore) Upsert(ctx context.Context, rec vehicle.Record) error {
	set, err := recordDocument(rec)
	if err != nil {
		return err
	}
	discovered := set["discovered_at"]
	delete(set, "discovered_at")

	update := bson.M{"$set": set, "$setOnInsert": bson.M{"discovered_at": discovered}}
	_, err = s.collection.UpdateOne(ctx,
		bson.M{urlKeyField: dedup.Key(rec.SourceURL)},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.SourceURL, err)
	}
	return nil
}

// recordDocument renders rec as a document with the URL key added.
func recordDocument(rec vehicle.Record) (bson.M, error) {
	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	doc[urlKeyField] = dedup.Key(rec.SourceURL)
	return doc, nil
}

// FindBySourceURL returns the document stored under sourceURL, or nil.
func (s *MongoStore) FindBySourceURL(ctx context.Context, sourceURL string) (*vehicle.Record, error) {
	var rec vehicle.Record
	err := s.collection.FindOne(ctx, bson.M{urlKeyField: dedup.Key(sourceURL)}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", sourceURL, err)
	}
	return &rec, nil
}

// Find returns matching records ordered by URL key.
func (s *MongoStore) Find(ctx context.Context, q Query) ([]vehicle.Record, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: urlKeyField, Value: 1}})
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection.Find(ctx, mongoFilter(q), findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []vehicle.Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return out, nil
}

// Distinct returns the sorted, non-empty values of field among matching documents.
func (s *MongoStore) Distinct(ctx context.Context, field string, q Query) ([]string, error) {
	f, err := lookupDistinct(field)
	if err != nil {
		return nil, err
	}
	values, err := s.collection.Distinct(ctx, f.path, mongoFilter(q))
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", field, err)
	}
	return distinctStrings(values), nil
}

// Count returns the number of matching documents.
func (s *MongoStore) Count(ctx context.Context, q Query) (int64, error) {
	return s.collection.CountDocuments(ctx, mongoFilter(q))
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoFilter renders q as a query document.
func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	if q.Make != "" {
		filter["make"] = caseInsensitive(q.Make)
	}
	if q.Model != "" {
		filter["model"] = caseInsensitive(q.Model)
	}
	if q.Dealer != "" {
		filter["dealer.name"] = q.Dealer
	}
	if q.Region != "" {
		filter["dealer.region"] = q.Region
	}

	year := bson.M{}
	if q.MinYear > 0 {
		year["$gte"] = q.MinYear
	}
	if q.MaxYear > 0 {
		year["$lte"] = q.MaxYear
	}
	if len(year) > 0 {
		filter["year"] = year
	}

	price := bson.M{}
	if q.MinPrice > 0 {
		price["$gte"] = q.MinPrice
	}
	if q.MaxPrice > 0 {
		price["$lte"] = q.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	return filter
}

func caseInsensitive(v string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(v) + "$", "$options": "i"}
}

func distinctStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

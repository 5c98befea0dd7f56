package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoAdapter exposes a MongoDB database. Collections play the part of
// tables and "_id" is always the primary key.
type MongoAdapter struct {
	ep       Endpoint
	breakers *breakerSet
	logger   *zap.Logger

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoAdapter(ep Endpoint, breakers *breakerSet, logger *zap.Logger) *MongoAdapter {
	return &MongoAdapter{ep: ep, breakers: breakers, logger: logger}
}

func (a *MongoAdapter) Type() string { return models.DataSourceTypeMongoDB }

func (a *MongoAdapter) uri() string {
	if uri := a.ep.extraString("uri", ""); uri != "" {
		return uri
	}
	port := a.ep.Port
	if port == 0 {
		port = 27017
	}
	if a.ep.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", a.ep.Username, a.ep.Password, a.ep.Host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", a.ep.Host, port)
}

func (a *MongoAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.uri()).SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return a.ep.connErr("open", err)
	}
	err = a.breakers.guard(a.ep, func() error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return a.ep.connErr("connect", err)
	}

	a.client = client
	a.db = client.Database(a.ep.Database)
	return nil
}

func (a *MongoAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client, a.db = nil, nil
	return err
}

func (a *MongoAdapter) collection(table string) (*mongo.Collection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil, a.ep.connErr("query", errors.New("database connection not established"))
	}
	return a.db.Collection(a.ep.table(table)), nil
}

func (a *MongoAdapter) Tables(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	db := a.db
	a.mu.Unlock()
	if db == nil {
		return nil, a.ep.connErr("query", errors.New("database connection not established"))
	}

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Schema infers columns from one sample document.
func (a *MongoAdapter) Schema(ctx context.Context, table string) ([]models.Column, error) {
	coll, err := a.collection(table)
	if err != nil {
		return nil, err
	}

	var doc bson.D
	err = coll.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.Column{{Name: "_id", Type: "objectId", PrimaryKey: true}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", table, err)
	}

	cols := make([]models.Column, 0, len(doc))
	for _, e := range doc {
		cols = append(cols, models.Column{
			Name:       e.Key,
			Type:       bsonTypeName(e.Value),
			Nullable:   e.Key != "_id",
			PrimaryKey: e.Key == "_id",
		})
	}
	return cols, nil
}

func (a *MongoAdapter) ReadRecords(ctx context.Context, req ReadRequest) ([]models.Record, error) {
	coll, err := a.collection(req.Table)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	opts := options.Find().SetLimit(int64(limit)).SetSkip(int64(req.Offset))
	if len(req.Columns) > 0 {
		proj := bson.D{}
		for _, c := range req.Columns {
			proj = append(proj, bson.E{Key: c, Value: 1})
		}
		opts.SetProjection(proj)
	}
	if req.OrderBy != "" {
		opts.SetSort(bson.D{{Key: req.OrderBy, Value: 1}})
	}

	cursor, err := coll.Find(ctx, mongoFilter(req.Where), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer cursor.Close(ctx)

	results := []models.Record{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, normalizeDoc(doc))
	}
	return results, cursor.Err()
}

func (a *MongoAdapter) ReadRecordByKey(ctx context.Context, table, keyColumn string, keyValue interface{}) (models.Record, error) {
	coll, err := a.collection(table)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = coll.FindOne(ctx, bson.M{keyColumn: mongoKey(keyColumn, keyValue)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return normalizeDoc(doc), nil
}

func (a *MongoAdapter) UpsertRecord(ctx context.Context, table string, record models.Record, keyColumn string) (models.Record, error) {
	coll, err := a.collection(table)
	if err != nil {
		return nil, err
	}
	key, ok := record[keyColumn]
	if !ok || key == nil {
		return nil, fmt.Errorf("record has no value for key column %s", keyColumn)
	}

	set := bson.M{}
	for k, v := range record {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	filter := bson.M{keyColumn: mongoKey(keyColumn, key)}

	update := bson.M{"$setOnInsert": filter}
	if len(set) > 0 {
		update = bson.M{"$set": set}
	}
	if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return a.ReadRecordByKey(ctx, table, keyColumn, key)
}

func (a *MongoAdapter) DeleteRecord(ctx context.Context, table, keyColumn string, keyValue interface{}) (bool, error) {
	coll, err := a.collection(table)
	if err != nil {
		return false, err
	}
	res, err := coll.DeleteOne(ctx, bson.M{keyColumn: mongoKey(keyColumn, keyValue)})
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return res.DeletedCount > 0, nil
}

func (a *MongoAdapter) CountRecords(ctx context.Context, table string, where models.Filter) (int64, error) {
	coll, err := a.collection(table)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, mongoFilter(where))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// mongoFilter translates the active clauses of f into a bson filter.
func mongoFilter(f models.Filter) bson.M {
	conds := bson.A{}
	for _, c := range ActiveClauses(f) {
		value := mongoKey(c.Field, c.Value)
		var cond interface{}
		switch c.Operator {
		case models.OpNotEqual:
			cond = bson.M{"$ne": value}
		case models.OpGreater:
			cond = bson.M{"$gt": value}
		case models.OpLess:
			cond = bson.M{"$lt": value}
		case models.OpContains:
			cond = primitive.Regex{Pattern: regexp.QuoteMeta(fmt.Sprint(c.Value)), Options: "i"}
		default:
			cond = bson.M{"$eq": value}
		}
		conds = append(conds, bson.M{c.Field: cond})
	}

	switch len(conds) {
	case 0:
		return bson.M{}
	case 1:
		return conds[0].(bson.M)
	}
	return bson.M{"$and": conds}
}

// mongoKey turns a hex string into an ObjectID when it addresses _id.
func mongoKey(column string, v interface{}) interface{} {
	if column != "_id" {
		return v
	}
	if s, ok := v.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return v
}

// normalizeDoc converts BSON-specific values into plain Go values.
func normalizeDoc(doc bson.M) models.Record {
	out := make(models.Record, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f
		}
		return t.String()
	case bson.M:
		return map[string]interface{}(normalizeDoc(t))
	case bson.D:
		return map[string]interface{}(normalizeDoc(t.Map()))
	case bson.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	}
	return v
}

func bsonTypeName(v interface{}) string {
	switch v.(type) {
	case primitive.ObjectID:
		return "objectId"
	case string:
		return "string"
	case int32, int64:
		return "int"
	case float64, primitive.Decimal128:
		return "double"
	case bool:
		return "bool"
	case primitive.DateTime:
		return "date"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

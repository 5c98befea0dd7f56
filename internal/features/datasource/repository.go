package datasource

import (
	"context"
	"errors"
	"time"

	"go-dbsync/internal/database"
	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DataSourceRepository interface {
	Create(ctx context.Context, ds *models.DataSource) error
	Get(ctx context.Context, id string) (*models.DataSource, error)
	List(ctx context.Context) ([]models.DataSource, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type ViewRepository interface {
	Create(ctx context.Context, view *models.View) error
	Get(ctx context.Context, id string) (*models.View, error)
	ListByDataSource(ctx context.Context, dataSourceID string) ([]models.View, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type SchemaCacheRepository interface {
	Get(ctx context.Context, dataSourceID primitive.ObjectID, table string) (*models.TableSchemaCache, error)
	Save(ctx context.Context, cache *models.TableSchemaCache) error
	DeleteByDataSource(ctx context.Context, dataSourceID primitive.ObjectID) error
}

type DataSourceRepositoryImpl struct {
	collection *mongo.Collection
}

func NewDataSourceRepository(db *database.MongodbDB) DataSourceRepository {
	return &DataSourceRepositoryImpl{
		collection: db.DB.Collection("datasources"),
	}
}

func (r *DataSourceRepositoryImpl) Create(ctx context.Context, ds *models.DataSource) error {
	if ds.ID.IsZero() {
		ds.ID = primitive.NewObjectID()
	}
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, ds)
	return err
}

// Get returns nil, nil when no datasource has the id.
func (r *DataSourceRepositoryImpl) Get(ctx context.Context, id string) (*models.DataSource, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var ds models.DataSource
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&ds)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &ds, nil
}

func (r *DataSourceRepositoryImpl) List(ctx context.Context) ([]models.DataSource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	dataSources := []models.DataSource{}
	if err = cursor.All(ctx, &dataSources); err != nil {
		return nil, err
	}

	return dataSources, nil
}

func (r *DataSourceRepositoryImpl) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": updates})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DataSourceRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

type ViewRepositoryImpl struct {
	collection *mongo.Collection
}

func NewViewRepository(db *database.MongodbDB) ViewRepository {
	return &ViewRepositoryImpl{
		collection: db.DB.Collection("views"),
	}
}

func (r *ViewRepositoryImpl) Create(ctx context.Context, view *models.View) error {
	if view.ID.IsZero() {
		view.ID = primitive.NewObjectID()
	}
	now := time.Now()
	view.CreatedAt = now
	view.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, view)
	return err
}

// Get returns nil, nil when no view has the id.
func (r *ViewRepositoryImpl) Get(ctx context.Context, id string) (*models.View, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var view models.View
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&view)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &view, nil
}

func (r *ViewRepositoryImpl) ListByDataSource(ctx context.Context, dataSourceID string) ([]models.View, error) {
	oid, err := primitive.ObjectIDFromHex(dataSourceID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"datasource_id": oid}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	views := []models.View{}
	if err = cursor.All(ctx, &views); err != nil {
		return nil, err
	}

	return views, nil
}

func (r *ViewRepositoryImpl) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": updates})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrViewNotFound
	}
	return nil
}

func (r *ViewRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

type SchemaCacheRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSchemaCacheRepository(db *database.MongodbDB) SchemaCacheRepository {
	return &SchemaCacheRepositoryImpl{
		collection: db.DB.Collection("schema_cache"),
	}
}

func (r *SchemaCacheRepositoryImpl) Get(ctx context.Context, dataSourceID primitive.ObjectID, table string) (*models.TableSchemaCache, error) {
	var cache models.TableSchemaCache
	err := r.collection.FindOne(ctx, bson.M{"datasource_id": dataSourceID, "table_name": table}).Decode(&cache)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &cache, nil
}

// Save replaces the cached schema of (datasource, table).
func (r *SchemaCacheRepositoryImpl) Save(ctx context.Context, cache *models.TableSchemaCache) error {
	if cache.ID.IsZero() {
		cache.ID = primitive.NewObjectID()
	}
	filter := bson.M{"datasource_id": cache.DataSourceID, "table_name": cache.TableName}
	update := bson.M{
		"$set": bson.M{
			"columns":    cache.Columns,
			"fetched_at": cache.FetchedAt,
		},
		"$setOnInsert": bson.M{"_id": cache.ID},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *SchemaCacheRepositoryImpl) DeleteByDataSource(ctx context.Context, dataSourceID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"datasource_id": dataSourceID})
	return err
}

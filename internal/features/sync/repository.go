package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-dbsync/internal/database"
	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConfigRepository interface {
	Create(ctx context.Context, cfg *models.SyncConfig) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.SyncConfig, error)
	List(ctx context.Context) ([]models.SyncConfig, error)
	ListScheduled(ctx context.Context) ([]models.SyncConfig, error)
	Replace(ctx context.Context, cfg *models.SyncConfig) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	MarkSynced(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

type JobRepository interface {
	Create(ctx context.Context, job *models.SyncJob) error
	GetJob(ctx context.Context, id primitive.ObjectID) (*models.SyncJob, error)
	UpdateJob(ctx context.Context, job *models.SyncJob) error
	Checkpoint(ctx context.Context, job *models.SyncJob) error
	List(ctx context.Context, configID *primitive.ObjectID, limit int64) ([]models.SyncJob, error)
}

type ConflictRepository interface {
	CreateConflict(ctx context.Context, c *models.Conflict) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Conflict, error)
	ListByJob(ctx context.Context, jobID primitive.ObjectID, status models.ResolutionStatus) ([]models.Conflict, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.ResolutionStatus, resolvedAt *time.Time) error
}

func notFound(kind string, id primitive.ObjectID, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w: %w", kind, id.Hex(), ErrNotFound, err)
	}
	return err
}

type ConfigRepositoryImpl struct {
	collection *mongo.Collection
}

func NewConfigRepository(db *database.MongodbDB) ConfigRepository {
	return &ConfigRepositoryImpl{
		collection: db.DB.Collection("sync_configs"),
	}
}

func (r *ConfigRepositoryImpl) Create(ctx context.Context, cfg *models.SyncConfig) error {
	if cfg.ID.IsZero() {
		cfg.ID = primitive.NewObjectID()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, cfg)
	return err
}

func (r *ConfigRepositoryImpl) Get(ctx context.Context, id primitive.ObjectID) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cfg); err != nil {
		return nil, notFound("sync config", id, err)
	}
	return &cfg, nil
}

func (r *ConfigRepositoryImpl) List(ctx context.Context) ([]models.SyncConfig, error) {
	return r.find(ctx, bson.M{})
}

// ListScheduled returns active configs that carry a cron schedule.
func (r *ConfigRepositoryImpl) ListScheduled(ctx context.Context) ([]models.SyncConfig, error) {
	return r.find(ctx, bson.M{"is_active": true, "schedule": bson.M{"$nin": bson.A{nil, ""}}})
}

func (r *ConfigRepositoryImpl) find(ctx context.Context, filter bson.M) ([]models.SyncConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	configs := []models.SyncConfig{}
	if err = cursor.All(ctx, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *ConfigRepositoryImpl) Replace(ctx context.Context, cfg *models.SyncConfig) error {
	cfg.UpdatedAt = time.Now()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": cfg.ID}, cfg)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound("sync config", cfg.ID, mongo.ErrNoDocuments)
	}
	return nil
}

func (r *ConfigRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *ConfigRepositoryImpl) MarkSynced(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_sync_at": at}})
	return err
}

type JobRepositoryImpl struct {
	collection *mongo.Collection
}

func NewJobRepository(db *database.MongodbDB) JobRepository {
	return &JobRepositoryImpl{
		collection: db.DB.Collection("sync_jobs"),
	}
}

func (r *JobRepositoryImpl) Create(ctx context.Context, job *models.SyncJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *JobRepositoryImpl) GetJob(ctx context.Context, id primitive.ObjectID) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job); err != nil {
		return nil, notFound("sync job", id, err)
	}
	return &job, nil
}

func (r *JobRepositoryImpl) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	return err
}

// Checkpoint writes only the counters so a concurrent status change is not
// overwritten.
func (r *JobRepositoryImpl) Checkpoint(ctx context.Context, job *models.SyncJob) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": job.ID}, bson.M{"$set": bson.M{
		"total_records":     job.TotalRecords,
		"processed_records": job.ProcessedRecords,
		"inserted_records":  job.InsertedRecords,
		"updated_records":   job.UpdatedRecords,
		"deleted_records":   job.DeletedRecords,
		"conflict_count":    job.ConflictCount,
		"error_count":       job.ErrorCount,
	}})
	return err
}

func (r *JobRepositoryImpl) List(ctx context.Context, configID *primitive.ObjectID, limit int64) ([]models.SyncJob, error) {
	filter := bson.M{}
	if configID != nil {
		filter["config_id"] = *configID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := []models.SyncJob{}
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

type ConflictRepositoryImpl struct {
	collection *mongo.Collection
}

func NewConflictRepository(db *database.MongodbDB) ConflictRepository {
	return &ConflictRepositoryImpl{
		collection: db.DB.Collection("sync_conflicts"),
	}
}

func (r *ConflictRepositoryImpl) CreateConflict(ctx context.Context, c *models.Conflict) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, c)
	return err
}

func (r *ConflictRepositoryImpl) Get(ctx context.Context, id primitive.ObjectID) (*models.Conflict, error) {
	var c models.Conflict
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound("conflict", id, err)
	}
	return &c, nil
}

// ListByJob returns a job's conflicts oldest first; an empty status matches all.
func (r *ConflictRepositoryImpl) ListByJob(ctx context.Context, jobID primitive.ObjectID, status models.ResolutionStatus) ([]models.Conflict, error) {
	filter := bson.M{"job_id": jobID}
	if status != "" {
		filter["resolution_status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conflicts := []models.Conflict{}
	if err = cursor.All(ctx, &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (r *ConflictRepositoryImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.ResolutionStatus, resolvedAt *time.Time) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"resolution_status": status,
		"resolved_at":       resolvedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound("conflict", id, mongo.ErrNoDocuments)
	}
	return nil
}

package store

import (
	"context"

	"Argus/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// JobStore defines the interface for job persistence. Each job id is its own
// storage key; there is no cross-job write contention.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
}

// MongoJobStore is an implementation of JobStore using MongoDB.
type MongoJobStore struct {
	collection *mongo.Collection
}

// NewMongoJobStore creates a new MongoJobStore.
func NewMongoJobStore(db *mongo.Database, collectionName string) *MongoJobStore {
	return &MongoJobStore{
		collection: db.Collection(collectionName),
	}
}

// Create inserts a new job record.
func (s *MongoJobStore) Create(ctx context.Context, job *models.Job) error {
	_, err := s.collection.InsertOne(ctx, job)
	return err
}

// GetByID retrieves a job by its id, returning nil when no record exists.
func (s *MongoJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Update replaces the mutable fields of an existing job record.
func (s *MongoJobStore) Update(ctx context.Context, job *models.Job) error {
	filter := bson.M{"_id": job.ID}
	update := bson.M{
		"$set": bson.M{
			"status":       job.Status,
			"result":       job.Result,
			"completed_at": job.CompletedAt,
		},
	}
	_, err := s.collection.UpdateOne(ctx, filter, update)
	return err
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	models "github.com/phillip/volunteer-listings-go/models"
)

// MongoStore keeps reminder jobs in the reminder_jobs collection.
type MongoStore struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("reminder_jobs"), timeout: 5 * time.Second}
}

func (s *MongoStore) Save(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (s *MongoStore) Finish(ctx context.Context, id, status, lastError string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":      status,
		"last_error":  lastError,
		"finished_at": at,
	}}
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (s *MongoStore) Pending(ctx context.Context) ([]Job, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "fire_at", Value: 1}})
	cursor, err := s.col.Find(ctx, bson.M{"status": models.JobPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending jobs: %w", err)
	}
	jobs := []Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

// Purge deletes finished jobs older than before.
func (s *MongoStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{
		"status":      bson.M{"$in": bson.A{models.JobDone, models.JobFailed}},
		"finished_at": bson.M{"$lt": before},
	}
	res, err := s.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return res.DeletedCount, nil
}

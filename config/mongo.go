package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo dials and pings the configured deployment.
func ConnectMongo(ctx context.Context, cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	listings := []mongo.IndexModel{
		{Keys: bson.D{{Key: "coordinates", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "skills", Value: 1}}},
	}
	if _, err := db.Collection("listings").Indexes().CreateMany(ctx, listings); err != nil {
		return fmt.Errorf("listings indexes: %w", err)
	}

	users := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "location", Value: 1}}},
	}
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	jobs := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "fire_at", Value: 1}}},
	}
	if _, err := db.Collection("reminder_jobs").Indexes().CreateMany(ctx, jobs); err != nil {
		return fmt.Errorf("reminder_jobs indexes: %w", err)
	}
	return nil
}

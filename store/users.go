package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	models "github.com/phillip/volunteer-listings-go/models"
)

const usersCollection = "users"

type Users struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewUsers(db *mongo.Database) *Users {
	return &Users{col: db.Collection(usersCollection), timeout: 5 * time.Second}
}

func (s *Users) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Users) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByLocation returns users whose location equals location exactly.
func (s *Users) FindByLocation(ctx context.Context, location string) ([]models.User, error) {
	return s.find(ctx, bson.M{"location": location})
}

func (s *Users) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *Users) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	err := s.col.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *Users) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

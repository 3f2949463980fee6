package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	models "github.com/phillip/volunteer-listings-go/models"
)

const listingsCollection = "listings"

type Listings struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewListings(db *mongo.Database) *Listings {
	return &Listings{col: db.Collection(listingsCollection), timeout: 5 * time.Second}
}

func (s *Listings) Create(ctx context.Context, listing *models.Listing) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if listing.ID.IsZero() {
		listing.ID = primitive.NewObjectID()
	}
	if listing.Reviews == nil {
		listing.Reviews = []primitive.ObjectID{}
	}
	if _, err := s.col.InsertOne(ctx, listing); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Listings) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var listing models.Listing
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return &listing, nil
}

// FindAll returns every listing in natural order.
func (s *Listings) FindAll(ctx context.Context) ([]models.Listing, error) {
	return s.find(ctx, bson.M{})
}

// SearchText matches query as a case-insensitive literal substring of the
// event name, the organization name or any skill tag.
func (s *Listings) SearchText(ctx context.Context, query string) ([]models.Listing, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"event_name": pattern},
		bson.M{"organization_name": pattern},
		bson.M{"skills": bson.M{"$elemMatch": bson.M{"$regex": pattern}}},
	}}
	return s.find(ctx, filter)
}

// FindBySkill returns listings whose skill set contains skill exactly.
func (s *Listings) FindBySkill(ctx context.Context, skill string) ([]models.Listing, error) {
	return s.find(ctx, bson.M{"skills": skill})
}

// Update applies fields with a single $set and returns the updated document.
func (s *Listings) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	var updated models.Listing
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reload listing: %w", err)
	}
	return &updated, nil
}

// Delete removes the listing. A missing id is not an error; deleted reports
// whether a document was removed.
func (s *Listings) Delete(ctx context.Context, id primitive.ObjectID) (deleted bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete listing: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// AddParticipant appends userID to the roster only when it is absent, in a
// single conditional update so concurrent joins cannot duplicate it.
func (s *Listings) AddParticipant(ctx context.Context, id, userID primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id, "reviews": bson.M{"$ne": userID}}
	update := bson.M{
		"$push": bson.M{"reviews": userID},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count listing: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrAlreadyParticipant
}

func (s *Listings) find(ctx context.Context, filter bson.M) ([]models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listings, nil
}

package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a latitude/longitude pair.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (p GeoPoint) Lat() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

func (p GeoPoint) Lng() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

// Valid reports whether the point carries a finite longitude and latitude
// within [-180, 180] and [-90, 90].
func (p GeoPoint) Valid() bool {
	if p.Type != "Point" || len(p.Coordinates) != 2 {
		return false
	}
	for _, v := range p.Coordinates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lng() >= -180 && p.Lng() <= 180
}

type Image struct {
	Filename string `bson:"filename" json:"filename"`
	URL      string `bson:"url" json:"url"`
}

// Span is a from/to pair of date ("2006-01-02") or clock ("15:04") strings.
type Span struct {
	From string `bson:"from" json:"from"`
	To   string `bson:"to" json:"to"`
}

type Listing struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	EventName        string               `bson:"event_name" json:"event_name"`
	OrganizationName string               `bson:"organization_name" json:"organization_name"`
	Description      string               `bson:"description,omitempty" json:"description,omitempty"`
	Location         string               `bson:"location" json:"location"`
	Country          string               `bson:"country" json:"country"`
	Date             Span                 `bson:"date" json:"date"`
	Time             Span                 `bson:"time" json:"time"`
	Skills           []string             `bson:"skills" json:"skills"`
	Image            Image                `bson:"image" json:"image"`
	Owner            primitive.ObjectID   `bson:"owner" json:"owner"`
	Coordinates      GeoPoint             `bson:"coordinates" json:"coordinates"`
	Reviews          []primitive.ObjectID `bson:"reviews" json:"reviews"` // participant roster
	CreatedAt        time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at" json:"updated_at"`

	// Enriched fields
	Participants []Participant `bson:"-" json:"participants,omitempty"`
}

// HasParticipant reports whether userID is already on the roster.
func (l *Listing) HasParticipant(userID primitive.ObjectID) bool {
	for _, id := range l.Reviews {
		if id == userID {
			return true
		}
	}
	return false
}

// Participant is the public view of a user on a listing's roster.
type Participant struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
	ImageURL string             `json:"image_url,omitempty"`
}

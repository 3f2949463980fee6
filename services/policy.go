package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-listings-go/models"
)

// CanModify reports whether requester may update, delete or share listing.
// Only the owner can.
func CanModify(requester primitive.ObjectID, listing *models.Listing) bool {
	if listing == nil || requester.IsZero() {
		return false
	}
	return listing.Owner == requester
}

package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-listings-go/models"
)

// GenerateETag derives a weak validator from a document id and its last
// update time.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time) string {
	h := sha1.New()
	writeVersion(h, id, updatedAt)
	return weak(h)
}

// GenerateListETag covers every listing in the result and the count, so a
// removal anywhere in the list changes the validator.
func GenerateListETag(listings []models.Listing) string {
	h := sha1.New()
	h.Write([]byte(strconv.Itoa(len(listings))))
	for _, l := range listings {
		writeVersion(h, l.ID, l.UpdatedAt)
	}
	return weak(h)
}

// GenerateDetailETag covers the listing and the participant summaries
// rendered with it.
func GenerateDetailETag(l *models.Listing) string {
	h := sha1.New()
	writeVersion(h, l.ID, l.UpdatedAt)
	h.Write([]byte(strconv.Itoa(len(l.Participants))))
	for _, p := range l.Participants {
		h.Write([]byte{0})
		h.Write([]byte(p.ID.Hex()))
		h.Write([]byte{0})
		h.Write([]byte(p.Username))
		h.Write([]byte{0})
		h.Write([]byte(p.ImageURL))
	}
	return weak(h)
}

func writeVersion(h hash.Hash, id primitive.ObjectID, updatedAt time.Time) {
	h.Write([]byte(id.Hex()))
	h.Write([]byte(strconv.FormatInt(updatedAt.UnixNano(), 10)))
}

func weak(h hash.Hash) string {
	return `W/"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

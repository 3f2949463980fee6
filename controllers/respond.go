package controllers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	services "github.com/phillip/volunteer-listings-go/services"
)

// notice answers with a flash-style body: a success or error text and the
// page the client should go to next.
func notice(c *gin.Context, status int, key, text, redirect string, extra gin.H) {
	body := gin.H{key: text}
	if redirect != "" {
		body["redirect"] = redirect
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func success(c *gin.Context, status int, text, redirect string, extra gin.H) {
	notice(c, status, "success", text, redirect, extra)
}

// fail maps service errors onto a status and error notice. fallback is the
// text used for unexpected failures.
func fail(c *gin.Context, err error, fallback, redirect string) {
	status, text := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, services.ErrValidation):
		status, text = http.StatusBadRequest, validationText(err)
	case errors.Is(err, services.ErrNotFound):
		status, text = http.StatusNotFound, "Listing not found!"
	case errors.Is(err, services.ErrForbidden):
		status, text = http.StatusForbidden, "You don't have permission to do that!"
	case errors.Is(err, services.ErrDuplicateParticipation):
		status, text = http.StatusConflict, "Already Participated!"
	case errors.Is(err, services.ErrNoRecipients):
		status, text = http.StatusUnprocessableEntity, "No reviewers with valid emails found"
	case errors.Is(err, services.ErrGeocode), errors.Is(err, services.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Printf("controllers: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	notice(c, status, "error", text, redirect, nil)
}

// validationText strips the sentinel prefix so the user sees only the detail.
func validationText(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, services.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(services.ErrValidation.Error())+2:]
	}
	return msg
}

// currentUser parses the id set by the auth middleware.
func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		notice(c, http.StatusNotFound, "error", "Listing not found!", "/listings", nil)
		return primitive.NilObjectID, false
	}
	return id, true
}

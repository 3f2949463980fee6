package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	services "github.com/phillip/volunteer-listings-go/services"
)

type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
}

// ---------------- REGISTER ----------------
func Register(auth AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `form:"username" json:"username" binding:"required"`
			Email    string `form:"email" json:"email" binding:"required,email"`
			Password string `form:"password" json:"password" binding:"required,min=6"`
			Location string `form:"location" json:"location" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		sess, err := auth.Register(ctx, services.RegisterInput{
			Username: input.Username,
			Email:    input.Email,
			Password: input.Password,
			Location: input.Location,
		})
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationText(err)})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register user"})
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

// ---------------- LOGIN ----------------
func Login(auth AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `form:"email" json:"email" binding:"required"`
			Password string `form:"password" json:"password" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		sess, err := auth.Login(ctx, input.Email, input.Password)
		switch {
		case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

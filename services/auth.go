package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-listings-go/models"
	store "github.com/phillip/volunteer-listings-go/store"
	utils "github.com/phillip/volunteer-listings-go/utils"
)

type AuthService struct {
	users      UserStore
	secret     string
	ttl        time.Duration
	bcryptCost int
}

func NewAuthService(users UserStore, secret string, ttl time.Duration, bcryptCost int) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{users: users, secret: secret, ttl: ttl, bcryptCost: bcryptCost}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Location string
	Image    models.Image
}

type Session struct {
	User  *models.User      `json:"user"`
	Token utils.AccessToken `json:"access_token"`
}

// Register creates a user and signs them in.
func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.Location = strings.TrimSpace(in.Location)
	if in.Username == "" || in.Email == "" || in.Location == "" {
		return nil, invalid("username, email and location are required")
	}
	if len(in.Password) < 6 {
		return nil, invalid("password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(in.Password, a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     in.Username,
		Email:        in.Email,
		Location:     in.Location,
		Image:        in.Image,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return a.session(user)
}

// Login checks credentials and issues an access token.
func (a *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}
	user, err := a.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return a.session(user)
}

// Authenticate resolves a bearer token to a user id.
func (a *AuthService) Authenticate(raw string) (primitive.ObjectID, error) {
	sub, err := utils.ParseAccessToken(a.secret, raw)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidCredentials
	}
	id, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidCredentials
	}
	return id, nil
}

func (a *AuthService) session(user *models.User) (*Session, error) {
	tok, err := utils.NewAccessToken(a.secret, user.ID.Hex(), a.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{User: user, Token: tok}, nil
}

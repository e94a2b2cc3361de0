package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 12 * time.Hour

// Principal is the signed-in staff member behind a request
type Principal struct {
	UserID string
	Email  string
}

// SignInResult is returned by a successful sign-in
type SignInResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.AdminUser `json:"user"`
}

// UserService handles staff accounts and sessions
type UserService struct {
	users      UserStore
	jwtSecret  string
	sessionTTL time.Duration
	now        func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore, jwtSecret string, sessionTTL time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &UserService{
		users:      users,
		jwtSecret:  jwtSecret,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// SignIn checks an email and password and issues a session token
func (s *UserService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.GenerateJWT(user)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GenerateJWT generates a session token for a staff member
func (s *UserService) GenerateJWT(user *models.AdminUser) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateJWT validates a session token and returns who it belongs to
func (s *UserService) ValidateJWT(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("user_id not found in token")
	}
	email, _ := claims["email"].(string)

	return &Principal{UserID: userID, Email: email}, nil
}

// CreateUser adds a staff account with a bcrypt password hash
func (s *UserService) CreateUser(ctx context.Context, email, password string) (*models.AdminUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, invalid("email", "is required")
	}
	if len(password) < 8 {
		return nil, invalid("password", "must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.AdminUser{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap account unless it already exists
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	user, err := s.CreateUser(ctx, email, password)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("Bootstrap admin created")
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/evidentium/custodia/internal/authz"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
)

const staffTokenTTL = 12 * time.Hour

// StaffClaims is the JWT payload for staff sessions. Display name and role
// ride along so the purpose gate can write attributable audit entries
// without a user lookup per request.
type StaffClaims struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService registers staff accounts and issues session JWTs.
type AuthService interface {
	Register(ctx context.Context, username, displayName, role, password string) error
	Login(ctx context.Context, username, password string) (string, error)
}

var _ AuthService = (*authService)(nil)

type authService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
}

// NewAuthService creates the auth service. jwtSecret comes from
// configuration, never from a source file.
func NewAuthService(userRepo repository.UserRepository, jwtSecret []byte) AuthService {
	return &authService{userRepo: userRepo, jwtSecret: jwtSecret}
}

// Register creates a staff account with a bcrypt-hashed password. The role
// must come from the closed role set; access itself is decided per action
// by the permission matrix.
func (s *authService) Register(ctx context.Context, username, displayName, role, password string) error {
	if username == "" || displayName == "" || password == "" {
		return fmt.Errorf("%w: username, display name and password are required", ErrValidation)
	}
	if !authz.KnownRole(role) {
		return fmt.Errorf("%w: unknown staff role %q", ErrValidation, role)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[AuthService] Hashing password for %q failed: %v", username, err)
		return errors.New("hashing password")
	}

	user := &models.User{
		Username:     username,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: string(hashedPassword),
	}

	if _, err = s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return ErrUsernameTaken
		}
		log.Printf("[AuthService] Creating user %q failed: %v", username, err)
		return errors.New("creating user")
	}

	log.Printf("[AuthService] User %q registered with role %s", username, role)
	return nil
}

// Login verifies credentials and returns a signed session token.
func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same error for unknown user and bad password.
			return "", ErrInvalidCredentials
		}
		log.Printf("[AuthService] Looking up %q failed: %v", username, err)
		return "", errors.New("looking up user")
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Printf("[AuthService] Wrong password for user %q", username)
		return "", ErrInvalidCredentials
	}

	token, err := s.generateJWT(user)
	if err != nil {
		log.Printf("[AuthService] Generating JWT for %q failed: %v", username, err)
		return "", errors.New("generating session token")
	}

	log.Printf("[AuthService] User %q authenticated", username)
	return token, nil
}

func (s *authService) generateJWT(user *models.User) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(staffTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   user.Username,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

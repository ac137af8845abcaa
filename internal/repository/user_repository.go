package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evidentium/custodia/internal/models"
)

// UserRepository persists staff accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type postgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates the Postgres-backed user repository.
func NewPostgresUserRepository(db *sqlx.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

// CreateUser inserts a staff account and returns its id.
func (r *postgresUserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `INSERT INTO users (username, display_name, role, password_hash)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	var userID int64

	err := r.db.QueryRowxContext(ctx, query,
		user.Username, user.DisplayName, user.Role, user.PasswordHash,
	).Scan(&userID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Printf("[UserRepo] Username %q already taken", user.Username)
			return 0, ErrUsernameTaken
		}
		log.Printf("[UserRepo] Creating user %q failed: %v", user.Username, err)
		return 0, fmt.Errorf("inserting user: %w", err)
	}

	log.Printf("[UserRepo] User %q created with id %d", user.Username, userID)
	return userID, nil
}

// GetUserByUsername finds an account or returns ErrUserNotFound.
func (r *postgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, display_name, role, password_hash, created_at FROM users WHERE username=$1`
	var user models.User

	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		log.Printf("[UserRepo] Looking up user %q failed: %v", username, err)
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// GetUserByID finds an account or returns ErrUserNotFound.
func (r *postgresUserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, username, display_name, role, password_hash, created_at FROM users WHERE id=$1`
	var user models.User

	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		log.Printf("[UserRepo] Looking up user id %d failed: %v", id, err)
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/firmauth/models"
)

// ErrNotFound is returned by repositories when the requested row does not exist
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context carrying the transaction. Repositories called
	// with it run their statements inside the transaction.
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create inserts a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID regardless of active state
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetActiveByEmail retrieves an active user by email
	GetActiveByEmail(ctx context.Context, email string) (*models.User, error)

	// TouchLastLogin records the time of the latest successful login
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// FirmRepository handles firm data operations
type FirmRepository interface {
	// Create inserts a new firm
	Create(ctx context.Context, firm *models.Firm) error

	// GetByID retrieves a firm by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Firm, error)
}

// APIKeyRecord is an active API key joined with its owner and the owner's firm tier
type APIKeyRecord struct {
	Key              *models.APIKey
	Email            string
	Role             models.Role
	SubscriptionTier models.SubscriptionTier
}

// APIKeyRepository handles API key data operations
type APIKeyRepository interface {
	// Insert stores a new API key
	Insert(ctx context.Context, key *models.APIKey) error

	// GetActiveByHash returns the key matching hash only when the key is active,
	// not expired at now, and its owner is active
	GetActiveByHash(ctx context.Context, hash string, now time.Time) (*APIKeyRecord, error)

	// ListByUser returns every key owned by the user, newest first
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)

	// TouchLastUsed records the time the key was last used
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// Deactivate disables the key if it belongs to userID. Reports whether a row changed.
	Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// QuotaStore is a shared counter store with key expiry. It is the single
// source of truth for quota counters and the token denylist.
type QuotaStore interface {
	// Incr increments the counter at key and returns the new value
	Incr(ctx context.Context, key string) (int64, error)

	// Decr decrements the counter at key and returns the new value
	Decr(ctx context.Context, key string) (int64, error)

	// FloorAtZero atomically resets a negative counter at key to zero with
	// the given time to live and returns the resulting value
	FloorAtZero(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Expire sets the time to live of key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the counter at key and whether it exists
	Get(ctx context.Context, key string) (int64, bool, error)

	// MultiGet returns the counters at keys in order; missing keys are nil
	MultiGet(ctx context.Context, keys ...string) ([]*int64, error)

	// SetWithTTL stores value at key with the given time to live
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error

	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Users   UserRepository
	Firms   FirmRepository
	APIKeys APIKeyRepository
}

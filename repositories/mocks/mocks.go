// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/firmauth/models"
	"github.com/upb/firmauth/repositories"
)

// UserRepository is a mock implementation of repositories.UserRepository
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// FirmRepository is a mock implementation of repositories.FirmRepository
type FirmRepository struct {
	mock.Mock
}

func (m *FirmRepository) Create(ctx context.Context, firm *models.Firm) error {
	args := m.Called(ctx, firm)
	return args.Error(0)
}

func (m *FirmRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Firm, error) {
	args := m.Called(ctx, id)
	if firm := args.Get(0); firm != nil {
		return firm.(*models.Firm), args.Error(1)
	}
	return nil, args.Error(1)
}

// APIKeyRepository is a mock implementation of repositories.APIKeyRepository
type APIKeyRepository struct {
	mock.Mock
}

func (m *APIKeyRepository) Insert(ctx context.Context, key *models.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *APIKeyRepository) GetActiveByHash(ctx context.Context, hash string, now time.Time) (*repositories.APIKeyRecord, error) {
	args := m.Called(ctx, hash, now)
	if rec := args.Get(0); rec != nil {
		return rec.(*repositories.APIKeyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	args := m.Called(ctx, userID)
	if keys := args.Get(0); keys != nil {
		return keys.([]*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *APIKeyRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

// TransactionManager hands out in-memory transactions and records their outcome
type TransactionManager struct {
	BeginErr error

	mu        sync.Mutex
	Commits   int
	Rollbacks int
}

func (m *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return &Transaction{ctx: ctx, mgr: m}, nil
}

// Transaction is an in-memory repositories.Transaction
type Transaction struct {
	ctx  context.Context
	mgr  *TransactionManager
	done bool
}

func (t *Transaction) Commit() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if !t.done {
		t.done = true
		t.mgr.Commits++
	}
	return nil
}

func (t *Transaction) Rollback() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if !t.done {
		t.done = true
		t.mgr.Rollbacks++
	}
	return nil
}

func (t *Transaction) Context() context.Context { return t.ctx }

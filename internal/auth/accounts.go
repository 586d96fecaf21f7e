package auth

import (
	"context"
	"fmt"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
)

// AccountStorage defines the persistence operations the authenticator needs.
type AccountStorage interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, uid string) (*models.Account, error)
}

// DocAccountStorage keeps accounts in the document store, one document per
// account under accounts/{uid}. Email lookups run an equality query; email
// uniqueness is enforced by the authenticator's pre-check, not the store.
type DocAccountStorage struct {
	store docstore.Store
}

// NewAccountStorage creates account storage backed by the document store.
func NewAccountStorage(store docstore.Store) *DocAccountStorage {
	return &DocAccountStorage{store: store}
}

func accountPath(uid string) string {
	return "accounts/" + uid
}

// CreateAccount writes a new account document.
func (s *DocAccountStorage) CreateAccount(ctx context.Context, account *models.Account) error {
	err := s.store.Set(ctx, accountPath(account.UID), docstore.Fields{
		"uid":          account.UID,
		"email":        account.Email,
		"displayName":  account.DisplayName,
		"passwordHash": account.PasswordHash,
		"createdAt":    account.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByEmail finds the account registered under email.
func (s *DocAccountStorage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	snaps, err := s.store.GetAll(ctx, docstore.Query{
		Collection: "accounts",
		Filter:     &docstore.Filter{Field: "email", Op: "==", Value: email},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up account by email: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("account for %s: %w", email, docstore.ErrNotFound)
	}
	return accountFromSnapshot(snaps[0])
}

// GetAccountByID fetches an account by uid.
func (s *DocAccountStorage) GetAccountByID(ctx context.Context, uid string) (*models.Account, error) {
	snap, err := s.store.Get(ctx, accountPath(uid))
	if err != nil {
		return nil, err
	}
	return accountFromSnapshot(snap)
}

func accountFromSnapshot(snap docstore.Snapshot) (*models.Account, error) {
	var a models.Account
	if err := snap.DataTo(&a); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &a, nil
}

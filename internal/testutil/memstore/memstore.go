// Package memstore provides in-memory user and expense stores for tests.
// They follow the error contract of the PostgreSQL repository.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/repository"
)

// Expenses is an in-memory expense store.
type Expenses struct {
	mu    sync.Mutex
	items map[string]model.Expense

	// Injected failures, returned by the matching method when set.
	CreateErr error
	UpdateErr error
	DeleteErr error
}

// NewExpenses creates an empty expense store.
func NewExpenses() *Expenses {
	return &Expenses{items: make(map[string]model.Expense)}
}

// CreateExpense stores a copy of e.
func (s *Expenses) CreateExpense(ctx context.Context, e *model.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.items[e.ID] = *e
	return nil
}

// GetExpense returns a copy of the owner's expense.
func (s *Expenses) GetExpense(ctx context.Context, ownerID, id string) (*model.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok || e.UserID != ownerID {
		return nil, repository.ErrExpenseNotFound
	}
	return &e, nil
}

// ListExpenses returns the owner's matching expenses, newest date first.
func (s *Expenses) ListExpenses(ctx context.Context, filter repository.ExpenseFilter) ([]*model.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Expense, 0)
	for _, e := range s.items {
		if e.UserID != filter.OwnerID {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		e := e
		out = append(out, &e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateExpense replaces the stored expense.
func (s *Expenses) UpdateExpense(ctx context.Context, e *model.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	current, ok := s.items[e.ID]
	if !ok || current.UserID != e.UserID {
		return repository.ErrExpenseNotFound
	}
	s.items[e.ID] = *e
	return nil
}

// DeleteExpense removes the owner's expense.
func (s *Expenses) DeleteExpense(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	e, ok := s.items[id]
	if !ok || e.UserID != ownerID {
		return repository.ErrExpenseNotFound
	}
	delete(s.items, id)
	return nil
}

// MediaReferencedBy reports whether one of the owner's expenses uses mediaFile.
func (s *Expenses) MediaReferencedBy(ctx context.Context, ownerID, mediaFile string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.UserID == ownerID && e.MediaFile != nil && *e.MediaFile == mediaFile {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored expenses.
func (s *Expenses) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Users is an in-memory user store.
type Users struct {
	mu    sync.Mutex
	items map[string]model.User
}

// NewUsers creates an empty user store.
func NewUsers() *Users {
	return &Users{items: make(map[string]model.User)}
}

// CreateUser stores a copy of user, enforcing unique usernames and identities.
func (s *Users) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.items {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if user.Provider != "" && u.Provider == user.Provider && u.ProviderSubject == user.ProviderSubject {
			return repository.ErrIdentityExists
		}
	}
	s.items[user.ID] = *user
	return nil
}

// GetUserByID returns a copy of the user.
func (s *Users) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.items[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// GetUserByUsername returns the user with the username.
func (s *Users) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.Username == username })
}

// GetUserByProvider returns the user linked to a provider identity.
func (s *Users) GetUserByProvider(ctx context.Context, provider, subject string) (*model.User, error) {
	return s.find(func(u model.User) bool {
		return u.Provider == provider && u.ProviderSubject == subject
	})
}

// UsernameExists reports whether the username is taken.
func (s *Users) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := s.GetUserByUsername(ctx, username)
	return err == nil, nil
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Users) find(match func(model.User) bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.items {
		u := u
		if match(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

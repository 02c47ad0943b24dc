package otcAuth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryUserStore is an in-process UserStore for tests and single-node
// development. State is lost on restart.
type MemoryUserStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]User
	byEmail map[string]int64
	now     func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[int64]User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	key := emailKey(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return User{}, ErrConflict
	}
	s.nextID++
	now := s.now().UTC()
	u := User{
		ID:           s.nextID,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[key] = u.ID
	return u, nil
}

func (s *MemoryUserStore) GetUserByID(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryUserStore) ConfirmUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Confirmed = true
	u.UpdatedAt = s.now().UTC()
	s.byID[id] = u
	return nil
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, id int64, update UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}

	if update.Email != nil {
		next := emailKey(*update.Email)
		if owner, taken := s.byEmail[next]; taken && owner != id {
			return ErrConflict
		}
		delete(s.byEmail, emailKey(u.Email))
		s.byEmail[next] = id
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Phone != nil {
		u.Phone = *update.Phone
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	u.UpdatedAt = s.now().UTC()
	s.byID[id] = u
	return nil
}

func (s *MemoryUserStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, emailKey(u.Email))
	return nil
}

func (s *MemoryUserStore) Ping(context.Context) error { return nil }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

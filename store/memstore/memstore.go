// Package memstore keeps users and sessions in process memory. It implements
// authcore.Storage for tests and single-instance development setups.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
)

type providerKey struct {
	provider string
	subject  string
}

// Store is an in-memory authcore.Storage. The zero value is not usable; call New.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*authcore.User
	byEmail    map[string]string
	byProvider map[providerKey]string
	sessions   map[string][]session.Session
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*authcore.User),
		byEmail:    make(map[string]string),
		byProvider: make(map[providerKey]string),
		sessions:   make(map[string][]session.Session),
	}
}

var _ authcore.Storage = (*Store)(nil)

func (s *Store) FindByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, authcore.ErrRecordNotFound
	}
	return u.Clone(), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authcore.ErrRecordNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) FindByProvider(_ context.Context, provider, subject string) (*authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byProvider[providerKey{provider, subject}]
	if !ok {
		return nil, authcore.ErrRecordNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) Create(_ context.Context, u *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := s.users[u.ID]; ok {
		return authcore.ErrRecordExists
	}
	if _, ok := s.byEmail[email]; ok {
		return authcore.ErrRecordExists
	}
	for _, p := range u.Providers {
		if _, ok := s.byProvider[providerKey{p.Provider, p.Subject}]; ok {
			return authcore.ErrRecordExists
		}
	}

	stored := u.Clone()
	stored.Email = email
	s.users[u.ID] = stored
	s.byEmail[email] = u.ID
	for _, p := range u.Providers {
		s.byProvider[providerKey{p.Provider, p.Subject}] = u.ID
	}
	return nil
}

func (s *Store) Update(_ context.Context, id string, patch authcore.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return authcore.ErrRecordNotFound
	}
	if patch.Providers != nil {
		for _, p := range *patch.Providers {
			if owner, ok := s.byProvider[providerKey{p.Provider, p.Subject}]; ok && owner != id {
				return authcore.ErrRecordExists
			}
		}
		for _, p := range u.Providers {
			delete(s.byProvider, providerKey{p.Provider, p.Subject})
		}
		for _, p := range *patch.Providers {
			s.byProvider[providerKey{p.Provider, p.Subject}] = id
		}
	}
	patch.Apply(u)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return authcore.ErrRecordNotFound
	}
	delete(s.byEmail, u.Email)
	for _, p := range u.Providers {
		delete(s.byProvider, providerKey{p.Provider, p.Subject})
	}
	delete(s.users, id)
	delete(s.sessions, id)
	return nil
}

func (s *Store) Sessions(_ context.Context, userID string) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, authcore.ErrRecordNotFound
	}
	return append([]session.Session(nil), s.sessions[userID]...), nil
}

func (s *Store) CreateSession(_ context.Context, userID string, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return authcore.ErrRecordNotFound
	}
	if _, ok := session.FindByHash(s.sessions[userID], sess.Hash); ok {
		return authcore.ErrRecordExists
	}
	s.sessions[userID] = append(s.sessions[userID], sess)
	return nil
}

func (s *Store) UpdateSession(_ context.Context, userID string, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.sessions[userID]
	for i := range list {
		if list[i].Hash == sess.Hash {
			list[i] = sess
			return nil
		}
	}
	return authcore.ErrRecordNotFound
}

// DeleteSession is idempotent.
func (s *Store) DeleteSession(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = session.DeleteByHash(s.sessions[userID], hash)
	return nil
}

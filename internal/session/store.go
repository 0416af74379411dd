package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// TokenKey is the storage key holding the persisted bearer token.
const TokenKey = "jwtToken"

// Storage is the persistent key-value store backing the session token.
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// State is a point in time copy of the session.
type State struct {
	LoggedIn bool
	Username string
	Role     string
	Token    string
}

// Observer is notified after every login or logout. Observers run while the
// transition is still held, so they see changes in order and must not call
// Login, Logout or PersistLogin themselves.
type Observer func(State)

// Store is the single source of truth for who is logged in and with what token.
// It is constructed once per application and shared by the API client and the
// navigation guard.
type Store struct {
	storage Storage

	// transition serializes Login, Logout and PersistLogin end to end,
	// including storage writes and observer notification.
	transition sync.Mutex

	mu    sync.RWMutex
	state State

	observersMu sync.Mutex
	observers   map[int]Observer
	nextID      int
}

// NewStore creates a logged out store.
func NewStore(storage Storage) *Store {
	return &Store{
		storage:   storage,
		observers: make(map[int]Observer),
	}
}

// Login records a logged in user. The caller is trusted; nothing is validated
// and the token is not persisted.
func (s *Store) Login(username, token, role string) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.login(username, token, role)
}

// PersistLogin writes token to storage and then records the login as one
// transition, so a concurrent Logout cannot land between the two steps.
func (s *Store) PersistLogin(username, token, role string) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	if err := s.saveToken(token); err != nil {
		return err
	}

	s.login(username, token, role)
	return nil
}

func (s *Store) login(username, token, role string) {
	s.mu.Lock()
	s.state = State{
		LoggedIn: true,
		Username: username,
		Role:     role,
		Token:    token,
	}
	snapshot := s.state
	s.mu.Unlock()

	log.Debug().
		Str("username", username).
		Str("role", role).
		Msg("session updated: user logged in")

	s.notify(snapshot)
}

// Logout resets the session and removes the persisted token.
func (s *Store) Logout() {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.RemoveItem(TokenKey); err != nil {
			log.Warn().Err(err).Msg("failed to remove persisted token")
		}
	}

	log.Debug().Msg("session cleared: user logged out")

	s.notify(State{})
}

func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LoggedIn
}

func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Username
}

func (s *Store) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Role
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// Snapshot returns all fields read under a single lock.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called after each state change and returns a
// function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers[id] = fn

	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()
		delete(s.observers, id)
	}
}

// notify runs observers in subscription order outside the state lock.
func (s *Store) notify(state State) {
	s.observersMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	fns := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.observersMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// PersistedToken returns the token held in storage, or "" when none is stored
// or storage cannot be read.
func (s *Store) PersistedToken() string {
	if s.storage == nil {
		return ""
	}

	token, ok, err := s.storage.GetItem(TokenKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read persisted token")
		return ""
	}
	if !ok {
		return ""
	}

	return token
}

func (s *Store) saveToken(token string) error {
	if s.storage == nil {
		return nil
	}

	if err := s.storage.SetItem(TokenKey, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	return nil
}

package appstate

import (
	"context"
	"log/slog"

	"github.com/wozniakbe/prefsync/kv"
)

// SessionIDs pairs the identifiers issued at login.
type SessionIDs struct {
	UserID    string `json:"userId" yaml:"userId"`
	ProfileID string `json:"profileId" yaml:"profileId"`
}

// SessionStore reads and writes session identifiers directly in storage.
// Values are raw strings with no JSON envelope, and nothing is cached.
type SessionStore struct {
	store  kv.Storage
	keys   Keys
	logger *slog.Logger
}

// NewSessionStore returns a SessionStore over store. A nil logger discards.
func NewSessionStore(store kv.Storage, keys Keys, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionStore{store: store, keys: keys, logger: logger}
}

// SetIDs writes the user id, then the profile id. The two writes are
// independent: if the second fails the first stays, leaving a new user id
// beside an old or missing profile id. Callers that need both must read them
// back with IDs.
func (s *SessionStore) SetIDs(ctx context.Context, userID, profileID string) {
	if err := s.store.Set(ctx, s.keys.UserID, userID); err != nil {
		s.logger.Warn("storing user id failed", "key", s.keys.UserID, "error", err)
	}
	if err := s.store.Set(ctx, s.keys.ProfileID, profileID); err != nil {
		s.logger.Warn("storing profile id failed", "key", s.keys.ProfileID, "error", err)
	}
}

// ProfileID returns the stored profile id. A read failure counts as absent.
func (s *SessionStore) ProfileID(ctx context.Context) (string, bool) {
	return s.read(ctx, s.keys.ProfileID)
}

// UserID returns the stored user id. A read failure counts as absent.
func (s *SessionStore) UserID(ctx context.Context) (string, bool) {
	return s.read(ctx, s.keys.UserID)
}

// IDs returns both identifiers, reporting false unless both are stored.
func (s *SessionStore) IDs(ctx context.Context) (SessionIDs, bool) {
	userID, okUser := s.UserID(ctx)
	profileID, okProfile := s.ProfileID(ctx)
	return SessionIDs{UserID: userID, ProfileID: profileID}, okUser && okProfile
}

// Clear removes both identifiers. Clearing an empty session does nothing.
func (s *SessionStore) Clear(ctx context.Context) {
	for _, key := range []string{s.keys.UserID, s.keys.ProfileID} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.logger.Warn("removing session key failed", "key", key, "error", err)
		}
	}
}

func (s *SessionStore) read(ctx context.Context, key string) (string, bool) {
	v, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("reading session key failed", "key", key, "error", err)
		return "", false
	}
	return v, found
}

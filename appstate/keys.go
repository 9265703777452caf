// Package appstate holds the client state prefsync persists: application
// settings, consent flags and session identifiers.
//
// Settings and consent are live bindings built on package persisted. Session
// identifiers are read and written straight through to storage, since they
// only change at login and logout.
package appstate

import "strings"

// DefaultNamespace prefixes every key when no namespace is configured.
const DefaultNamespace = "prefsync"

// Keys names the storage slots used by one namespace.
//
// The settings and consent keys carry a version suffix. When a stored shape
// changes incompatibly the suffix is bumped, and data under the old key is
// simply never read again.
type Keys struct {
	Settings  string
	Consent   string
	UserID    string
	ProfileID string
}

// NewKeys derives the keys for namespace.
func NewKeys(namespace string) Keys {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = DefaultNamespace
	}
	return Keys{
		Settings:  ns + ".settings.v4",
		Consent:   ns + ".consent.v1",
		UserID:    ns + ".userId",
		ProfileID: ns + ".profileId",
	}
}

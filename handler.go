package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wozniakbe/prefsync/appstate"
	"github.com/wozniakbe/prefsync/persisted"
)

// StateHandler serves the settings, consent and session stores of each user.
type StateHandler struct {
	registry *appstate.Registry
	logger   *slog.Logger
}

// NewStateHandler creates a new handler over the given registry and logger.
func NewStateHandler(registry *appstate.Registry, logger *slog.Logger) *StateHandler {
	return &StateHandler{registry: registry, logger: logger}
}

// authorize checks that the JWT subject matches the requested userId.
func (h *StateHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return "", false
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing claims")
		return "", false
	}

	if claims.Subject != userID {
		writeError(w, http.StatusForbidden, "access denied")
		return "", false
	}

	return userID, true
}

// GetSettings returns the user's settings, or the defaults if none are stored.
func (h *StateHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	settings := h.registry.For(userID).Settings.Get(storeContext(r))
	writeJSON(w, http.StatusOK, SettingsResponse{UserID: userID, Settings: settings})
}

// ReplaceSettings replaces the whole settings record (PUT and POST).
func (h *StateHandler) ReplaceSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	next, err := appstate.DecodeSettings(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := h.registry.For(userID).Settings.Set(storeContext(r), persisted.Literal(next))
	writeJSON(w, http.StatusOK, SettingsResponse{UserID: userID, Settings: settings})
}

// PatchSettings merges the fields present in the body over the current
// settings. The merge runs against the latest stored value.
func (h *StateHandler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "empty settings patch")
		return
	}

	settings, err := h.registry.For(userID).Settings.Modify(storeContext(r), func(prev appstate.Settings) (appstate.Settings, error) {
		return mergeSettings(prev, body)
	})
	if err != nil {
		h.writeModifyError(w, userID, err)
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{UserID: userID, Settings: settings})
}

// GetConsent returns the user's consent flags from the live binding.
func (h *StateHandler) GetConsent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	consent := h.registry.For(userID).Consent.Get(storeContext(r))
	writeJSON(w, http.StatusOK, ConsentResponse{UserID: userID, Consent: consent, Complete: consent.Complete()})
}

// GetConsentSnapshot reads consent straight from storage.
func (h *StateHandler) GetConsentSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	consent := h.registry.For(userID).ConsentSnapshot(storeContext(r))
	writeJSON(w, http.StatusOK, ConsentResponse{UserID: userID, Consent: consent, Complete: consent.Complete()})
}

// PatchConsent sets the flags present in the body and keeps the rest.
func (h *StateHandler) PatchConsent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var patch ConsentPatch
	if err := decodeStrict(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.empty() {
		writeError(w, http.StatusBadRequest, "empty consent patch")
		return
	}

	consent, err := h.registry.For(userID).Consent.Modify(storeContext(r), func(prev appstate.Consent) (appstate.Consent, error) {
		return patch.apply(prev), nil
	})
	if err != nil {
		h.writeModifyError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, ConsentResponse{UserID: userID, Consent: consent, Complete: consent.Complete()})
}

// PutSession stores the session identifiers, then reads them back because
// the two writes are not atomic.
func (h *StateHandler) PutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req SessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ProfileID = strings.TrimSpace(req.ProfileID)
	if req.UserID == "" || req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "userId and profileId are required")
		return
	}

	session := h.registry.For(userID).Session
	session.SetIDs(storeContext(r), req.UserID, req.ProfileID)

	ids, found := session.IDs(storeContext(r))
	if !found || ids.UserID != req.UserID || ids.ProfileID != req.ProfileID {
		h.logger.Error("session ids not persisted", "userId", userID)
		writeError(w, http.StatusServiceUnavailable, "session could not be stored")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse(ids))
}

// GetSession returns the stored session identifiers.
func (h *StateHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	session := h.registry.For(userID).Session
	profileID, found := session.ProfileID(storeContext(r))
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	sessionUser, _ := session.UserID(storeContext(r))

	writeJSON(w, http.StatusOK, SessionResponse{UserID: sessionUser, ProfileID: profileID})
}

// DeleteSession clears the session identifiers. It succeeds when there is
// nothing to clear.
func (h *StateHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	h.registry.For(userID).Session.Clear(storeContext(r))
	w.WriteHeader(http.StatusNoContent)
}

// storeContext detaches storage calls from the client connection, so a
// disconnect does not cut a read or write short.
func storeContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// writeModifyError answers a rejected read-modify-write: 503 when the stored
// value could not be read, 400 when the change itself was invalid.
func (h *StateHandler) writeModifyError(w http.ResponseWriter, userID string, err error) {
	if errors.Is(err, persisted.ErrNotLoaded) {
		h.logger.Error("stored state unreadable, update refused", "userId", userID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "stored state is temporarily unavailable")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// mergeSettings decodes patch over a copy of prev and validates the result.
func mergeSettings(prev appstate.Settings, patch []byte) (appstate.Settings, error) {
	next := prev.Clone()
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return prev, errors.New("invalid settings patch: " + err.Error())
	}
	next = next.Clone()
	if err := next.Validate(); err != nil {
		return prev, err
	}
	return next, nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wozniakbe/prefsync/appstate"
	"github.com/wozniakbe/prefsync/kv"
)

// failingStore refuses writes to keys ending in failSuffix.
type failingStore struct {
	*kv.MemoryStorage
	failSuffix string
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if strings.HasSuffix(key, f.failSuffix) {
		return kv.ErrQuotaExceeded
	}
	return f.MemoryStorage.Set(ctx, key, value)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// withClaims returns a request with JWT claims set in context.
func withClaims(r *http.Request, sub string) *http.Request {
	ctx := context.WithValue(r.Context(), claimsKey, Claims{Subject: sub})
	return r.WithContext(ctx)
}

// testMux wires every state route without the auth middleware.
func testMux(store kv.Storage) (*http.ServeMux, *appstate.Registry) {
	registry := appstate.NewRegistry(userStorage(store), "app", testLogger())
	h := NewStateHandler(registry, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/{userId}/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/users/{userId}/settings", h.ReplaceSettings)
	mux.HandleFunc("PATCH /api/v1/users/{userId}/settings", h.PatchSettings)
	mux.HandleFunc("GET /api/v1/users/{userId}/consent", h.GetConsent)
	mux.HandleFunc("GET /api/v1/users/{userId}/consent/snapshot", h.GetConsentSnapshot)
	mux.HandleFunc("PATCH /api/v1/users/{userId}/consent", h.PatchConsent)
	mux.HandleFunc("GET /api/v1/users/{userId}/session", h.GetSession)
	mux.HandleFunc("PUT /api/v1/users/{userId}/session", h.PutSession)
	mux.HandleFunc("DELETE /api/v1/users/{userId}/session", h.DeleteSession)
	return mux, registry
}

func do(mux http.Handler, method, path, body, sub string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	req = withClaims(req, sub)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

const fullSettings = `{"maxDistanceKm":25,"verifiedOnly":true,"proOnly":false,"vipOnly":true,"selectedServices":["dinner","travel"],"reduceMotion":true,"language":"en","theme":"light","exploreMode":"stack"}`

func TestGetSettings_Defaults(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	w := do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.UserID != "user1" {
		t.Fatalf("expected userId user1, got %s", resp.UserID)
	}
	if !reflect.DeepEqual(resp.Settings, appstate.DefaultSettings()) {
		t.Fatalf("expected defaults, got %+v", resp.Settings)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store, got %q", w.Header().Get("Cache-Control"))
	}
}

func TestReplaceSettingsAndGet(t *testing.T) {
	store := kv.NewMemory()
	mux, _ := testMux(store)

	w := do(mux, "PUT", "/api/v1/users/user1/settings", fullSettings, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("PUT: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Theme != appstate.ThemeLight || resp.Settings.Language != appstate.LanguageEN {
		t.Fatalf("unexpected settings %+v", resp.Settings)
	}
	if !reflect.DeepEqual(resp.Settings.SelectedServices, []string{"dinner", "travel"}) {
		t.Fatalf("services = %v", resp.Settings.SelectedServices)
	}

	raw, found, _ := store.Get(context.Background(), "USER#user1#app.settings.v4")
	if !found || raw != fullSettings {
		t.Fatalf("stored %q found=%v", raw, found)
	}
}

func TestReplaceSettings_Invalid(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	for _, body := range []string{`not json`, `{"theme":"light"}`, `{"maxDistanceKm":-1,"verifiedOnly":false,"proOnly":true,"vipOnly":false,"selectedServices":[],"reduceMotion":false,"language":"fr","theme":"dark","exploreMode":"feed"}`} {
		w := do(mux, "PUT", "/api/v1/users/user1/settings", body, "user1")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestPatchSettings(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())
	do(mux, "PUT", "/api/v1/users/user1/settings", fullSettings, "user1")

	w := do(mux, "PATCH", "/api/v1/users/user1/settings", `{"theme":"dark","maxDistanceKm":3}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Theme != appstate.ThemeDark || resp.Settings.MaxDistanceKm != 3 {
		t.Fatalf("patched fields not applied: %+v", resp.Settings)
	}
	if resp.Settings.Language != appstate.LanguageEN || !resp.Settings.VIPOnly {
		t.Fatalf("untouched fields changed: %+v", resp.Settings)
	}
}

func TestPatchSettings_Rejected(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	cases := []string{`{}`, `null`, `[]`, `{"theme":"sepia"}`, `{"colour":"red"}`, `{"maxDistanceKm":0}`}
	for _, body := range cases {
		w := do(mux, "PATCH", "/api/v1/users/user1/settings", body, "user1")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}

	w := do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !reflect.DeepEqual(resp.Settings, appstate.DefaultSettings()) {
		t.Fatalf("rejected patches must not change settings, got %+v", resp.Settings)
	}
}

func TestSettings_WriteFailureStillServesNewValue(t *testing.T) {
	store := &failingStore{MemoryStorage: kv.NewMemory(), failSuffix: "settings.v4"}
	mux, _ := testMux(store)

	w := do(mux, "PATCH", "/api/v1/users/user1/settings", `{"theme":"light"}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Theme != appstate.ThemeLight {
		t.Fatalf("expected in-memory theme light, got %s", resp.Settings.Theme)
	}
	if store.Len() != 0 {
		t.Fatal("nothing should have reached storage")
	}
}

func TestPatchConsentAndSnapshot(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	w := do(mux, "PATCH", "/api/v1/users/user1/consent", `{"ageOk":true}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ConsentResponse
	json.NewDecoder(w.Body).Decode(&resp)
	want := appstate.Consent{AgeOK: true}
	if resp.Consent != want || resp.Complete {
		t.Fatalf("unexpected consent %+v complete=%v", resp.Consent, resp.Complete)
	}

	w = do(mux, "GET", "/api/v1/users/user1/consent/snapshot", "", "user1")
	resp = ConsentResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Consent != want {
		t.Fatalf("snapshot = %+v, want %+v", resp.Consent, want)
	}

	do(mux, "PATCH", "/api/v1/users/user1/consent", `{"cookiesOk":true,"conditionsOk":true}`, "user1")
	w = do(mux, "GET", "/api/v1/users/user1/consent", "", "user1")
	resp = ConsentResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Complete {
		t.Fatalf("expected complete consent, got %+v", resp.Consent)
	}
}

func TestConsentSnapshot_PartialStoredRecord(t *testing.T) {
	store := kv.NewMemory()
	store.Set(context.Background(), "USER#user1#app.consent.v1", `{"cookiesOk":true}`)
	mux, _ := testMux(store)

	w := do(mux, "GET", "/api/v1/users/user1/consent/snapshot", "", "user1")
	var resp ConsentResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Consent != (appstate.Consent{CookiesOK: true}) {
		t.Fatalf("snapshot = %+v", resp.Consent)
	}
}

func TestPatchConsent_Rejected(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	for _, body := range []string{`{}`, `not json`, `{"ageOk":"yes"}`, `{"marketingOk":true}`} {
		w := do(mux, "PATCH", "/api/v1/users/user1/consent", body, "user1")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	w := do(mux, "GET", "/api/v1/users/user1/session", "", "user1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before login, got %d", w.Code)
	}

	w = do(mux, "PUT", "/api/v1/users/user1/session", `{"userId":"u-77","profileId":"p-9"}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("PUT: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(mux, "GET", "/api/v1/users/user1/session", "", "user1")
	var resp SessionResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.UserID != "u-77" || resp.ProfileID != "p-9" {
		t.Fatalf("unexpected session %+v", resp)
	}

	for i := 0; i < 2; i++ {
		w = do(mux, "DELETE", "/api/v1/users/user1/session", "", "user1")
		if w.Code != http.StatusNoContent {
			t.Fatalf("DELETE #%d: expected 204, got %d", i+1, w.Code)
		}
		w = do(mux, "GET", "/api/v1/users/user1/session", "", "user1")
		if w.Code != http.StatusNotFound {
			t.Fatalf("after DELETE #%d: expected 404, got %d", i+1, w.Code)
		}
	}
}

func TestPutSession_Invalid(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	for _, body := range []string{`{"userId":"u"}`, `{"userId":" ","profileId":"p"}`, `nope`} {
		w := do(mux, "PUT", "/api/v1/users/user1/session", body, "user1")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestPutSession_PartialWriteReported(t *testing.T) {
	store := &failingStore{MemoryStorage: kv.NewMemory(), failSuffix: "profileId"}
	mux, _ := testMux(store)

	w := do(mux, "PUT", "/api/v1/users/user1/session", `{"userId":"u","profileId":"p"}`, "user1")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	mux, registry := testMux(kv.NewMemory())

	do(mux, "PATCH", "/api/v1/users/user1/settings", `{"theme":"light"}`, "user1")

	w := do(mux, "GET", "/api/v1/users/user2/settings", "", "user2")
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Theme != appstate.ThemeDark {
		t.Fatalf("user2 should see defaults, got %s", resp.Settings.Theme)
	}
	if registry.Len() != 2 {
		t.Fatalf("expected 2 clients, got %d", registry.Len())
	}
}

func TestAuthorize_Forbidden(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	w := do(mux, "GET", "/api/v1/users/user1/settings", "", "other-user")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestAuthorize_MissingClaims(t *testing.T) {
	mux, _ := testMux(kv.NewMemory())

	req := httptest.NewRequest("GET", "/api/v1/users/user1/consent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRouter_DevBypassEndToEnd(t *testing.T) {
	cfg := Config{JWTSecret: "x", CORSAllowOrigin: "*", DevBypassAuth: true, StorageBackend: BackendMemory}
	registry := appstate.NewRegistry(userStorage(kv.NewMemory()), "app", testLogger())
	router := NewRouter(NewStateHandler(registry, testLogger()), cfg, testLogger())

	req := httptest.NewRequest("PATCH", "/api/v1/users/dev/consent", bytes.NewBufferString(`{"ageOk":true}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}

	req = httptest.NewRequest("GET", "/healthz", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	cfg := Config{JWTSecret: testSecret, CORSAllowOrigin: "*", StorageBackend: BackendMemory}
	registry := appstate.NewRegistry(userStorage(kv.NewMemory()), "app", testLogger())
	router := NewRouter(NewStateHandler(registry, testLogger()), cfg, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/users/user1/settings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/users/user1/settings", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken("user1", testSecret, jwt.SigningMethodHS256))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

// countingStore counts writes that reach storage.
type countingStore struct {
	*kv.MemoryStorage
	sets int
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.MemoryStorage.Set(ctx, key, value)
}

const storedSettings = `{"maxDistanceKm":42,"verifiedOnly":false,"proOnly":true,"vipOnly":false,"selectedServices":[],"reduceMotion":false,"language":"en","theme":"dark","exploreMode":"feed"}`

func TestPatchSettings_AfterCancelledFirstRequest(t *testing.T) {
	store, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	store.Set(ctx, "USER#user1#app.settings.v4", storedSettings)

	mux, _ := testMux(store)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	req := withClaims(httptest.NewRequest("GET", "/api/v1/users/user1/settings", nil).WithContext(cancelled), "user1")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Language != appstate.LanguageEN || resp.Settings.MaxDistanceKm != 42 {
		t.Fatalf("GET with cancelled context served %+v", resp.Settings)
	}

	w = do(mux, "PATCH", "/api/v1/users/user1/settings", `{"reduceMotion":true}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	raw, _, _ := store.Get(ctx, "USER#user1#app.settings.v4")
	got, err := appstate.DecodeSettings(raw)
	if err != nil {
		t.Fatalf("stored record unreadable: %v (%q)", err, raw)
	}
	if got.Language != appstate.LanguageEN || got.MaxDistanceKm != 42 || !got.ReduceMotion {
		t.Fatalf("stored record lost fields: %+v", got)
	}
}

func TestPatchSettings_DuringReadOutage(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	store.Set(ctx, "USER#user1#app.settings.v4", storedSettings)
	mux, _ := testMux(store)

	store.SetDisabled(true)
	w := do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("GET during outage: expected 200, got %d", w.Code)
	}
	w = do(mux, "PATCH", "/api/v1/users/user1/settings", `{"reduceMotion":true}`, "user1")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("PATCH during outage: expected 503, got %d", w.Code)
	}
	w = do(mux, "PATCH", "/api/v1/users/user1/consent", `{"ageOk":true}`, "user1")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("consent PATCH during outage: expected 503, got %d", w.Code)
	}

	store.SetDisabled(false)
	w = do(mux, "GET", "/api/v1/users/user1/settings", "", "user1")
	var resp SettingsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Settings.Language != appstate.LanguageEN || resp.Settings.MaxDistanceKm != 42 {
		t.Fatalf("GET after outage served %+v, want stored record", resp.Settings)
	}

	w = do(mux, "PATCH", "/api/v1/users/user1/settings", `{"reduceMotion":true}`, "user1")
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH after outage: expected 200, got %d", w.Code)
	}
	raw, _, _ := store.Get(ctx, "USER#user1#app.settings.v4")
	got, _ := appstate.DecodeSettings(raw)
	if got.Language != appstate.LanguageEN || got.MaxDistanceKm != 42 || !got.ReduceMotion {
		t.Fatalf("stored record after PATCH = %+v", got)
	}
}

func TestPatchSettings_RejectedWritesNothing(t *testing.T) {
	store := &countingStore{MemoryStorage: kv.NewMemory()}
	mux, _ := testMux(store)

	for _, body := range []string{`{"theme":"sepia"}`, `{"colour":"red"}`, `{"maxDistanceKm":0}`} {
		if w := do(mux, "PATCH", "/api/v1/users/user1/settings", body, "user1"); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
	if store.sets != 0 {
		t.Fatalf("rejected patches wrote %d times", store.sets)
	}
}

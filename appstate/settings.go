package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/wozniakbe/prefsync/kv"
	"github.com/wozniakbe/prefsync/persisted"
)

// Language is the UI language.
type Language string

const (
	LanguageFR Language = "fr"
	LanguageEN Language = "en"
)

func (l Language) Valid() bool { return l == LanguageFR || l == LanguageEN }

// ParseLanguage validates s as a Language.
func ParseLanguage(s string) (Language, error) {
	if l := Language(s); l.Valid() {
		return l, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// Theme is the UI color theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func (t Theme) Valid() bool { return t == ThemeLight || t == ThemeDark }

// ParseTheme validates s as a Theme.
func ParseTheme(s string) (Theme, error) {
	if t := Theme(s); t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// ExploreMode selects how browse results are laid out.
type ExploreMode string

const (
	ExploreStack ExploreMode = "stack"
	ExploreFeed  ExploreMode = "feed"
)

func (m ExploreMode) Valid() bool { return m == ExploreStack || m == ExploreFeed }

// ParseExploreMode validates s as an ExploreMode.
func ParseExploreMode(s string) (ExploreMode, error) {
	if m := ExploreMode(s); m.Valid() {
		return m, nil
	}
	return "", fmt.Errorf("unknown explore mode %q", s)
}

// Settings is the application settings record.
type Settings struct {
	MaxDistanceKm float64 `json:"maxDistanceKm" yaml:"maxDistanceKm"`
	VerifiedOnly  bool    `json:"verifiedOnly" yaml:"verifiedOnly"`
	ProOnly       bool    `json:"proOnly" yaml:"proOnly"`
	VIPOnly       bool    `json:"vipOnly" yaml:"vipOnly"`
	// SelectedServices keeps insertion order for display; it never holds
	// duplicates.
	SelectedServices []string    `json:"selectedServices" yaml:"selectedServices"`
	ReduceMotion     bool        `json:"reduceMotion" yaml:"reduceMotion"`
	Language         Language    `json:"language" yaml:"language"`
	Theme            Theme       `json:"theme" yaml:"theme"`
	ExploreMode      ExploreMode `json:"exploreMode" yaml:"exploreMode"`
}

// settingsFields lists the JSON fields a stored record must carry. A record
// missing any of them is from an older shape and is discarded.
var settingsFields = []string{
	"maxDistanceKm", "verifiedOnly", "proOnly", "vipOnly", "selectedServices",
	"reduceMotion", "language", "theme", "exploreMode",
}

// DefaultSettings returns the settings used when nothing valid is stored.
func DefaultSettings() Settings {
	return Settings{
		MaxDistanceKm:    10,
		VerifiedOnly:     false,
		ProOnly:          true,
		VIPOnly:          false,
		SelectedServices: []string{},
		ReduceMotion:     false,
		Language:         LanguageFR,
		Theme:            ThemeDark,
		ExploreMode:      ExploreFeed,
	}
}

// Validate reports the first field that is out of range.
func (s Settings) Validate() error {
	if !(s.MaxDistanceKm > 0) {
		return fmt.Errorf("maxDistanceKm must be greater than zero, got %v", s.MaxDistanceKm)
	}
	if !s.Language.Valid() {
		return fmt.Errorf("unknown language %q", s.Language)
	}
	if !s.Theme.Valid() {
		return fmt.Errorf("unknown theme %q", s.Theme)
	}
	if !s.ExploreMode.Valid() {
		return fmt.Errorf("unknown explore mode %q", s.ExploreMode)
	}
	seen := make(map[string]struct{}, len(s.SelectedServices))
	for _, svc := range s.SelectedServices {
		if svc == "" {
			return errors.New("selectedServices contains an empty name")
		}
		if _, dup := seen[svc]; dup {
			return fmt.Errorf("selectedServices contains %q twice", svc)
		}
		seen[svc] = struct{}{}
	}
	return nil
}

// Clone returns a copy that shares no memory with s.
func (s Settings) Clone() Settings {
	c := s
	c.SelectedServices = slices.Clone(s.SelectedServices)
	if c.SelectedServices == nil {
		c.SelectedServices = []string{}
	}
	return c
}

// HasService reports whether name is selected.
func (s Settings) HasService(name string) bool {
	return slices.Contains(s.SelectedServices, name)
}

// ToggleService returns a copy with name removed if it was selected, or
// appended otherwise.
func (s Settings) ToggleService(name string) Settings {
	c := s.Clone()
	if i := slices.Index(c.SelectedServices, name); i >= 0 {
		c.SelectedServices = slices.Delete(c.SelectedServices, i, i+1)
		return c
	}
	c.SelectedServices = append(c.SelectedServices, name)
	return c
}

// DecodeSettings parses a stored settings record. The record must carry every
// field and pass Validate; there is no field-level recovery.
func DecodeSettings(raw string) (Settings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if fields == nil {
		return Settings{}, errors.New("decode settings: null record")
	}
	for _, name := range settingsFields {
		if _, ok := fields[name]; !ok {
			return Settings{}, fmt.Errorf("decode settings: missing field %q", name)
		}
	}

	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s.Clone(), nil
}

func encodeSettings(s Settings) (string, error) {
	b, err := json.Marshal(s.Clone())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var settingsCodec = persisted.CodecFuncs[Settings]{
	EncodeFunc: encodeSettings,
	DecodeFunc: DecodeSettings,
}

// SettingsStore is the live settings binding.
type SettingsStore struct {
	state *persisted.State[Settings]
}

// NewSettingsStore binds settings to keys.Settings in store.
func NewSettingsStore(store kv.Storage, keys Keys, opts ...persisted.Option) *SettingsStore {
	return &SettingsStore{
		state: persisted.BindCodec[Settings](store, keys.Settings, DefaultSettings(), settingsCodec, opts...),
	}
}

// Get returns the current settings.
func (s *SettingsStore) Get(ctx context.Context) Settings {
	return s.state.Get(ctx).Clone()
}

// Set replaces the settings, or transforms them when u is an updater. The
// updater receives its own copy and may modify it in place. Values are not
// validated here; an invalid record is written as given and reads back as the
// defaults once the binding is reloaded.
func (s *SettingsStore) Set(ctx context.Context, u persisted.Update[Settings]) Settings {
	next := s.state.Set(ctx, persisted.Updater(func(prev Settings) Settings {
		return u.Apply(prev.Clone()).Clone()
	}))
	return next.Clone()
}

// Modify transforms the settings with fn, which may reject the change. A
// rejected change, or one attempted while storage cannot be read, writes
// nothing. fn receives its own copy.
func (s *SettingsStore) Modify(ctx context.Context, fn func(prev Settings) (Settings, error)) (Settings, error) {
	next, err := s.state.Modify(ctx, func(prev Settings) (Settings, error) {
		next, err := fn(prev.Clone())
		return next.Clone(), err
	})
	return next.Clone(), err
}

// Reload re-reads settings from storage.
func (s *SettingsStore) Reload(ctx context.Context) Settings {
	return s.state.Reload(ctx).Clone()
}

package appstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wozniakbe/prefsync/kv"
	"github.com/wozniakbe/prefsync/persisted"
)

// Consent records which gates the user has acknowledged.
type Consent struct {
	AgeOK        bool `json:"ageOk" yaml:"ageOk"`
	CookiesOK    bool `json:"cookiesOk" yaml:"cookiesOk"`
	ConditionsOK bool `json:"conditionsOk" yaml:"conditionsOk"`
}

// DefaultConsent returns the all-false record.
func DefaultConsent() Consent {
	return Consent{}
}

// Complete reports whether every flag is set.
func (c Consent) Complete() bool {
	return c.AgeOK && c.CookiesOK && c.ConditionsOK
}

// DecodeConsent parses a stored consent record. Fields present in raw
// override the defaults one by one; absent fields keep their default, so a
// change elsewhere in the stored shape never resets a granted flag. Keys
// match exactly: "AGEOK" is not "ageOk".
func DecodeConsent(raw string) (Consent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return DefaultConsent(), fmt.Errorf("decode consent: %w", err)
	}

	c := DefaultConsent()
	for name, dst := range map[string]*bool{
		"ageOk":        &c.AgeOK,
		"cookiesOk":    &c.CookiesOK,
		"conditionsOk": &c.ConditionsOK,
	} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return DefaultConsent(), fmt.Errorf("decode consent: %s: %w", name, err)
		}
	}
	return c, nil
}

var consentCodec = persisted.CodecFuncs[Consent]{
	EncodeFunc: func(c Consent) (string, error) {
		b, err := json.Marshal(c)
		return string(b), err
	},
	DecodeFunc: DecodeConsent,
}

// GrantAge, GrantCookies and GrantConditions set one flag and leave the
// others as they are.
func GrantAge() persisted.Update[Consent] {
	return persisted.Updater(func(c Consent) Consent { c.AgeOK = true; return c })
}

func GrantCookies() persisted.Update[Consent] {
	return persisted.Updater(func(c Consent) Consent { c.CookiesOK = true; return c })
}

func GrantConditions() persisted.Update[Consent] {
	return persisted.Updater(func(c Consent) Consent { c.ConditionsOK = true; return c })
}

// ConsentStore is the live consent binding.
type ConsentStore struct {
	state *persisted.State[Consent]
}

// NewConsentStore binds consent to keys.Consent in store.
func NewConsentStore(store kv.Storage, keys Keys, opts ...persisted.Option) *ConsentStore {
	return &ConsentStore{
		state: persisted.BindCodec[Consent](store, keys.Consent, DefaultConsent(), consentCodec, opts...),
	}
}

// Get returns the current consent flags.
func (s *ConsentStore) Get(ctx context.Context) Consent {
	return s.state.Get(ctx)
}

// Set replaces or transforms the consent flags.
func (s *ConsentStore) Set(ctx context.Context, u persisted.Update[Consent]) Consent {
	return s.state.Set(ctx, u)
}

// Modify transforms the consent flags with fn. Nothing is written when fn
// fails or storage cannot be read.
func (s *ConsentStore) Modify(ctx context.Context, fn func(prev Consent) (Consent, error)) (Consent, error) {
	return s.state.Modify(ctx, fn)
}

// Reload re-reads consent from storage.
func (s *ConsentStore) Reload(ctx context.Context) Consent {
	return s.state.Reload(ctx)
}

// ReadConsentSnapshot reads consent straight from storage without creating or
// consulting a binding. It is meant for one-off gating checks. Any read or
// decode failure yields DefaultConsent.
func ReadConsentSnapshot(ctx context.Context, store kv.Storage, keys Keys, logger *slog.Logger) Consent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	raw, found, err := store.Get(ctx, keys.Consent)
	if err != nil {
		logger.Warn("consent snapshot read failed", "key", keys.Consent, "error", err)
		return DefaultConsent()
	}
	if !found {
		return DefaultConsent()
	}

	c, err := consentCodec.Decode(raw)
	if err != nil {
		logger.Debug("consent snapshot did not decode", "key", keys.Consent, "error", err)
		return DefaultConsent()
	}
	return c
}

package main

import "github.com/wozniakbe/prefsync/appstate"

// SettingsResponse is returned by every settings endpoint.
type SettingsResponse struct {
	UserID   string            `json:"userId"`
	Settings appstate.Settings `json:"settings"`
}

// ConsentResponse is returned by the consent endpoints.
type ConsentResponse struct {
	UserID   string           `json:"userId"`
	Consent  appstate.Consent `json:"consent"`
	Complete bool             `json:"complete"`
}

// ConsentPatch sets any subset of the consent flags.
type ConsentPatch struct {
	AgeOK        *bool `json:"ageOk"`
	CookiesOK    *bool `json:"cookiesOk"`
	ConditionsOK *bool `json:"conditionsOk"`
}

func (p ConsentPatch) empty() bool {
	return p.AgeOK == nil && p.CookiesOK == nil && p.ConditionsOK == nil
}

func (p ConsentPatch) apply(c appstate.Consent) appstate.Consent {
	if p.AgeOK != nil {
		c.AgeOK = *p.AgeOK
	}
	if p.CookiesOK != nil {
		c.CookiesOK = *p.CookiesOK
	}
	if p.ConditionsOK != nil {
		c.ConditionsOK = *p.ConditionsOK
	}
	return c
}

// SessionRequest carries the identifiers issued by the login flow.
type SessionRequest struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

// SessionResponse is returned for session lookups.
type SessionResponse struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

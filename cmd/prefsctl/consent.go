package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wozniakbe/prefsync/appstate"
	"github.com/wozniakbe/prefsync/persisted"
)

// consentView is what consent show prints.
type consentView struct {
	appstate.Consent `yaml:",inline"`
	Complete         bool `yaml:"complete"`
}

func (c *cli) consentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show, grant or revoke consent flags",
	}

	var snapshot bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the consent flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var consent appstate.Consent
			if snapshot {
				consent = c.client.ConsentSnapshot(cmd.Context())
			} else {
				consent = c.client.Consent.Get(cmd.Context())
			}
			return printYAML(cmd.OutOrStdout(), consentView{Consent: consent, Complete: consent.Complete()})
		},
	}
	show.Flags().BoolVar(&snapshot, "snapshot", false, "Read straight from storage without binding")

	grant := &cobra.Command{
		Use:       "grant age|cookies|conditions|all...",
		Short:     "Set consent flags",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"age", "cookies", "conditions", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.setConsent(cmd, args, true)
		},
	}

	revoke := &cobra.Command{
		Use:       "revoke age|cookies|conditions|all...",
		Short:     "Clear consent flags",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"age", "cookies", "conditions", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.setConsent(cmd, args, false)
		},
	}

	cmd.AddCommand(show, grant, revoke)
	return cmd
}

func (c *cli) setConsent(cmd *cobra.Command, flags []string, value bool) error {
	for _, f := range flags {
		if _, err := consentSetter(f, value); err != nil {
			return err
		}
	}
	next := c.client.Consent.Set(cmd.Context(), persisted.Updater(func(prev appstate.Consent) appstate.Consent {
		for _, f := range flags {
			set, _ := consentSetter(f, value)
			prev = set(prev)
		}
		return prev
	}))
	return printYAML(cmd.OutOrStdout(), consentView{Consent: next, Complete: next.Complete()})
}

func consentSetter(flag string, value bool) (func(appstate.Consent) appstate.Consent, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "age":
		return func(c appstate.Consent) appstate.Consent { c.AgeOK = value; return c }, nil
	case "cookies":
		return func(c appstate.Consent) appstate.Consent { c.CookiesOK = value; return c }, nil
	case "conditions":
		return func(c appstate.Consent) appstate.Consent { c.ConditionsOK = value; return c }, nil
	case "all":
		return func(appstate.Consent) appstate.Consent {
			return appstate.Consent{AgeOK: value, CookiesOK: value, ConditionsOK: value}
		}, nil
	}
	return nil, fmt.Errorf("unknown consent flag %q", flag)
}
